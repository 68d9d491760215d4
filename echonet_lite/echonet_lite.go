package echonet_lite

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
)

// ECHONET Lite 資料
// https://echonet.jp/spec_g/
//  https://echonet.jp/spec_v114_lite/ (ECHONET Lite)
//  https://echonet.jp/spec_object_rr2/ (ECHONET Liteオブジェクト)

const (
	ECHONETLitePort = 3610 // ECHONET Liteのポート番号
)

// ECHONETLiteMulticastIPv4 はECHONET Liteの既定のマルチキャストグループアドレス
var ECHONETLiteMulticastIPv4 = net.IPv4(224, 0, 23, 0)

// EPCType はプロパティコード（1バイト）を表します。
type EPCType byte

func (e EPCType) String() string {
	return fmt.Sprintf("%02X", byte(e))
}

// MarshalJSON は EPCType を16進数文字列としてJSONにマーシャルする
func (e EPCType) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// UnmarshalJSON は16進数文字列からEPCTypeにアンマーシャルする
func (e *EPCType) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(hexStr)
	if err != nil {
		return err
	}
	if len(decoded) != 1 {
		return fmt.Errorf("invalid EPC length: expected 1 byte, got %d bytes", len(decoded))
	}
	*e = EPCType(decoded[0])
	return nil
}

// ParseEPC は "80" や "0x80" 形式の文字列から EPCType を作る
func ParseEPC(s string) (EPCType, error) {
	if len(s) > 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid EPC %q: %w", s, err)
	}
	if len(decoded) != 1 {
		return 0, fmt.Errorf("invalid EPC %q: expected 1 byte, got %d bytes", s, len(decoded))
	}
	return EPCType(decoded[0]), nil
}

// Property は各プロパティ（EPC, EDT）を表します。
type Property struct {
	EPC EPCType // プロパティコード
	EDT []byte  // プロパティデータ
}

type Properties []Property

func (p Property) Encode() []byte {
	PDC := len(p.EDT)
	data := make([]byte, 2+PDC)
	data[0] = byte(p.EPC)
	data[1] = byte(PDC)
	copy(data[2:], p.EDT)
	return data
}

func (p Property) EDTString() string {
	return hex.EncodeToString(p.EDT)
}
