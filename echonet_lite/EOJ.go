package echonet_lite

import (
	"encoding/hex"
	"fmt"
	"strings"
)

type EOJ uint32

type EOJClassCode uint16
type EOJInstanceCode uint8

func (e EOJ) ClassCode() EOJClassCode {
	return EOJClassCode(e >> 8 & 0xffff)
}
func (e EOJ) InstanceCode() EOJInstanceCode {
	return EOJInstanceCode(e)
}

func MakeEOJ(classCode EOJClassCode, instanceCode EOJInstanceCode) EOJ {
	return EOJ(uint32(classCode)<<8 | uint32(instanceCode))
}

const (
	HomeAirConditioner_ClassCode     EOJClassCode = 0x0130 // 家庭用エアコン
	ElectricWaterHeater_ClassCode    EOJClassCode = 0x026b // 電気温水器
	SingleFunctionLighting_ClassCode EOJClassCode = 0x0291 // 単機能照明
	GeneralLighting_ClassCode        EOJClassCode = 0x0290 // 一般照明
	Refrigerator_ClassCode           EOJClassCode = 0x03b7 // 冷凍冷蔵庫
	Controller_ClassCode             EOJClassCode = 0x05ff // コントローラ
	NodeProfile_ClassCode            EOJClassCode = 0x0ef0 // ノードプロファイル

	// Superclass_ClassCode はスキーマ文書上の機器オブジェクトスーパークラスの擬似クラスコード
	Superclass_ClassCode EOJClassCode = 0x0000
)

// ParseEOJClassCode は "0130" や "0x0130" 形式の文字列からクラスコードを作る。
// 4文字を超える部分は無視される（インスタンスコード付きの指定を許容する）。
func ParseEOJClassCode(s string) (EOJClassCode, error) {
	if len(s) > 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	if len(s) < 4 {
		return 0, fmt.Errorf("invalid class code %q: must be at least 4 hex characters", s)
	}
	decoded, err := hex.DecodeString(strings.ToUpper(s[:4]))
	if err != nil {
		return 0, fmt.Errorf("invalid class code %q: %w", s, err)
	}
	return EOJClassCode(uint16(decoded[0])<<8 | uint16(decoded[1])), nil
}

func (c EOJClassCode) String() string {
	var s string
	switch c {
	case HomeAirConditioner_ClassCode:
		s = "Home air conditioner"
	case ElectricWaterHeater_ClassCode:
		s = "Electric water heater"
	case SingleFunctionLighting_ClassCode:
		s = "Single-function lighting"
	case GeneralLighting_ClassCode:
		s = "General lighting"
	case Refrigerator_ClassCode:
		s = "Refrigerator"
	case Controller_ClassCode:
		s = "Controller"
	case NodeProfile_ClassCode:
		s = "Node profile"
	default:
		switch c.ClassGroupCode() {
		case 0x00:
			s = "Sensor-related device"
		case 0x01:
			s = "Air conditioner-related device"
		case 0x02:
			s = "Housing/facility-related device"
		case 0x03:
			s = "Cooking/housework-related device"
		case 0x04:
			s = "Health-related device"
		case 0x05:
			s = "Management/control-related device"
		case 0x06:
			s = "Audiovisual-related device"
		case 0x07:
			s = "Network-related device"
		case 0x0e:
			s = "Profile"
		case 0x0f:
			s = "User definition"
		default:
			s = "?"
		}
	}
	return fmt.Sprintf("%04X[%s]", uint16(c), s)
}

type ClassGroupCodeType byte
type ClassCodeType byte

func (c EOJClassCode) ClassGroupCode() ClassGroupCodeType {
	return ClassGroupCodeType(c >> 8)
}
func (c EOJClassCode) ClassCode() ClassCodeType {
	return ClassCodeType(c)
}

// Specifier は "0130" 形式のクラスコード文字列を返す
func (c EOJClassCode) Specifier() string {
	return fmt.Sprintf("%04X", uint16(c))
}

func (e EOJ) String() string {
	return fmt.Sprintf("%s:%v", e.ClassCode(), e.InstanceCode())
}

// Specifier は "0130:1" 形式の文字列を返す
func (e EOJ) Specifier() string {
	if e.InstanceCode() == 0 {
		return fmt.Sprintf("%04X", uint16(e.ClassCode()))
	}
	return fmt.Sprintf("%04X:%d", uint16(e.ClassCode()), e.InstanceCode())
}
