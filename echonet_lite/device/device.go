package device

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"echonet-emulator/echonet_lite"
	"echonet-emulator/echonet_lite/schema"
)

// ErrUnknownProperty は対象クラスに存在しないEPCへのアクセスを表すエラー
var ErrUnknownProperty = errors.New("unknown property")

// PropertyChange はプロパティ値の変化通知
type PropertyChange struct {
	EOJ      echonet_lite.EOJ
	Property echonet_lite.Property
}

// Device はエミュレートする機器1台の状態を保持します。
// プロパティ構成は schema.Store の解決結果から固定され、以後は値だけが変わる。
type Device struct {
	mu         sync.RWMutex
	eoj        echonet_lite.EOJ
	className  string
	release    schema.ReleaseCode
	properties map[echonet_lite.EPCType][]byte
	epcs       []echonet_lite.EPCType // 昇順

	// PropertyChangeCh には Set による値の変化が流れる。
	// 受信側が追いつかない場合、通知は捨てられる。
	PropertyChangeCh chan PropertyChange
}

// defaultEDTs は代表的なEPCの初期値。それ以外のEPCは genericDefaultEDT で初期化する。
var defaultEDTs = map[echonet_lite.EPCType][]byte{
	0x80: {0x30},             // 動作状態: ON
	0x81: {0x00},             // 設置場所: 未設定
	0x88: {0x42},             // 異常発生状態: 異常なし
	0x8A: {0x00, 0x00, 0x00}, // メーカコード: 実験用
}

var genericDefaultEDT = []byte{0x00}

// New は解決済みのクラス記述から機器インスタンスを作る
func New(descriptor *schema.DeviceDescriptor, instance echonet_lite.EOJInstanceCode) (*Device, error) {
	classCode, err := echonet_lite.ParseEOJClassCode(descriptor.ClassCode)
	if err != nil {
		return nil, err
	}
	if instance == 0 {
		instance = 1
	}

	d := &Device{
		eoj:              echonet_lite.MakeEOJ(classCode, instance),
		className:        descriptor.ClassName,
		release:          descriptor.Release,
		properties:       make(map[echonet_lite.EPCType][]byte, len(descriptor.EPCs)),
		epcs:             make([]echonet_lite.EPCType, 0, len(descriptor.EPCs)),
		PropertyChangeCh: make(chan PropertyChange, 32),
	}
	for _, code := range descriptor.EPCs {
		epc, err := echonet_lite.ParseEPC(code)
		if err != nil {
			return nil, fmt.Errorf("descriptor for %s: %w", descriptor.ClassCode, err)
		}
		edt, ok := defaultEDTs[epc]
		if !ok {
			edt = genericDefaultEDT
		}
		d.properties[epc] = slices.Clone(edt)
		d.epcs = append(d.epcs, epc)
	}
	slices.Sort(d.epcs)
	return d, nil
}

// EOJ は機器のECHONETオブジェクトコードを返す
func (d *Device) EOJ() echonet_lite.EOJ {
	return d.eoj
}

// ClassName は機器クラスの表示名を返す
func (d *Device) ClassName() string {
	return d.className
}

// Release は解決に使われたリリースを返す
func (d *Device) Release() schema.ReleaseCode {
	return d.release
}

// Get はEPCの現在値を返す
func (d *Device) Get(epc echonet_lite.EPCType) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	edt, ok := d.properties[epc]
	if !ok {
		return nil, false
	}
	return slices.Clone(edt), true
}

// Set はEPCの値を更新し、変化を通知する。
// クラスに存在しないEPCは ErrUnknownProperty。
func (d *Device) Set(epc echonet_lite.EPCType, edt []byte) error {
	d.mu.Lock()
	if _, ok := d.properties[epc]; !ok {
		d.mu.Unlock()
		return fmt.Errorf("EPC %s: %w", epc, ErrUnknownProperty)
	}
	d.properties[epc] = slices.Clone(edt)
	d.mu.Unlock()

	change := PropertyChange{
		EOJ:      d.eoj,
		Property: echonet_lite.Property{EPC: epc, EDT: slices.Clone(edt)},
	}
	select {
	case d.PropertyChangeCh <- change:
	default:
		// 受信側が詰まっていても Set は止めない
	}
	return nil
}

// Properties は全プロパティの現在値をEPC昇順で返す
func (d *Device) Properties() echonet_lite.Properties {
	d.mu.RLock()
	defer d.mu.RUnlock()
	props := make(echonet_lite.Properties, 0, len(d.epcs))
	for _, epc := range d.epcs {
		props = append(props, echonet_lite.Property{
			EPC: epc,
			EDT: slices.Clone(d.properties[epc]),
		})
	}
	return props
}
