package schema

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// ErrMissingMetaData はスキーマ文書に metaData.release がない場合のエラー。
// 起動時の致命的エラーであり、呼び出し側はプロセスを終了させること。
var ErrMissingMetaData = errors.New("schema document is missing metaData.release")

// MetaData はスキーマ文書のメタ情報
type MetaData struct {
	Release string `json:"release"`
	Date    string `json:"date"`
	Version string `json:"version"`
}

// Store は機器オブジェクトスキーマの読み取り専用カタログです。
// 起動時に一度だけ構築し、以後は参照共有する。Resolve は毎回深いコピーの上で
// 動作するため、並行呼び出しにロックは不要。
type Store struct {
	meta     MetaData
	standard ReleaseCode
	common   *Node            // スーパークラス ("0000") のクラスフラグメント
	classes  map[string]*Node // 正規化済みクラスコード → クラスフラグメント
}

// rawDocument はスキーマ文書のトップレベル構造
type rawDocument struct {
	MetaData    *MetaData                  `json:"metaData"`
	Definitions map[string]json.RawMessage `json:"definitions"`
	Devices     map[string]json.RawMessage `json:"devices"`
}

// LoadFile はスキーマ文書ファイルを読み込んで Store を構築する
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("スキーマ文書を読み込めませんでした: %w", err)
	}
	return Load(data)
}

// Load はスキーマ文書（JSON）から Store を構築する。
// definitions 内の相互参照を展開した後、各機器エントリの参照を展開し、
// クラス・プロパティコードを正規化する。metaData.release がない場合は
// ErrMissingMetaData を返す。
func Load(data []byte) (*Store, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("スキーマ文書の解析に失敗: %w", err)
	}
	if raw.MetaData == nil || raw.MetaData.Release == "" {
		return nil, ErrMissingMetaData
	}
	standard, ok := ParseReleaseCode(raw.MetaData.Release)
	if !ok {
		return nil, fmt.Errorf("%w: invalid release %q", ErrMissingMetaData, raw.MetaData.Release)
	}

	defs := make(map[string]*Node, len(raw.Definitions))
	for name, fragment := range raw.Definitions {
		n, err := DecodeJSON(fragment)
		if err != nil {
			return nil, fmt.Errorf("definition %q: %w", name, err)
		}
		defs[name] = n
	}
	expandDefinitions(defs)

	s := &Store{
		meta:     *raw.MetaData,
		standard: standard,
		classes:  make(map[string]*Node, len(raw.Devices)),
	}
	for key, fragment := range raw.Devices {
		n, err := DecodeJSON(fragment)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", key, err)
		}
		inlineRefs(n, func(name string) (*Node, bool) {
			d, ok := defs[name]
			return d, ok
		})
		code, ok := normalizeHexCode(key, 4)
		if !ok {
			slog.Warn("機器エントリのクラスコードが不正なため無視します", "key", key)
			continue
		}
		stampClassCode(n, code)
		if code == Superclass_ClassCode {
			s.common = n
		} else {
			s.classes[code] = n
		}
	}
	return s, nil
}

// Superclass_ClassCode / NodeProfile_ClassCode はスキーマ文書上の予約クラスコード
const (
	Superclass_ClassCode  = "0000" // 機器オブジェクトスーパークラス
	NodeProfile_ClassCode = "0EF0" // ノードプロファイル
)

// normalizeHexCode は "0x0130" / "0x80" 形式のコードから任意の "0x" 接頭辞を除き、
// 大文字に揃える。width は最低限必要な16進文字数。
func normalizeHexCode(s string, width int) (string, bool) {
	if len(s) > 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	s = strings.ToUpper(s)
	if len(s) < width {
		return "", false
	}
	if _, err := hex.DecodeString(s[:width]); err != nil {
		return "", false
	}
	return s[:width], true
}

// refTarget は "#/definitions/state" 形式の参照値から定義名を取り出す。
// 単なる定義名も受け付ける。
func refTarget(ref string) (string, bool) {
	const prefix = "#/definitions/"
	if strings.HasPrefix(ref, prefix) {
		ref = ref[len(prefix):]
	}
	if ref == "" || strings.ContainsAny(ref, "#/") {
		return "", false
	}
	return ref, true
}

// inlineRefs はノードツリー中の参照マーカーを深さ優先で展開する。
// 参照マーカーを持つオブジェクトには参照先のフィールドをマージし、
// キー衝突時は参照先が優先される。未知・不正な参照はログに残してスキップする。
func inlineRefs(n *Node, resolve func(name string) (*Node, bool)) {
	if n == nil {
		return
	}
	if n.Kind == KindMapping && n.Ref != "" {
		name, ok := refTarget(n.Ref)
		var target *Node
		if ok {
			target, ok = resolve(name)
		}
		if ok && target != nil && target.Kind == KindMapping {
			n.Ref = ""
			for k, f := range target.Fields {
				n.Fields[k] = f.Clone()
			}
			if target.Variants != nil {
				n.Variants = make([]*Node, len(target.Variants))
				for i, v := range target.Variants {
					n.Variants[i] = v.Clone()
				}
			}
		} else {
			slog.Warn("未知のスキーマ参照を展開できません", "ref", n.Ref)
		}
	}
	for _, item := range n.Items {
		inlineRefs(item, resolve)
	}
	for _, f := range n.Fields {
		inlineRefs(f, resolve)
	}
	for _, v := range n.Variants {
		inlineRefs(v, resolve)
	}
}

// expandDefinitions は定義同士の参照を依存順に展開する。
// 循環参照は未知の参照と同じ扱い（ログに残してスキップ）になる。
func expandDefinitions(defs map[string]*Node) {
	const (
		stateExpanding = 1
		stateDone      = 2
	)
	state := make(map[string]int, len(defs))

	var expand func(name string)
	resolve := func(name string) (*Node, bool) {
		d, ok := defs[name]
		if !ok {
			return nil, false
		}
		if state[name] == stateExpanding {
			// 循環参照
			return nil, false
		}
		expand(name)
		return d, true
	}
	expand = func(name string) {
		if state[name] != 0 {
			return
		}
		state[name] = stateExpanding
		inlineRefs(defs[name], resolve)
		state[name] = stateDone
	}

	for name := range defs {
		expand(name)
	}
}

// stampClassCode は正規化済みクラスコードをクラスフラグメント（と各バリアント）に
// 書き込み、elProperties のキーも正規化する。コードはフラグメント自身が持つため、
// 以後はどこから切り出されても出所のキーに依存しない。
func stampClassCode(n *Node, code string) {
	if n == nil || n.Kind != KindMapping {
		return
	}
	n.SetScalarField("eoj", code)
	normalizeProperties(n)
	for _, v := range n.Variants {
		v.SetScalarField("eoj", code)
		normalizeProperties(v)
	}
}

// normalizeProperties はクラススキーマの elProperties のキーを正規化し、
// 各プロパティフラグメント（と各バリアント）にEPCを書き込む
func normalizeProperties(class *Node) {
	if class == nil || class.Kind != KindMapping {
		return
	}
	props, ok := class.Fields["elProperties"]
	if !ok || props.Kind != KindMapping {
		return
	}
	normalized := make(map[string]*Node, len(props.Fields))
	for key, p := range props.Fields {
		epc, ok := normalizeHexCode(key, 2)
		if !ok {
			slog.Warn("プロパティコードが不正なため無視します", "key", key)
			continue
		}
		if p.Kind == KindMapping {
			p.SetScalarField("epc", epc)
			for _, v := range p.Variants {
				v.SetScalarField("epc", epc)
			}
		}
		normalized[epc] = p
	}
	props.Fields = normalized
}

// MetaData はスキーマ文書のメタ情報のコピーを返す
func (s *Store) MetaData() MetaData {
	return s.meta
}

// StandardRelease は読み込んだ文書の標準リリース（既知の最新リリース）を返す
func (s *Store) StandardRelease() ReleaseCode {
	return s.standard
}

// ReleaseList は "A" から標準リリースまでのリリース一覧を返す
func (s *Store) ReleaseList() []ReleaseCode {
	list := make([]ReleaseCode, 0, s.standard[0]-'A'+1)
	for c := byte('A'); c <= s.standard[0]; c++ {
		list = append(list, ReleaseCode(c))
	}
	return list
}

// Common はスーパークラスのプロパティマップの深いコピーを返す
func (s *Store) Common() map[string]*Node {
	return elPropertiesOf(s.common.Clone())
}

// elPropertiesOf はクラスフラグメントから elProperties マップを取り出す
func elPropertiesOf(class *Node) map[string]*Node {
	props := map[string]*Node{}
	if class == nil || class.Kind != KindMapping {
		return props
	}
	m, ok := class.Fields["elProperties"]
	if !ok || m.Kind != KindMapping {
		return props
	}
	for epc, p := range m.Fields {
		props[epc] = p
	}
	return props
}

// DeviceListEntry は登録済み機器クラスの一覧項目
type DeviceListEntry struct {
	ClassCode             string      `json:"classCode"`
	ClassName             string      `json:"className"`
	FirstReleaseSupported ReleaseCode `json:"firstRelease"`
}

// DeviceList はスーパークラスを除く全クラスの一覧をクラスコード昇順で返す。
// バリアントを持つクラスは最後に宣言されたバリアントの className を使い、
// firstRelease は各バリアントで明示された from の最小値（未宣言なら "Z"）。
// 単一スキーマのクラスは from 未宣言なら "A"。
func (s *Store) DeviceList() []DeviceListEntry {
	codes := make([]string, 0, len(s.classes))
	for code := range s.classes {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	list := make([]DeviceListEntry, 0, len(codes))
	for _, code := range codes {
		class := s.classes[code]
		entry := DeviceListEntry{ClassCode: code}
		if len(class.Variants) > 0 {
			entry.ClassName = classNameOf(class.Variants[len(class.Variants)-1])
			entry.FirstReleaseSupported = "Z"
			for _, v := range class.Variants {
				if from, ok := declaredFrom(v); ok && from.Compare(entry.FirstReleaseSupported) < 0 {
					entry.FirstReleaseSupported = from
				}
			}
		} else {
			entry.ClassName = classNameOf(class)
			entry.FirstReleaseSupported = "A"
			if from, ok := declaredFrom(class); ok {
				entry.FirstReleaseSupported = from
			}
		}
		list = append(list, entry)
	}
	return list
}

// classNameOf はクラスフラグメントから表示名を取り出す。
// 文字列スカラーのほか {"en": ..., "ja": ...} 形式も受け付ける。
func classNameOf(class *Node) string {
	if class == nil || class.Kind != KindMapping {
		return ""
	}
	cn, ok := class.Fields["className"]
	if !ok {
		return ""
	}
	if s, ok := cn.ScalarString(); ok {
		return s
	}
	if s, ok := cn.ScalarField("en"); ok {
		return s
	}
	if s, ok := cn.ScalarField("ja"); ok {
		return s
	}
	return ""
}
