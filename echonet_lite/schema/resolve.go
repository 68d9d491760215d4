package schema

import (
	"slices"
)

// DeviceDescriptor は Resolve の結果です。
// ElProperties は map だが、JSONへのマーシャル時はキーが辞書順に並ぶ。
// EPCs は常にコード昇順。
type DeviceDescriptor struct {
	ClassCode    string           `json:"classCode"`
	Release      ReleaseCode      `json:"release"`
	ClassName    string           `json:"className"`
	EPCs         []string         `json:"-"`
	ElProperties map[string]*Node `json:"elProperties"`
}

// Resolve は指定クラス・リリースでのプロパティ構成を解決する。
// classCode は4文字以上の16進文字列（先頭4文字のみ有効、"0x" 接頭辞可）。
// release が1文字のアルファベットでない場合は標準リリースとして扱い、
// 標準リリースより新しい指定は標準リリースに切り詰める。
// 不正・未知のクラスコードでは ok=false を返す（エラーではない）。
// 結果は常に内部状態の深いコピーから組み立てられる。
func (s *Store) Resolve(classCode string, epcFilter []string, release string) (*DeviceDescriptor, bool) {
	code, ok := normalizeHexCode(classCode, 4)
	if !ok {
		return nil, false
	}
	rel := s.normalizeRelease(release)

	class, ok := s.classes[code]
	if !ok {
		return nil, false
	}
	work, ok := s.filterForRelease(class.Clone(), rel)
	if !ok {
		// 全バリアントがリリース範囲外
		return nil, false
	}

	// クラス直下にバリアントが複数残った場合は宣言順でマージする（後勝ち）
	props := map[string]*Node{}
	className := ""
	schemas := []*Node{work}
	if len(work.Variants) > 0 {
		schemas = work.Variants
	}
	for _, sc := range schemas {
		if name := classNameOf(sc); name != "" {
			className = name
		}
		for epc, p := range elPropertiesOf(sc) {
			props[epc] = p
		}
	}

	// スーパークラスのプロパティをマージする（機器側が優先、ノードプロファイルを除く）
	if code != NodeProfile_ClassCode && s.common != nil {
		common, ok := s.filterForRelease(s.common.Clone(), rel)
		if ok {
			for epc, p := range elPropertiesOf(common) {
				if _, exists := props[epc]; !exists {
					props[epc] = p
				}
			}
		}
	}

	// バリアントは生き残ってもプロパティ単体の validRelease が範囲外のものを落とす
	for epc, p := range props {
		if !rangeOf(p, s.standard).contains(rel) {
			delete(props, epc)
		}
	}

	// EPCフィルタ
	if len(epcFilter) > 0 {
		wanted := make(map[string]bool, len(epcFilter))
		for _, f := range epcFilter {
			if epc, ok := normalizeHexCode(f, 2); ok {
				wanted[epc] = true
			}
		}
		for epc := range props {
			if !wanted[epc] {
				delete(props, epc)
			}
		}
	}

	epcs := make([]string, 0, len(props))
	for epc := range props {
		epcs = append(epcs, epc)
	}
	slices.Sort(epcs)

	return &DeviceDescriptor{
		ClassCode:    code,
		Release:      rel,
		ClassName:    className,
		EPCs:         epcs,
		ElProperties: props,
	}, true
}

// normalizeRelease はリリース指定を検証し、標準リリースに切り詰める
func (s *Store) normalizeRelease(release string) ReleaseCode {
	rel, ok := ParseReleaseCode(release)
	if !ok {
		return s.standard
	}
	return rel.Clamp(s.standard)
}

// filterForRelease はノードツリー全体を再帰的にリリースフィルタする。
// バリアント集合は範囲外のバリアントを除き、1つだけ残れば素のスキーマに畳み込む。
// 全バリアントが落ちたノードは ok=false（呼び出し元で親から取り除く）。
func (s *Store) filterForRelease(n *Node, rel ReleaseCode) (*Node, bool) {
	switch n.Kind {
	case KindScalar:
		return n, true
	case KindSequence:
		items := n.Items[:0]
		for _, item := range n.Items {
			if filtered, ok := s.filterForRelease(item, rel); ok {
				items = append(items, filtered)
			}
		}
		n.Items = items
		return n, true
	case KindMapping:
		if n.Variants != nil {
			survivors := make([]*Node, 0, len(n.Variants))
			for _, v := range n.Variants {
				if !rangeOf(v, s.standard).contains(rel) {
					continue
				}
				if filtered, ok := s.filterForRelease(v, rel); ok {
					survivors = append(survivors, filtered)
				}
			}
			switch len(survivors) {
			case 0:
				return nil, false
			case 1:
				return survivors[0], true
			default:
				n.Variants = survivors
			}
		}
		for k, f := range n.Fields {
			filtered, ok := s.filterForRelease(f, rel)
			if !ok {
				delete(n.Fields, k)
				continue
			}
			n.Fields[k] = filtered
		}
		return n, true
	}
	return n, true
}
