package schema

// ReleaseCode はECHONET機器オブジェクト仕様のリリース版（A〜Z の1文字）を表します。
// アルファベット順がそのまま新旧順になる。
type ReleaseCode string

// ParseReleaseCode は文字列からReleaseCodeを作る。
// 1文字のアルファベット以外は不正として ok=false を返す。
func ParseReleaseCode(s string) (ReleaseCode, bool) {
	if len(s) != 1 {
		return "", false
	}
	c := s[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	if c < 'A' || c > 'Z' {
		return "", false
	}
	return ReleaseCode(c), true
}

// Compare は r と o をアルファベット順で比較する（-1, 0, 1）
func (r ReleaseCode) Compare(o ReleaseCode) int {
	switch {
	case r < o:
		return -1
	case r > o:
		return 1
	default:
		return 0
	}
}

// Clamp は max より新しいリリース指定を max に切り詰める
func (r ReleaseCode) Clamp(max ReleaseCode) ReleaseCode {
	if r.Compare(max) > 0 {
		return max
	}
	return r
}

func (r ReleaseCode) String() string {
	return string(r)
}

// releaseRange はスキーマ中の validRelease {from, to} を表す。
// from の省略は "A"、to の省略・不正値は標準リリースとして扱う。
type releaseRange struct {
	from ReleaseCode
	to   ReleaseCode
}

// contains は from <= r <= to を判定する
func (rr releaseRange) contains(r ReleaseCode) bool {
	return rr.from.Compare(r) <= 0 && r.Compare(rr.to) <= 0
}

// rangeOf は validRelease フィールドを持つノードからリリース範囲を取り出す。
// フィールドがない・値が不正な場合は既定値（from=A, to=標準リリース）を使う。
func rangeOf(n *Node, standard ReleaseCode) releaseRange {
	rr := releaseRange{from: "A", to: standard}
	if n == nil || n.Kind != KindMapping {
		return rr
	}
	vr, ok := n.Fields["validRelease"]
	if !ok || vr.Kind != KindMapping {
		return rr
	}
	if s, ok := vr.ScalarField("from"); ok {
		if from, ok := ParseReleaseCode(s); ok {
			rr.from = from
		}
	}
	if s, ok := vr.ScalarField("to"); ok {
		if to, ok := ParseReleaseCode(s); ok {
			rr.to = to
		}
	}
	return rr
}

// declaredFrom は validRelease.from が明示されている場合のみその値を返す
func declaredFrom(n *Node) (ReleaseCode, bool) {
	if n == nil || n.Kind != KindMapping {
		return "", false
	}
	vr, ok := n.Fields["validRelease"]
	if !ok || vr.Kind != KindMapping {
		return "", false
	}
	s, ok := vr.ScalarField("from")
	if !ok {
		return "", false
	}
	return ParseReleaseCode(s)
}
