package schema

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_UnknownClassCode(t *testing.T) {
	s := loadTestStore(t)

	for _, code := range []string{"FFFF", "1234", "0x9999"} {
		for _, rel := range []string{"", "A", "C", "F", "Z"} {
			_, ok := s.Resolve(code, nil, rel)
			assert.False(t, ok, "Resolve(%q, nil, %q) should be not-found", code, rel)
		}
	}
}

func TestResolve_InvalidClassCode(t *testing.T) {
	s := loadTestStore(t)

	for _, code := range []string{"", "013", "01G0", "xyzw"} {
		_, ok := s.Resolve(code, nil, "")
		assert.False(t, ok, "Resolve(%q) should be not-found", code)
	}

	// 4文字を超える部分は無視される
	d, ok := s.Resolve("013001", nil, "")
	require.True(t, ok)
	assert.Equal(t, "0130", d.ClassCode)

	// "0x" 接頭辞・小文字も受け付ける
	d, ok = s.Resolve("0x0ef0", nil, "")
	require.True(t, ok)
	assert.Equal(t, "0EF0", d.ClassCode)
}

func TestResolve_ReleaseClamping(t *testing.T) {
	s := loadTestStore(t)

	std, ok := s.Resolve("0130", nil, "F")
	require.True(t, ok)

	// 標準リリースより新しい指定は標準リリースに切り詰められる
	for _, rel := range []string{"G", "Q", "Z"} {
		d, ok := s.Resolve("0130", nil, rel)
		require.True(t, ok)
		assert.Empty(t, cmp.Diff(std, d), "Resolve with release %q should equal standard", rel)
	}

	// 1文字のアルファベット以外も標準リリース扱い
	for _, rel := range []string{"", "6", "AB", "?"} {
		d, ok := s.Resolve("0130", nil, rel)
		require.True(t, ok)
		assert.Empty(t, cmp.Diff(std, d))
	}
}

func TestResolve_IsPureAndIdempotent(t *testing.T) {
	s := loadTestStore(t)

	first, ok := s.Resolve("0130", nil, "C")
	require.True(t, ok)

	// 結果を破壊してから同じ呼び出しを繰り返しても同じ構造が返ること
	delete(first.ElProperties, "80")

	second, ok := s.Resolve("0130", nil, "C")
	require.True(t, ok)
	third, ok := s.Resolve("0130", nil, "C")
	require.True(t, ok)
	assert.Empty(t, cmp.Diff(second, third))
	assert.Contains(t, second.ElProperties, "80")
}

func TestResolve_DeviceDefinitionWinsOverCommon(t *testing.T) {
	s := loadTestStore(t)

	// EPC 80 はクラス側にもスーパークラス側にも定義がある
	d, ok := s.Resolve("0130", nil, "C")
	require.True(t, ok)
	name, _ := d.ElProperties["80"].ScalarField("name")
	assert.Equal(t, "operatingStatusAC", name)

	// スーパークラス専用のプロパティは追加される
	name, _ = d.ElProperties["9D"].ScalarField("name")
	assert.Equal(t, "statusChangeAnnouncementPropertyMap", name)
}

func TestResolve_NodeProfileExcludesCommon(t *testing.T) {
	s := loadTestStore(t)

	d, ok := s.Resolve("0EF0", nil, "")
	require.True(t, ok)
	assert.Contains(t, d.ElProperties, "D5")
	assert.NotContains(t, d.ElProperties, "9D")
	assert.NotContains(t, d.ElProperties, "80")
}

func TestResolve_PropertyCodesAreSorted(t *testing.T) {
	s := loadTestStore(t)

	for _, code := range []string{"0130", "0291", "0EF0"} {
		d, ok := s.Resolve(code, nil, "")
		require.True(t, ok)
		assert.True(t, slices.IsSorted(d.EPCs), "EPCs of %s must be ascending: %v", code, d.EPCs)
		assert.Len(t, d.EPCs, len(d.ElProperties))
		for _, epc := range d.EPCs {
			assert.Contains(t, d.ElProperties, epc)
		}
	}
}

func TestResolve_EPCFilter(t *testing.T) {
	s := loadTestStore(t)

	d, ok := s.Resolve("0130", []string{"80", "9D"}, "")
	require.True(t, ok)
	assert.Equal(t, []string{"80", "9D"}, d.EPCs)

	// フィルタのコードも正規化される。マッチしない指定は黙って落ちる。
	d, ok = s.Resolve("0130", []string{"0x80", "ff"}, "")
	require.True(t, ok)
	assert.Equal(t, []string{"80"}, d.EPCs)
}

func TestResolve_PropertyReleaseRange(t *testing.T) {
	s := loadTestStore(t)

	// 共通プロパティ 8F は C からなので A では現れない
	d, ok := s.Resolve("0130", nil, "A")
	require.True(t, ok)
	assert.NotContains(t, d.ElProperties, "8F")

	d, ok = s.Resolve("0130", nil, "C")
	require.True(t, ok)
	assert.Contains(t, d.ElProperties, "8F")

	// バリアントは残ってもプロパティ単体の範囲で落ちる (0291/B7 は E から)
	d, ok = s.Resolve("0291", nil, "D")
	require.True(t, ok)
	assert.NotContains(t, d.ElProperties, "B7")

	d, ok = s.Resolve("0291", nil, "E")
	require.True(t, ok)
	assert.Contains(t, d.ElProperties, "B7")
}

func TestResolve_PropertyVariantCollapse(t *testing.T) {
	s := loadTestStore(t)

	// 0130/B0 はリリースで切り替わるバリアント集合。1つに絞れたら素のスキーマに潰れる。
	d, ok := s.Resolve("0130", nil, "B")
	require.True(t, ok)
	b0 := d.ElProperties["B0"]
	require.NotNil(t, b0)
	assert.Nil(t, b0.Variants)
	name, _ := b0.ScalarField("name")
	assert.Equal(t, "operationModeOld", name)

	d, ok = s.Resolve("0130", nil, "F")
	require.True(t, ok)
	name, _ = d.ElProperties["B0"].ScalarField("name")
	assert.Equal(t, "operationModeNew", name)
}

func TestResolve_ClassVariantScenario(t *testing.T) {
	s := loadTestStore(t)

	// 仕様シナリオ: バリアント X (A〜C) / Y (D〜Z)
	d, ok := s.Resolve("0291", nil, "B")
	require.True(t, ok)
	assert.Equal(t, "X", d.ClassName)
	name, _ := d.ElProperties["B6"].ScalarField("name")
	assert.Equal(t, "lightingModeV1", name)

	d, ok = s.Resolve("0291", nil, "D")
	require.True(t, ok)
	assert.Equal(t, "Y", d.ClassName)
	name, _ = d.ElProperties["B6"].ScalarField("name")
	assert.Equal(t, "lightingModeV2", name)
}

func TestResolve_NoSurvivingVariantIsNotFound(t *testing.T) {
	s := loadTestStore(t)

	// 03B7 の唯一のバリアントは C から
	_, ok := s.Resolve("03B7", nil, "A")
	assert.False(t, ok)
	_, ok = s.Resolve("03B7", nil, "B")
	assert.False(t, ok)

	d, ok := s.Resolve("03B7", nil, "C")
	require.True(t, ok)
	assert.Equal(t, "Refrigerator", d.ClassName)
	assert.Contains(t, d.ElProperties, "E0")
}

func TestResolve_CommonScenario(t *testing.T) {
	s := loadTestStore(t)

	// 仕様シナリオ: クラス定義の 80 とスーパークラス定義の 9D が両方現れる
	d, ok := s.Resolve("0130", []string{"80", "9D"}, "C")
	require.True(t, ok)
	assert.Equal(t, []string{"80", "9D"}, d.EPCs)
	name, _ := d.ElProperties["80"].ScalarField("name")
	assert.Equal(t, "operatingStatusAC", name)
}
