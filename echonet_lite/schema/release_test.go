package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseReleaseCode(t *testing.T) {
	tests := []struct {
		input string
		want  ReleaseCode
		ok    bool
	}{
		{"A", "A", true},
		{"Z", "Z", true},
		{"c", "C", true}, // 小文字は大文字に正規化
		{"", "", false},
		{"AB", "", false},
		{"1", "", false},
		{"?", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseReleaseCode(tt.input)
		assert.Equal(t, tt.ok, ok, "ParseReleaseCode(%q)", tt.input)
		if ok {
			assert.Equal(t, tt.want, got)
		}
	}
}

func TestReleaseCode_CompareAndClamp(t *testing.T) {
	assert.Equal(t, -1, ReleaseCode("A").Compare("B"))
	assert.Equal(t, 0, ReleaseCode("F").Compare("F"))
	assert.Equal(t, 1, ReleaseCode("Z").Compare("F"))

	assert.Equal(t, ReleaseCode("F"), ReleaseCode("Q").Clamp("F"))
	assert.Equal(t, ReleaseCode("C"), ReleaseCode("C").Clamp("F"))
}

func TestRangeOf_Defaults(t *testing.T) {
	// validRelease なし: from=A, to=標準リリース
	n := DecodeNode(map[string]any{"name": "x"})
	rr := rangeOf(n, "F")
	assert.True(t, rr.contains("A"))
	assert.True(t, rr.contains("F"))
	assert.False(t, rr.contains("G"))

	// to が不正: 標準リリースに置き換え
	n = DecodeNode(map[string]any{
		"validRelease": map[string]any{"from": "C", "to": "latest"},
	})
	rr = rangeOf(n, "F")
	assert.False(t, rr.contains("B"))
	assert.True(t, rr.contains("C"))
	assert.True(t, rr.contains("F"))
	assert.False(t, rr.contains("G"))
}
