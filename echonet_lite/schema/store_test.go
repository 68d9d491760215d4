package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDocument は各テストで共有するスキーマ文書。標準リリースは F。
const testDocument = `{
  "metaData": {"release": "F", "date": "2025-03-01", "version": "1.2.0"},
  "definitions": {
    "state_ONOFF": {
      "type": "state",
      "size": 1,
      "enum": [
        {"edt": "0x30", "name": "on"},
        {"edt": "0x31", "name": "off"}
      ]
    },
    "number": {"type": "number", "format": "uint8"},
    "number_0-100": {"$ref": "#/definitions/number", "minimum": 0, "maximum": 100}
  },
  "devices": {
    "0x0000": {
      "className": "Common",
      "elProperties": {
        "0x80": {
          "name": "commonOperatingStatus",
          "validRelease": {"from": "A", "to": "Z"},
          "data": {"$ref": "#/definitions/state_ONOFF"}
        },
        "0x8F": {
          "name": "powerSavingOperationSetting",
          "validRelease": {"from": "C", "to": "Z"},
          "data": {"$ref": "#/definitions/state_ONOFF"}
        },
        "0x9D": {
          "name": "statusChangeAnnouncementPropertyMap",
          "validRelease": {"from": "A", "to": "Z"},
          "data": {"$ref": "#/definitions/number"}
        }
      }
    },
    "0x0130": {
      "className": "Home air conditioner",
      "elProperties": {
        "0x80": {
          "name": "operatingStatusAC",
          "validRelease": {"from": "A", "to": "Z"},
          "data": {"$ref": "#/definitions/state_ONOFF", "type": "overridden"}
        },
        "0xB0": {
          "oneOf": [
            {"name": "operationModeOld", "validRelease": {"from": "A", "to": "C"}},
            {"name": "operationModeNew", "validRelease": {"from": "D", "to": "Z"}}
          ]
        },
        "0xB3": {
          "name": "temperatureSetting",
          "data": {"$ref": "#/definitions/number_0-100"}
        }
      }
    },
    "0x0291": {
      "oneOf": [
        {
          "className": "X",
          "validRelease": {"from": "A", "to": "C"},
          "elProperties": {"0xB6": {"name": "lightingModeV1"}}
        },
        {
          "className": "Y",
          "validRelease": {"from": "D", "to": "Z"},
          "elProperties": {
            "0xB6": {"name": "lightingModeV2"},
            "0xB7": {"name": "lightingModeExtra", "validRelease": {"from": "E", "to": "Z"}}
          }
        }
      ]
    },
    "0x03B7": {
      "oneOf": [
        {
          "className": "Refrigerator",
          "validRelease": {"from": "C", "to": "Z"},
          "elProperties": {"0xE0": {"name": "doorOpenCloseStatus"}}
        }
      ]
    },
    "0x0602": {
      "oneOf": [
        {
          "className": "Blind (early)",
          "elProperties": {"0xE0": {"name": "openCloseSetting"}}
        },
        {
          "className": "Blind",
          "elProperties": {"0xE0": {"name": "openCloseSetting"}}
        }
      ]
    },
    "0x0EF0": {
      "className": "Node profile",
      "elProperties": {
        "0xD5": {
          "name": "instanceListNotification",
          "validRelease": {"from": "A", "to": "Z"}
        }
      }
    }
  }
}`

func loadTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Load([]byte(testDocument))
	require.NoError(t, err)
	return s
}

func TestLoad_MissingMetaDataIsFatal(t *testing.T) {
	_, err := Load([]byte(`{"devices": {}}`))
	require.ErrorIs(t, err, ErrMissingMetaData)

	_, err = Load([]byte(`{"metaData": {"date": "2025-03-01"}, "devices": {}}`))
	require.ErrorIs(t, err, ErrMissingMetaData)

	_, err = Load([]byte(`{"metaData": {"release": "F6"}, "devices": {}}`))
	require.ErrorIs(t, err, ErrMissingMetaData)
}

func TestLoad_ReferenceInliningIsTransitive(t *testing.T) {
	s := loadTestStore(t)

	// number_0-100 は number を参照する定義。0130/B3 経由で二段の展開が必要になる。
	d, ok := s.Resolve("0130", nil, "")
	require.True(t, ok)
	b3, ok := d.ElProperties["B3"]
	require.True(t, ok)
	assert.False(t, b3.HasRef(), "resolved fragment must not contain $ref markers")

	data := b3.Fields["data"]
	require.NotNil(t, data)
	format, _ := data.ScalarField("format")
	assert.Equal(t, "uint8", format)
	minimum := data.Fields["minimum"]
	require.NotNil(t, minimum)
	assert.Equal(t, float64(0), minimum.Value)

	// カタログ全体に参照マーカーが残っていないこと
	for code := range s.classes {
		assert.False(t, s.classes[code].HasRef(), "class %s still has $ref", code)
	}
	assert.False(t, s.common.HasRef())
}

func TestLoad_ReferenceWinsOnKeyCollision(t *testing.T) {
	s := loadTestStore(t)

	// 0130/80 の data はホスト側で type を上書きしているが、参照先が優先される
	d, ok := s.Resolve("0130", nil, "")
	require.True(t, ok)
	data := d.ElProperties["80"].Fields["data"]
	require.NotNil(t, data)
	typ, _ := data.ScalarField("type")
	assert.Equal(t, "state", typ)
}

func TestLoad_CodeNormalizationAndStamping(t *testing.T) {
	s := loadTestStore(t)

	d, ok := s.Resolve("0130", nil, "")
	require.True(t, ok)
	// キーは "0x" 接頭辞なしの大文字
	for epc := range d.ElProperties {
		assert.Regexp(t, "^[0-9A-F]{2}$", epc)
	}
	// 正規化済みコードがフラグメント自身に刻印される
	epc, _ := d.ElProperties["80"].ScalarField("epc")
	assert.Equal(t, "80", epc)
	eoj, _ := s.classes["0130"].ScalarField("eoj")
	assert.Equal(t, "0130", eoj)
	// バリアント集合の各メンバーにも刻印される
	for _, v := range s.classes["0291"].Variants {
		code, _ := v.ScalarField("eoj")
		assert.Equal(t, "0291", code)
	}
}

func TestStore_DeviceList(t *testing.T) {
	s := loadTestStore(t)

	list := s.DeviceList()
	codes := make([]string, 0, len(list))
	for _, e := range list {
		codes = append(codes, e.ClassCode)
	}
	// スーパークラス("0000")は現れず、クラスコード昇順
	assert.Equal(t, []string{"0130", "0291", "03B7", "0602", "0EF0"}, codes)

	byCode := map[string]DeviceListEntry{}
	for _, e := range list {
		byCode[e.ClassCode] = e
	}
	// 単一スキーマ: from 未宣言は "A"
	assert.Equal(t, "Home air conditioner", byCode["0130"].ClassName)
	assert.Equal(t, ReleaseCode("A"), byCode["0130"].FirstReleaseSupported)
	// バリアント: className は最後のバリアント、firstRelease は from の最小値
	assert.Equal(t, "Y", byCode["0291"].ClassName)
	assert.Equal(t, ReleaseCode("A"), byCode["0291"].FirstReleaseSupported)
	assert.Equal(t, ReleaseCode("C"), byCode["03B7"].FirstReleaseSupported)
	// バリアントがどれも from を宣言しない場合は番兵の "Z" のまま
	assert.Equal(t, "Blind", byCode["0602"].ClassName)
	assert.Equal(t, ReleaseCode("Z"), byCode["0602"].FirstReleaseSupported)
}

func TestStore_ReleaseList(t *testing.T) {
	s := loadTestStore(t)
	assert.Equal(t,
		[]ReleaseCode{"A", "B", "C", "D", "E", "F"},
		s.ReleaseList())
	assert.Equal(t, ReleaseCode("F"), s.StandardRelease())
}

func TestStore_AccessorsReturnCopies(t *testing.T) {
	s := loadTestStore(t)

	common := s.Common()
	require.Contains(t, common, "9D")
	// 返されたコピーを破壊しても内部状態に影響しないこと
	common["9D"].Fields["name"] = &Node{Kind: KindScalar, Value: "mutated"}
	delete(common, "80")

	d, ok := s.Resolve("0130", nil, "")
	require.True(t, ok)
	name, _ := d.ElProperties["9D"].ScalarField("name")
	assert.Equal(t, "statusChangeAnnouncementPropertyMap", name)

	meta := s.MetaData()
	meta.Release = "Z"
	assert.Equal(t, "F", s.MetaData().Release)
}
