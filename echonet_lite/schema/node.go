package schema

import (
	"encoding/json"
	"fmt"
)

// NodeKind はスキーマツリーのノード種別
type NodeKind int

const (
	KindScalar   NodeKind = iota // 文字列・数値・真偽値・null
	KindSequence                 // JSON配列
	KindMapping                  // JSONオブジェクト
)

// スキーマ文書中の特別なキー
const (
	refKey     = "$ref"  // 参照マーカー
	variantKey = "oneOf" // バリアント集合
)

// Node はスキーマ文書の任意の部分木を表します。
// マージ・フィルタのアルゴリズムがプロパティ探りではなく構造のパターンマッチで
// 書けるように、参照マーカーとバリアント集合は Mapping の属性として分離して持つ。
type Node struct {
	Kind     NodeKind
	Value    any              // KindScalar のときの値
	Items    []*Node          // KindSequence のときの要素
	Fields   map[string]*Node // KindMapping のときのフィールド（$ref, oneOf を除く）
	Ref      string           // 参照マーカーの値（なければ空）
	Variants []*Node          // oneOf のバリアント（なければ nil）
}

// DecodeNode は encoding/json がデコードした値からノードツリーを構築する
func DecodeNode(v any) *Node {
	switch val := v.(type) {
	case map[string]any:
		n := &Node{Kind: KindMapping, Fields: make(map[string]*Node, len(val))}
		for k, fv := range val {
			switch k {
			case refKey:
				if s, ok := fv.(string); ok {
					n.Ref = s
					continue
				}
				// 文字列以外の参照マーカーは通常フィールドとして保持する
				n.Fields[k] = DecodeNode(fv)
			case variantKey:
				if arr, ok := fv.([]any); ok {
					n.Variants = make([]*Node, 0, len(arr))
					for _, item := range arr {
						n.Variants = append(n.Variants, DecodeNode(item))
					}
					continue
				}
				n.Fields[k] = DecodeNode(fv)
			default:
				n.Fields[k] = DecodeNode(fv)
			}
		}
		return n
	case []any:
		n := &Node{Kind: KindSequence, Items: make([]*Node, 0, len(val))}
		for _, item := range val {
			n.Items = append(n.Items, DecodeNode(item))
		}
		return n
	default:
		return &Node{Kind: KindScalar, Value: v}
	}
}

// DecodeJSON はJSONバイト列からノードツリーを構築する
func DecodeJSON(data []byte) (*Node, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode schema fragment: %w", err)
	}
	return DecodeNode(v), nil
}

// Clone はノードツリー全体の深いコピーを返す
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Kind: n.Kind, Value: n.Value, Ref: n.Ref}
	if n.Items != nil {
		c.Items = make([]*Node, len(n.Items))
		for i, item := range n.Items {
			c.Items[i] = item.Clone()
		}
	}
	if n.Fields != nil {
		c.Fields = make(map[string]*Node, len(n.Fields))
		for k, f := range n.Fields {
			c.Fields[k] = f.Clone()
		}
	}
	if n.Variants != nil {
		c.Variants = make([]*Node, len(n.Variants))
		for i, v := range n.Variants {
			c.Variants[i] = v.Clone()
		}
	}
	return c
}

// ScalarString はノードが文字列スカラーの場合にその値を返す
func (n *Node) ScalarString() (string, bool) {
	if n == nil || n.Kind != KindScalar {
		return "", false
	}
	s, ok := n.Value.(string)
	return s, ok
}

// ScalarField は key のフィールドが文字列スカラーの場合にその値を返す
func (n *Node) ScalarField(key string) (string, bool) {
	if n == nil || n.Kind != KindMapping {
		return "", false
	}
	f, ok := n.Fields[key]
	if !ok {
		return "", false
	}
	return f.ScalarString()
}

// SetScalarField は key のフィールドを文字列スカラーで上書きする
func (n *Node) SetScalarField(key, value string) {
	if n == nil || n.Kind != KindMapping {
		return
	}
	if n.Fields == nil {
		n.Fields = make(map[string]*Node)
	}
	n.Fields[key] = &Node{Kind: KindScalar, Value: value}
}

// HasRef はノード自身または子孫に参照マーカーが残っているかを調べる
func (n *Node) HasRef() bool {
	if n == nil {
		return false
	}
	if n.Ref != "" {
		return true
	}
	for _, item := range n.Items {
		if item.HasRef() {
			return true
		}
	}
	for _, f := range n.Fields {
		if f.HasRef() {
			return true
		}
	}
	for _, v := range n.Variants {
		if v.HasRef() {
			return true
		}
	}
	return false
}

// MarshalJSON はノードツリーをJSONに戻す。
// Mapping は map 経由で出力するためキーは辞書順になる。
func (n *Node) MarshalJSON() ([]byte, error) {
	switch n.Kind {
	case KindScalar:
		return json.Marshal(n.Value)
	case KindSequence:
		if n.Items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(n.Items)
	case KindMapping:
		m := make(map[string]*Node, len(n.Fields)+2)
		for k, f := range n.Fields {
			m[k] = f
		}
		if n.Ref != "" {
			m[refKey] = &Node{Kind: KindScalar, Value: n.Ref}
		}
		if n.Variants != nil {
			m[variantKey] = &Node{Kind: KindSequence, Items: n.Variants}
		}
		return json.Marshal(m)
	default:
		return nil, fmt.Errorf("unknown node kind: %d", n.Kind)
	}
}

// UnmarshalJSON は MarshalJSON の逆変換
func (n *Node) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeJSON(data)
	if err != nil {
		return err
	}
	*n = *decoded
	return nil
}
