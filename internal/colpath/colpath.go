// Package colpath 解析列路径表达式并从嵌套记录中取值。
//
// 语法：以 "." 分隔字段；段尾可带 "[key]"，表示将当前值视为
// {key: ..., value: ...} 形式的记录列表，按该段字段名等于 key 选取元素。
//
//	c.nested.col
//	events.key[target_key]
package colpath

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dqmpipeline/dqm/internal/model"
)

// ErrFieldNotFound 单层查找时字段不存在
var ErrFieldNotFound = errors.New("field not found")

// Segment 路径中的一段
type Segment struct {
	Field  string
	Key    string
	HasKey bool
}

// Path 解析后的列路径
type Path struct {
	Raw      string
	Segments []Segment
}

// IsNested 判断列名是否为嵌套路径表达式
func IsNested(expr string) bool {
	return strings.ContainsAny(expr, ".[")
}

// Parse 解析路径表达式
func Parse(expr string) (Path, error) {
	if strings.TrimSpace(expr) == "" {
		return Path{}, fmt.Errorf("%w: empty column path", model.ErrMalformedConfig)
	}
	raw := strings.Split(expr, ".")
	segs := make([]Segment, 0, len(raw))
	for _, part := range raw {
		seg, err := parseSegment(part)
		if err != nil {
			return Path{}, fmt.Errorf("%w: column path %q: %v", model.ErrMalformedConfig, expr, err)
		}
		segs = append(segs, seg)
	}
	return Path{Raw: expr, Segments: segs}, nil
}

func parseSegment(part string) (Segment, error) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		if part == "" {
			return Segment{}, errors.New("empty segment")
		}
		if strings.ContainsRune(part, ']') {
			return Segment{}, fmt.Errorf("unbalanced bracket in %q", part)
		}
		return Segment{Field: part}, nil
	}
	if !strings.HasSuffix(part, "]") || strings.Count(part, "[") != 1 || strings.Count(part, "]") != 1 {
		return Segment{}, fmt.Errorf("unbalanced bracket in %q", part)
	}
	field := part[:open]
	if field == "" {
		return Segment{}, fmt.Errorf("missing field name in %q", part)
	}
	return Segment{Field: field, Key: part[open+1 : len(part)-1], HasKey: true}, nil
}

// Column 需要从源表读取的物理列（首段字段名）
func (p Path) Column() string {
	if len(p.Segments) == 0 {
		return ""
	}
	return p.Segments[0].Field
}

// Unwrapper 按选定元素的编码约定展开值
type Unwrapper interface {
	Unwrap(v interface{}) interface{}
}

// OneofUnwrapper 展开 oneof 风格的标记联合：
// 值为映射且其 Field 项仍是映射时，取内层第一个非空值
type OneofUnwrapper struct {
	Field string
}

// Unwrap 实现 Unwrapper
// 内层键按字典序遍历：标记联合至多一个成员非空，顺序仅用于保证确定性
func (u OneofUnwrapper) Unwrap(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	inner, ok := m[u.Field].(map[string]interface{})
	if !ok {
		return v
	}
	keys := make([]string, 0, len(inner))
	for k := range inner {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if inner[k] != nil {
			return inner[k]
		}
	}
	return v
}

type noUnwrap struct{}

func (noUnwrap) Unwrap(v interface{}) interface{} { return v }

// NoUnwrap 不做任何展开
var NoUnwrap Unwrapper = noUnwrap{}

// Resolver 嵌套取值器
type Resolver struct {
	Unwrap Unwrapper
}

// NewResolver 以 "value" 为联合字段名创建默认取值器
func NewResolver(unwrapField string) *Resolver {
	if unwrapField == "" {
		return &Resolver{Unwrap: NoUnwrap}
	}
	return &Resolver{Unwrap: OneofUnwrapper{Field: unwrapField}}
}

// Extract 按路径从记录中取值；任一环节缺失时返回 nil，不报错
func (r *Resolver) Extract(record interface{}, p Path) interface{} {
	unwrap := r.Unwrap
	if unwrap == nil {
		unwrap = NoUnwrap
	}
	current := record
	for _, seg := range p.Segments {
		switch cur := current.(type) {
		case map[string]interface{}:
			current = cur[seg.Field]
		case []interface{}:
			if !seg.HasKey {
				return nil
			}
			current = selectByKey(cur, seg.Field, seg.Key)
			if current != nil {
				current = unwrap.Unwrap(current)
			}
		case []map[string]interface{}:
			if !seg.HasKey {
				return nil
			}
			items := make([]interface{}, len(cur))
			for i := range cur {
				items[i] = cur[i]
			}
			current = selectByKey(items, seg.Field, seg.Key)
			if current != nil {
				current = unwrap.Unwrap(current)
			}
		default:
			return nil
		}
		if current == nil {
			return nil
		}
	}
	return current
}

func selectByKey(items []interface{}, field, key string) interface{} {
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if keyEquals(m[field], key) {
			return m
		}
	}
	return nil
}

func keyEquals(v interface{}, key string) bool {
	switch k := v.(type) {
	case string:
		return k == key
	case []byte:
		return string(k) == key
	case json.Number:
		return string(k) == key
	}
	return false
}

// Lookup 单层直接取值，字段缺失时返回 ErrFieldNotFound
func Lookup(record map[string]interface{}, column string) (interface{}, error) {
	v, ok := record[column]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, column)
	}
	return v, nil
}
