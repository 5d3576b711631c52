package rules

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dqmpipeline/dqm/internal/model"
)

// 内置解析器名称
const (
	ParserInt   = "parse_int"
	ParserFloat = "parse_float"
	ParserStr   = "parse_str"
)

// BoundRule 类型擦除后的规则，供评估循环使用
type BoundRule struct {
	Name   string
	Params map[string]interface{}
	Check  func(v interface{}) (string, error)
}

// Column 已绑定的解析器与规则
type Column struct {
	ParserName string
	Parse      func(v interface{}) (interface{}, error)
	Rules      []BoundRule
}

// Binder 解析器及其兼容规则组
type Binder interface {
	ParserName() string
	RuleNames() []string
	Bind(configs []model.RuleConfig) (*Column, error)
}

type binder[T any] struct {
	name  string
	parse Parser[T]
	group RuleGroup[T]
}

// NewBinder 组合解析器与规则组
func NewBinder[T any](name string, parse Parser[T], group RuleGroup[T]) Binder {
	return &binder[T]{name: name, parse: parse, group: group}
}

func (b *binder[T]) ParserName() string { return b.name }

func (b *binder[T]) RuleNames() []string { return b.group.Names() }

// Bind 实例化所选规则并擦除类型
func (b *binder[T]) Bind(configs []model.RuleConfig) (*Column, error) {
	selected, err := GenerateSelectedRules(configs, b.group)
	if err != nil {
		return nil, err
	}
	parse := b.parse
	col := &Column{
		ParserName: b.name,
		Parse: func(v interface{}) (interface{}, error) {
			t, err := parse(v)
			if err != nil {
				return nil, err
			}
			return t, nil
		},
		Rules: make([]BoundRule, 0, len(selected)),
	}
	for _, r := range selected {
		check := r.Check
		name := r.Name
		col.Rules = append(col.Rules, BoundRule{
			Name:   name,
			Params: r.Params,
			Check: func(v interface{}) (string, error) {
				t, ok := v.(T)
				if !ok {
					return "", fmt.Errorf("rule %s: unexpected value type %T", name, v)
				}
				return check(t)
			},
		})
	}
	return col, nil
}

// Registry 解析器名称到 Binder 的注册表，进程启动时构造并注入使用方
type Registry struct {
	mu      sync.RWMutex
	binders map[string]Binder
}

// NewRegistry 创建包含内置解析器的注册表
func NewRegistry() *Registry {
	r := &Registry{binders: make(map[string]Binder)}
	r.Register(NewBinder[int64](ParserInt, ParseInt, NumericRules[int64]()))
	r.Register(NewBinder[float64](ParserFloat, ParseFloat, NumericRules[float64]()))
	r.Register(NewBinder[string](ParserStr, ParseStr, TextRules()))
	return r
}

// Register 注册解析器
func (r *Registry) Register(b Binder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.binders[b.ParserName()] = b
}

// MapParserToRules 返回解析器及其兼容规则组
func (r *Registry) MapParserToRules(parserName string) (Binder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.binders[strings.TrimSpace(parserName)]
	if !ok {
		return nil, fmt.Errorf("%w: invalid parser specified: %q", model.ErrMalformedConfig, parserName)
	}
	return b, nil
}

// Parsers 已注册的解析器名称
func (r *Registry) Parsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.binders))
	for n := range r.binders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Bind 按列配置绑定解析器与规则
func (r *Registry) Bind(cfg model.ColumnConfig) (*Column, error) {
	b, err := r.MapParserToRules(cfg.Parser)
	if err != nil {
		return nil, err
	}
	return b.Bind(cfg.Rules)
}
