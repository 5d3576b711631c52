// Package rules 提供类型解析器与规则检查器，以及按名称绑定配置的注册表。
//
// 解析器把任意单元格值转换为类型化值，失败返回 error。
// 检查器对类型化值返回违规说明；返回空串表示合规，返回 error 表示检查本身出错。
// 规则工厂把 RuleConfig.Args 解码为各自的强类型参数结构，再闭包生成检查器，
// 生成后的检查器与原始参数 map 不再共享状态。
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/dqmpipeline/dqm/internal/model"
)

// Parser 类型解析器
type Parser[T any] func(v interface{}) (T, error)

// Checker 规则检查器："" 表示合规
type Checker[T any] func(v T) (string, error)

// Factory 规则工厂：按参数构造检查器
type Factory[T any] func(args map[string]interface{}) (Checker[T], error)

// RuleGroup 某一解析器输出类型可用的规则集合
type RuleGroup[T any] map[string]Factory[T]

// Names 规则名称（排序）
func (g RuleGroup[T]) Names() []string {
	names := make([]string, 0, len(g))
	for n := range g {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Rule 已实例化的规则
type Rule[T any] struct {
	Name   string
	Params map[string]interface{}
	Check  Checker[T]
}

// GenerateSelectedRules 按配置顺序实例化规则
func GenerateSelectedRules[T any](configs []model.RuleConfig, group RuleGroup[T]) ([]Rule[T], error) {
	selected := make([]Rule[T], 0, len(configs))
	for i, rc := range configs {
		name := strings.TrimSpace(rc.Rule)
		factory, ok := group[name]
		if name == "" || !ok {
			return nil, fmt.Errorf("%w: invalid rule specified at position %d: %q", model.ErrMalformedConfig, i, rc.Rule)
		}
		check, err := factory(rc.Args)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %s: %v", model.ErrMalformedConfig, name, err)
		}
		selected = append(selected, Rule[T]{Name: name, Params: copyArgs(rc.Args), Check: check})
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: at least one rule must be selected", model.ErrMalformedConfig)
	}
	return selected, nil
}

func copyArgs(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}

// decodeArgs 将参数 map 解码进强类型结构；未知参数与缺失的必填参数均报错
func decodeArgs(args map[string]interface{}, out interface{}, required ...string) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := dec.Decode(args); err != nil {
		return err
	}
	for _, key := range required {
		if _, ok := args[key]; !ok {
			return fmt.Errorf("missing required argument %q", key)
		}
	}
	return nil
}

// noArgs 供无参数规则使用的空参数结构
type noArgs struct{}
