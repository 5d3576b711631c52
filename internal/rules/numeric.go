package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Number 数值规则适用的类型
type Number interface {
	~int64 | ~float64
}

// IEEETolerance is_not_approx_zero 的默认绝对容差
const IEEETolerance = 1e-8

// ParseInt 解析整数；字符串中含小数点等非整数字符时失败，浮点输入向零截断
func ParseInt(v interface{}) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, fmt.Errorf("cannot parse null as int")
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uintToInt(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintToInt(x)
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return parseIntString(string(x))
	case string:
		return parseIntString(x)
	case []byte:
		return parseIntString(string(x))
	}
	return 0, fmt.Errorf("cannot parse %T as int", v)
}

func parseIntString(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid literal for int: %q", s)
	}
	return n, nil
}

func uintToInt(u uint64) (int64, error) {
	if u > math.MaxInt64 {
		return 0, fmt.Errorf("integer %d overflows int64", u)
	}
	return int64(u), nil
}

func floatToInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("cannot convert float %v to int", f)
	}
	t := math.Trunc(f)
	if t < math.MinInt64 || t >= math.MaxInt64 {
		return 0, fmt.Errorf("float %v overflows int64", f)
	}
	return int64(t), nil
}

// ParseFloat 解析浮点数；接受 NaN、inf、+inf、-inf，拒绝带尾随字符的字符串
func ParseFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, fmt.Errorf("cannot parse null as float")
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return parseFloatString(string(x))
	case string:
		return parseFloatString(x)
	case []byte:
		return parseFloatString(string(x))
	}
	return 0, fmt.Errorf("cannot parse %T as float", v)
}

func parseFloatString(s string) (float64, error) {
	trimmed := strings.TrimSpace(s)
	// 不接受十六进制浮点字面量
	digits := strings.TrimLeft(trimmed, "+-")
	if len(trimmed)-len(digits) <= 1 && (strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X")) {
		return 0, fmt.Errorf("could not convert string to float: %q", s)
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		// 超出范围时 strconv 已给出 ±Inf 或 0
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f, nil
		}
		return 0, fmt.Errorf("could not convert string to float: %q", s)
	}
	return f, nil
}

type strictRangeArgs struct {
	LowerBound float64 `mapstructure:"lower_bound"`
	UpperBound float64 `mapstructure:"upper_bound"`
}

// IsWithinStrictIntRange 开区间 (lower, upper) 内合规
func IsWithinStrictIntRange[T Number](lower, upper float64) Checker[T] {
	return func(v T) (string, error) {
		f := float64(v)
		if lower < f && f < upper {
			return "", nil
		}
		return "Value is not within the strict range.", nil
	}
}

// IsNotNegative 值小于 0 时违规
func IsNotNegative[T Number]() Checker[T] {
	return func(v T) (string, error) {
		if v < 0 {
			return "Value is a negative number.", nil
		}
		return "", nil
	}
}

type approxZeroArgs struct {
	Tolerance float64 `mapstructure:"tolerance"`
}

// IsNotApproxZero |v| <= |tolerance| 时违规（绝对容差）
func IsNotApproxZero[T Number](tolerance float64) Checker[T] {
	tol := math.Abs(tolerance)
	return func(v T) (string, error) {
		if math.Abs(float64(v)) <= tol {
			return "Value is approximately zero.", nil
		}
		return "", nil
	}
}

// NumericRules 数值规则组
func NumericRules[T Number]() RuleGroup[T] {
	return RuleGroup[T]{
		"is_not_negative": func(args map[string]interface{}) (Checker[T], error) {
			if err := decodeArgs(args, &noArgs{}); err != nil {
				return nil, err
			}
			return IsNotNegative[T](), nil
		},
		"is_within_strict_int_range": func(args map[string]interface{}) (Checker[T], error) {
			var a strictRangeArgs
			if err := decodeArgs(args, &a, "lower_bound", "upper_bound"); err != nil {
				return nil, err
			}
			return IsWithinStrictIntRange[T](a.LowerBound, a.UpperBound), nil
		},
		"is_not_approx_zero": func(args map[string]interface{}) (Checker[T], error) {
			a := approxZeroArgs{Tolerance: IEEETolerance}
			if err := decodeArgs(args, &a); err != nil {
				return nil, err
			}
			return IsNotApproxZero[T](a.Tolerance), nil
		},
	}
}
