package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dqmpipeline/dqm/internal/util"
)

// 模式类规则的违规极性
const (
	ViolateOnMatch   = "match"
	ViolateOnNoMatch = "no_match"
)

// EmailPattern is_email 使用的邮箱正则（子串搜索）
const EmailPattern = `([A-Za-z0-9]+[.-_])*[A-Za-z0-9]+@[A-Za-z0-9-]+(\.[A-Z|a-z]{2,})+`

var phoneStrip = regexp.MustCompile(`[\-\(\)\.\+\ ]`)

// ParseStr 将单元格值转换为字符串；字节按 UTF-8 或遗留编码解码，映射与列表输出为 JSON
func ParseStr(v interface{}) (string, error) {
	if v == nil {
		return "", fmt.Errorf("cannot parse null as str")
	}
	return util.Stringify(v)
}

type patternArgs struct {
	ViolateOn string `mapstructure:"violate_on"`
}

type regexArgs struct {
	Regex     string `mapstructure:"regex"`
	ViolateOn string `mapstructure:"violate_on"`
}

// violateOnMatch 解析极性参数，缺省为命中即违规
func violateOnMatch(v string) (bool, error) {
	switch strings.TrimSpace(v) {
	case "", ViolateOnMatch:
		return true, nil
	case ViolateOnNoMatch:
		return false, nil
	}
	return false, fmt.Errorf("violate_on must be %q or %q, got %q", ViolateOnMatch, ViolateOnNoMatch, v)
}

// polarity 按极性把命中结果转换为违规信息
func polarity(onMatch bool, matched bool, matchMsg, noMatchMsg string) string {
	if onMatch && matched {
		return matchMsg
	}
	if !onMatch && !matched {
		return noMatchMsg
	}
	return ""
}

// ContainsAtSign 检查字符串是否包含 "@"
func ContainsAtSign(onMatch bool) Checker[string] {
	return func(s string) (string, error) {
		return polarity(onMatch, strings.Contains(s, "@"), "string contains @", "string does not contain @"), nil
	}
}

// IsEmail 检查字符串中是否出现邮箱地址
func IsEmail(onMatch bool) Checker[string] {
	pattern := regexp.MustCompile(EmailPattern)
	return func(s string) (string, error) {
		return polarity(onMatch, pattern.MatchString(s), "string contains email", "string does not contain email"), nil
	}
}

// SearchRegex 子串匹配正则；正则编译失败时立即返回错误
func SearchRegex(regex string, onMatch bool) (Checker[string], error) {
	pattern, err := regexp.Compile(regex)
	if err != nil {
		return nil, err
	}
	return func(s string) (string, error) {
		return polarity(onMatch, pattern.MatchString(s), "regex found in field", "regex not found in field"), nil
	}, nil
}

// FullyMatchesRegex 整串匹配正则
func FullyMatchesRegex(regex string, onMatch bool) (Checker[string], error) {
	if _, err := regexp.Compile(regex); err != nil {
		return nil, err
	}
	pattern := regexp.MustCompile(`^(?:` + regex + `)$`)
	return func(s string) (string, error) {
		return polarity(onMatch, pattern.MatchString(s), "regex matches field", "regex does not match field"), nil
	}, nil
}

// IsPhoneNumber 去除 "-()+. " 后为 10–13 位且大于 999999 的整数时违规
// 去除后不是整数的值视为非电话号码
func IsPhoneNumber() Checker[string] {
	return func(s string) (string, error) {
		digits := phoneStrip.ReplaceAllString(s, "")
		if len(digits) < 10 || len(digits) > 13 {
			return "", nil
		}
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return "", nil
		}
		if n > 999999 {
			return "field is a phone number", nil
		}
		return "", nil
	}
}

func patternRule(build func(onMatch bool) Checker[string]) Factory[string] {
	return func(args map[string]interface{}) (Checker[string], error) {
		var a patternArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		onMatch, err := violateOnMatch(a.ViolateOn)
		if err != nil {
			return nil, err
		}
		return build(onMatch), nil
	}
}

func regexRule(build func(regex string, onMatch bool) (Checker[string], error)) Factory[string] {
	return func(args map[string]interface{}) (Checker[string], error) {
		var a regexArgs
		if err := decodeArgs(args, &a, "regex"); err != nil {
			return nil, err
		}
		onMatch, err := violateOnMatch(a.ViolateOn)
		if err != nil {
			return nil, err
		}
		return build(a.Regex, onMatch)
	}
}

// TextRules 文本规则组
func TextRules() RuleGroup[string] {
	return RuleGroup[string]{
		"contains_at_sign":    patternRule(ContainsAtSign),
		"is_email":            patternRule(IsEmail),
		"search_regex":        regexRule(SearchRegex),
		"contains_regex":      regexRule(SearchRegex),
		"fully_matches_regex": regexRule(FullyMatchesRegex),
		"is_phone_number": func(args map[string]interface{}) (Checker[string], error) {
			if err := decodeArgs(args, &noArgs{}); err != nil {
				return nil, err
			}
			return IsPhoneNumber(), nil
		},
	}
}
