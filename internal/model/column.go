package model

// RuleConfig 规则名称及可选参数
type RuleConfig struct {
	Rule string                 `json:"rule" yaml:"rule"`
	Args map[string]interface{} `json:"args,omitempty" yaml:"args,omitempty"`
}

// ColumnConfig 列配置：列名（可为嵌套路径）、解析器与规则列表
type ColumnConfig struct {
	Column string       `json:"column" yaml:"column" binding:"required"`
	Parser string       `json:"parser" yaml:"parser" binding:"required"`
	Rules  []RuleConfig `json:"rules" yaml:"rules"`
}

// AuthConfig 凭证配置：可选的服务账号模拟与额外 OAuth scope
type AuthConfig struct {
	ServiceAccountEmail string   `json:"service_account_email,omitempty" yaml:"service_account_email,omitempty"`
	Scopes              []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}
