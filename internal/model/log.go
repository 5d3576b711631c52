package model

// LogType 日志类别
const (
	LogTypeSystem = "system"
	LogTypeParser = "parser"
	LogTypeRule   = "rule"
)

// LogMessage 扁平的日志记录：运行级字段 + 事件级字段
// 事件级字段未设置时为 nil（落表为 NULL）
type LogMessage struct {
	DQMVersionID        string `json:"dqm_version_id" gorm:"column:dqm_version_id;type:varchar(32)"`
	WorkflowExecutionID string `json:"workflow_execution_id" gorm:"column:workflow_execution_id;type:varchar(128);index"`
	RunTimestampUTC     string `json:"run_timestamp_utc" gorm:"column:run_timestamp_utc;type:varchar(32)"`
	ProjectID           string `json:"project_id" gorm:"column:project_id;type:varchar(128)"`
	DatasetID           string `json:"dataset_id" gorm:"column:dataset_id;type:varchar(128)"`
	TableName           string `json:"table_name" gorm:"column:table_name;type:varchar(256)"`
	FullTableID         string `json:"full_table_id" gorm:"column:full_table_id;type:varchar(512)"`

	LogType    string  `json:"log_type" gorm:"column:log_type;type:varchar(16);not null"`
	Column     *string `json:"column,omitempty" gorm:"column:column"`
	Parser     *string `json:"parser,omitempty" gorm:"column:parser"`
	Rule       *string `json:"rule,omitempty" gorm:"column:rule"`
	Error      *string `json:"error,omitempty" gorm:"column:error;type:text"`
	RuleParams *string `json:"rule_params,omitempty" gorm:"column:rule_params;type:text"`
	Value      *string `json:"value,omitempty" gorm:"column:value;type:text"`
}

// StrPtr 返回字符串指针
func StrPtr(s string) *string {
	return &s
}

// RowError 批量写入时单行失败的原因
type RowError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}
