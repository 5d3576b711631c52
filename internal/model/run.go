package model

import (
	"time"
)

// RunRecord 单列处理运行记录
type RunRecord struct {
	ID                  string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	WorkflowExecutionID string    `json:"workflow_execution_id" gorm:"type:varchar(128);index"`
	FullTableID         string    `json:"full_table_id" gorm:"type:varchar(512);not null"`
	Column              string    `json:"column" gorm:"type:varchar(256);not null"`
	Parser              string    `json:"parser" gorm:"type:varchar(32);not null"`
	Rows                int64     `json:"rows" gorm:"default:0"`
	ParseFailures       int64     `json:"parse_failures" gorm:"default:0"`
	RuleErrors          int64     `json:"rule_errors" gorm:"default:0"`
	RuleViolations      int64     `json:"rule_violations" gorm:"default:0"`
	Status              string    `json:"status" gorm:"type:varchar(16);not null;default:'running'"`
	ErrorMsg            string    `json:"error_msg" gorm:"type:text"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	Duration            int64     `json:"duration"` // 执行时长，毫秒
	CreatedAt           time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt           time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (RunRecord) TableName() string {
	return "dqm_runs"
}

// RunStatus 运行状态枚举
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)
