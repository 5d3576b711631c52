package service

import (
	"fmt"
	"strings"

	"github.com/dqmpipeline/dqm/internal/model"
)

// ProcessColumnRequest 单列处理请求
type ProcessColumnRequest struct {
	WorkflowExecutionID string               `json:"workflow_execution_id" yaml:"workflow_execution_id"`
	AuthConfig          *model.AuthConfig    `json:"auth_config,omitempty" yaml:"auth_config,omitempty"`
	SourceTable         model.TableMetadata  `json:"source_table" yaml:"source_table"`
	LogTable            *model.TableMetadata `json:"log_table,omitempty" yaml:"log_table,omitempty"`
	ColumnConfig        model.ColumnConfig   `json:"column_config" yaml:"column_config"`
}

// Validate 结构校验；规则与解析器的校验在绑定阶段完成
func (r *ProcessColumnRequest) Validate() error {
	if err := r.SourceTable.Validate(); err != nil {
		return fmt.Errorf("source_table: %w", err)
	}
	if r.LogTable != nil {
		if err := r.LogTable.Validate(); err != nil {
			return fmt.Errorf("log_table: %w", err)
		}
	}
	return validateColumn(r.ColumnConfig)
}

func validateColumn(c model.ColumnConfig) error {
	if strings.TrimSpace(c.Column) == "" {
		return fmt.Errorf("%w: column_config.column is required", model.ErrMalformedConfig)
	}
	if strings.TrimSpace(c.Parser) == "" {
		return fmt.Errorf("%w: column_config.parser is required", model.ErrMalformedConfig)
	}
	return nil
}

// ProcessColumnResponse 单列处理响应
type ProcessColumnResponse struct {
	Message string   `json:"message"`
	Code    int      `json:"code"`
	Summary *Summary `json:"summary,omitempty"`
}

// ProcessColumnsRequest 同一张表多列处理请求
type ProcessColumnsRequest struct {
	WorkflowExecutionID string               `json:"workflow_execution_id" yaml:"workflow_execution_id"`
	AuthConfig          *model.AuthConfig    `json:"auth_config,omitempty" yaml:"auth_config,omitempty"`
	SourceTable         model.TableMetadata  `json:"source_table" yaml:"source_table"`
	LogTable            *model.TableMetadata `json:"log_table,omitempty" yaml:"log_table,omitempty"`
	ColumnConfigs       []model.ColumnConfig `json:"column_configs" yaml:"column_configs"`
}

// Split 拆分为逐列请求
func (r *ProcessColumnsRequest) Split() []*ProcessColumnRequest {
	out := make([]*ProcessColumnRequest, len(r.ColumnConfigs))
	for i, c := range r.ColumnConfigs {
		out[i] = &ProcessColumnRequest{
			WorkflowExecutionID: r.WorkflowExecutionID,
			AuthConfig:          r.AuthConfig,
			SourceTable:         r.SourceTable,
			LogTable:            r.LogTable,
			ColumnConfig:        c,
		}
	}
	return out
}

// ColumnResult 多列处理中单列的结果
type ColumnResult struct {
	Column  string   `json:"column"`
	Summary *Summary `json:"summary,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// ProcessColumnsResponse 多列处理响应
type ProcessColumnsResponse struct {
	Message string          `json:"message"`
	Code    int             `json:"code"`
	Results []*ColumnResult `json:"results"`
}

// Summary 单列运行统计
type Summary struct {
	RunID          string `json:"run_id"`
	Column         string `json:"column"`
	Rows           int64  `json:"rows"`
	ParseFailures  int64  `json:"parse_failures"`
	RuleErrors     int64  `json:"rule_errors"`
	RuleViolations int64  `json:"rule_violations"`
}

// Message 运行摘要
func (s *Summary) Message() string {
	return fmt.Sprintf("DQM processed %d rows, with %d parse failures, %d rule errors, %d rule check violations.",
		s.Rows, s.ParseFailures, s.RuleErrors, s.RuleViolations)
}
