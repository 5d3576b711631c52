package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dqmpipeline/dqm/internal/auth"
	"github.com/dqmpipeline/dqm/internal/colpath"
	"github.com/dqmpipeline/dqm/internal/config"
	"github.com/dqmpipeline/dqm/internal/dqmlog"
	"github.com/dqmpipeline/dqm/internal/model"
	"github.com/dqmpipeline/dqm/internal/rules"
	"github.com/dqmpipeline/dqm/internal/source"
	"github.com/dqmpipeline/dqm/internal/storage"
	"github.com/dqmpipeline/dqm/pkg/logger"
)

// 持久日志写入端
const (
	LogBackendTable  = "table"
	LogBackendObject = "object"
)

// RunStore 运行记录存储
type RunStore interface {
	Create(ctx context.Context, run *model.RunRecord) error
	Save(ctx context.Context, run *model.RunRecord) error
	ListByExecution(ctx context.Context, executionID string) ([]model.RunRecord, error)
}

// Deps 列处理服务的依赖；未使用的后端可为 nil
type Deps struct {
	Registry     *rules.Registry
	Credentials  auth.Provider
	Sources      source.Deps
	TableAdmin   dqmlog.TableAdmin
	ObjectWriter storage.Writer
	Runs         RunStore
	// PrintOut 控制台日志输出，nil 为标准输出
	PrintOut io.Writer
	// Now 可替换的时钟（测试用）
	Now func() time.Time
}

// ColumnService 列处理服务
type ColumnService struct {
	config *config.Config
	deps   Deps
}

// NewColumnService 创建列处理服务
func NewColumnService(cfg *config.Config, deps Deps) *ColumnService {
	if deps.Registry == nil {
		deps.Registry = rules.NewRegistry()
	}
	if deps.Credentials == nil {
		deps.Credentials = auth.DefaultProvider{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.PrintOut == nil {
		deps.PrintOut = os.Stdout
	}
	deps.PrintOut = dqmlog.SyncWriter(deps.PrintOut)
	return &ColumnService{config: cfg, deps: deps}
}

// Registry 服务使用的规则注册表
func (s *ColumnService) Registry() *rules.Registry {
	return s.deps.Registry
}

// Runs 查询某次工作流执行的运行记录
func (s *ColumnService) Runs(ctx context.Context, executionID string) ([]model.RunRecord, error) {
	if s.deps.Runs == nil {
		return nil, fmt.Errorf("run store not configured")
	}
	return s.deps.Runs.ListByExecution(ctx, executionID)
}

// ProcessColumn 流式读取一列，逐行解析并执行规则，输出日志与统计
func (s *ColumnService) ProcessColumn(ctx context.Context, req *ProcessColumnRequest) (*ProcessColumnResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	// 配置错误须在读取任何行之前暴露
	col, err := s.deps.Registry.Bind(req.ColumnConfig)
	if err != nil {
		return nil, err
	}
	if colpath.IsNested(req.ColumnConfig.Column) {
		if _, err := colpath.Parse(req.ColumnConfig.Column); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(req.WorkflowExecutionID) == "" {
		req.WorkflowExecutionID = uuid.NewString()
	}

	run := s.startRun(ctx, req)
	summary, err := s.scan(ctx, req, col, run.ID)
	s.finishRun(ctx, run, summary, err)
	if err != nil {
		return nil, err
	}
	return &ProcessColumnResponse{Message: summary.Message(), Code: http.StatusOK, Summary: summary}, nil
}

// scan 评估循环：单列单流，顺序执行
func (s *ColumnService) scan(ctx context.Context, req *ProcessColumnRequest, col *rules.Column, runID string) (*Summary, error) {
	column := req.ColumnConfig.Column
	summary := &Summary{RunID: runID, Column: column}

	tok, err := s.deps.Credentials.Credentials(ctx, req.AuthConfig)
	if err != nil {
		return summary, fmt.Errorf("get credentials: %w", err)
	}
	src, err := source.NewRowSource(s.config, s.deps.Sources, tok)
	if err != nil {
		return summary, err
	}
	sink, err := s.newSink(ctx, req)
	if err != nil {
		return summary, err
	}
	dlog := dqmlog.New(ctx, sink)
	dlog.SetBaseLog(s.config.DQM.VersionID, req.WorkflowExecutionID, req.SourceTable, s.deps.Now())

	reader, err := source.NewColumnReader(ctx, src, req.SourceTable, column, colpath.NewResolver(s.config.DQM.UnwrapField))
	if err != nil {
		return summary, err
	}
	defer reader.Close()

	logger.Info("Column processing started",
		"run_id", runID,
		"execution_id", req.WorkflowExecutionID,
		"table", req.SourceTable.FullTableID,
		"column", column,
		"parser", col.ParserName,
		"rules", len(col.Rules))

	for {
		value, err := reader.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, s.abort(dlog, fmt.Errorf("read %s row %d: %w", column, summary.Rows, err))
		}

		parsed, perr := safeParse(col, value)
		if perr != nil {
			summary.ParseFailures++
			if err := dlog.Parser(column, col.ParserName, perr, value); err != nil {
				return summary, err
			}
		} else {
			for _, rule := range col.Rules {
				var lerr error
				reason, rerr := safeCheck(rule, parsed)
				switch {
				case rerr != nil:
					summary.RuleErrors++
					lerr = dlog.Rule(column, rule.Name, rerr.Error(), value, rule.Params)
				case reason != "":
					summary.RuleViolations++
					lerr = dlog.Rule(column, rule.Name, reason, value, rule.Params)
				}
				if lerr != nil {
					return summary, lerr
				}
			}
		}
		summary.Rows++
		if err := dlog.Flush(false); err != nil {
			return summary, err
		}
	}

	if err := dlog.Flush(true); err != nil {
		return summary, err
	}
	if summary.Rows == 0 && s.config.DQM.FailOnEmptySource {
		return summary, s.abort(dlog, fmt.Errorf("%w: %s", model.ErrEmptySource, req.SourceTable.FullTableID))
	}

	logger.Info("Column processing finished",
		"run_id", runID,
		"column", column,
		"rows", summary.Rows,
		"parse_failures", summary.ParseFailures,
		"rule_errors", summary.RuleErrors,
		"rule_violations", summary.RuleViolations)
	return summary, nil
}

// abort 尽力记录系统事件后返回原始错误；投递失败时返回投递错误
func (s *ColumnService) abort(dlog *dqmlog.Logger, cause error) error {
	if err := dlog.System(cause); err != nil {
		return err
	}
	if err := dlog.Flush(true); err != nil {
		return err
	}
	return cause
}

func (s *ColumnService) newSink(ctx context.Context, req *ProcessColumnRequest) (dqmlog.Sink, error) {
	printSink := dqmlog.NewPrintSink(s.deps.PrintOut, s.config.DQM.PrintBatchSize)
	if req.LogTable == nil {
		return printSink, nil
	}
	switch s.config.DQM.LogBackend {
	case LogBackendTable, "":
		if s.deps.TableAdmin == nil {
			return nil, fmt.Errorf("log table admin not configured")
		}
		return dqmlog.NewTableSink(ctx, s.deps.TableAdmin, *req.LogTable, printSink, s.config.DQM.TableBatchSize)
	case LogBackendObject:
		if s.deps.ObjectWriter == nil {
			return nil, fmt.Errorf("log object writer not configured")
		}
		return dqmlog.NewObjectSink(s.deps.ObjectWriter, *req.LogTable, printSink, s.config.DQM.TableBatchSize), nil
	}
	return nil, fmt.Errorf("unknown log backend %q", s.config.DQM.LogBackend)
}

func safeParse(col *rules.Column, v interface{}) (out interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser %s panicked: %v", col.ParserName, r)
		}
	}()
	return col.Parse(v)
}

func safeCheck(rule rules.BoundRule, v interface{}) (reason string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule %s panicked: %v", rule.Name, r)
		}
	}()
	return rule.Check(v)
}

func (s *ColumnService) persistRuns() bool {
	return s.deps.Runs != nil && s.config.DQM.PersistRuns
}

func (s *ColumnService) startRun(ctx context.Context, req *ProcessColumnRequest) *model.RunRecord {
	run := &model.RunRecord{
		ID:                  uuid.NewString(),
		WorkflowExecutionID: req.WorkflowExecutionID,
		FullTableID:         req.SourceTable.FullTableID,
		Column:              req.ColumnConfig.Column,
		Parser:              req.ColumnConfig.Parser,
		Status:              model.RunStatusRunning,
		StartTime:           s.deps.Now(),
	}
	if s.persistRuns() {
		if err := s.deps.Runs.Create(ctx, run); err != nil {
			logger.Warn("Failed to create run record", "run_id", run.ID, "error", err)
		}
	}
	return run
}

func (s *ColumnService) finishRun(ctx context.Context, run *model.RunRecord, summary *Summary, runErr error) {
	run.EndTime = s.deps.Now()
	run.Duration = run.EndTime.Sub(run.StartTime).Milliseconds()
	if summary != nil {
		run.Rows = summary.Rows
		run.ParseFailures = summary.ParseFailures
		run.RuleErrors = summary.RuleErrors
		run.RuleViolations = summary.RuleViolations
	}
	run.Status = model.RunStatusSuccess
	if runErr != nil {
		run.Status = model.RunStatusFailed
		run.ErrorMsg = runErr.Error()
		logger.Error("Column processing failed", "run_id", run.ID, "column", run.Column, "error", runErr)
	}
	if !s.persistRuns() {
		return
	}
	// 请求取消后仍需落库最终状态
	if err := s.deps.Runs.Save(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("Failed to save run record", "run_id", run.ID, "error", err)
	}
}

// ProcessColumns 并发处理同一张表的多列；每列独立的日志器、缓冲区与读取器
func (s *ColumnService) ProcessColumns(ctx context.Context, req *ProcessColumnsRequest) (*ProcessColumnsResponse, error) {
	if len(req.ColumnConfigs) == 0 {
		return nil, fmt.Errorf("%w: at least one column config is required", model.ErrMalformedConfig)
	}
	if strings.TrimSpace(req.WorkflowExecutionID) == "" {
		req.WorkflowExecutionID = uuid.NewString()
	}
	reqs := req.Split()
	// 先校验全部列，任何配置错误都不启动扫描
	for i, r := range reqs {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("column_configs[%d]: %w", i, err)
		}
		if _, err := s.deps.Registry.Bind(r.ColumnConfig); err != nil {
			return nil, fmt.Errorf("column_configs[%d]: %w", i, err)
		}
	}

	results := make([]*ColumnResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(s.config.DQM.Concurrency)
	for i, r := range reqs {
		g.Go(func() error {
			res := &ColumnResult{Column: r.ColumnConfig.Column}
			results[i] = res
			resp, err := s.ProcessColumn(ctx, r)
			if err != nil {
				res.Error = err.Error()
				return fmt.Errorf("column %s: %w", r.ColumnConfig.Column, err)
			}
			res.Summary = resp.Summary
			return nil
		})
	}
	err := g.Wait()

	var failed int
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
	}
	resp := &ProcessColumnsResponse{
		Message: fmt.Sprintf("DQM processed %d columns, %d failed.", len(results), failed),
		Code:    http.StatusOK,
		Results: results,
	}
	if err != nil {
		resp.Code = http.StatusInternalServerError
	}
	return resp, err
}
