// Package dqmlog 数据质量事件日志：组装 LogMessage，经缓冲区批量投递到写入端。
package dqmlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dqmpipeline/dqm/internal/model"
	"github.com/dqmpipeline/dqm/internal/util"
)

// ErrSinkDelivery 日志批次投递失败；整次运行随之中止
var ErrSinkDelivery = errors.New("log sink delivery failed")

// RunTimestampLayout run_timestamp_utc 的格式
const RunTimestampLayout = "2006-01-02T15:04:05.000000"

// Sink 日志写入端
type Sink interface {
	DeliverOne(ctx context.Context, msg model.LogMessage) error
	DeliverMany(ctx context.Context, msgs []model.LogMessage) error
	// BatchSize 缓冲阈值：队列长度超过该值时投递
	BatchSize() int
}

// Logger 单次列处理的日志器；非并发安全，每次运行独占一个实例
type Logger struct {
	ctx  context.Context
	sink Sink
	buf  *util.Buffer[model.LogMessage]
	base model.LogMessage
}

// New 创建日志器；ctx 作用于该次运行的所有投递
func New(ctx context.Context, sink Sink) *Logger {
	l := &Logger{ctx: ctx, sink: sink}
	l.buf = util.NewBuffer(nil, sink.BatchSize(), func(items []model.LogMessage) error {
		if len(items) == 0 {
			return nil
		}
		return l.sink.DeliverMany(l.ctx, items)
	})
	return l
}

// SetBaseLog 设置运行级字段，须在产生任何事件之前调用
func (l *Logger) SetBaseLog(versionID, executionID string, table model.TableMetadata, runTime time.Time) {
	l.base = model.LogMessage{
		DQMVersionID:        versionID,
		WorkflowExecutionID: executionID,
		RunTimestampUTC:     runTime.UTC().Format(RunTimestampLayout),
		ProjectID:           table.ProjectID,
		DatasetID:           table.DatasetID,
		TableName:           table.TableName,
		FullTableID:         table.FullTableID,
	}
}

// Base 运行级字段
func (l *Logger) Base() model.LogMessage {
	return l.base
}

// Pending 尚未投递的消息数
func (l *Logger) Pending() int {
	return l.buf.Len()
}

// System 记录系统事件
func (l *Logger) System(err error) error {
	return l.push(l.systemMessage(errText(err)))
}

// Parser 记录解析失败
func (l *Logger) Parser(column, parser string, err error, value interface{}) error {
	return l.push(l.parserMessage(column, parser, errText(err), value))
}

// Rule 记录规则违规或规则执行错误
func (l *Logger) Rule(column, rule, reason string, value interface{}, params map[string]interface{}) error {
	msg, err := l.ruleMessage(column, rule, reason, value, params)
	if err != nil {
		return err
	}
	return l.push(msg)
}

// Flush 投递缓冲区；force 为 true 时无视阈值
func (l *Logger) Flush(force bool) error {
	_, err := l.buf.Flush(force)
	return err
}

func (l *Logger) push(msg model.LogMessage) error {
	_, err := l.buf.Push(msg)
	return err
}

func (l *Logger) systemMessage(reason string) model.LogMessage {
	msg := l.base
	msg.LogType = model.LogTypeSystem
	msg.Error = model.StrPtr(reason)
	return msg
}

func (l *Logger) parserMessage(column, parser, reason string, value interface{}) model.LogMessage {
	msg := l.base
	msg.LogType = model.LogTypeParser
	msg.Column = model.StrPtr(column)
	msg.Parser = model.StrPtr(parser)
	msg.Error = model.StrPtr(reason)
	msg.Value = FormatValue(value)
	return msg
}

func (l *Logger) ruleMessage(column, rule, reason string, value interface{}, params map[string]interface{}) (model.LogMessage, error) {
	p, err := RuleParams(params)
	if err != nil {
		return model.LogMessage{}, err
	}
	msg := l.base
	msg.LogType = model.LogTypeRule
	msg.Column = model.StrPtr(column)
	msg.Rule = model.StrPtr(rule)
	msg.Error = model.StrPtr(reason)
	msg.Value = FormatValue(value)
	msg.RuleParams = model.StrPtr(p)
	return msg, nil
}

// RuleParams 规则参数的规范 JSON 形式（键排序，不转义 HTML 字符）；空参数为 "{}"
func RuleParams(params map[string]interface{}) (string, error) {
	if len(params) == 0 {
		return "{}", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(params); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// FormatValue 将出错的单元格值转为字符串；nil 保持为空
func FormatValue(v interface{}) *string {
	if v == nil {
		return nil
	}
	s, err := util.Stringify(v)
	if err != nil {
		return nil
	}
	return &s
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// systemFrom 以某条消息的运行级字段构造系统事件（写入端回退时使用）
func systemFrom(ref model.LogMessage, reason string) model.LogMessage {
	return model.LogMessage{
		DQMVersionID:        ref.DQMVersionID,
		WorkflowExecutionID: ref.WorkflowExecutionID,
		RunTimestampUTC:     ref.RunTimestampUTC,
		ProjectID:           ref.ProjectID,
		DatasetID:           ref.DatasetID,
		TableName:           ref.TableName,
		FullTableID:         ref.FullTableID,
		LogType:             model.LogTypeSystem,
		Error:               model.StrPtr(reason),
	}
}
