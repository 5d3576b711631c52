// Package source 定义外部行源的契约，并提供按列读取的适配器与若干行源实现。
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dqmpipeline/dqm/internal/model"
)

// Record 一行半结构化记录
type Record = map[string]interface{}

// DataFormat 行源输出格式
type DataFormat int

const (
	// FormatUnspecified 未指定
	FormatUnspecified DataFormat = iota
	// FormatJSON 自描述的行格式：嵌套值解码为 map / slice
	FormatJSON
	// FormatRaw 单元格按存储原样返回
	FormatRaw
)

func (f DataFormat) String() string {
	switch f {
	case FormatJSON:
		return "JSON"
	case FormatRaw:
		return "RAW"
	}
	return "DATA_FORMAT_UNSPECIFIED"
}

// MaxStreamCount 每个会话的流数量：并行度在列级别实现，单列只用一个流
const MaxStreamCount = 1

// ErrNoStreams 会话没有可读的流
var ErrNoStreams = errors.New("read session has no streams")

// Session 读会话
type Session struct {
	Name    string
	Table   model.TableMetadata
	Columns []string
	Format  DataFormat
	Streams []string
}

// RowSource 外部行源
type RowSource interface {
	CreateSession(ctx context.Context, table model.TableMetadata, columns []string, format DataFormat) (*Session, error)
	Read(ctx context.Context, session *Session) (RecordIterator, error)
}

// RecordIterator 单次遍历的记录迭代器；结束时 Next 返回 io.EOF
type RecordIterator interface {
	Next(ctx context.Context) (Record, error)
	Close() error
}

// newSession 构造单流会话
func newSession(table model.TableMetadata, columns []string, format DataFormat) (*Session, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: at least one column must be selected", model.ErrMalformedConfig)
	}
	if format == FormatUnspecified {
		format = FormatJSON
	}
	id := uuid.NewString()
	return &Session{
		Name:    fmt.Sprintf("projects/%s/sessions/%s", table.ProjectID, id),
		Table:   table,
		Columns: append([]string(nil), columns...),
		Format:  format,
		Streams: []string{fmt.Sprintf("projects/%s/sessions/%s/streams/0", table.ProjectID, id)},
	}, nil
}

func checkSession(s *Session) error {
	if s == nil || len(s.Streams) == 0 {
		return ErrNoStreams
	}
	return nil
}

// project 仅保留请求的列；缺失的列不补齐
func project(rec Record, columns []string) Record {
	out := make(Record, len(columns))
	for _, c := range columns {
		if v, ok := rec[c]; ok {
			out[c] = v
		}
	}
	return out
}

// projectFill 保留请求的列；缺失的列补 nil，按空值处理
func projectFill(rec Record, columns []string) Record {
	out := make(Record, len(columns))
	for _, c := range columns {
		out[c] = rec[c]
	}
	return out
}
