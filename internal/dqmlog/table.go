package dqmlog

import (
	"context"
	"fmt"

	"github.com/dqmpipeline/dqm/internal/model"
)

// DefaultTableBatchSize 日志表写入端的默认批量
const DefaultTableBatchSize = 1000

// TableAdmin 日志表管理
type TableAdmin interface {
	GetTable(ctx context.Context, table model.TableMetadata) (bool, error)
	CreateTable(ctx context.Context, table model.TableMetadata) error
	InsertRows(ctx context.Context, table model.TableMetadata, rows []model.LogMessage) ([]model.RowError, error)
}

// TableSink 将日志追加到表中；任一行失败即整批失败
type TableSink struct {
	admin    TableAdmin
	table    model.TableMetadata
	fallback Sink
	batch    int
}

// NewTableSink 确保日志表存在；fallback 接收写入失败的系统事件
func NewTableSink(ctx context.Context, admin TableAdmin, table model.TableMetadata, fallback Sink, batch int) (*TableSink, error) {
	exists, err := admin.GetTable(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("get log table %s: %w", table.FullTableID, err)
	}
	if !exists {
		if err := admin.CreateTable(ctx, table); err != nil {
			return nil, fmt.Errorf("create log table %s: %w", table.FullTableID, err)
		}
	}
	if batch < 1 {
		batch = DefaultTableBatchSize
	}
	if fallback == nil {
		fallback = NewPrintSink(nil, 0)
	}
	return &TableSink{admin: admin, table: table, fallback: fallback, batch: batch}, nil
}

// BatchSize 实现 Sink
func (s *TableSink) BatchSize() int {
	return s.batch
}

// DeliverOne 实现 Sink
func (s *TableSink) DeliverOne(ctx context.Context, msg model.LogMessage) error {
	return s.DeliverMany(ctx, []model.LogMessage{msg})
}

// DeliverMany 实现 Sink
func (s *TableSink) DeliverMany(ctx context.Context, msgs []model.LogMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	rowErrs, err := s.admin.InsertRows(ctx, s.table, msgs)
	if err != nil {
		_ = s.fallback.DeliverOne(ctx, systemFrom(msgs[0], err.Error()))
		return fmt.Errorf("%w: insert into %s: %v", ErrSinkDelivery, s.table.FullTableID, err)
	}
	if len(rowErrs) == 0 {
		return nil
	}
	for _, re := range rowErrs {
		reason := fmt.Sprintf("failed to insert log row %d into %s: %s", re.Index, s.table.FullTableID, re.Reason)
		_ = s.fallback.DeliverOne(ctx, systemFrom(msgs[0], reason))
	}
	return fmt.Errorf("%w: %d of %d rows rejected by %s", ErrSinkDelivery, len(rowErrs), len(msgs), s.table.FullTableID)
}
