package dqmlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/google/uuid"

	"github.com/dqmpipeline/dqm/internal/model"
	"github.com/dqmpipeline/dqm/internal/storage"
	"github.com/dqmpipeline/dqm/pkg/logger"
)

// ObjectSink 每个批次写成一个 NDJSON 对象：{log_table_path}/{execution_id}/{sink_id}-{seq}.ndjson
type ObjectSink struct {
	writer   storage.Writer
	table    model.TableMetadata
	fallback Sink
	batch    int
	id       string
	seq      int
}

// NewObjectSink 创建对象写入端
func NewObjectSink(writer storage.Writer, table model.TableMetadata, fallback Sink, batch int) *ObjectSink {
	if batch < 1 {
		batch = DefaultTableBatchSize
	}
	if fallback == nil {
		fallback = NewPrintSink(nil, 0)
	}
	return &ObjectSink{writer: writer, table: table, fallback: fallback, batch: batch, id: uuid.NewString()}
}

// BatchSize 实现 Sink
func (s *ObjectSink) BatchSize() int {
	return s.batch
}

// DeliverOne 实现 Sink
func (s *ObjectSink) DeliverOne(ctx context.Context, msg model.LogMessage) error {
	return s.DeliverMany(ctx, []model.LogMessage{msg})
}

func (s *ObjectSink) key(executionID string) string {
	if executionID == "" {
		executionID = "unknown"
	}
	return path.Join(s.table.TablePath, executionID, fmt.Sprintf("%s-%06d.ndjson", s.id, s.seq))
}

// DeliverMany 实现 Sink
func (s *ObjectSink) DeliverMany(ctx context.Context, msgs []model.LogMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, m := range msgs {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("%w: encode log row: %v", ErrSinkDelivery, err)
		}
	}
	s.seq++
	key := s.key(msgs[0].WorkflowExecutionID)
	obj, err := s.writer.Write(ctx, key, buf.Bytes(), "application/x-ndjson")
	if err != nil && !errors.Is(err, storage.ErrFellBack) {
		_ = s.fallback.DeliverOne(ctx, systemFrom(msgs[0], err.Error()))
		return fmt.Errorf("%w: write %s: %v", ErrSinkDelivery, key, err)
	}
	if err != nil {
		logger.Warn("log batch written to fallback storage", "uri", obj.URI, "error", err)
	}
	return nil
}
