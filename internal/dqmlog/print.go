package dqmlog

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/dqmpipeline/dqm/internal/model"
)

// DefaultPrintBatchSize 控制台写入端的默认批量
const DefaultPrintBatchSize = 10

// PrintSink 每条消息输出一行 JSON；多个写入端共享输出时用 SyncWriter 包装
type PrintSink struct {
	out   io.Writer
	batch int
}

// NewPrintSink out 为 nil 时输出到标准输出；batch 小于 1 时使用默认值
func NewPrintSink(out io.Writer, batch int) *PrintSink {
	if out == nil {
		out = os.Stdout
	}
	if batch < 1 {
		batch = DefaultPrintBatchSize
	}
	return &PrintSink{out: out, batch: batch}
}

// BatchSize 实现 Sink
func (s *PrintSink) BatchSize() int {
	return s.batch
}

// DeliverOne 实现 Sink
func (s *PrintSink) DeliverOne(ctx context.Context, msg model.LogMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = s.out.Write(append(b, '\n'))
	return err
}

// DeliverMany 实现 Sink：逐条输出
func (s *PrintSink) DeliverMany(ctx context.Context, msgs []model.LogMessage) error {
	for _, m := range msgs {
		if err := s.DeliverOne(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// SyncWriter 为并发写入加锁
func SyncWriter(w io.Writer) io.Writer {
	if _, ok := w.(*syncWriter); ok {
		return w
	}
	return &syncWriter{w: w}
}
