package source

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dqmpipeline/dqm/internal/model"
)

// Memory 内存行源，按 FullTableID 保存记录
type Memory struct {
	mu     sync.RWMutex
	tables map[string][]Record
}

// NewMemory 创建内存行源
func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]Record)}
}

// Put 写入（覆盖）一张表的全部记录
func (m *Memory) Put(table model.TableMetadata, records []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table.FullTableID] = records
}

// CreateSession 实现 RowSource
func (m *Memory) CreateSession(ctx context.Context, table model.TableMetadata, columns []string, format DataFormat) (*Session, error) {
	m.mu.RLock()
	_, ok := m.tables[table.FullTableID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("table %s not found", table.FullTableID)
	}
	return newSession(table, columns, format)
}

// Read 实现 RowSource
func (m *Memory) Read(ctx context.Context, session *Session) (RecordIterator, error) {
	if err := checkSession(session); err != nil {
		return nil, err
	}
	m.mu.RLock()
	records := m.tables[session.Table.FullTableID]
	m.mu.RUnlock()
	return &sliceIterator{records: records, columns: session.Columns}, nil
}

type sliceIterator struct {
	records []Record
	columns []string
	pos     int
}

func (it *sliceIterator) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.records) {
		return nil, io.EOF
	}
	rec := it.records[it.pos]
	it.pos++
	return project(rec, it.columns), nil
}

func (it *sliceIterator) Close() error { return nil }
