package source

import (
	"context"
	"fmt"

	"github.com/dqmpipeline/dqm/internal/colpath"
	"github.com/dqmpipeline/dqm/internal/model"
)

// ColumnReader 按列读取单元格值的适配器
// 普通列名直接按键取值；路径表达式只读取首段物理列，再逐行解析路径
type ColumnReader struct {
	column   string
	nested   bool
	path     colpath.Path
	resolver *colpath.Resolver
	session  *Session
	it       RecordIterator
}

// NewColumnReader 建立读会话（一次性阻塞）并返回列读取器
func NewColumnReader(ctx context.Context, src RowSource, table model.TableMetadata, column string, resolver *colpath.Resolver) (*ColumnReader, error) {
	r := &ColumnReader{column: column, resolver: resolver}
	physical := column
	if colpath.IsNested(column) {
		p, err := colpath.Parse(column)
		if err != nil {
			return nil, err
		}
		r.nested = true
		r.path = p
		physical = p.Column()
		if r.resolver == nil {
			r.resolver = colpath.NewResolver("value")
		}
	}

	session, err := src.CreateSession(ctx, table, []string{physical}, FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("create read session for %s: %w", table.TablePath, err)
	}
	if err := checkSession(session); err != nil {
		return nil, err
	}
	it, err := src.Read(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("read rows of %s: %w", table.TablePath, err)
	}
	r.session = session
	r.it = it
	return r, nil
}

// Session 当前读会话
func (r *ColumnReader) Session() *Session {
	return r.session
}

// Next 返回下一行的单元格值；结束时返回 io.EOF
// 嵌套路径无法解析时返回 nil 值而非错误
func (r *ColumnReader) Next(ctx context.Context) (interface{}, error) {
	rec, err := r.it.Next(ctx)
	if err != nil {
		return nil, err
	}
	if !r.nested {
		return colpath.Lookup(rec, r.column)
	}
	return r.resolver.Extract(rec, r.path), nil
}

// Close 释放底层迭代器
func (r *ColumnReader) Close() error {
	if r.it == nil {
		return nil
	}
	return r.it.Close()
}
