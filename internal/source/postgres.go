package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dqmpipeline/dqm/internal/model"
)

// Postgres 基于 pgx 的行源：dataset 映射为 schema
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres 连接 PostgreSQL
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close 关闭连接池
func (p *Postgres) Close() {
	p.pool.Close()
}

// CreateSession 实现 RowSource
func (p *Postgres) CreateSession(ctx context.Context, table model.TableMetadata, columns []string, format DataFormat) (*Session, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		table.DatasetID, table.TableName).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("lookup table %s: %w", table.FullTableID, err)
	}
	if !exists {
		return nil, fmt.Errorf("table %s not found", table.FullTableID)
	}
	return newSession(table, columns, format)
}

// selectSQL 构造查询语句，标识符统一转义
func selectSQL(table model.TableMetadata, columns []string) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), pgx.Identifier{table.DatasetID, table.TableName}.Sanitize())
}

// Read 实现 RowSource
func (p *Postgres) Read(ctx context.Context, session *Session) (RecordIterator, error) {
	if err := checkSession(session); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, selectSQL(session.Table, session.Columns))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", session.Table.FullTableID, err)
	}
	return &pgIterator{rows: rows}, nil
}

type pgIterator struct {
	rows pgx.Rows
}

func (it *pgIterator) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	vals, err := it.rows.Values()
	if err != nil {
		return nil, err
	}
	fields := it.rows.FieldDescriptions()
	rec := make(Record, len(fields))
	for i, fd := range fields {
		rec[fd.Name] = normalizePG(vals[i])
	}
	return rec, nil
}

func (it *pgIterator) Close() error {
	it.rows.Close()
	return it.rows.Err()
}

// normalizePG numeric 转为 json.Number，其余类型保持 pgx 的解码结果
func normalizePG(v interface{}) interface{} {
	n, ok := v.(pgtype.Numeric)
	if !ok {
		return v
	}
	b, err := n.MarshalJSON()
	if err != nil || string(b) == "null" {
		return nil
	}
	return json.Number(strings.Trim(string(b), `"`))
}
