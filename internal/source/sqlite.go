package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/dqmpipeline/dqm/internal/model"
)

// DefaultSQLitePageSize 每次查询读取的行数
const DefaultSQLitePageSize = 500

// rowIDAlias 分页游标列的别名，避免与业务列冲突
const rowIDAlias = "__dqm_rowid"

// SQLite 基于 gorm 的行源；表名为 dataset__table
// 按 rowid 分页读取，每页读完即释放连接，日志表可在扫描过程中写入同一连接池
type SQLite struct {
	db       *gorm.DB
	PageSize int
}

// NewSQLite 创建 SQLite 行源
func NewSQLite(db *gorm.DB) *SQLite {
	return &SQLite{db: db, PageSize: DefaultSQLitePageSize}
}

// CreateSession 实现 RowSource
func (s *SQLite) CreateSession(ctx context.Context, table model.TableMetadata, columns []string, format DataFormat) (*Session, error) {
	name := table.SQLName()
	if !s.db.WithContext(ctx).Migrator().HasTable(name) {
		return nil, fmt.Errorf("table %s not found", name)
	}
	return newSession(table, columns, format)
}

// Read 实现 RowSource
func (s *SQLite) Read(ctx context.Context, session *Session) (RecordIterator, error) {
	if err := checkSession(session); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	cols := make([]string, 0, len(session.Columns)+1)
	cols = append(cols, "rowid AS "+db.Statement.Quote(rowIDAlias))
	for _, c := range session.Columns {
		cols = append(cols, db.Statement.Quote(c))
	}
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = DefaultSQLitePageSize
	}
	return &sqlIterator{
		db:         db,
		table:      session.Table.SQLName(),
		selectList: strings.Join(cols, ", "),
		pageSize:   pageSize,
		decodeJSON: session.Format == FormatJSON,
	}, nil
}

type sqlIterator struct {
	db         *gorm.DB
	table      string
	selectList string
	pageSize   int
	decodeJSON bool

	page   []Record
	pos    int
	lastID int64
	done   bool
}

func (it *sqlIterator) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.page) {
		if it.done {
			return nil, io.EOF
		}
		if err := it.fetch(ctx); err != nil {
			return nil, err
		}
		if len(it.page) == 0 {
			return nil, io.EOF
		}
	}
	rec := it.page[it.pos]
	it.page[it.pos] = nil
	it.pos++
	return rec, nil
}

// fetch 读取下一页并在返回前关闭游标
func (it *sqlIterator) fetch(ctx context.Context) error {
	rows, err := it.db.WithContext(ctx).Table(it.table).
		Select(it.selectList).
		Where("rowid > ?", it.lastID).
		Order("rowid").
		Limit(it.pageSize).
		Rows()
	if err != nil {
		return fmt.Errorf("query %s: %w", it.table, err)
	}
	defer rows.Close()

	page := make([]Record, 0, it.pageSize)
	for rows.Next() {
		rec := Record{}
		if err := it.db.ScanRows(rows, &rec); err != nil {
			return err
		}
		id, err := rowID(rec[rowIDAlias])
		if err != nil {
			return fmt.Errorf("query %s: %w", it.table, err)
		}
		it.lastID = id
		delete(rec, rowIDAlias)
		if it.decodeJSON {
			for k, v := range rec {
				rec[k] = decodeJSONCell(v)
			}
		}
		page = append(page, rec)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	it.page = page
	it.pos = 0
	it.done = len(page) < it.pageSize
	return nil
}

func (it *sqlIterator) Close() error {
	it.page = nil
	it.done = true
	return nil
}

func rowID(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected rowid %T", v)
	}
}

// decodeJSONCell 将保存为 JSON 文本的对象 / 数组解码为嵌套结构；数字保留为 json.Number
func decodeJSONCell(v interface{}) interface{} {
	var raw []byte
	switch x := v.(type) {
	case string:
		raw = []byte(x)
	case []byte:
		raw = x
	default:
		return v
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') || !json.Valid(trimmed) {
		return v
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return v
	}
	return out
}
