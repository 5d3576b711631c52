package source

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dqmpipeline/dqm/internal/auth"
	"github.com/dqmpipeline/dqm/internal/colpath"
	"github.com/dqmpipeline/dqm/internal/config"
	"github.com/dqmpipeline/dqm/internal/database"
	"github.com/dqmpipeline/dqm/internal/model"
)

var testTable = model.NewTableMetadata("proj", "sales", "orders")

func readAll(t *testing.T, r *ColumnReader) []interface{} {
	t.Helper()
	var out []interface{}
	for {
		v, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, v)
	}
}

func TestMemoryColumnReaderSimple(t *testing.T) {
	mem := NewMemory()
	mem.Put(testTable, []Record{
		{"price": int64(-1), "name": "a"},
		{"price": int64(5)},
		{"price": "x"},
		{"price": nil},
	})

	r, err := NewColumnReader(context.Background(), mem, testTable, "price", nil)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"price"}, r.Session().Columns)
	assert.Len(t, r.Session().Streams, MaxStreamCount)
	assert.Equal(t, FormatJSON, r.Session().Format)
	assert.Equal(t, []interface{}{int64(-1), int64(5), "x", nil}, readAll(t, r))
}

func TestMemoryColumnReaderMissingFieldIsFatal(t *testing.T) {
	mem := NewMemory()
	mem.Put(testTable, []Record{{"other": 1}})

	r, err := NewColumnReader(context.Background(), mem, testTable, "price", nil)
	require.NoError(t, err)
	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, colpath.ErrFieldNotFound)
}

func TestMemoryColumnReaderNested(t *testing.T) {
	mem := NewMemory()
	mem.Put(testTable, []Record{
		{"event_params": []interface{}{
			map[string]interface{}{"key": "page", "value": map[string]interface{}{"string_value": "home", "int_value": nil}},
			map[string]interface{}{"key": "count", "value": map[string]interface{}{"int_value": int64(3)}},
		}},
		{"event_params": []interface{}{}},
		{"event_params": nil},
	})

	r, err := NewColumnReader(context.Background(), mem, testTable, "event_params.key[count]", colpath.NewResolver("value"))
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, []string{"event_params"}, r.Session().Columns)
	assert.Equal(t, []interface{}{int64(3), nil, nil}, readAll(t, r))
}

func TestColumnReaderMalformedPath(t *testing.T) {
	mem := NewMemory()
	mem.Put(testTable, nil)
	_, err := NewColumnReader(context.Background(), mem, testTable, "a[b", nil)
	assert.ErrorIs(t, err, model.ErrMalformedConfig)
}

func TestMemoryUnknownTable(t *testing.T) {
	_, err := NewColumnReader(context.Background(), NewMemory(), testTable, "price", nil)
	assert.Error(t, err)
}

func TestSQLiteSource(t *testing.T) {
	db, err := database.Open(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "src.db"), LogLevel: "silent"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	require.NoError(t, db.Exec(`CREATE TABLE sales__orders (id INTEGER, price REAL, attrs TEXT)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO sales__orders VALUES (1, 2.5, '{"color": {"value": {"string_value": "red"}}}'), (2, -1, 'plain text'), (3, NULL, NULL)`).Error)

	src := NewSQLite(db)
	r, err := NewColumnReader(context.Background(), src, testTable, "price", nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{2.5, float64(-1), nil}, readAll(t, r))
	require.NoError(t, r.Close())

	r, err = NewColumnReader(context.Background(), src, testTable, "attrs.color", colpath.NewResolver("value"))
	require.NoError(t, err)
	got := readAll(t, r)
	require.NoError(t, r.Close())
	require.Len(t, got, 3)
	assert.Equal(t, map[string]interface{}{"value": map[string]interface{}{"string_value": "red"}}, got[0])
	assert.Nil(t, got[1])
	assert.Nil(t, got[2])

	_, err = NewColumnReader(context.Background(), src, model.NewTableMetadata("proj", "sales", "missing"), "price", nil)
	assert.Error(t, err)
}

func TestSQLiteSourcePagesReleaseConnection(t *testing.T) {
	db, err := database.Open(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "src.db"), LogLevel: "silent"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	require.NoError(t, db.Exec(`CREATE TABLE sales__orders (qty INTEGER)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO sales__orders VALUES (1), (2), (3), (4), (5)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE side (n INTEGER)`).Error)

	src := NewSQLite(db)
	src.PageSize = 2
	r, err := NewColumnReader(context.Background(), src, testTable, "qty", nil)
	require.NoError(t, err)
	defer r.Close()

	var got []interface{}
	for {
		v, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, v)

		// 连接池只有一个连接；读取过程中写入必须能拿到连接
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = db.WithContext(ctx).Exec(`INSERT INTO side VALUES (?)`, len(got)).Error
		cancel()
		require.NoError(t, err)
	}
	assert.Equal(t, []interface{}{int64(1), int64(2), int64(3), int64(4), int64(5)}, got)

	var n int64
	require.NoError(t, db.Table("side").Count(&n).Error)
	assert.Equal(t, int64(5), n)
}

func TestSQLiteSourceExactPage(t *testing.T) {
	db, err := database.Open(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "src.db"), LogLevel: "silent"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	require.NoError(t, db.Exec(`CREATE TABLE sales__orders (name TEXT)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO sales__orders VALUES ('a'), ('b'), ('c'), ('d')`).Error)

	src := NewSQLite(db)
	src.PageSize = 2
	r, err := NewColumnReader(context.Background(), src, testTable, "name", nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b", "c", "d"}, readAll(t, r))
	require.NoError(t, r.Close())
}

func TestDecodeJSONCell(t *testing.T) {
	assert.Equal(t, map[string]interface{}{"n": json.Number("1")}, decodeJSONCell(`{"n": 1}`))
	assert.Equal(t, []interface{}{json.Number("1"), "a"}, decodeJSONCell([]byte(` [1, "a"] `)))
	assert.Equal(t, "{not json", decodeJSONCell("{not json"))
	assert.Equal(t, "42", decodeJSONCell("42"))
	assert.Equal(t, int64(7), decodeJSONCell(int64(7)))
}

func TestPostgresSelectSQL(t *testing.T) {
	table := model.NewTableMetadata("proj", "analytics", `weird"name`)
	assert.Equal(t, `SELECT "price", "event params" FROM "analytics"."weird""name"`, selectSQL(table, []string{"price", "event params"}))
}

func TestNormalizePG(t *testing.T) {
	var n pgtype.Numeric
	require.NoError(t, n.Scan("12.50"))
	num, ok := normalizePG(n).(json.Number)
	require.True(t, ok)
	f, err := num.Float64()
	require.NoError(t, err)
	assert.Equal(t, 12.5, f)
	assert.Nil(t, normalizePG(pgtype.Numeric{}))
	assert.Equal(t, "text", normalizePG("text"))
}

func TestNewRowSource(t *testing.T) {
	cfg := config.Default()
	tok := &auth.Token{}

	cfg.DQM.SourceBackend = BackendMemory
	mem := NewMemory()
	src, err := NewRowSource(cfg, Deps{Memory: mem}, tok)
	require.NoError(t, err)
	assert.Same(t, mem, src)

	cfg.DQM.SourceBackend = BackendPostgres
	_, err = NewRowSource(cfg, Deps{}, tok)
	assert.Error(t, err)

	cfg.DQM.SourceBackend = "bigtable"
	_, err = NewRowSource(cfg, Deps{}, tok)
	assert.Error(t, err)
}
