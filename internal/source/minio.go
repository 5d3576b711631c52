package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	minio "github.com/minio/minio-go/v7"

	"github.com/dqmpipeline/dqm/internal/model"
)

// maxLineBytes NDJSON 单行上限
const maxLineBytes = 16 << 20

// Minio 对象存储行源：{prefix}/{table_path}/ 下的 NDJSON 对象，按对象名顺序读取
type Minio struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinio 创建 MinIO 行源
func NewMinio(client *minio.Client, bucket, prefix string) *Minio {
	return &Minio{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// objectPrefix 表对应的对象前缀
func (m *Minio) objectPrefix(table model.TableMetadata) string {
	if m.prefix == "" {
		return table.TablePath + "/"
	}
	return path.Join(m.prefix, table.TablePath) + "/"
}

func (m *Minio) listObjects(ctx context.Context, table model.TableMetadata) ([]string, error) {
	var keys []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: m.objectPrefix(table), Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// CreateSession 实现 RowSource；表下没有任何对象视为表不存在
func (m *Minio) CreateSession(ctx context.Context, table model.TableMetadata, columns []string, format DataFormat) (*Session, error) {
	keys, err := m.listObjects(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("list objects of %s: %w", table.TablePath, err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("table %s not found in bucket %s", table.TablePath, m.bucket)
	}
	return newSession(table, columns, format)
}

// Read 实现 RowSource
func (m *Minio) Read(ctx context.Context, session *Session) (RecordIterator, error) {
	if err := checkSession(session); err != nil {
		return nil, err
	}
	keys, err := m.listObjects(ctx, session.Table)
	if err != nil {
		return nil, fmt.Errorf("list objects of %s: %w", session.Table.TablePath, err)
	}
	return &ndjsonIterator{src: m, keys: keys, columns: session.Columns}, nil
}

type ndjsonIterator struct {
	src     *Minio
	keys    []string
	columns []string

	obj     *minio.Object
	scanner *bufio.Scanner
	current string
}

func (it *ndjsonIterator) open(ctx context.Context) error {
	key := it.keys[0]
	it.keys = it.keys[1:]
	obj, err := it.src.client.GetObject(ctx, it.src.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("get object %s: %w", key, err)
	}
	sc := bufio.NewScanner(obj)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	it.obj = obj
	it.scanner = sc
	it.current = key
	return nil
}

func (it *ndjsonIterator) closeObject() {
	if it.obj != nil {
		_ = it.obj.Close()
	}
	it.obj = nil
	it.scanner = nil
}

func (it *ndjsonIterator) Next(ctx context.Context) (Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if it.scanner == nil {
			if len(it.keys) == 0 {
				return nil, io.EOF
			}
			if err := it.open(ctx); err != nil {
				return nil, err
			}
		}
		if !it.scanner.Scan() {
			err := it.scanner.Err()
			key := it.current
			it.closeObject()
			if err != nil {
				return nil, fmt.Errorf("read object %s: %w", key, err)
			}
			continue
		}
		line := bytes.TrimSpace(it.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode row in %s: %w", it.current, err)
		}
		// NDJSON 行常省略空字段
		return projectFill(rec, it.columns), nil
	}
}

func (it *ndjsonIterator) Close() error {
	it.closeObject()
	it.keys = nil
	return nil
}
