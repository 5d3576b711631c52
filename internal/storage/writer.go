// Package storage 对象写入：MinIO 优先，失败时回退到本地目录。
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dqmpipeline/dqm/pkg/logger"
)

// ErrFellBack 主存储写入失败但已成功写入本地；对象有效，错误仅作预警
var ErrFellBack = errors.New("object written to local fallback")

// Writer 对象写入器；key 为 POSIX 风格的相对路径
type Writer interface {
	Write(ctx context.Context, key string, data []byte, contentType string) (StoredObject, error)
}

// StoredObject 已写入对象的信息
type StoredObject struct {
	URI         string `json:"uri"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	ContentType string `json:"content_type"`
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// DelegatingWriter 优先写入 MinIO，失败或未初始化时回退到本地
type DelegatingWriter struct {
	minio *MinioWriter
	local *LocalWriter
}

// NewDelegatingWriter minio 可为 nil
func NewDelegatingWriter(minio *MinioWriter, local *LocalWriter) *DelegatingWriter {
	return &DelegatingWriter{minio: minio, local: local}
}

// Write 实现 Writer
func (w *DelegatingWriter) Write(ctx context.Context, key string, data []byte, contentType string) (StoredObject, error) {
	if w.minio == nil {
		logger.Warn("MinIO client not initialized; falling back to local", "key", key)
		obj, lerr := w.local.Write(ctx, key, data, contentType)
		if lerr != nil {
			return StoredObject{}, fmt.Errorf("minio client not initialized; local fallback failed: %w", lerr)
		}
		return obj, fmt.Errorf("%w: minio client not initialized", ErrFellBack)
	}
	obj, err := w.minio.Write(ctx, key, data, contentType)
	if err != nil {
		logger.Warn("MinIO write failed; falling back to local", "key", key, "error", err)
		objLocal, lerr := w.local.Write(ctx, key, data, contentType)
		if lerr != nil {
			return StoredObject{}, fmt.Errorf("minio write failed: %v; local fallback failed: %w", err, lerr)
		}
		return objLocal, fmt.Errorf("%w: minio write failed: %v", ErrFellBack, err)
	}
	return obj, nil
}

// LocalWriter 本地文件写入
type LocalWriter struct {
	BaseDir string
}

// Write 实现 Writer
func (w *LocalWriter) Write(ctx context.Context, key string, data []byte, contentType string) (StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return StoredObject{}, err
	}
	base := strings.TrimSpace(w.BaseDir)
	if base == "" {
		base = "./data/dqm-logs"
	}
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if clean == "." || strings.HasPrefix(clean, "..") {
		return StoredObject{}, fmt.Errorf("invalid object key %q", key)
	}
	fullPath := filepath.Join(base, clean)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return StoredObject{}, fmt.Errorf("failed to create dir: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return StoredObject{}, fmt.Errorf("failed to write file: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return StoredObject{
		URI:         "file://" + fullPath,
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		ContentType: contentType,
	}, nil
}
