package storage

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dqmpipeline/dqm/internal/config"
	"github.com/dqmpipeline/dqm/pkg/logger"
)

// NewMinioClient 按配置创建 MinIO 客户端（包含合理的超时设置）
func NewMinioClient(cfg config.MinioConfig) (*minio.Client, error) {
	if strings.TrimSpace(cfg.Host) == "" || cfg.Port <= 0 {
		return nil, fmt.Errorf("minio configuration incomplete; host/port missing")
	}
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 5 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
	}
	client, err := minio.New(cfg.Endpoint(), &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.Secure,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client initialization failed: %w", err)
	}
	return client, nil
}

// MinioWriter MinIO 对象写入
type MinioWriter struct {
	client   *minio.Client
	bucket   string
	endpoint string
	prefix   string

	mu            sync.Mutex
	bucketEnsured bool
	// attempts 每次写入尝试的超时，失败后按相同时长退避
	attempts []time.Duration
}

// NewMinioWriter 创建写入器；prefix 拼接在每个 key 之前
func NewMinioWriter(client *minio.Client, cfg config.MinioConfig, prefix string) *MinioWriter {
	return &MinioWriter{
		client:   client,
		bucket:   strings.TrimSpace(cfg.Bucket),
		endpoint: cfg.Endpoint(),
		prefix:   strings.Trim(prefix, "/"),
		attempts: []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
	}
}

// Write 实现 Writer
func (w *MinioWriter) Write(ctx context.Context, key string, data []byte, contentType string) (StoredObject, error) {
	if w == nil || w.client == nil {
		return StoredObject{}, fmt.Errorf("minio client not initialized")
	}
	if w.bucket == "" {
		return StoredObject{}, fmt.Errorf("minio bucket not configured")
	}
	objectName := strings.TrimPrefix(key, "/")
	if w.prefix != "" {
		objectName = path.Join(w.prefix, objectName)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// 写入前快速连通性探测
	if err := w.fastConnectivityCheck(ctx); err != nil {
		return StoredObject{}, fmt.Errorf("minio connectivity failed to %s: %w", w.endpoint, err)
	}
	if err := w.ensureBucketOnce(ctx); err != nil {
		return StoredObject{}, fmt.Errorf("minio ensure bucket failed: %w", err)
	}

	var lastErr error
	for i, d := range w.attempts {
		attemptCtx, cancel := attemptContext(ctx, d)
		_, err := w.client.PutObject(attemptCtx, w.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
		cancel()
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if i < len(w.attempts)-1 {
			time.Sleep(d)
		}
	}
	if lastErr != nil {
		return StoredObject{}, fmt.Errorf("minio put object failed after retries: %w", lastErr)
	}

	return StoredObject{
		URI:         "minio://" + path.Join(w.bucket, objectName),
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		ContentType: contentType,
	}, nil
}

// fastConnectivityCheck 使用 TCP 直连做快速连通性校验
func (w *MinioWriter) fastConnectivityCheck(parent context.Context) error {
	d := &net.Dialer{Timeout: 3 * time.Second}
	conn, err := d.DialContext(parent, "tcp", w.endpoint)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

func (w *MinioWriter) ensureBucketOnce(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.bucketEnsured {
		return nil
	}
	if err := EnsureBucket(ctx, w.client, w.bucket, 3); err != nil {
		return err
	}
	w.bucketEnsured = true
	return nil
}

// EnsureBucket 校验并创建 bucket，支持有限重试
func EnsureBucket(parent context.Context, client *minio.Client, bucket string, retries int) error {
	var lastErr error
	for i := 0; i <= retries; i++ {
		ctx, cancel := attemptContext(parent, 10*time.Second)
		exists, err := client.BucketExists(ctx, bucket)
		cancel()
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}
		if exists {
			return nil
		}
		ctx2, cancel2 := attemptContext(parent, 10*time.Second)
		mkErr := client.MakeBucket(ctx2, bucket, minio.MakeBucketOptions{})
		cancel2()
		if mkErr != nil {
			lastErr = mkErr
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}
		logger.Info("MinIO bucket created", "bucket", bucket)
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("bucket ensure failed for %s", bucket)
}

// attemptContext 构造限时上下文，尊重父上下文的剩余截止时间
func attemptContext(parent context.Context, prefer time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := parent.Deadline(); ok {
		remain := time.Until(deadline)
		if remain > time.Second && prefer < remain {
			return context.WithTimeout(parent, prefer)
		}
		if remain > time.Second {
			return context.WithTimeout(parent, remain-time.Second)
		}
		return context.WithTimeout(parent, time.Second)
	}
	return context.WithTimeout(parent, prefer)
}
