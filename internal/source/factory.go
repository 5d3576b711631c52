package source

import (
	"fmt"

	minio "github.com/minio/minio-go/v7"
	"gorm.io/gorm"

	"github.com/dqmpipeline/dqm/internal/auth"
	"github.com/dqmpipeline/dqm/internal/config"
	"github.com/dqmpipeline/dqm/pkg/logger"
)

// 行源后端
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendMinio    = "minio"
	BackendPostgres = "postgres"
)

// Deps 启动时建立的后端连接；未使用的后端可为 nil
type Deps struct {
	Memory   *Memory
	DB       *gorm.DB
	Minio    *minio.Client
	Postgres *Postgres
}

// NewRowSource 按 dqm.source_backend 选择行源
func NewRowSource(cfg *config.Config, deps Deps, tok *auth.Token) (RowSource, error) {
	backend := cfg.DQM.SourceBackend
	if tok.Impersonated() {
		logger.Debug("opening row source", "backend", backend, "principal", tok.Principal)
	}
	switch backend {
	case BackendMemory:
		if deps.Memory == nil {
			return nil, fmt.Errorf("memory row source not configured")
		}
		return deps.Memory, nil
	case BackendSQLite, "":
		if deps.DB == nil {
			return nil, fmt.Errorf("sqlite row source not configured")
		}
		return NewSQLite(deps.DB), nil
	case BackendMinio:
		if deps.Minio == nil {
			return nil, fmt.Errorf("minio row source not configured")
		}
		return NewMinio(deps.Minio, cfg.Storage.Minio.Bucket, cfg.DQM.SourcePrefix), nil
	case BackendPostgres:
		if deps.Postgres == nil {
			return nil, fmt.Errorf("postgres row source not configured")
		}
		return deps.Postgres, nil
	}
	return nil, fmt.Errorf("unknown source backend %q", backend)
}
