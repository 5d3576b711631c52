package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/dqmpipeline/dqm/api/handler"
	"github.com/dqmpipeline/dqm/api/router"
	"github.com/dqmpipeline/dqm/internal/config"
	"github.com/dqmpipeline/dqm/internal/database"
	"github.com/dqmpipeline/dqm/internal/service"
	"github.com/dqmpipeline/dqm/internal/source"
	"github.com/dqmpipeline/dqm/internal/storage"
	"github.com/dqmpipeline/dqm/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logConfig(cfg)); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting DQM server",
		"version", cfg.DQM.VersionID,
		"source_backend", cfg.DQM.SourceBackend,
		"log_backend", cfg.DQM.LogBackend,
		"concurrency", cfg.DQM.Concurrency)

	if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
		logger.Fatal("Failed to initialize database", "error", err)
	}
	defer database.Close()
	db := database.GetDB()

	ctx := context.Background()
	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize backends", "error", err)
	}
	defer cleanup()

	columnService := service.NewColumnService(cfg, deps)
	r := router.SetupRouter(
		handler.NewColumnHandler(columnService),
		handler.NewHealthHandler(db, cfg),
		handler.NewLogsHandler(cfg.DQM.LocalLogDir),
	)

	server := &http.Server{
		Addr:           cfg.GetServerAddr(),
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		logger.Info("Server starting", "addr", server.Addr, "mode", cfg.Server.Mode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// 配置热更新：仅日志配置即时生效，后端相关变更需重启
	viper.OnConfigChange(func(ev fsnotify.Event) {
		if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
			return
		}
		newCfg, err := config.Decode(viper.GetViper())
		if err != nil {
			logger.Warn("Config reload failed", "error", err)
			return
		}
		config.Set(newCfg)
		if err := logger.Init(logConfig(newCfg)); err != nil {
			logger.Warn("Logger reload failed", "error", err)
			return
		}
		if newCfg.DQM.SourceBackend != cfg.DQM.SourceBackend || newCfg.DQM.LogBackend != cfg.DQM.LogBackend {
			logger.Warn("Backend change requires restart",
				"source_backend", newCfg.DQM.SourceBackend,
				"log_backend", newCfg.DQM.LogBackend)
		}
		logger.Info("Config reloaded", "file", ev.Name)
	})
	viper.WatchConfig()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	} else {
		logger.Info("Server shutdown complete")
	}
}

func logConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
}

// buildDeps 按配置装配行数据源与日志后端
func buildDeps(ctx context.Context, cfg *config.Config) (service.Deps, func(), error) {
	db := database.GetDB()
	deps := service.Deps{
		Sources:    source.Deps{DB: db},
		TableAdmin: database.NewLogTableAdmin(db),
	}
	if cfg.DQM.PersistRuns {
		deps.Runs = database.NewRunStore(db)
	}
	cleanup := func() {}

	needMinio := cfg.DQM.SourceBackend == source.BackendMinio || cfg.DQM.LogBackend == service.LogBackendObject
	var minioWriter *storage.MinioWriter
	if needMinio && cfg.Storage.Minio.Host != "" {
		client, err := storage.NewMinioClient(cfg.Storage.Minio)
		if err != nil {
			return deps, cleanup, fmt.Errorf("minio client: %w", err)
		}
		deps.Sources.Minio = client
		minioWriter = storage.NewMinioWriter(client, cfg.Storage.Minio, cfg.DQM.LogPrefix)
		logger.Info("MinIO enabled", "endpoint", cfg.Storage.Minio.Endpoint(), "bucket", cfg.Storage.Minio.Bucket)
	} else if needMinio {
		logger.Warn("MinIO host not configured, object logs fall back to local directory", "dir", cfg.DQM.LocalLogDir)
	}
	deps.ObjectWriter = storage.NewDelegatingWriter(minioWriter, &storage.LocalWriter{BaseDir: cfg.DQM.LocalLogDir})

	if cfg.DQM.SourceBackend == source.BackendPostgres {
		pg, err := source.NewPostgres(ctx, cfg.Storage.Postgres.DSN())
		if err != nil {
			return deps, cleanup, fmt.Errorf("postgres: %w", err)
		}
		deps.Sources.Postgres = pg
		cleanup = pg.Close
	}
	return deps, cleanup, nil
}
