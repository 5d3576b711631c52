package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/dqmpipeline/dqm/internal/config"
	"github.com/dqmpipeline/dqm/internal/database"
	"github.com/dqmpipeline/dqm/internal/model"
	"github.com/dqmpipeline/dqm/internal/service"
	"github.com/dqmpipeline/dqm/internal/source"
	"github.com/dqmpipeline/dqm/pkg/logger"
)

// 退出码
const (
	exitOK          = 0
	exitFailed      = 1
	exitBadConfig   = 2
	exitInvalidArgs = 64
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run 本地执行一次列检查：日志消息逐行输出到 stdout，摘要输出到 stderr
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("dqm-cli", flag.ContinueOnError)
	fs.SetOutput(stderr)
	requestPath := fs.String("request", "", "请求文件（YAML 或 JSON）")
	configPath := fs.String("config", "", "配置文件路径，缺省时使用默认配置")
	fixturePath := fs.String("fixture", "", "NDJSON 行数据文件，指定时使用内存行源")
	logLevel := fs.String("log-level", "warn", "日志级别")
	if err := fs.Parse(args); err != nil {
		return exitInvalidArgs
	}
	if *requestPath == "" {
		fmt.Fprintln(stderr, "missing -request")
		fs.Usage()
		return exitInvalidArgs
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "load config: %v\n", err)
			return exitBadConfig
		}
		cfg = loaded
	}
	if err := logger.Init(logger.Config{Level: *logLevel, Format: "text", Output: "stderr"}); err != nil {
		fmt.Fprintf(stderr, "init logger: %v\n", err)
		return exitFailed
	}

	single, many, err := loadRequest(*requestPath)
	if err != nil {
		fmt.Fprintf(stderr, "load request: %v\n", err)
		return exitBadConfig
	}
	// 本地执行时日志总是打印到控制台
	var table model.TableMetadata
	if single != nil {
		single.LogTable = nil
		table = single.SourceTable
	} else {
		many.LogTable = nil
		table = many.SourceTable
	}
	cfg.DQM.PersistRuns = false

	deps := service.Deps{PrintOut: stdout}
	if *fixturePath != "" {
		records, err := loadFixture(*fixturePath)
		if err != nil {
			fmt.Fprintf(stderr, "load fixture: %v\n", err)
			return exitBadConfig
		}
		mem := source.NewMemory()
		mem.Put(table, records)
		deps.Sources.Memory = mem
		cfg.DQM.SourceBackend = source.BackendMemory
	} else {
		db, err := database.Open(cfg.Database.SQLite)
		if err != nil {
			fmt.Fprintf(stderr, "open database: %v\n", err)
			return exitFailed
		}
		defer func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}()
		deps.Sources.DB = db
	}

	svc := service.NewColumnService(cfg, deps)
	var out interface{}
	if single != nil {
		resp, perr := svc.ProcessColumn(ctx, single)
		if resp != nil {
			out = resp
		}
		err = perr
	} else {
		resp, perr := svc.ProcessColumns(ctx, many)
		if resp != nil {
			out = resp
		}
		err = perr
	}
	if out != nil {
		enc := json.NewEncoder(stderr)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	}
	if err != nil {
		fmt.Fprintf(stderr, "dqm: %v\n", err)
		if errors.Is(err, model.ErrMalformedConfig) {
			return exitBadConfig
		}
		return exitFailed
	}
	return exitOK
}

// loadRequest 读取请求文件（JSON 亦可按 YAML 解析）；含 column_configs 时为多列请求
func loadRequest(path string) (*service.ProcessColumnRequest, *service.ProcessColumnsRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var many service.ProcessColumnsRequest
	if err := yaml.Unmarshal(data, &many); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrMalformedConfig, err)
	}
	if len(many.ColumnConfigs) > 0 {
		return nil, &many, nil
	}
	var single service.ProcessColumnRequest
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrMalformedConfig, err)
	}
	return &single, nil, nil
}

// loadFixture 读取 NDJSON，每行一条记录；数字保留为 json.Number
func loadFixture(path string) ([]source.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []source.Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		var rec source.Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, sc.Err()
}
