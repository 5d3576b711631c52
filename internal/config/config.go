package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
	DQM      DQMConfig      `mapstructure:"dqm"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Path            string        `mapstructure:"path"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// LogLevel gorm 日志级别：silent/error/warn/info
	LogLevel string `mapstructure:"log_level"`
}

// StorageConfig 外部存储配置
type StorageConfig struct {
	Minio    MinioConfig    `mapstructure:"minio"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// MinioConfig 对象存储配置（行数据源与日志对象）
type MinioConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
}

// Endpoint host:port
func (m MinioConfig) Endpoint() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// PostgresConfig PostgreSQL 行数据源配置
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN 连接串
func (p PostgresConfig) DSN() string {
	mode := p.SSLMode
	if mode == "" {
		mode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.Username, p.Password, p.Host, p.Port, p.Database, mode)
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DQMConfig 数据质量监控配置
type DQMConfig struct {
	// VersionID 写入每条日志的版本号
	VersionID string `mapstructure:"version_id"`
	// FailOnEmptySource 数据源零行时是否判定为失败
	FailOnEmptySource bool `mapstructure:"fail_on_empty_source"`
	// Concurrency 多列处理时的并发列数
	Concurrency int `mapstructure:"concurrency"`
	// PrintBatchSize 控制台日志批量大小
	PrintBatchSize int `mapstructure:"print_batch_size"`
	// TableBatchSize 日志表批量大小
	TableBatchSize int `mapstructure:"table_batch_size"`
	// UnwrapField 嵌套路径解包字段名；为空表示不解包
	UnwrapField string `mapstructure:"unwrap_field"`
	// SourceBackend 行数据源：memory | sqlite | minio | postgres
	SourceBackend string `mapstructure:"source_backend"`
	// LogBackend 持久日志写入端：table | object
	LogBackend string `mapstructure:"log_backend"`
	// SourcePrefix MinIO 行数据对象前缀
	SourcePrefix string `mapstructure:"source_prefix"`
	// LogPrefix MinIO 日志对象前缀
	LogPrefix string `mapstructure:"log_prefix"`
	// LocalLogDir 对象日志写入失败时的本地回退目录
	LocalLogDir string `mapstructure:"local_log_dir"`
	// PersistRuns 是否保存运行记录
	PersistRuns bool `mapstructure:"persist_runs"`
}

var globalConfig *Config

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v := viper.GetViper()
	v.SetConfigType("yaml")

	// 设置默认值
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	// 设置环境变量前缀
	v.SetEnvPrefix("DQM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return cfg, nil
}

// Decode 从 viper 实例解析配置（热加载时复用）
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg = replaceEnvVars(cfg)
	normalize(&cfg)
	return &cfg, nil
}

// Default 仅包含默认值的配置（CLI 与测试使用）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := Decode(v)
	if err != nil {
		// 默认值总能解析
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	// 单列扫描可能持续较长时间
	v.SetDefault("server.write_timeout", 30*time.Minute)

	v.SetDefault("database.sqlite.path", "./data/dqm.db")
	v.SetDefault("database.sqlite.conn_max_lifetime", time.Hour)
	v.SetDefault("database.sqlite.log_level", "warn")

	v.SetDefault("storage.minio.port", 9000)
	v.SetDefault("storage.minio.bucket", "dqm")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.sslmode", "disable")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./logs/dqm.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("dqm.version_id", "dev")
	v.SetDefault("dqm.fail_on_empty_source", true)
	v.SetDefault("dqm.concurrency", 4)
	v.SetDefault("dqm.print_batch_size", 10)
	v.SetDefault("dqm.table_batch_size", 1000)
	v.SetDefault("dqm.unwrap_field", "value")
	v.SetDefault("dqm.source_backend", "sqlite")
	v.SetDefault("dqm.log_backend", "table")
	v.SetDefault("dqm.source_prefix", "tables")
	v.SetDefault("dqm.log_prefix", "dqm-logs")
	v.SetDefault("dqm.local_log_dir", "./data/dqm-logs")
	v.SetDefault("dqm.persist_runs", true)
}

// normalize 修正非法数值
func normalize(cfg *Config) {
	if cfg.DQM.Concurrency < 1 {
		cfg.DQM.Concurrency = 1
	}
	if cfg.DQM.PrintBatchSize < 1 {
		cfg.DQM.PrintBatchSize = 10
	}
	if cfg.DQM.TableBatchSize < 1 {
		cfg.DQM.TableBatchSize = 1000
	}
	cfg.DQM.SourceBackend = strings.ToLower(strings.TrimSpace(cfg.DQM.SourceBackend))
	cfg.DQM.LogBackend = strings.ToLower(strings.TrimSpace(cfg.DQM.LogBackend))
}

// Get 获取全局配置
func Get() *Config {
	return globalConfig
}

// Set 替换全局配置（热加载）
func Set(cfg *Config) {
	globalConfig = cfg
}

// replaceEnvVars 替换 ${VAR} 形式的取值
func replaceEnvVars(cfg Config) Config {
	cfg.DQM.VersionID = expandEnv(cfg.DQM.VersionID)
	cfg.Storage.Minio.AccessKey = expandEnv(cfg.Storage.Minio.AccessKey)
	cfg.Storage.Minio.SecretKey = expandEnv(cfg.Storage.Minio.SecretKey)
	cfg.Storage.Postgres.Password = expandEnv(cfg.Storage.Postgres.Password)
	return cfg
}

func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		envVar := strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
	}
	return s
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
