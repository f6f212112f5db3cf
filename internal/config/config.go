package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Device   DeviceConfig   `mapstructure:"device"`
	Session  SessionConfig  `mapstructure:"session"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// SimulateEnable 启动内置交换机模拟器并将 device 指向它
	SimulateEnable bool   `mapstructure:"simulate_enable"`
	SimulateListen string `mapstructure:"simulate_listen"`
}

// DeviceConfig 受控交换机
type DeviceConfig struct {
	// Key 队列与快照在外部存储中的设备键
	Key            string `mapstructure:"key"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	EnablePassword string `mapstructure:"enable_password"`
	Platform       string `mapstructure:"platform"`
	// SaveAfterApply 变更成功后执行 write memory
	SaveAfterApply bool `mapstructure:"save_after_apply"`
	BulkBatchSize  int  `mapstructure:"bulk_batch_size"`
}

// SessionConfig 会话与命令执行参数
type SessionConfig struct {
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout"`
	QuietWindow       time.Duration `mapstructure:"quiet_window"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	LineEnding        string        `mapstructure:"line_ending"`
	ProbeCommand      string        `mapstructure:"probe_command"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`
}

// RefreshConfig 状态刷新轮询
type RefreshConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	HistoryLimit int           `mapstructure:"history_limit"`
}

// QueueConfig 远程命令队列消费
type QueueConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	Attempts      int           `mapstructure:"attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	PortSeparator string        `mapstructure:"port_separator"`
}

// StoreConfig 队列/日志/快照存储后端：sqlite | redis | memory
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
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
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	// LogLimit 每台设备保留的队列日志条数
	LogLimit int64 `mapstructure:"log_limit"`
}

// ArchiveConfig 变化快照归档：local | minio
type ArchiveConfig struct {
	Enabled bool               `mapstructure:"enabled"`
	Backend string             `mapstructure:"backend"`
	Prefix  string             `mapstructure:"prefix"`
	Local   LocalArchiveConfig `mapstructure:"local"`
	Minio   MinioConfig        `mapstructure:"minio"`
}

// LocalArchiveConfig 本地归档目录
type LocalArchiveConfig struct {
	BaseDir        string `mapstructure:"base_dir"`
	MkdirIfMissing bool   `mapstructure:"mkdir_if_missing"`
}

// MinioConfig 对象存储配置
type MinioConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
}

// MetricsConfig Prometheus 指标
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
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

var (
	globalMu     sync.RWMutex
	globalConfig *Config
)

// Load 加载配置；configPath 为空时在 ./configs 等目录查找 config.yaml
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	// 环境变量覆盖：SWAPP_DEVICE_HOST 等
	v.SetEnvPrefix("SWAPP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = replaceEnvVars(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	globalMu.Lock()
	globalConfig = &config
	globalMu.Unlock()
	return &config, nil
}

// setDefaults 设置默认配置
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 18080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.simulate_enable", false)
	v.SetDefault("server.simulate_listen", "127.0.0.1:10022")

	v.SetDefault("device.key", "switch-1")
	v.SetDefault("device.port", 22)
	v.SetDefault("device.platform", "cisco_ios")
	v.SetDefault("device.save_after_apply", false)
	v.SetDefault("device.bulk_batch_size", 12)

	v.SetDefault("session.connect_timeout", 15*time.Second)
	v.SetDefault("session.command_timeout", 10*time.Second)
	v.SetDefault("session.quiet_window", 2*time.Second)
	v.SetDefault("session.poll_interval", 25*time.Millisecond)
	v.SetDefault("session.line_ending", "\n")
	v.SetDefault("session.reconnect_attempts", 3)
	v.SetDefault("session.reconnect_delay", 2*time.Second)
	v.SetDefault("session.keep_alive_interval", 30*time.Second)

	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.interval", 5*time.Second)
	v.SetDefault("refresh.history_limit", 100)

	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.interval", 5*time.Second)
	v.SetDefault("queue.attempts", 5)
	v.SetDefault("queue.retry_delay", 2*time.Second)
	v.SetDefault("queue.port_separator", "_")

	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("database.sqlite.path", "./data/swapp.db")
	v.SetDefault("database.sqlite.max_idle_conns", 2)
	v.SetDefault("database.sqlite.max_open_conns", 4)
	v.SetDefault("database.sqlite.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.key_prefix", "swapp")
	v.SetDefault("redis.log_limit", 500)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.backend", "local")
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("archive.local.base_dir", "./data/archive")
	v.SetDefault("archive.local.mkdir_if_missing", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./logs/swapp.log")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
}

// Validate 校验关键参数
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Device.Key) == "" {
		return fmt.Errorf("device.key must not be empty")
	}
	if c.Session.ReconnectAttempts < 1 {
		return fmt.Errorf("session.reconnect_attempts must be >= 1")
	}
	if c.Queue.Attempts < 1 {
		return fmt.Errorf("queue.attempts must be >= 1")
	}
	switch c.Store.Backend {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("unsupported store.backend %q", c.Store.Backend)
	}
	switch c.Archive.Backend {
	case "local", "minio":
	default:
		return fmt.Errorf("unsupported archive.backend %q", c.Archive.Backend)
	}
	return nil
}

// Get 获取全局配置
func Get() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalConfig
}

// replaceEnvVars 展开 ${VAR} 形式的敏感字段
func replaceEnvVars(config Config) Config {
	config.Device.Password = expandEnv(config.Device.Password)
	config.Device.EnablePassword = expandEnv(config.Device.EnablePassword)
	config.Redis.Password = expandEnv(config.Redis.Password)
	config.Archive.Minio.SecretKey = expandEnv(config.Archive.Minio.SecretKey)
	return config
}

func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		if value := os.Getenv(strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")); value != "" {
			return value
		}
	}
	return s
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
