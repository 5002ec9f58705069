// Package config 加载 specan 工具与驱动的 TOML 配置。
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvVar 是指定配置文件路径的环境变量。
const EnvVar = "GOSPECAN_CONFIG"

// Config 是完整配置。
type Config struct {
	Instrument InstrumentConfig `toml:"instrument"`
	Driver     DriverConfig     `toml:"driver"`
	Trace      TraceConfig      `toml:"trace"`
	Log        LogConfig        `toml:"log"`
}

// InstrumentConfig 描述仪器连接。
type InstrumentConfig struct {
	Address            string   `toml:"address"`     // host[:port]
	SubAddress         string   `toml:"sub_address"` // 例如 hislip0
	Timeout            Duration `toml:"timeout"`
	LockTimeout        Duration `toml:"lock_timeout"`
	TLS                bool     `toml:"tls"`
	InsecureSkipVerify bool     `toml:"insecure_skip_verify"`
}

// DriverConfig 控制驱动行为。
type DriverConfig struct {
	Catalog         string `toml:"catalog"` // 空表示内置目录
	SkipStatusCheck bool   `toml:"skip_status_check"`
	FetchCapacity   int    `toml:"fetch_capacity"`
	ErrorQueueLimit int    `toml:"error_queue_limit"`
}

// TraceConfig 控制交换跟踪。
type TraceConfig struct {
	Path    string `toml:"path"` // CBOR 跟踪文件，空表示不写文件
	Console bool   `toml:"console"`
}

// LogConfig 控制 slog 输出。
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

// Duration 包装 time.Duration 以支持 TOML 字符串。
type Duration struct {
	time.Duration
}

// UnmarshalText 解析时长字符串。
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText 格式化时长。
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default 返回只含默认值的配置。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load 从 TOML 文件加载配置。
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.expandEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse 从 TOML 文本解析配置。
func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.expandEnvVars()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv 从 GOSPECAN_CONFIG 或默认位置加载配置。
// 找不到任何文件时返回默认配置。
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		for _, p := range defaultPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

func defaultPaths() []string {
	paths := []string{"./gospecan.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "gospecan", "config.toml"))
	}
	return paths
}

func (c *Config) applyDefaults() {
	if c.Instrument.SubAddress == "" {
		c.Instrument.SubAddress = "hislip0"
	}
	if c.Instrument.Timeout.Duration == 0 {
		c.Instrument.Timeout.Duration = 5 * time.Second
	}
	if c.Instrument.LockTimeout.Duration == 0 {
		c.Instrument.LockTimeout.Duration = 10 * time.Second
	}

	if c.Driver.FetchCapacity == 0 {
		c.Driver.FetchCapacity = 1024
	}
	if c.Driver.ErrorQueueLimit == 0 {
		c.Driver.ErrorQueueLimit = 32
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) expandEnvVars() {
	c.Instrument.Address = os.ExpandEnv(c.Instrument.Address)
	c.Driver.Catalog = os.ExpandEnv(c.Driver.Catalog)
	c.Trace.Path = os.ExpandEnv(c.Trace.Path)
}

// Validate 检查配置取值。
func (c *Config) Validate() error {
	if c.Instrument.Timeout.Duration < 0 {
		return fmt.Errorf("instrument.timeout must not be negative")
	}
	if c.Instrument.LockTimeout.Duration < 0 {
		return fmt.Errorf("instrument.lock_timeout must not be negative")
	}
	if c.Driver.FetchCapacity < 0 {
		return fmt.Errorf("driver.fetch_capacity must not be negative")
	}
	if c.Driver.ErrorQueueLimit < 0 {
		return fmt.Errorf("driver.error_queue_limit must not be negative")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// NewLogger 依据日志配置创建 slog.Logger。
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := parseLevel(l.Level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
