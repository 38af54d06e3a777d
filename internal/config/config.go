package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Capture    CaptureConfig    `mapstructure:"capture"`
	Store      StoreConfig      `mapstructure:"store"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Replay     ReplayConfig     `mapstructure:"replay"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and friends.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`
}

type CaptureConfig struct {
	Path         string `mapstructure:"path"`
	AckStatus    int    `mapstructure:"ack_status"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

type StoreConfig struct {
	Driver        string        `mapstructure:"driver"`
	DSN           string        `mapstructure:"dsn"`
	Fsync         string        `mapstructure:"fsync"`
	FsyncInterval time.Duration `mapstructure:"fsync_interval"`
}

type PaginationConfig struct {
	DefaultSize int `mapstructure:"default_size"`
	MaxSize     int `mapstructure:"max_size"`
}

type AdminConfig struct {
	AllowReset bool `mapstructure:"allow_reset"`
}

type ReplayConfig struct {
	Target  string        `mapstructure:"target"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from path (optional), HOOKSCOPE_* variables and the
// legacy DATABASE_PATH and PORT variables, in increasing precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("hookscope")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := v.BindEnv("store.dsn", "HOOKSCOPE_STORE_DSN", "DATABASE_PATH"); err != nil {
		return Config{}, err
	}
	if err := v.BindEnv("port", "PORT"); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	// PORT only applies when no address was configured explicitly.
	if port := v.GetString("port"); port != "" && !v.InConfig("server.addr") && os.Getenv("HOOKSCOPE_SERVER_ADDR") == "" {
		cfg.Server.Addr = ":" + port
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.trust_proxy_headers", false)

	v.SetDefault("capture.path", "/webhook")
	v.SetDefault("capture.ack_status", 200)
	v.SetDefault("capture.max_body_bytes", 10<<20)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "webhook.db")
	v.SetDefault("store.fsync", "always")
	v.SetDefault("store.fsync_interval", 5*time.Millisecond)

	v.SetDefault("pagination.default_size", 20)
	v.SetDefault("pagination.max_size", 100)

	v.SetDefault("admin.allow_reset", false)

	v.SetDefault("replay.target", "")
	v.SetDefault("replay.timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres", "pebble":
	default:
		return fmt.Errorf("store.driver must be sqlite, postgres or pebble, got %q", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required")
	}
	if !strings.HasPrefix(c.Capture.Path, "/") {
		return fmt.Errorf("capture.path must start with /, got %q", c.Capture.Path)
	}
	if c.Capture.AckStatus < 200 || c.Capture.AckStatus > 299 {
		return fmt.Errorf("capture.ack_status must be 2xx, got %d", c.Capture.AckStatus)
	}
	if c.Capture.MaxBodyBytes <= 0 {
		return fmt.Errorf("capture.max_body_bytes must be positive")
	}
	if c.Pagination.DefaultSize <= 0 || c.Pagination.MaxSize <= 0 {
		return fmt.Errorf("pagination sizes must be positive")
	}
	if c.Pagination.DefaultSize > c.Pagination.MaxSize {
		return fmt.Errorf("pagination.default_size (%d) exceeds pagination.max_size (%d)", c.Pagination.DefaultSize, c.Pagination.MaxSize)
	}
	return nil
}
