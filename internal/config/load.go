package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts "5s"-style strings or an integer number of nanoseconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	s := strings.TrimSpace(node.Value)
	if s == "" || s == "null" || s == "~" {
		d.Duration = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		d.Duration = time.Duration(n)
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration must be a string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			CORSOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5173",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:5173",
			},
		},
		Upstream: UpstreamConfig{
			BaseURL:    "http://localhost:9000",
			Timeout:    Duration{Duration: 30 * time.Second},
			MaxRetries: 2,
		},
		Stream: StreamConfig{
			CompletionGrace: Duration{Duration: 1500 * time.Millisecond},
			SideEffectDelay: Duration{Duration: 1 * time.Second},
			IdleTimeout:     Duration{Duration: 5 * time.Minute},
			ReplaceWait:     Duration{Duration: 3 * time.Second},
		},
		Report: ReportConfig{
			Format:    "markdown",
			MinLength: 50,
			Sink:      "local",
			Dir:       "reports",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "taskstream.db",
		},
		Redis: RedisConfig{
			Channel: "taskstream-events",
		},
	}
}

// Load reads the YAML config (TASKSTREAM_CONFIG_PATH or ./config/config.yaml when present),
// applies env overrides and validates the result.
func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("TASKSTREAM_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "config.yaml")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}
	if cfgPath != "" {
		if err := loadFile(cfgPath, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	// Decoding over the defaults keeps every key the file omits.
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Env, "LOG_MODE")
	set(&cfg.HTTP.Addr, "HTTP_ADDR")
	set(&cfg.Auth.JWTSecret, "JWT_SECRET_KEY")
	set(&cfg.Upstream.BaseURL, "UPSTREAM_BASE_URL")
	set(&cfg.Upstream.APIKey, "UPSTREAM_API_KEY")
	set(&cfg.Database.Driver, "DATABASE_DRIVER")
	set(&cfg.Database.DSN, "DATABASE_DSN")
	set(&cfg.Redis.Addr, "REDIS_ADDR")
	set(&cfg.Redis.Channel, "REDIS_CHANNEL")
	set(&cfg.Report.Sink, "REPORT_SINK")
	set(&cfg.Report.Dir, "REPORT_DIR")
	set(&cfg.Report.Bucket, "REPORT_BUCKET")
	set(&cfg.Report.Format, "REPORT_FORMAT")
}

func normalize(cfg *Config) error {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "development"
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":8080"
	}
	cfg.Upstream.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Upstream.BaseURL), "/")
	if cfg.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required")
	}
	if cfg.Upstream.MaxRetries < 0 {
		return errors.New("upstream.max_retries must be >= 0")
	}
	if cfg.Stream.CompletionGrace.Duration < 0 || cfg.Stream.SideEffectDelay.Duration < 0 ||
		cfg.Stream.IdleTimeout.Duration < 0 || cfg.Stream.ReplaceWait.Duration < 0 {
		return errors.New("stream durations must be >= 0")
	}

	cfg.Report.Format = strings.ToLower(strings.TrimSpace(cfg.Report.Format))
	switch cfg.Report.Format {
	case "", "md", "markdown":
		cfg.Report.Format = "markdown"
	case "json", "yaml":
	default:
		return fmt.Errorf("invalid report.format=%q", cfg.Report.Format)
	}
	if cfg.Report.MinLength <= 0 {
		cfg.Report.MinLength = 50
	}
	cfg.Report.Sink = strings.ToLower(strings.TrimSpace(cfg.Report.Sink))
	switch cfg.Report.Sink {
	case "", "local":
		cfg.Report.Sink = "local"
		if strings.TrimSpace(cfg.Report.Dir) == "" {
			cfg.Report.Dir = "reports"
		}
	case "gcs":
		if strings.TrimSpace(cfg.Report.Bucket) == "" {
			return errors.New("report.bucket is required when report.sink=gcs")
		}
	default:
		return fmt.Errorf("invalid report.sink=%q", cfg.Report.Sink)
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	case "":
		cfg.Database.Driver = "sqlite"
	default:
		return fmt.Errorf("invalid database.driver=%q", cfg.Database.Driver)
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if strings.TrimSpace(cfg.Redis.Channel) == "" {
		cfg.Redis.Channel = "taskstream-events"
	}
	return nil
}
