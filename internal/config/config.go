package config

import "time"

type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `yaml:"addr"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	IdleTimeout       Duration `yaml:"idle_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
	CORSOrigins       []string `yaml:"cors_origins"`
}

type AuthConfig struct {
	// JWTSecret enables bearer-token auth on /api when non-empty (HS256).
	JWTSecret string `yaml:"jwt_secret"`
}

type UpstreamConfig struct {
	BaseURL       string   `yaml:"base_url"`
	APIKey        string   `yaml:"api_key"`
	Timeout       Duration `yaml:"timeout"`
	StreamTimeout Duration `yaml:"stream_timeout"`
	MaxRetries    int      `yaml:"max_retries"`
}

// StreamConfig tunes the connection lifecycle.
type StreamConfig struct {
	// CompletionGrace is how long a completed stream stays open to flush trailing chunks.
	CompletionGrace Duration `yaml:"completion_grace"`
	// SideEffectDelay lets trailing events settle before report/suggestion generation starts.
	SideEffectDelay Duration `yaml:"side_effect_delay"`
	// IdleTimeout closes a stream that delivered no frame for this long. Zero disables it.
	IdleTimeout Duration `yaml:"idle_timeout"`
	// ReplaceWait bounds how long a new connection waits for the superseded one to exit.
	ReplaceWait Duration `yaml:"replace_wait"`
}

type ReportConfig struct {
	Format          string `yaml:"format"`
	MinLength       int    `yaml:"min_length"`
	Sink            string `yaml:"sink"`
	Dir             string `yaml:"dir"`
	Bucket          string `yaml:"bucket"`
	PublicURLPrefix string `yaml:"public_url_prefix"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

type Config struct {
	Env      string         `yaml:"env"`
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Stream   StreamConfig   `yaml:"stream"`
	Report   ReportConfig   `yaml:"report"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
}
