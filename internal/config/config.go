package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// TrustProxyHeaders opts in to X-Forwarded-For / X-Real-IP from
	// non-loopback peers. Loopback peers are always trusted.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers" yaml:"trust_proxy_headers"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	AI        AIConfig        `mapstructure:"ai" yaml:"ai"`
}

// RateLimitConfig controls the per-client chat sliding window.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	MessagesPerMinute int  `mapstructure:"messages_per_minute" yaml:"messages_per_minute"`
}

// ChatLimit is the effective per-minute threshold; zero when disabled.
func (r RateLimitConfig) ChatLimit() int {
	if !r.Enabled {
		return 0
	}
	return r.MessagesPerMinute
}

// AIConfig controls the completion gateway.
type AIConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	APIKey    string        `mapstructure:"api_key" yaml:"api_key"`
	Model     string        `mapstructure:"model" yaml:"model"`
	RateLimit int           `mapstructure:"rate_limit" yaml:"rate_limit"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxTokens int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":3001",
		LogLevel:          "info",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		TrustProxyHeaders: false,
		RateLimit: RateLimitConfig{
			Enabled:           false,
			MessagesPerMinute: 60,
		},
		AI: AIConfig{
			Enabled:   false,
			Model:     "openai/gpt-4o",
			RateLimit: 5,
			Timeout:   30 * time.Second,
			MaxTokens: 1024,
		},
	}
}
