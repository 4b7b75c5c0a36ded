package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Filter    FilterConfig    `yaml:"filter" mapstructure:"filter"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Rules     RulesConfig     `yaml:"rules" mapstructure:"rules"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the key-value store backend.
type StoreConfig struct {
	// Driver is one of "memory", "sqlite", "postgres".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	Model          string `yaml:"model" mapstructure:"model"`
	MaxTokens      int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	CallTimeoutSec int    `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
	// RequestsPerMin caps outbound API calls across all workers. 0 disables
	// client-side pacing.
	RequestsPerMin int `yaml:"requests_per_min" mapstructure:"requests_per_min"`
}

// FilterConfig configures the industry filter.
type FilterConfig struct {
	// Keywords retained rows must contain (case-insensitive substring
	// match against the industry/group field).
	Keywords []string `yaml:"keywords" mapstructure:"keywords"`
}

// BatchConfig configures the parallel batch engine.
type BatchConfig struct {
	Size          int `yaml:"size" mapstructure:"size"`
	DelayMillis   int `yaml:"delay_millis" mapstructure:"delay_millis"`
	CacheTTLMins  int `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
	StateTTLHours int `yaml:"state_ttl_hours" mapstructure:"state_ttl_hours"`
}

// Delay returns the fixed inter-batch delay.
func (b BatchConfig) Delay() time.Duration {
	return time.Duration(b.DelayMillis) * time.Millisecond
}

// CacheTTL returns the classification cache entry lifetime.
func (b BatchConfig) CacheTTL() time.Duration {
	return time.Duration(b.CacheTTLMins) * time.Minute
}

// StateTTL returns how long an abandoned resume state is kept.
func (b BatchConfig) StateTTL() time.Duration {
	return time.Duration(b.StateTTLHours) * time.Hour
}

// RulesConfig configures custom instruction loading.
type RulesConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OPPSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "oppscan.db")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.call_timeout_secs", 60)
	v.SetDefault("anthropic.max_retries", 1)
	v.SetDefault("anthropic.requests_per_min", 60)
	v.SetDefault("filter.keywords", []string{"comms", "media"})
	v.SetDefault("batch.size", 3)
	v.SetDefault("batch.delay_millis", 1000)
	v.SetDefault("batch.cache_ttl_mins", 60)
	v.SetDefault("batch.state_ttl_hours", 24)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
