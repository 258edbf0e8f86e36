package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	DBSource string `mapstructure:"db_source"`
	Port     string `mapstructure:"server_port"`
	Env      string `mapstructure:"environment"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	StoreDriver      string `mapstructure:"store_driver"`
	EnforceUniqueKey bool   `mapstructure:"store_enforce_unique_key"`
	Migrate          bool   `mapstructure:"store_migrate"`

	RulesCacheTTL time.Duration `mapstructure:"rules_cache_ttl"`
	RulesFile     string        `mapstructure:"rules_file"`

	GeminiAPIKey string        `mapstructure:"gemini_api_key"`
	AIModel      string        `mapstructure:"ai_model"`
	AITimeout    time.Duration `mapstructure:"ai_timeout"`

	Timezone string         `mapstructure:"timezone"`
	Location *time.Location `mapstructure:"-"`

	// ReportSchedule is a five-field cron expression; empty disables the job.
	ReportSchedule string `mapstructure:"report_schedule"`
}

// Load reads an optional .env file and bankfeed.yaml; environment variables win over both.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	v := newViper()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates settings already registered on v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigName("bankfeed")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every key so that AutomaticEnv can resolve it by its upper-case name.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db_source", "")
	v.SetDefault("server_port", "8080")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("store_driver", DriverPostgres)
	v.SetDefault("store_enforce_unique_key", true)
	v.SetDefault("store_migrate", true)
	v.SetDefault("rules_cache_ttl", "5m")
	v.SetDefault("rules_file", "")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("ai_model", "gemini-2.0-flash")
	v.SetDefault("ai_timeout", "30s")
	v.SetDefault("timezone", "Asia/Ho_Chi_Minh")
	v.SetDefault("report_schedule", "0 8 1 * *")
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DBSource == "" {
			return fmt.Errorf("DB_SOURCE environment variable is required for the %s driver", DriverPostgres)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.RulesCacheTTL <= 0 {
		return fmt.Errorf("RULES_CACHE_TTL must be positive, got %s", c.RulesCacheTTL)
	}
	if c.AITimeout <= 0 {
		return fmt.Errorf("AI_TIMEOUT must be positive, got %s", c.AITimeout)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	c.Location = loc

	c.ReportSchedule = strings.TrimSpace(c.ReportSchedule)
	if c.ReportSchedule != "" {
		if _, err := cron.ParseStandard(c.ReportSchedule); err != nil {
			return fmt.Errorf("REPORT_SCHEDULE: %w", err)
		}
	}
	return nil
}

// ExtractionEnabled reports whether email extraction can be offered.
func (c *Config) ExtractionEnabled() bool {
	return c.GeminiAPIKey != ""
}
