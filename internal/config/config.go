package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/hearing-sync/internal/dedup"
	"github.com/sells-group/hearing-sync/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Congress   CongressConfig   `yaml:"congress" mapstructure:"congress"`
	Scraper    ScraperConfig    `yaml:"scraper" mapstructure:"scraper"`
	Sync       SyncConfig       `yaml:"sync" mapstructure:"sync"`
	Breaker    BreakerConfig    `yaml:"breaker" mapstructure:"breaker"`
	Dedup      DedupConfig      `yaml:"dedup" mapstructure:"dedup"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// CongressConfig holds Congress.gov API settings.
type CongressConfig struct {
	Key         string            `yaml:"key" mapstructure:"key"`
	BaseURL     string            `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int               `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxPages    int               `yaml:"max_pages" mapstructure:"max_pages"`
	SystemCodes map[string]string `yaml:"system_codes" mapstructure:"system_codes"`
}

// Timeout returns the request timeout as a duration.
func (c CongressConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ScraperConfig configures the committee website scraper.
type ScraperConfig struct {
	TimeoutSecs       int               `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DetailConcurrency int               `yaml:"detail_concurrency" mapstructure:"detail_concurrency"`
	Sites             map[string]string `yaml:"sites" mapstructure:"sites"`
	Retry             RetryConfig       `yaml:"retry" mapstructure:"retry"`
}

// Timeout returns the scrape timeout as a duration.
func (c ScraperConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RetryConfig configures retry with exponential backoff.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// SyncConfig configures the sync orchestrator.
type SyncConfig struct {
	APIDaysBack            int     `yaml:"api_days_back" mapstructure:"api_days_back"`
	APIDaysForward         int     `yaml:"api_days_forward" mapstructure:"api_days_forward"`
	WebsiteDaysBack        int     `yaml:"website_days_back" mapstructure:"website_days_back"`
	DedupWindowDays        int     `yaml:"dedup_window_days" mapstructure:"dedup_window_days"`
	APIUpdateThreshold     float64 `yaml:"api_update_threshold" mapstructure:"api_update_threshold"`
	WebsiteUpdateThreshold float64 `yaml:"website_update_threshold" mapstructure:"website_update_threshold"`
	Concurrency            int     `yaml:"concurrency" mapstructure:"concurrency"`
	DefaultFrequencyHours  int     `yaml:"default_frequency_hours" mapstructure:"default_frequency_hours"`
}

// BreakerConfig configures the per-source circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	RecoveryMinutes  int `yaml:"recovery_minutes" mapstructure:"recovery_minutes"`
}

// DedupConfig configures duplicate classification. Committees lists
// per-committee overrides keyed by committee code.
type DedupConfig struct {
	AutoMergeThreshold float64                     `yaml:"auto_merge_threshold" mapstructure:"auto_merge_threshold"`
	ReviewThreshold    float64                     `yaml:"review_threshold" mapstructure:"review_threshold"`
	Committees         map[string]dedup.Thresholds `yaml:"committees" mapstructure:"committees"`
}

// Thresholds returns the global classification thresholds.
func (c DedupConfig) Thresholds() dedup.Thresholds {
	return dedup.Thresholds{AutoMerge: c.AutoMergeThreshold, Review: c.ReviewThreshold}
}

// ScheduleConfig configures scheduled sync runs.
type ScheduleConfig struct {
	DailyHour    int    `yaml:"daily_hour" mapstructure:"daily_hour"`
	WebsiteHours []int  `yaml:"website_hours" mapstructure:"website_hours"`
	Timezone     string `yaml:"timezone" mapstructure:"timezone"`
	// Cron is the daemon's trigger expression.
	Cron string `yaml:"cron" mapstructure:"cron"`
}

// Location resolves the configured timezone.
func (c ScheduleConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load timezone %q", c.Timezone)
	}
	return loc, nil
}

// MonitoringConfig configures health checks and webhook alerts.
type MonitoringConfig struct {
	Enabled                bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours    int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold   float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinRuns                int     `yaml:"min_runs" mapstructure:"min_runs"`
	ReviewBacklogThreshold int     `yaml:"review_backlog_threshold" mapstructure:"review_backlog_threshold"`
	// RepeatAlertMinutes is how long an alert that keeps firing stays quiet
	// before it is sent again.
	RepeatAlertMinutes int `yaml:"repeat_alert_minutes" mapstructure:"repeat_alert_minutes"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the settings a command mode depends on and reports every
// problem at once. Modes: "sync", "serve", "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "migrate":
	case "sync":
		errs = append(errs, c.validateSync()...)
	case "serve":
		errs = append(errs, c.validateSync()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateSync() []string {
	var errs []string
	if c.Sync.Concurrency < 1 || c.Sync.Concurrency > 20 {
		errs = append(errs, "sync.concurrency must be between 1 and 20")
	}
	for _, th := range []float64{c.Sync.APIUpdateThreshold, c.Sync.WebsiteUpdateThreshold} {
		if th < 0 || th > 1 {
			errs = append(errs, "sync update thresholds must be between 0 and 1")
			break
		}
	}
	d := c.Dedup
	if d.AutoMergeThreshold < 0 || d.AutoMergeThreshold > 1 || d.ReviewThreshold < 0 || d.ReviewThreshold > 1 {
		errs = append(errs, "dedup thresholds must be between 0 and 1")
	} else if d.AutoMergeThreshold > 0 && d.ReviewThreshold > d.AutoMergeThreshold {
		errs = append(errs, "dedup.review_threshold must not exceed auto_merge_threshold")
	}
	if c.Schedule.DailyHour < 0 || c.Schedule.DailyHour > 23 {
		errs = append(errs, "schedule.daily_hour must be between 0 and 23")
	}
	for _, h := range c.Schedule.WebsiteHours {
		if h < 0 || h > 23 {
			errs = append(errs, "schedule.website_hours must be between 0 and 23")
			break
		}
	}
	if _, err := c.Schedule.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("schedule.timezone %q is not a known location", c.Schedule.Timezone))
	}
	return errs
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HEARINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "hearings.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("congress.key", "")
	v.SetDefault("congress.base_url", "https://api.congress.gov/v3")
	v.SetDefault("congress.timeout_secs", 30)
	v.SetDefault("congress.max_pages", 10)
	v.SetDefault("scraper.timeout_secs", 45)
	v.SetDefault("scraper.detail_concurrency", 4)
	v.SetDefault("scraper.retry.max_attempts", 3)
	v.SetDefault("scraper.retry.initial_backoff_ms", 1000)
	v.SetDefault("scraper.retry.max_backoff_ms", 8000)
	v.SetDefault("scraper.retry.multiplier", 2.0)
	v.SetDefault("scraper.retry.jitter_fraction", 0.25)
	v.SetDefault("sync.api_days_back", 30)
	v.SetDefault("sync.api_days_forward", 30)
	v.SetDefault("sync.website_days_back", 14)
	v.SetDefault("sync.dedup_window_days", 60)
	v.SetDefault("sync.api_update_threshold", 0.8)
	v.SetDefault("sync.website_update_threshold", 0.7)
	v.SetDefault("sync.concurrency", 3)
	v.SetDefault("sync.default_frequency_hours", 24)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_minutes", 60)
	v.SetDefault("dedup.auto_merge_threshold", dedup.DefaultAutoMergeThreshold)
	v.SetDefault("dedup.review_threshold", dedup.DefaultReviewThreshold)
	v.SetDefault("schedule.daily_hour", 6)
	v.SetDefault("schedule.website_hours", []int{8, 14, 20})
	v.SetDefault("schedule.timezone", "America/New_York")
	v.SetDefault("schedule.cron", "0 * * * *")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_runs", 5)
	v.SetDefault("monitoring.review_backlog_threshold", 25)
	v.SetDefault("monitoring.repeat_alert_minutes", 60)

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
