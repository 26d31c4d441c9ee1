package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Engine  EngineConfig  `yaml:"engine" mapstructure:"engine"`
	Portal  PortalConfig  `yaml:"portal" mapstructure:"portal"`
	TaxRoll TaxRollConfig `yaml:"taxroll" mapstructure:"taxroll"`
	Leads   LeadsConfig   `yaml:"leads" mapstructure:"leads"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
	Export  ExportConfig  `yaml:"export" mapstructure:"export"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ThresholdsConfig holds every numeric knob of candidate scoring and
// acceptance. Scores are on a 0..100 scale.
type ThresholdsConfig struct {
	PageSize              int     `yaml:"page_size" mapstructure:"page_size"`
	SummaryAcceptScore    float64 `yaml:"summary_accept_score" mapstructure:"summary_accept_score"`
	SummaryAcceptMargin   float64 `yaml:"summary_accept_margin" mapstructure:"summary_accept_margin"`
	DetailFetchLimit      int     `yaml:"detail_fetch_limit" mapstructure:"detail_fetch_limit"`
	AutoAcceptScore       float64 `yaml:"auto_accept_score" mapstructure:"auto_accept_score"`
	MinScoreHigh          float64 `yaml:"min_score_high" mapstructure:"min_score_high"`
	MinScoreOther         float64 `yaml:"min_score_other" mapstructure:"min_score_other"`
	MinMarginHigh         float64 `yaml:"min_margin_high" mapstructure:"min_margin_high"`
	MinMarginOther        float64 `yaml:"min_margin_other" mapstructure:"min_margin_other"`
	PartialBonusThreshold float64 `yaml:"partial_bonus_threshold" mapstructure:"partial_bonus_threshold"`
	PartialBonusWeight    float64 `yaml:"partial_bonus_weight" mapstructure:"partial_bonus_weight"`
	SummaryOwnerWeight    float64 `yaml:"summary_owner_weight" mapstructure:"summary_owner_weight"`
	SummaryLegalWeight    float64 `yaml:"summary_legal_weight" mapstructure:"summary_legal_weight"`
	DetailLegalWeight     float64 `yaml:"detail_legal_weight" mapstructure:"detail_legal_weight"`
	DetailOwnerWeight     float64 `yaml:"detail_owner_weight" mapstructure:"detail_owner_weight"`
	OwnerPenaltyBelow     float64 `yaml:"owner_penalty_below" mapstructure:"owner_penalty_below"`
	OwnerPenalty          float64 `yaml:"owner_penalty" mapstructure:"owner_penalty"`
	MissingOwnerScore     float64 `yaml:"missing_owner_score" mapstructure:"missing_owner_score"`
	MissingTargetScore    float64 `yaml:"missing_target_score" mapstructure:"missing_target_score"`
	MissingBothScore      float64 `yaml:"missing_both_score" mapstructure:"missing_both_score"`
	LegalQueryMax         int     `yaml:"legal_query_max" mapstructure:"legal_query_max"`
	OwnerQueryMax         int     `yaml:"owner_query_max" mapstructure:"owner_query_max"`
}

// EngineConfig configures the tier cascade.
type EngineConfig struct {
	ThresholdsConfig `yaml:",inline" mapstructure:",squash"`
	RetryBudget      int      `yaml:"retry_budget" mapstructure:"retry_budget"`
	RetryBackoffMs   int      `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	CallTimeoutSecs  int      `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	CommonSurnames   []string `yaml:"common_surnames" mapstructure:"common_surnames"`
	TiersFile        string   `yaml:"tiers_file" mapstructure:"tiers_file"`
}

// PortalConfig configures the headless browser sessions that drive the
// public-record portals.
type PortalConfig struct {
	AssessorURL       string  `yaml:"assessor_url" mapstructure:"assessor_url"`
	ClerkURL          string  `yaml:"clerk_url" mapstructure:"clerk_url"`
	Headless          bool    `yaml:"headless" mapstructure:"headless"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxPages          int     `yaml:"max_pages" mapstructure:"max_pages"`
	MaxEmptyPages     int     `yaml:"max_empty_pages" mapstructure:"max_empty_pages"`
	SearchWindowDays  int     `yaml:"search_window_days" mapstructure:"search_window_days"`
	MaxNameVariants   int     `yaml:"max_name_variants" mapstructure:"max_name_variants"`
	ScreenshotDir     string  `yaml:"screenshot_dir" mapstructure:"screenshot_dir"`
}

// TaxRollConfig configures the tax-collector lookup.
type TaxRollConfig struct {
	URL     string `yaml:"url" mapstructure:"url"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// LeadsConfig configures lead file parsing.
type LeadsConfig struct {
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter"`
	Sheet     string `yaml:"sheet" mapstructure:"sheet"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentLeads int `yaml:"max_concurrent_leads" mapstructure:"max_concurrent_leads"`
}

// RetryConfig configures backoff for portal calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the portal circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ExportConfig configures report output.
type ExportConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultCommonSurnames are surnames too frequent to search on without a
// block or tract to narrow the query.
var DefaultCommonSurnames = []string{
	"SMITH", "JOHNSON", "WILLIAMS", "BROWN", "JONES",
	"GARCIA", "MILLER", "DAVIS", "RODRIGUEZ", "MARTINEZ",
	"HERNANDEZ", "LOPEZ", "GONZALEZ", "WILSON", "ANDERSON",
	"THOMAS", "TAYLOR", "MOORE", "JACKSON", "MARTIN",
	"LEE", "PEREZ", "THOMPSON", "WHITE", "HARRIS",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROBATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "probate-link.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Engine thresholds.
	v.SetDefault("engine.page_size", 20)
	v.SetDefault("engine.summary_accept_score", 60)
	v.SetDefault("engine.summary_accept_margin", 20)
	v.SetDefault("engine.detail_fetch_limit", 3)
	v.SetDefault("engine.auto_accept_score", 90)
	v.SetDefault("engine.min_score_high", 70)
	v.SetDefault("engine.min_score_other", 50)
	v.SetDefault("engine.min_margin_high", 15)
	v.SetDefault("engine.min_margin_other", 10)
	v.SetDefault("engine.partial_bonus_threshold", 70)
	v.SetDefault("engine.partial_bonus_weight", 0.2)
	v.SetDefault("engine.summary_owner_weight", 0.5)
	v.SetDefault("engine.summary_legal_weight", 0.5)
	v.SetDefault("engine.detail_legal_weight", 0.7)
	v.SetDefault("engine.detail_owner_weight", 0.3)
	v.SetDefault("engine.owner_penalty_below", 60)
	v.SetDefault("engine.owner_penalty", 20)
	v.SetDefault("engine.missing_owner_score", 20)
	v.SetDefault("engine.missing_target_score", 30)
	v.SetDefault("engine.missing_both_score", 50)
	v.SetDefault("engine.legal_query_max", 100)
	v.SetDefault("engine.owner_query_max", 26)
	v.SetDefault("engine.retry_budget", 2)
	v.SetDefault("engine.retry_backoff_ms", 1000)
	v.SetDefault("engine.call_timeout_secs", 60)
	v.SetDefault("engine.common_surnames", DefaultCommonSurnames)

	// Portals.
	v.SetDefault("portal.assessor_url", "https://public.hcad.org/records/Real.asp")
	v.SetDefault("portal.clerk_url", "https://cclerk.hctx.net/Applications/WebSearch/RP.aspx")
	v.SetDefault("portal.headless", true)
	v.SetDefault("portal.requests_per_second", 1)
	v.SetDefault("portal.burst", 1)
	v.SetDefault("portal.timeout_secs", 90)
	v.SetDefault("portal.max_pages", 2)
	v.SetDefault("portal.max_empty_pages", 2)
	v.SetDefault("portal.search_window_days", 365)
	v.SetDefault("portal.max_name_variants", 3)
	v.SetDefault("taxroll.url", "https://www.hctax.net/Property/PropertyTax")
	v.SetDefault("taxroll.enabled", true)

	v.SetDefault("leads.delimiter", ";")
	v.SetDefault("batch.max_concurrent_leads", 1)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 60)
	v.SetDefault("export.dir", "exports")
	v.SetDefault("export.format", "xlsx")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
}

// Validate checks the fields a command mode depends on and reports every
// problem at once. Modes are "resolve", "discover", "enrich", and "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "resolve", "enrich":
		if c.Portal.AssessorURL == "" {
			errs = append(errs, "portal.assessor_url is required")
		}
		if mode == "enrich" && c.TaxRoll.URL == "" {
			errs = append(errs, "taxroll.url is required")
		}
	case "discover":
		if c.Portal.ClerkURL == "" {
			errs = append(errs, "portal.clerk_url is required")
		}
		if c.Portal.MaxPages < 1 {
			errs = append(errs, "portal.max_pages must be >= 1")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Batch.MaxConcurrentLeads < 1 || c.Batch.MaxConcurrentLeads > 50 {
		errs = append(errs, "batch.max_concurrent_leads must be between 1 and 50")
	}
	if c.Engine.RetryBudget < 0 {
		errs = append(errs, "engine.retry_budget must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
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
