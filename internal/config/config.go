// Package config loads application configuration from file and
// environment and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pactwatch/contract-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	SerpAPI   SerpAPIConfig   `yaml:"serpapi" mapstructure:"serpapi"`
	Raster    RasterConfig    `yaml:"raster" mapstructure:"raster"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Discover  DiscoverConfig  `yaml:"discover" mapstructure:"discover"`
	Scan      ScanConfig      `yaml:"scan" mapstructure:"scan"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// SerpAPIConfig holds SerpAPI settings.
type SerpAPIConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	QueriesPerSec float64 `yaml:"queries_per_sec" mapstructure:"queries_per_sec"`
}

// RasterConfig configures PDF page rendering.
type RasterConfig struct {
	PdfToPPMPath string `yaml:"pdftoppm_path" mapstructure:"pdftoppm_path"`
	DPI          int    `yaml:"dpi" mapstructure:"dpi"`
}

// OCRConfig configures plain-text extraction for the refinement pass.
type OCRConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// ExtractConfig configures document extraction.
type ExtractConfig struct {
	MaxTokens     int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature   float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Variant       string  `yaml:"variant" mapstructure:"variant"`
	Refine        bool    `yaml:"refine" mapstructure:"refine"`
	MaxConcurrent int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// DiscoverConfig configures similar-offering discovery.
type DiscoverConfig struct {
	MaxTokens       int64 `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxKeywords     int   `yaml:"max_keywords" mapstructure:"max_keywords"`
	ResultsPerQuery int   `yaml:"results_per_query" mapstructure:"results_per_query"`
	MaxSources      int   `yaml:"max_sources" mapstructure:"max_sources"`
	TimeoutSecs     int   `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ScanConfig configures the expiry scan.
type ScanConfig struct {
	WarningDays      int `yaml:"warning_days" mapstructure:"warning_days"`
	MaxConcurrent    int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	WebSearchMaxUses int `yaml:"web_search_max_uses" mapstructure:"web_search_max_uses"`
	TimeoutSecs      int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("CONTRACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "contracts.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("serpapi.key", "")
	v.SetDefault("serpapi.base_url", "https://serpapi.com")
	v.SetDefault("serpapi.queries_per_sec", 2.0)
	v.SetDefault("raster.pdftoppm_path", "pdftoppm")
	v.SetDefault("raster.dpi", 200)
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("extract.max_tokens", 2000)
	v.SetDefault("extract.temperature", 0.1)
	v.SetDefault("extract.timeout_secs", 10)
	v.SetDefault("extract.variant", "standard")
	v.SetDefault("extract.refine", false)
	v.SetDefault("extract.max_concurrent", 4)
	v.SetDefault("discover.max_tokens", 1500)
	v.SetDefault("discover.max_keywords", 3)
	v.SetDefault("discover.results_per_query", 5)
	v.SetDefault("discover.max_sources", 10)
	v.SetDefault("discover.timeout_secs", 10)
	v.SetDefault("scan.warning_days", 60)
	v.SetDefault("scan.max_concurrent", 3)
	v.SetDefault("scan.web_search_max_uses", 3)
	v.SetDefault("scan.timeout_secs", 60)

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

// Validate checks that the configuration is sufficient for the given
// mode. It collects every problem instead of stopping at the first.
func (c *Config) Validate(mode string) error {
	var problems []string

	requireKey := func() {
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	}
	requireDB := func() {
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "extract":
		requireKey()
		if c.Extract.Variant != "standard" && c.Extract.Variant != "lease" {
			problems = append(problems, "extract.variant must be standard or lease")
		}
		if c.Extract.MaxConcurrent < 1 || c.Extract.MaxConcurrent > 32 {
			problems = append(problems, "extract.max_concurrent must be between 1 and 32")
		}
	case "discover":
		requireKey()
		if c.SerpAPI.Key == "" {
			problems = append(problems, "serpapi.key is required")
		}
	case "scan":
		requireDB()
		if c.Scan.WarningDays < 1 || c.Scan.WarningDays > 365 {
			problems = append(problems, "scan.warning_days must be between 1 and 365")
		}
	case "serve":
		requireDB()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
