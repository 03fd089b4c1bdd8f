package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/rdavidhalljr/weekly-allocator/internal/symbols"
	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

// MinRefreshInterval is the shortest allowed refresh period
const MinRefreshInterval = 30 * time.Second

// KnownProviders are the provider names the config accepts
var KnownProviders = []string{"stooq", "finnhub", "alphavantage"}

// CronParser parses the six-field (with seconds) schedules used by refresh.cron
var CronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Config represents the application configuration
type Config struct {
	Provider    string             `yaml:"provider"`
	API         APIConfig          `yaml:"api"`
	Instruments []model.Instrument `yaml:"instruments"`
	Weights     model.Weights      `yaml:"weights"`
	Refresh     RefreshConfig      `yaml:"refresh"`
	Storage     StorageConfig      `yaml:"storage"`
	Log         LogConfig          `yaml:"log"`
	Server      ServerConfig       `yaml:"server"`
}

// APIConfig holds API provider configurations
type APIConfig struct {
	Finnhub      ProviderConfig `yaml:"finnhub"`
	AlphaVantage ProviderConfig `yaml:"alphavantage"`
	Stooq        ProviderConfig `yaml:"stooq"`
}

// ProviderConfig holds individual provider settings
type ProviderConfig struct {
	Key       string `yaml:"key"`
	RateLimit int    `yaml:"rate_limit"` // requests per minute
	BaseURL   string `yaml:"base_url"`   // overrides the public endpoint
}

// RefreshConfig holds refresh loop settings
type RefreshConfig struct {
	Interval        time.Duration `yaml:"interval"`
	Cron            string        `yaml:"cron"` // when set, replaces the interval ticker
	Workers         int           `yaml:"workers"`
	Timeout         time.Duration `yaml:"timeout"`           // per cycle
	CacheTTL        time.Duration `yaml:"cache_ttl"`         // series cache, 0 disables
	MarketHoursOnly bool          `yaml:"market_hours_only"` // skip scheduled cycles while the US market is closed
}

// StorageConfig holds cycle archive settings
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"` // empty disables recording
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Provider: "stooq",
		API: APIConfig{
			Finnhub: ProviderConfig{
				Key:       os.Getenv("FINNHUB_API_KEY"),
				RateLimit: 60,
			},
			AlphaVantage: ProviderConfig{
				Key:       os.Getenv("ALPHAVANTAGE_API_KEY"),
				RateLimit: 5,
			},
			Stooq: ProviderConfig{
				RateLimit: 30,
			},
		},
		Instruments: symbols.Default(),
		Weights:     model.DefaultWeights(),
		Refresh: RefreshConfig{
			Interval: 60 * time.Second,
			Workers:  3,
			Timeout:  60 * time.Second,
			CacheTTL: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// LoadDotEnv loads a .env file from the working directory when present.
// Variables already set in the environment win.
func LoadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}

// Load loads configuration from a YAML file. A missing file yields the defaults.
// Environment variables override the file.
func Load(path string) (*Config, error) {
	LoadDotEnv()
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.API.Finnhub.Key = v
	}
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		c.API.AlphaVantage.Key = v
	}
	if v := os.Getenv("ALLOCATOR_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("ALLOCATOR_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ALLOCATOR_SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !IsKnownProvider(c.Provider) {
		return fmt.Errorf("unknown provider %q (want one of %s)", c.Provider, strings.Join(KnownProviders, ", "))
	}
	if len(c.Instruments) == 0 {
		return fmt.Errorf("at least one instrument is required")
	}
	seen := make(map[string]bool, len(c.Instruments))
	for _, inst := range c.Instruments {
		sym := symbols.Normalize(inst.Symbol)
		if !symbols.IsValidSymbol(sym) {
			return fmt.Errorf("invalid instrument symbol %q", inst.Symbol)
		}
		if seen[sym] {
			return fmt.Errorf("duplicate instrument %q", sym)
		}
		seen[sym] = true
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.Refresh.Cron != "" {
		if _, err := CronParser.Parse(c.Refresh.Cron); err != nil {
			return fmt.Errorf("invalid refresh.cron %q: %w", c.Refresh.Cron, err)
		}
	} else if c.Refresh.Interval < MinRefreshInterval {
		return fmt.Errorf("refresh.interval must be at least %s", MinRefreshInterval)
	}
	if c.Refresh.Workers < 1 {
		return fmt.Errorf("refresh.workers must be at least 1")
	}
	if c.Refresh.Timeout <= 0 {
		return fmt.Errorf("refresh.timeout must be positive")
	}
	if c.Refresh.CacheTTL < 0 {
		return fmt.Errorf("refresh.cache_ttl must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console", "pretty":
	default:
		return fmt.Errorf("log.format must be json or console")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range")
	}
	return nil
}

// IsKnownProvider reports whether name is a supported provider
func IsKnownProvider(name string) bool {
	for _, p := range KnownProviders {
		if p == name {
			return true
		}
	}
	return false
}

// KeyFor returns the API key configured for a provider, empty when none is needed or set
func (c *Config) KeyFor(name string) string {
	switch name {
	case "finnhub":
		return c.API.Finnhub.Key
	case "alphavantage":
		return c.API.AlphaVantage.Key
	}
	return ""
}

// KeyEnv returns the environment variable that supplies a provider's key
func KeyEnv(name string) string {
	switch name {
	case "finnhub":
		return "FINNHUB_API_KEY"
	case "alphavantage":
		return "ALPHAVANTAGE_API_KEY"
	}
	return ""
}
