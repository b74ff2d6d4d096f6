// Package config loads the tickertape YAML configuration and applies
// environment variable overrides.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the tickertape feed core.
type Config struct {
	Storage      Storage      `yaml:"storage"`
	Finnhub      Finnhub      `yaml:"finnhub"`
	AlphaVantage AlphaVantage `yaml:"alphavantage"`
	Alpaca       Alpaca       `yaml:"alpaca"`
	Logging      Logging      `yaml:"logging"`
	Feed         Feed         `yaml:"feed"`
}

// Storage holds paths for local reference data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Finnhub holds credentials and endpoints for the quote/streaming provider.
type Finnhub struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	SocketURL string `yaml:"socket_url"`
}

// AlphaVantage holds credentials and the endpoint for the movers and
// historical-series provider.
type AlphaVantage struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Alpaca holds credentials for the optional trading-calendar API. When the
// key is empty the pure weekday/bell clock is used instead.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Feed controls the cadences and capacities of the two feed managers.
type Feed struct {
	FlushIntervalMS     int `yaml:"flush_interval_ms"`     // watchlist snapshot flush
	KeepaliveIntervalMS int `yaml:"keepalive_interval_ms"` // socket ping
	WatchIntervalMS     int `yaml:"watch_interval_ms"`     // market-hours re-check
	SimPaceMS           int `yaml:"sim_pace_ms"`           // simulated replay cycle
	ReplayQueueSize     int `yaml:"replay_queue_size"`
	TopPerCategory      int `yaml:"top_per_category"` // symbols subscribed per movers list
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Defaults returns a Config populated with sensible defaults for every value
// that has one. Load starts from these before applying the file and the
// environment.
func Defaults() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/tickertape.db",
		},
		Finnhub: Finnhub{
			BaseURL:   "https://finnhub.io/api/v1",
			SocketURL: "wss://ws.finnhub.io",
		},
		AlphaVantage: AlphaVantage{
			BaseURL:         "https://www.alphavantage.co",
			RateLimitPerMin: 60,
		},
		Logging: Logging{Level: "info", Format: "json"},
		Feed: Feed{
			FlushIntervalMS:     1000,
			KeepaliveIntervalMS: 30000,
			WatchIntervalMS:     60000,
			SimPaceMS:           800,
			ReplayQueueSize:     4096,
			TopPerCategory:      7,
		},
	}
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct on top of the defaults, and then applies environment
// variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// FromEnv returns the defaults with environment overrides applied, for
// running without a configuration file.
func FromEnv() *Config {
	cfg := Defaults()
	applyEnvOverrides(cfg)
	return cfg
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		cfg.Finnhub.APIKey = v
	}
	if v := os.Getenv("FINNHUB_SOCKET_URL"); v != "" {
		cfg.Finnhub.SocketURL = v
	}

	if v := os.Getenv("ALPHA_API_KEY"); v != "" {
		cfg.AlphaVantage.APIKey = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
