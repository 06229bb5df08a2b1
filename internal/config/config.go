// Package config loads the process configuration from an optional YAML
// file, a .env file and the environment, in increasing order of precedence.
package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"

	ArchiveGCS   = "gcs"
	ArchiveLocal = "local"
	ArchiveNone  = "none"
)

var DefaultSymbols = []string{"AAPL", "GOOGL", "MSFT", "TSLA", "NVDA"}

type Config struct {
	Polygon  PolygonConfig  `mapstructure:"polygon" yaml:"polygon"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Archive  ArchiveConfig  `mapstructure:"archive" yaml:"archive"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type PolygonConfig struct {
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	LookbackDays int           `mapstructure:"lookback_days" yaml:"lookback_days"`
	Limit        int           `mapstructure:"limit" yaml:"limit"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type StoreConfig struct {
	// Backend is sqlite or mongo. Empty selects mongo when a connection
	// string is set.
	Backend         string `mapstructure:"backend" yaml:"backend"`
	DBPath          string `mapstructure:"db_path" yaml:"db_path"`
	MongoURI        string `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database" yaml:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection" yaml:"mongo_collection"`
	// LedgerPath is the sqlite file holding the run ledger.
	LedgerPath string `mapstructure:"ledger_path" yaml:"ledger_path"`
}

type ArchiveConfig struct {
	// Backend is gcs, local or none. Empty selects gcs when a bucket is set.
	Backend     string `mapstructure:"backend" yaml:"backend"`
	Bucket      string `mapstructure:"bucket" yaml:"bucket"`
	Credentials string `mapstructure:"credentials" yaml:"credentials"`
	Dir         string `mapstructure:"dir" yaml:"dir"`
}

type PipelineConfig struct {
	Symbols     []string      `mapstructure:"symbols" yaml:"symbols"`
	SymbolDelay time.Duration `mapstructure:"symbol_delay" yaml:"symbol_delay"`
	Schedule    string        `mapstructure:"schedule" yaml:"schedule"`
}

type ServerConfig struct {
	Port     string        `mapstructure:"port" yaml:"port"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

var envBindings = map[string]string{
	"polygon.api_key":        "POLYGON_API_KEY",
	"polygon.base_url":       "POLYGON_BASE_URL",
	"polygon.lookback_days":  "LOOKBACK_DAYS",
	"store.backend":          "STORE_BACKEND",
	"store.db_path":          "DB_PATH",
	"store.mongo_uri":        "MONGO_DB_CONNECTION_STRING",
	"store.mongo_database":   "MONGO_DATABASE",
	"store.mongo_collection": "MONGO_COLLECTION",
	"store.ledger_path":      "LEDGER_DB_PATH",
	"archive.backend":        "ARCHIVE_BACKEND",
	"archive.bucket":         "GCS_BUCKET_NAME",
	"archive.credentials":    "GOOGLE_APPLICATION_CREDENTIALS",
	"archive.dir":            "ARCHIVE_DIR",
	"pipeline.symbols":       "SYMBOLS",
	"pipeline.symbol_delay":  "SYMBOL_DELAY",
	"pipeline.schedule":      "SCHEDULE",
	"server.port":            "PORT",
	"server.cache_ttl":       "CACHE_TTL",
	"log.level":              "LOG_LEVEL",
	"log.format":             "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("polygon.base_url", "https://api.polygon.io")
	v.SetDefault("polygon.lookback_days", 730)
	v.SetDefault("polygon.limit", 5000)
	v.SetDefault("polygon.timeout", "30s")
	v.SetDefault("store.backend", "")
	v.SetDefault("store.db_path", "data/stock.db")
	v.SetDefault("store.mongo_database", "stock_market")
	v.SetDefault("store.mongo_collection", "daily_prices")
	v.SetDefault("store.ledger_path", "data/ledger.db")
	v.SetDefault("archive.backend", "")
	v.SetDefault("archive.dir", "data/archive")
	v.SetDefault("pipeline.symbols", DefaultSymbols)
	v.SetDefault("pipeline.symbol_delay", "15s")
	v.SetDefault("pipeline.schedule", "@daily")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.cache_ttl", "5m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads path (optional, YAML) and the environment. A .env file is
// loaded first unless NO_DOTENV=1; variables already set in the
// environment win over it.
func Load(path string) (*Config, error) {
	loadDotenv()

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.resolve()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolve() {
	c.Pipeline.Symbols = NormalizeSymbols(c.Pipeline.Symbols)

	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = StoreSQLite
		if c.Store.MongoURI != "" {
			c.Store.Backend = StoreMongo
		}
	}

	c.Archive.Backend = strings.ToLower(strings.TrimSpace(c.Archive.Backend))
	if c.Archive.Backend == "" {
		c.Archive.Backend = ArchiveLocal
		if c.Archive.Bucket != "" {
			c.Archive.Backend = ArchiveGCS
		}
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
}

// Validate reports the first configuration error. A missing API key is not
// one: the dashboard runs without it and a pipeline run reports it.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreSQLite:
		if c.Store.DBPath == "" {
			return fmt.Errorf("store.db_path is required for the sqlite store")
		}
	case StoreMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("MONGO_DB_CONNECTION_STRING is required for the mongo store")
		}
		if c.Store.MongoDatabase == "" || c.Store.MongoCollection == "" {
			return fmt.Errorf("mongo database and collection are required")
		}
	default:
		return fmt.Errorf("unknown store backend %q (want sqlite or mongo)", c.Store.Backend)
	}

	switch c.Archive.Backend {
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("GCS_BUCKET_NAME is required for the gcs archive")
		}
	case ArchiveLocal:
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir is required for the local archive")
		}
	case ArchiveNone:
	default:
		return fmt.Errorf("unknown archive backend %q (want gcs, local or none)", c.Archive.Backend)
	}

	if c.Store.LedgerPath == "" {
		return fmt.Errorf("store.ledger_path is required")
	}
	if len(c.Pipeline.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if c.Pipeline.SymbolDelay < 0 {
		return fmt.Errorf("pipeline.symbol_delay must not be negative")
	}
	if c.Polygon.LookbackDays <= 0 {
		return fmt.Errorf("polygon.lookback_days must be positive")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if !slices.Contains([]string{"json", "text"}, c.Log.Format) {
		return fmt.Errorf("log.format must be json or text")
	}
	return nil
}

// Redacted renders the configuration as YAML with secrets masked.
func (c *Config) Redacted() ([]byte, error) {
	cp := *c
	if cp.Polygon.APIKey != "" {
		cp.Polygon.APIKey = "REDACTED"
	}
	cp.Store.MongoURI = redactURI(cp.Store.MongoURI)
	return yaml.Marshal(cp)
}

func redactURI(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "REDACTED"
	}
	return u.Redacted()
}

// NormalizeSymbols upper-cases, trims and de-duplicates symbols, keeping the
// first occurrence. Entries may themselves be comma-separated lists.
func NormalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part != "" && !slices.Contains(out, part) {
				out = append(out, part)
			}
		}
	}
	return out
}
