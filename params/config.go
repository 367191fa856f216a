// Package params holds runtime configuration. Priority: environment >
// config file > defaults. Environment keys are the config paths
// uppercased with underscores and a HELIX_ prefix, e.g.
// HELIX_API_LISTEN.
package params

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type API struct {
	Listen         string
	AllowedOrigins []string
	AdminKey       string
}

type Persistence struct {
	// PostgresURL selects the Postgres store; empty runs on the
	// in-memory store, for devnet.
	PostgresURL string
}

type Cache struct {
	Path     string
	PriceTTL time.Duration
}

type Bus struct {
	QueueSize      int
	SnapshotDepth  int
	TickerInterval time.Duration
}

type Feed struct {
	Enabled  bool
	BaseURL  string
	Interval time.Duration
	Timeout  time.Duration
}

type Maker struct {
	Enabled      bool
	UserID       string
	SpreadBps    int64
	DeviationBps int64
	MaxOrders    int
	// OrderSize is a decimal string in base-asset terms; it is parsed
	// per pair at wiring time.
	OrderSize string
}

type Log struct {
	// File mirrors logs to a file in addition to stdout when set.
	File string
}

type Config struct {
	API         API
	Persistence Persistence
	Cache       Cache
	Bus         Bus
	Feed        Feed
	Maker       Maker
	Log         Log
}

func Default() Config {
	return Config{
		API: API{
			Listen:         ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Cache: Cache{
			Path:     "data/cache",
			PriceTTL: 30 * time.Second,
		},
		Bus: Bus{
			QueueSize:      64,
			SnapshotDepth:  20,
			TickerInterval: 500 * time.Millisecond,
		},
		Feed: Feed{
			Enabled:  false,
			Interval: 5 * time.Second,
			Timeout:  3 * time.Second,
		},
		Maker: Maker{
			Enabled:      false,
			UserID:       "market-maker",
			SpreadBps:    20,
			DeviationBps: 100,
			MaxOrders:    3,
			OrderSize:    "10",
		},
	}
}

// Load reads configuration: .env (optional), then the config file if
// given, then HELIX_* environment overrides.
func Load(configPath, envPath string) (Config, error) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	def := Default()
	v.SetDefault("api.listen", def.API.Listen)
	v.SetDefault("api.allowedOrigins", def.API.AllowedOrigins)
	v.SetDefault("api.adminKey", "")
	v.SetDefault("persistence.postgresUrl", "")
	v.SetDefault("cache.path", def.Cache.Path)
	v.SetDefault("cache.priceTtl", def.Cache.PriceTTL)
	v.SetDefault("bus.queueSize", def.Bus.QueueSize)
	v.SetDefault("bus.snapshotDepth", def.Bus.SnapshotDepth)
	v.SetDefault("bus.tickerInterval", def.Bus.TickerInterval)
	v.SetDefault("feed.enabled", def.Feed.Enabled)
	v.SetDefault("feed.baseUrl", "")
	v.SetDefault("feed.interval", def.Feed.Interval)
	v.SetDefault("feed.timeout", def.Feed.Timeout)
	v.SetDefault("maker.enabled", def.Maker.Enabled)
	v.SetDefault("maker.userId", def.Maker.UserID)
	v.SetDefault("maker.spreadBps", def.Maker.SpreadBps)
	v.SetDefault("maker.deviationBps", def.Maker.DeviationBps)
	v.SetDefault("maker.maxOrders", def.Maker.MaxOrders)
	v.SetDefault("maker.orderSize", def.Maker.OrderSize)
	v.SetDefault("log.file", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix("HELIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		API: API{
			Listen:         v.GetString("api.listen"),
			AllowedOrigins: v.GetStringSlice("api.allowedOrigins"),
			AdminKey:       v.GetString("api.adminKey"),
		},
		Persistence: Persistence{
			PostgresURL: v.GetString("persistence.postgresUrl"),
		},
		Cache: Cache{
			Path:     v.GetString("cache.path"),
			PriceTTL: v.GetDuration("cache.priceTtl"),
		},
		Bus: Bus{
			QueueSize:      v.GetInt("bus.queueSize"),
			SnapshotDepth:  v.GetInt("bus.snapshotDepth"),
			TickerInterval: v.GetDuration("bus.tickerInterval"),
		},
		Feed: Feed{
			Enabled:  v.GetBool("feed.enabled"),
			BaseURL:  v.GetString("feed.baseUrl"),
			Interval: v.GetDuration("feed.interval"),
			Timeout:  v.GetDuration("feed.timeout"),
		},
		Maker: Maker{
			Enabled:      v.GetBool("maker.enabled"),
			UserID:       v.GetString("maker.userId"),
			SpreadBps:    v.GetInt64("maker.spreadBps"),
			DeviationBps: v.GetInt64("maker.deviationBps"),
			MaxOrders:    v.GetInt("maker.maxOrders"),
			OrderSize:    v.GetString("maker.orderSize"),
		},
		Log: Log{
			File: v.GetString("log.file"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate catches configurations that cannot run.
func (c Config) Validate() error {
	if c.API.Listen == "" {
		return fmt.Errorf("api.listen must not be empty")
	}
	if c.Cache.Path == "" {
		return fmt.Errorf("cache.path must not be empty")
	}
	if c.Bus.QueueSize <= 0 || c.Bus.SnapshotDepth <= 0 {
		return fmt.Errorf("bus.queueSize and bus.snapshotDepth must be positive")
	}
	if c.Feed.Enabled && c.Feed.BaseURL == "" {
		return fmt.Errorf("feed.baseUrl is required when the feed is enabled")
	}
	if c.Maker.Enabled && c.Maker.UserID == "" {
		return fmt.Errorf("maker.userId is required when the maker is enabled")
	}
	return nil
}
