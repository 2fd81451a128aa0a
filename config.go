package vecmem

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/hupe1980/vecmem/distance"
	"github.com/hupe1980/vecmem/hybrid"
)

// Engine names accepted by Config.Engine.
const (
	EngineFlat     = "flat"
	EngineHNSW     = "hnsw"
	EngineChromem  = "chromem"
	EngineSQLite   = "sqlite"
	EnginePgvector = "pgvector"
)

// Recency store names accepted by HybridConfig.Recency.
const (
	RecencyMemory = "memory"
	RecencySQLite = "sqlite"
)

// DefaultEnvPrefix is used by LoadConfig when no prefix is given.
const DefaultEnvPrefix = "VECMEM"

// Config aggregates the settings of a memory.
type Config struct {
	Engine    string `envconfig:"ENGINE" default:"flat"`
	Key       string `envconfig:"KEY" default:"default"`
	Dimension int    `envconfig:"DIMENSION"`
	Metric    string `envconfig:"METRIC" default:"cosine"`

	HNSW     HNSWConfig     `envconfig:"HNSW"`
	Chromem  ChromemConfig  `envconfig:"CHROMEM"`
	SQLite   SQLiteConfig   `envconfig:"SQLITE"`
	Postgres PostgresConfig `envconfig:"POSTGRES"`
	Seed     SeedConfig     `envconfig:"SEED"`
	Hybrid   HybridConfig   `envconfig:"HYBRID"`
	Log      LogConfig      `envconfig:"LOG"`
}

// HNSWConfig tunes the graph engine.
type HNSWConfig struct {
	M                 int     `envconfig:"M" default:"16"`
	EFConstruction    int     `envconfig:"EF_CONSTRUCTION" default:"200"`
	EFSearch          int     `envconfig:"EF_SEARCH" default:"64"`
	Heuristic         bool    `envconfig:"HEURISTIC" default:"true"`
	RebuildRatio      float64 `envconfig:"REBUILD_RATIO" default:"0.2"`
	MinRebuildDeletes int     `envconfig:"MIN_REBUILD_DELETES" default:"64"`
	Seed              int64   `envconfig:"SEED"`
}

// ChromemConfig configures the chromem engine. An empty Dir keeps data in memory.
type ChromemConfig struct {
	Dir        string `envconfig:"DIR"`
	Collection string `envconfig:"COLLECTION" default:"vecmem"`
	Compress   bool   `envconfig:"COMPRESS"`
}

// SQLiteConfig configures the sqlite engine.
type SQLiteConfig struct {
	DSN   string `envconfig:"DSN" default:":memory:"`
	Table string `envconfig:"TABLE" default:"vecmem_records"`
}

// PostgresConfig configures the pgvector engine.
type PostgresConfig struct {
	DSN           string `envconfig:"DSN"`
	Table         string `envconfig:"TABLE" default:"vecmem_records"`
	SkipExtension bool   `envconfig:"SKIP_EXTENSION"`
}

// SeedConfig bounds asynchronous seeding.
type SeedConfig struct {
	Concurrency int     `envconfig:"CONCURRENCY" default:"4"`
	RateLimit   float64 `envconfig:"RATE_LIMIT"`
}

// HybridConfig configures conversational memory built by DB.Hybrid.
type HybridConfig struct {
	RecentLimit     int     `envconfig:"RECENT_LIMIT" default:"10"`
	SemanticLimit   int     `envconfig:"SEMANTIC_LIMIT" default:"10"`
	TotalLimit      int     `envconfig:"TOTAL_LIMIT" default:"20"`
	RecentWeight    float64 `envconfig:"RECENT_WEIGHT" default:"0.5"`
	GetAllMode      string  `envconfig:"GET_ALL_MODE" default:"union"`
	Recency         string  `envconfig:"RECENCY" default:"memory"`
	RecencyCapacity int     `envconfig:"RECENCY_CAPACITY" default:"100"`
	RecencyDSN      string  `envconfig:"RECENCY_DSN" default:":memory:"`
}

// LogConfig selects the logger built by Open.
type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"text"`
}

// DefaultConfig returns the configuration LoadConfig produces from an empty environment.
func DefaultConfig() Config {
	return Config{
		Engine: EngineFlat,
		Key:    "default",
		Metric: distance.MetricCosine.String(),
		HNSW: HNSWConfig{
			M:                 16,
			EFConstruction:    200,
			EFSearch:          64,
			Heuristic:         true,
			RebuildRatio:      0.2,
			MinRebuildDeletes: 64,
		},
		Chromem:  ChromemConfig{Collection: "vecmem"},
		SQLite:   SQLiteConfig{DSN: ":memory:", Table: "vecmem_records"},
		Postgres: PostgresConfig{Table: "vecmem_records"},
		Seed:     SeedConfig{Concurrency: 4},
		Hybrid: HybridConfig{
			RecentLimit:     10,
			SemanticLimit:   10,
			TotalLimit:      20,
			RecentWeight:    0.5,
			GetAllMode:      string(hybrid.ModeUnion),
			Recency:         RecencyMemory,
			RecencyCapacity: 100,
			RecencyDSN:      ":memory:",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads the configuration from environment variables named
// PREFIX_ENGINE, PREFIX_HNSW_M, PREFIX_HYBRID_RECENT_WEIGHT and so on, and
// validates it.
func LoadConfig(prefix string) (Config, error) {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that can be checked without touching any engine.
func (c Config) Validate() error {
	switch c.Engine {
	case EngineFlat, EngineHNSW, EngineChromem, EngineSQLite:
	case EnginePgvector:
		if c.Postgres.DSN == "" {
			return invalidConfig("Postgres.DSN", c.Postgres.DSN, "required for the pgvector engine")
		}
	default:
		return invalidConfig("Engine", c.Engine, "unknown engine")
	}

	if c.Key == "" {
		return invalidConfig("Key", c.Key, "must not be empty")
	}
	if c.Dimension < 0 {
		return invalidConfig("Dimension", c.Dimension, "must be >= 0")
	}
	metric, err := distance.ParseMetric(c.Metric)
	if err != nil {
		return invalidConfig("Metric", c.Metric, err.Error())
	}
	if c.Engine == EngineChromem && metric != distance.MetricCosine {
		return invalidConfig("Metric", c.Metric, "chromem only supports cosine")
	}

	if c.Engine == EngineHNSW {
		if c.HNSW.M < 2 {
			return invalidConfig("HNSW.M", c.HNSW.M, "must be >= 2")
		}
		if c.HNSW.EFConstruction < 1 {
			return invalidConfig("HNSW.EFConstruction", c.HNSW.EFConstruction, "must be >= 1")
		}
		if c.HNSW.EFSearch < 1 {
			return invalidConfig("HNSW.EFSearch", c.HNSW.EFSearch, "must be >= 1")
		}
	}
	if c.Engine == EngineChromem && c.Chromem.Dir != "" && c.Dimension == 0 {
		return invalidConfig("Dimension", c.Dimension, "must be set for a persistent chromem engine")
	}

	if c.Seed.RateLimit < 0 {
		return invalidConfig("Seed.RateLimit", c.Seed.RateLimit, "must be >= 0")
	}

	h := c.Hybrid
	if h.RecentWeight < 0 || h.RecentWeight > 1 || math.IsNaN(h.RecentWeight) {
		return invalidConfig("Hybrid.RecentWeight", h.RecentWeight, "must be within [0, 1]")
	}
	switch h.Recency {
	case RecencyMemory, RecencySQLite:
	default:
		return invalidConfig("Hybrid.Recency", h.Recency, "unknown recency store")
	}
	switch hybrid.GetAllMode(h.GetAllMode) {
	case hybrid.ModeUnion, hybrid.ModeSemantic:
	default:
		return invalidConfig("Hybrid.GetAllMode", h.GetAllMode, "unknown mode")
	}

	if _, err := c.Log.level(); err != nil {
		return invalidConfig("Log.Level", c.Log.Level, err.Error())
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return invalidConfig("Log.Format", c.Log.Format, "must be text or json")
	}

	return nil
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(l.Level))
	return lvl, err
}

// Logger builds the configured logger.
func (l LogConfig) Logger() *Logger {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	if strings.EqualFold(l.Format, "json") {
		return NewJSONLogger(lvl)
	}
	return NewTextLogger(lvl)
}
