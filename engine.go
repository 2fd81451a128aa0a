package vecmem

import (
	"context"

	"github.com/hupe1980/vecmem/distance"
	"github.com/hupe1980/vecmem/index"
	"github.com/hupe1980/vecmem/index/chromem"
	"github.com/hupe1980/vecmem/index/flat"
	"github.com/hupe1980/vecmem/index/hnsw"
	"github.com/hupe1980/vecmem/index/pgvector"
	"github.com/hupe1980/vecmem/index/sqlite"
)

// openIndex builds the driver named by cfg.Engine. cfg must be valid.
func openIndex(ctx context.Context, cfg Config, logger *Logger) (index.Index, error) {
	metric, err := distance.ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}

	switch cfg.Engine {
	case EngineFlat:
		return flat.New(func(o *flat.Options) {
			o.Dimension = cfg.Dimension
			o.Metric = metric
		})
	case EngineHNSW:
		return hnsw.New(func(o *hnsw.Options) {
			o.Dimension = cfg.Dimension
			o.Metric = metric
			o.M = cfg.HNSW.M
			o.EFConstruction = cfg.HNSW.EFConstruction
			o.EFSearch = cfg.HNSW.EFSearch
			o.Heuristic = cfg.HNSW.Heuristic
			o.RebuildRatio = cfg.HNSW.RebuildRatio
			o.MinRebuildDeletes = cfg.HNSW.MinRebuildDeletes
			o.Seed = cfg.HNSW.Seed
			o.Logger = logger.WithBackend(EngineHNSW).Logger
		})
	case EngineChromem:
		return chromem.New(func(o *chromem.Options) {
			o.Dimension = cfg.Dimension
			o.Collection = cfg.Chromem.Collection
			o.PersistDir = cfg.Chromem.Dir
			o.Compress = cfg.Chromem.Compress
		})
	case EngineSQLite:
		return sqlite.Open(ctx, cfg.SQLite.DSN, func(o *sqlite.Options) {
			o.Dimension = cfg.Dimension
			o.Metric = metric
			o.Table = cfg.SQLite.Table
			o.Collection = cfg.Key
		})
	case EnginePgvector:
		return pgvector.Open(ctx, cfg.Postgres.DSN, func(o *pgvector.Options) {
			o.Dimension = cfg.Dimension
			o.Metric = metric
			o.Table = cfg.Postgres.Table
			o.Collection = cfg.Key
			o.SkipExtension = cfg.Postgres.SkipExtension
		})
	default:
		return nil, invalidConfig("Engine", cfg.Engine, "unknown engine")
	}
}
