package vecmem

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/vecmem/backend"
	"github.com/hupe1980/vecmem/blobstore"
	"github.com/hupe1980/vecmem/embed"
	"github.com/hupe1980/vecmem/hybrid"
	"github.com/hupe1980/vecmem/index/sqlite"
	"github.com/hupe1980/vecmem/metadata"
	"github.com/hupe1980/vecmem/model"
	"github.com/hupe1980/vecmem/recency"
	"github.com/hupe1980/vecmem/snapshot"
)

// DB is a vector memory opened from a Config. Errors returned by its
// methods use the package error taxonomy.
type DB struct {
	coll *backend.Collection
	*state
}

// state is shared by a DB and its tenant handles.
type state struct {
	cfg    Config
	logger *Logger

	mu      sync.Mutex
	closers []io.Closer
	closed  bool
}

// Compile time check to ensure DB satisfies the Backend interface.
var _ backend.Backend = (*DB)(nil)

// Open validates cfg and opens the configured engine.
func Open(ctx context.Context, cfg Config, optFns ...Option) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := applyOptions(optFns)
	logger := o.logger
	if logger == nil {
		logger = cfg.Log.Logger()
	}

	idx, err := openIndex(ctx, cfg, logger)
	if err != nil {
		return nil, translateError(err)
	}

	coll, err := backend.New(idx,
		backend.WithKey(cfg.Key),
		backend.WithLogger(logger),
		backend.WithMetricsCollector(o.metricsCollector),
		backend.WithSeedConcurrency(cfg.Seed.Concurrency),
		backend.WithSeedRateLimit(cfg.Seed.RateLimit),
	)
	if err != nil {
		_ = idx.Close()
		return nil, translateError(err)
	}

	logger.InfoContext(ctx, "memory opened", "engine", cfg.Engine, "key", cfg.Key)

	return &DB{
		coll:  coll,
		state: &state{cfg: cfg, logger: logger},
	}, nil
}

// Config returns the configuration the DB was opened with.
func (db *DB) Config() Config { return db.cfg }

// Collection exposes the underlying backend for callers that need driver access.
func (db *DB) Collection() *backend.Collection { return db.coll }

// ForTenant returns a handle scoped to t. Handles share the engine and are
// closed together with the DB.
func (db *DB) ForTenant(t backend.Tenant) *DB {
	return &DB{coll: db.coll.ForTenant(t), state: db.state}
}

// Type implements backend.Backend.
func (db *DB) Type() string { return db.coll.Type() }

// Tenant implements backend.Backend.
func (db *DB) Tenant() backend.Tenant { return db.coll.Tenant() }

// Add implements backend.Backend.
func (db *DB) Add(ctx context.Context, rec model.Record) (string, error) {
	id, err := db.coll.Add(ctx, rec)
	return id, translateError(err)
}

// Get implements backend.Backend.
func (db *DB) Get(ctx context.Context, id string) (model.Record, bool, error) {
	rec, ok, err := db.coll.Get(ctx, id)
	return rec, ok, translateError(err)
}

// Delete implements backend.Backend.
func (db *DB) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := db.coll.Delete(ctx, id)
	return ok, translateError(err)
}

// Search implements backend.Backend.
func (db *DB) Search(ctx context.Context, query []float32, opts ...backend.SearchOption) ([]model.Match, error) {
	matches, err := db.coll.Search(ctx, query, opts...)
	return matches, translateError(err)
}

// Count implements backend.Backend.
func (db *DB) Count(ctx context.Context, filter *metadata.FilterSet) (int, error) {
	n, err := db.coll.Count(ctx, filter)
	return n, translateError(err)
}

// GetAll implements backend.Backend.
func (db *DB) GetAll(ctx context.Context, filter *metadata.FilterSet) ([]model.Record, error) {
	recs, err := db.coll.GetAll(ctx, filter)
	return recs, translateError(err)
}

// Clear implements backend.Backend.
func (db *DB) Clear(ctx context.Context, filter *metadata.FilterSet) (int, error) {
	n, err := db.coll.Clear(ctx, filter)
	return n, translateError(err)
}

// Seed implements backend.Backend.
func (db *DB) Seed(ctx context.Context, recs []model.Record) backend.SeedResult {
	return translateSeed(db.coll.Seed(ctx, recs))
}

// SeedAsync implements backend.Backend.
func (db *DB) SeedAsync(ctx context.Context, recs []model.Record) <-chan backend.SeedResult {
	out := make(chan backend.SeedResult, 1)
	in := db.coll.SeedAsync(ctx, recs)
	go func() {
		defer close(out)
		out <- translateSeed(<-in)
	}()
	return out
}

func translateSeed(res backend.SeedResult) backend.SeedResult {
	for i, err := range res.Errors {
		res.Errors[i] = translateError(err)
	}
	return res
}

// Export implements backend.Backend.
func (db *DB) Export(ctx context.Context) (*backend.Snapshot, error) {
	snap, err := db.coll.Export(ctx)
	return snap, translateError(err)
}

// Import implements backend.Backend.
func (db *DB) Import(ctx context.Context, snap *backend.Snapshot) error {
	return translateError(db.coll.Import(ctx, snap))
}

// Save exports the records in scope and writes them to store as a snapshot.
func (db *DB) Save(ctx context.Context, store blobstore.Store, name string, optFns ...func(o *snapshot.Options)) error {
	snap, err := db.Export(ctx)
	if err != nil {
		return err
	}

	err = snapshot.Save(ctx, store, name, snap, optFns...)
	db.logger.LogSnapshot(ctx, "save", name, len(snap.Records), err)
	return err
}

// Restore replaces the records in scope with the snapshot stored under name.
func (db *DB) Restore(ctx context.Context, store blobstore.Store, name string, optFns ...func(o *snapshot.Options)) error {
	var snap backend.Snapshot
	if _, err := snapshot.Load(ctx, store, name, &snap, optFns...); err != nil {
		db.logger.LogSnapshot(ctx, "load", name, 0, err)
		return err
	}

	err := db.Import(ctx, &snap)
	db.logger.LogSnapshot(ctx, "load", name, len(snap.Records), err)
	return err
}

// Hybrid builds conversational memory over the records in scope, using the
// recency store named by Config.Hybrid.
func (db *DB) Hybrid(ctx context.Context, embedder embed.Embedder, optFns ...func(o *hybrid.Options)) (*hybrid.Engine, error) {
	h := db.cfg.Hybrid

	recent, err := db.openRecency(ctx)
	if err != nil {
		return nil, err
	}

	base := func(o *hybrid.Options) {
		o.RecentLimit = h.RecentLimit
		o.SemanticLimit = h.SemanticLimit
		o.TotalLimit = h.TotalLimit
		o.RecentWeight = h.RecentWeight
		o.GetAllMode = hybrid.GetAllMode(h.GetAllMode)
		o.Key = db.cfg.Key
		o.Tenant = db.coll.Tenant()
		o.Logger = db.logger
	}

	eng, err := hybrid.New(recent, db.coll, embedder, append([]func(o *hybrid.Options){base}, optFns...)...)
	if err != nil {
		return nil, translateError(err)
	}
	return eng, nil
}

func (db *DB) openRecency(ctx context.Context) (recency.Store, error) {
	h := db.cfg.Hybrid
	if h.Recency != RecencySQLite {
		return recency.NewMemory(h.RecencyCapacity), nil
	}

	sqlDB, err := sql.Open(sqlite.DriverName, h.RecencyDSN)
	if err != nil {
		return nil, fmt.Errorf("open recency store: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	store, err := recency.NewSQLite(ctx, sqlDB, db.recencyKey(), h.RecencyCapacity)
	if err != nil {
		_ = sqlDB.Close()
		return nil, translateError(err)
	}

	if err := db.track(store, sqlDB); err != nil {
		_ = store.Close()
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// recencyKey gives every tenant scope its own FIFO in a shared recency table.
func (db *DB) recencyKey() string {
	t := db.coll.Tenant()
	if t.IsZero() {
		return db.cfg.Key
	}
	return db.cfg.Key + "/" + t.UserID + "/" + t.ConversationID
}

func (db *DB) track(closers ...io.Closer) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	db.closers = append(db.closers, closers...)
	return nil
}

// Close releases the engine and every store opened through the DB.
// Closing a tenant handle closes the whole DB.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	var errs []error
	for _, c := range db.closers {
		errs = append(errs, c.Close())
	}
	errs = append(errs, db.coll.Close())
	return errors.Join(errs...)
}
