// Package sqlite provides a durable index stored in SQLite through the pure Go
// modernc.org/sqlite driver.
//
// Vectors are kept as little-endian float32 BLOBs and scored in Go. String
// equality filters are pushed down with json_extract; every other condition is
// checked on the decoded metadata. Several collections can share one table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/hupe1980/vecmem/distance"
	"github.com/hupe1980/vecmem/index"
	"github.com/hupe1980/vecmem/metadata"
	"github.com/hupe1980/vecmem/model"
)

// Compile-time check to ensure Index satisfies the index contract.
var _ index.Index = (*Index)(nil)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options contains configuration options for the SQLite index.
type Options struct {
	// Dimension fixes the vector dimensionality up front.
	Dimension int

	// Metric selects the similarity function.
	Metric distance.Metric

	// Table is the records table. The dimension is kept in Table+"_meta".
	Table string

	// Collection partitions the table between independent collections.
	Collection string
}

// DefaultOptions contains the default configuration options for the SQLite index.
var DefaultOptions = Options{
	Metric:     distance.MetricCosine,
	Table:      "vecmem_records",
	Collection: "default",
}

// Index is a SQLite-backed index.
type Index struct {
	mu      sync.RWMutex
	db      *sql.DB
	ownsDB  bool
	opts    Options
	score   distance.Func
	dim     int
	nextSeq int64
	closed  bool

	qInsert string
	qGet    string
	qDelete string
	qScan   string
	qCount  string
}

// Open opens (or creates) the database at dsn and returns an index that owns it.
func Open(ctx context.Context, dsn string, optFns ...func(o *Options)) (*Index, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	ix, err := New(ctx, db, optFns...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ix.ownsDB = true
	return ix, nil
}

// New creates the schema if needed and loads the collection state.
func New(ctx context.Context, db *sql.DB, optFns ...func(o *Options)) (*Index, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if db == nil {
		return nil, index.InvalidConfig("db", nil, "must not be nil")
	}
	if opts.Dimension < 0 {
		return nil, index.InvalidConfig("Dimension", opts.Dimension, "must be >= 0")
	}
	if !tableName.MatchString(opts.Table) {
		return nil, index.InvalidConfig("Table", opts.Table, "must be a plain identifier")
	}
	if opts.Collection == "" {
		return nil, index.InvalidConfig("Collection", opts.Collection, "must not be empty")
	}

	score, err := opts.Metric.Similarity()
	if err != nil {
		return nil, index.InvalidConfig("Metric", opts.Metric, err.Error())
	}

	ix := &Index{db: db, opts: opts, score: score, dim: opts.Dimension}
	ix.prepareQueries()

	if err := ix.migrate(ctx); err != nil {
		return nil, err
	}
	if err := ix.load(ctx); err != nil {
		return nil, err
	}
	return ix, nil
}

func (ix *Index) prepareQueries() {
	t := ix.opts.Table
	ix.qInsert = `INSERT INTO ` + t + ` (collection, id, seq, vector, metadata, text) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			vector = excluded.vector,
			metadata = excluded.metadata,
			text = excluded.text`
	ix.qGet = `SELECT id, seq, vector, metadata, text FROM ` + t + ` WHERE collection = ? AND id = ?`
	ix.qDelete = `DELETE FROM ` + t + ` WHERE collection = ? AND id = ?`
	ix.qScan = `SELECT id, seq, vector, metadata, text FROM ` + t + ` WHERE collection = ?`
	ix.qCount = `SELECT COUNT(*) FROM ` + t + ` WHERE collection = ?`
}

func (ix *Index) migrate(ctx context.Context) error {
	t := ix.opts.Table
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + t + ` (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			vector BLOB NOT NULL,
			metadata TEXT,
			text TEXT,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS ` + t + `_seq ON ` + t + ` (collection, seq)`,
		`CREATE TABLE IF NOT EXISTS ` + t + `_meta (
			collection TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := ix.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return nil
}

func (ix *Index) load(ctx context.Context) error {
	var dim sql.NullInt64
	err := ix.db.QueryRowContext(ctx,
		`SELECT dimension FROM `+ix.opts.Table+`_meta WHERE collection = ?`, ix.opts.Collection).Scan(&dim)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("sqlite: load dimension: %w", err)
	case dim.Valid && dim.Int64 > 0:
		if ix.opts.Dimension > 0 && int(dim.Int64) != ix.opts.Dimension {
			return index.InvalidConfig("Dimension", ix.opts.Dimension,
				fmt.Sprintf("collection %s is stored with dimension %d", ix.opts.Collection, dim.Int64))
		}
		ix.dim = int(dim.Int64)
	}

	var maxSeq sql.NullInt64
	if err := ix.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM `+ix.opts.Table+` WHERE collection = ?`, ix.opts.Collection).Scan(&maxSeq); err != nil {
		return fmt.Errorf("sqlite: load sequence: %w", err)
	}
	if maxSeq.Valid {
		ix.nextSeq = maxSeq.Int64 + 1
	}
	return nil
}

func (*Index) Name() string { return "sqlite" }

// Dimension returns the collection dimension, or 0 before the first insert.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Config describes the index settings.
func (ix *Index) Config() map[string]any {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return map[string]any{
		"engine":     ix.Name(),
		"metric":     ix.opts.Metric.String(),
		"dimension":  ix.dim,
		"table":      ix.opts.Table,
		"collection": ix.opts.Collection,
	}
}

// Add inserts or replaces rec. Replaced rows keep their sequence number.
func (ix *Index) Add(ctx context.Context, rec model.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return "", index.ErrClosed
	}
	if err := index.CheckDimension(ix.dim, rec.Vector); err != nil {
		return "", err
	}
	if rec.ID == "" {
		rec.ID = model.NewID()
	}

	md, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode metadata of %s: %w", rec.ID, err)
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if ix.dim == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+ix.opts.Table+`_meta (collection, dimension) VALUES (?, ?)
			 ON CONFLICT(collection) DO UPDATE SET dimension = excluded.dimension`,
			ix.opts.Collection, len(rec.Vector)); err != nil {
			return "", fmt.Errorf("sqlite: store dimension: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, ix.qInsert,
		ix.opts.Collection, rec.ID, ix.nextSeq, encodeVector(rec.Vector), md, rec.Text); err != nil {
		return "", fmt.Errorf("sqlite: add %s: %w", rec.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("sqlite: commit: %w", err)
	}

	// The upsert leaves seq untouched; gaps in the sequence are harmless.
	ix.nextSeq++
	if ix.dim == 0 {
		ix.dim = len(rec.Vector)
	}
	return rec.ID, nil
}

// Get returns a copy of the record stored under id.
func (ix *Index) Get(ctx context.Context, id string) (model.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Record{}, false, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	row, err := scanRow(ix.db.QueryRowContext(ctx, ix.qGet, ix.opts.Collection, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, false, nil
	}
	if err != nil {
		return model.Record{}, false, fmt.Errorf("sqlite: get %s: %w", id, err)
	}
	return row.rec, true, nil
}

// Delete removes id and reports whether a record was removed.
func (ix *Index) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	res, err := ix.db.ExecContext(ctx, ix.qDelete, ix.opts.Collection, id)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: delete %s: %w", id, err)
	}
	return n > 0, nil
}

// Search scores matching rows in Go.
func (ix *Index) Search(ctx context.Context, query []float32, opts index.SearchOptions) ([]model.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if err := index.CheckDimension(ix.dim, query); err != nil {
		return nil, err
	}

	var rows []row
	top := index.NewTopK(opts.Limit)
	err = ix.scanLocked(ctx, opts.Filter, false, func(r row) {
		s := ix.score(query, r.rec.Vector)
		if s < opts.Threshold || math.IsNaN(float64(s)) {
			return
		}
		rows = append(rows, r)
		top.Push(index.Candidate{Slot: uint32(len(rows) - 1), Seq: uint64(r.seq), Score: s})
	})
	if err != nil {
		return nil, err
	}

	results := top.Results()
	matches := make([]model.Match, len(results))
	for i, c := range results {
		rec := rows[c.Slot].rec
		matches[i] = model.Match{
			ID:       rec.ID,
			Score:    c.Score,
			Metadata: rec.Metadata,
			Vector:   rec.Vector,
			Text:     rec.Text,
		}
	}
	return matches, nil
}

// Count returns the number of records matching filter.
func (ix *Index) Count(ctx context.Context, filter *metadata.FilterSet) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if filter.IsEmpty() {
		var n int
		if err := ix.db.QueryRowContext(ctx, ix.qCount, ix.opts.Collection).Scan(&n); err != nil {
			return 0, fmt.Errorf("sqlite: count: %w", err)
		}
		return n, nil
	}

	n := 0
	err := ix.scanLocked(ctx, filter, false, func(row) { n++ })
	return n, err
}

// Records returns copies of matching records in insertion order.
func (ix *Index) Records(ctx context.Context, filter *metadata.FilterSet) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := []model.Record{}
	err := ix.scanLocked(ctx, filter, true, func(r row) { out = append(out, r.rec) })
	return out, err
}

// Clear removes matching records. Without a filter the stored dimension is
// reset to the configured one.
func (ix *Index) Clear(ctx context.Context, filter *metadata.FilterSet) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if filter.IsEmpty() {
		return ix.clearAllLocked(ctx)
	}

	var ids []string
	if err := ix.scanLocked(ctx, filter, false, func(r row) { ids = append(ids, r.rec.ID) }); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, ix.qDelete)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, ix.opts.Collection, id); err != nil {
			return 0, fmt.Errorf("sqlite: clear %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return len(ids), nil
}

func (ix *Index) clearAllLocked(ctx context.Context) (int, error) {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM `+ix.opts.Table+` WHERE collection = ?`, ix.opts.Collection)
	if err != nil {
		return 0, fmt.Errorf("sqlite: clear: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+ix.opts.Table+`_meta WHERE collection = ?`, ix.opts.Collection); err != nil {
		return 0, fmt.Errorf("sqlite: clear dimension: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}

	n, _ := res.RowsAffected()
	ix.dim = ix.opts.Dimension
	return int(n), nil
}

// Close releases the database if the index opened it.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	if ix.ownsDB {
		return ix.db.Close()
	}
	return nil
}

type row struct {
	rec model.Record
	seq int64
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (row, error) {
	var (
		r    row
		blob []byte
		md   sql.NullString
		text sql.NullString
	)
	if err := s.Scan(&r.rec.ID, &r.seq, &blob, &md, &text); err != nil {
		return row{}, err
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return row{}, err
	}
	r.rec.Vector = vec
	r.rec.Text = text.String
	if md.Valid && md.String != "" {
		if err := json.Unmarshal([]byte(md.String), &r.rec.Metadata); err != nil {
			return row{}, err
		}
	}
	return r, nil
}

// scanLocked streams rows matching filter. String equalities are pushed into
// SQL and the full filter is re-checked on the decoded metadata.
func (ix *Index) scanLocked(ctx context.Context, filter *metadata.FilterSet, ordered bool, fn func(row)) error {
	if filter.Contradicts() {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(ix.qScan)
	args := []any{ix.opts.Collection}
	if filter != nil {
		for _, f := range filter.Filters {
			s, ok := f.Value.AsString()
			if !ok || strings.ContainsAny(f.Key, `"\`) {
				continue
			}
			sb.WriteString(` AND json_extract(metadata, ?) = ?`)
			args = append(args, `$."`+f.Key+`"`, s)
		}
	}
	if ordered {
		sb.WriteString(` ORDER BY seq`)
	}

	rows, err := ix.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("sqlite: scan: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return fmt.Errorf("sqlite: decode row: %w", err)
		}
		if !filter.Matches(r.rec.Metadata) {
			continue
		}
		fn(r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: scan: %w", err)
	}
	return nil
}

func encodeMetadata(md map[string]any) (any, error) {
	if len(md) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// encodeVector converts a float32 slice to little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector converts little-endian bytes back to a float32 slice.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob of %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
