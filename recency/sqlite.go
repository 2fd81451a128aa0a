package recency

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"sync"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/hupe1980/vecmem/index"
	"github.com/hupe1980/vecmem/model"
)

// Compile-time check to ensure SQLite satisfies the Store interface.
var _ Store = (*SQLite)(nil)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteOptions contains configuration options for the SQLite store.
type SQLiteOptions struct {
	// Table holds the entries of every key.
	Table string
}

// DefaultSQLiteOptions contains the default configuration options for the SQLite store.
var DefaultSQLiteOptions = SQLiteOptions{
	Table: "vecmem_recency",
}

// SQLite is a durable store. Entries of different keys share one table.
type SQLite struct {
	mu       sync.Mutex
	db       *sql.DB
	key      string
	capacity int
	table    string
	closed   bool
}

// NewSQLite creates the schema if needed and returns the store for key.
func NewSQLite(ctx context.Context, db *sql.DB, key string, capacity int, optFns ...func(o *SQLiteOptions)) (*SQLite, error) {
	opts := DefaultSQLiteOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if db == nil {
		return nil, index.InvalidConfig("db", nil, "must not be nil")
	}
	if key == "" {
		return nil, index.InvalidConfig("key", key, "must not be empty")
	}
	if !tableName.MatchString(opts.Table) {
		return nil, index.InvalidConfig("Table", opts.Table, "must be a plain identifier")
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	s := &SQLite{db: db, key: key, capacity: capacity, table: opts.Table}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL,
			id TEXT NOT NULL,
			text TEXT,
			metadata TEXT,
			vector BLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS ` + s.table + `_key ON ` + s.table + ` (key, seq)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("recency: migrate: %w", err)
		}
	}
	return nil
}

// Append implements Store. The insert and the FIFO trim share a transaction.
func (s *SQLite) Append(ctx context.Context, rec model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	var md any
	if len(rec.Metadata) > 0 {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("recency: encode metadata: %w", err)
		}
		md = string(b)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recency: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+s.table+` (key, id, text, metadata, vector) VALUES (?, ?, ?, ?, ?)`,
		s.key, rec.ID, rec.Text, md, encodeVector(rec.Vector)); err != nil {
		return fmt.Errorf("recency: append: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM `+s.table+` WHERE key = ? AND seq NOT IN (
			SELECT seq FROM `+s.table+` WHERE key = ? ORDER BY seq DESC LIMIT ?)`,
		s.key, s.key, s.capacity); err != nil {
		return fmt.Errorf("recency: trim: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recency: commit: %w", err)
	}
	return nil
}

// Recent implements Store.
func (s *SQLite) Recent(ctx context.Context, n int) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []model.Record{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, metadata, vector FROM `+s.table+` WHERE key = ? ORDER BY seq DESC LIMIT ?`,
		s.key, min(n, s.capacity))
	if err != nil {
		return nil, fmt.Errorf("recency: query: %w", err)
	}
	defer rows.Close()

	out := []model.Record{}
	for rows.Next() {
		var rec model.Record
		if err := scanRecord(rows, nil, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recency: query: %w", err)
	}

	slices.Reverse(out)
	return out, nil
}

// scanRecord reads (seq?, id, text, metadata, vector). seq is skipped when nil.
func scanRecord(rows *sql.Rows, seq *int64, rec *model.Record) error {
	var (
		text sql.NullString
		md   sql.NullString
		vec  []byte
	)
	dest := []any{&rec.ID, &text, &md, &vec}
	if seq != nil {
		dest = append([]any{seq}, dest...)
	}
	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("recency: scan: %w", err)
	}
	rec.Text = text.String
	if md.Valid && md.String != "" {
		if err := json.Unmarshal([]byte(md.String), &rec.Metadata); err != nil {
			return fmt.Errorf("recency: decode metadata: %w", err)
		}
	}
	rec.Vector = decodeVector(vec)
	return nil
}

// All implements Store.
func (s *SQLite) All(ctx context.Context) ([]model.Record, error) {
	return s.Recent(ctx, s.capacity)
}

// Len implements Store.
func (s *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+s.table+` WHERE key = ?`, s.key).Scan(&n); err != nil {
		return 0, fmt.Errorf("recency: count: %w", err)
	}
	return n, nil
}

// Clear implements Store.
func (s *SQLite) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE key = ?`, s.key); err != nil {
		return fmt.Errorf("recency: clear: %w", err)
	}
	return nil
}

// Remove implements Store. Selection and deletion share one transaction.
func (s *SQLite) Remove(ctx context.Context, match func(model.Record) bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("recency: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	seqs, err := s.matching(ctx, tx, match)
	if err != nil {
		return 0, err
	}
	if len(seqs) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM `+s.table+` WHERE key = ? AND seq = ?`)
	if err != nil {
		return 0, fmt.Errorf("recency: remove: %w", err)
	}
	defer stmt.Close()

	for _, seq := range seqs {
		if _, err := stmt.ExecContext(ctx, s.key, seq); err != nil {
			return 0, fmt.Errorf("recency: remove: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("recency: commit: %w", err)
	}
	return len(seqs), nil
}

func (s *SQLite) matching(ctx context.Context, tx *sql.Tx, match func(model.Record) bool) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT seq, id, text, metadata, vector FROM `+s.table+` WHERE key = ? ORDER BY seq`, s.key)
	if err != nil {
		return nil, fmt.Errorf("recency: query: %w", err)
	}
	defer rows.Close()

	var seqs []int64
	for rows.Next() {
		var (
			seq int64
			rec model.Record
		)
		if err := scanRecord(rows, &seq, &rec); err != nil {
			return nil, err
		}
		if match(rec) {
			seqs = append(seqs, seq)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recency: query: %w", err)
	}
	return seqs, nil
}

// Capacity implements Store.
func (s *SQLite) Capacity() int { return s.capacity }

// Close stops further appends. The database handle stays open.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
