package hybrid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/vecmem/backend"
	"github.com/hupe1980/vecmem/embed"
	"github.com/hupe1980/vecmem/index"
	"github.com/hupe1980/vecmem/internal/logging"
	"github.com/hupe1980/vecmem/metadata"
	"github.com/hupe1980/vecmem/model"
	"github.com/hupe1980/vecmem/recency"
)

const tracerName = "github.com/hupe1980/vecmem/hybrid"

// IDPrefix is prepended to content-derived message identities.
const IDPrefix = "msg_"

// Message is a unit of conversation history.
type Message struct {
	// ID is optional. Messages without one are identified by their text.
	ID       string
	Text     string
	Metadata map[string]any
	// Vector skips the embedder when set.
	Vector []float32
}

// Identity returns the id a message is stored and deduplicated under.
func Identity(msg Message) string {
	if msg.ID != "" {
		return msg.ID
	}
	return IDPrefix + strconv.FormatUint(xxhash.Sum64String(msg.Text), 16)
}

// Source tells which store produced an Item.
type Source string

const (
	SourceRecent   Source = "recent"
	SourceSemantic Source = "semantic"
)

// Item is one merged result.
type Item struct {
	ID       string         `json:"id"`
	Text     string         `json:"text,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	// Score is the similarity for semantic hits and zero for recent messages
	// that were not also matched.
	Score  float32 `json:"score"`
	Source Source  `json:"source"`
}

// Stats counts engine events.
type Stats struct {
	Added            uint64
	SemanticFailures uint64
}

// scoper is implemented by backends that can hand out tenant-scoped views.
type scoper interface {
	ForTenant(t backend.Tenant) *backend.Collection
}

// Engine merges a recency store with a semantic backend.
type Engine struct {
	opts     Options
	recent   recency.Store
	semantic backend.Backend
	embedder embed.Embedder
	logger   *logging.Logger
	tracer   trace.Tracer

	added            atomic.Uint64
	semanticFailures atomic.Uint64
}

// New creates a hybrid engine. embedder may be nil when every message
// carries its own vector and ModeSemantic is not used.
func New(recent recency.Store, semantic backend.Backend, embedder embed.Embedder, optFns ...func(o *Options)) (*Engine, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := opts.validate(); err != nil {
		return nil, err
	}
	if recent == nil {
		return nil, index.InvalidConfig("recent", nil, "recency store must not be nil")
	}
	if semantic == nil {
		return nil, index.InvalidConfig("semantic", nil, "backend must not be nil")
	}
	if embedder == nil && opts.GetAllMode == ModeSemantic {
		return nil, index.InvalidConfig("GetAllMode", opts.GetAllMode, "semantic mode requires an embedder")
	}

	if semantic.Tenant() != opts.Tenant {
		s, ok := semantic.(scoper)
		if !ok {
			return nil, index.InvalidConfig("Tenant", opts.Tenant, "backend is bound to a different tenant")
		}
		semantic = s.ForTenant(opts.Tenant)
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	logger := logging.OrNoop(opts.Logger).WithTenant(opts.Tenant.UserID, opts.Tenant.ConversationID)

	return &Engine{
		opts:     opts,
		recent:   recent,
		semantic: semantic,
		embedder: embedder,
		logger:   &logging.Logger{Logger: logger.With("engine", "hybrid", "key", opts.Key)},
		tracer:   tp.Tracer(tracerName),
	}, nil
}

// Options returns the effective configuration.
func (e *Engine) Options() Options { return e.opts }

// Semantic returns the scoped semantic backend.
func (e *Engine) Semantic() backend.Backend { return e.semantic }

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Added:            e.added.Load(),
		SemanticFailures: e.semanticFailures.Load(),
	}
}

// Add stores msg and returns its identity. Only a recency failure is returned.
func (e *Engine) Add(ctx context.Context, msg Message) (id string, err error) {
	ctx, span := e.start(ctx, "hybrid.Add")
	defer func() { endSpan(span, err) }()

	id = Identity(msg)
	span.SetAttributes(attribute.String("vecmem.id", id))

	rec := model.Record{
		ID:       id,
		Text:     msg.Text,
		Metadata: e.opts.Tenant.Stamp(model.CloneMetadata(msg.Metadata)),
	}

	if err := e.recent.Append(ctx, rec); err != nil {
		return "", fmt.Errorf("hybrid: append recent: %w", err)
	}
	e.added.Add(1)

	if err := e.addSemantic(ctx, rec, msg.Vector); err != nil {
		e.semanticFailures.Add(1)
		span.AddEvent("semantic add failed", trace.WithAttributes(attribute.String("error", err.Error())))
		e.logger.WarnContext(ctx, "Semantic add failed", "id", id, "error", err)
	}

	return id, nil
}

func (e *Engine) addSemantic(ctx context.Context, rec model.Record, vector []float32) error {
	if len(vector) == 0 {
		v, err := e.embed(ctx, rec.Text)
		if err != nil {
			return err
		}
		vector = v
	}
	rec.Vector = vector

	_, err := e.semantic.Add(ctx, rec)
	return err
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	if e.embedder == nil {
		return nil, errors.New("hybrid: no embedder configured")
	}
	v, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("hybrid: embed: %w", err)
	}
	return v, nil
}

// GetAll returns up to TotalLimit items: the newest RecentLimit messages
// followed by SemanticLimit semantic records, without duplicates.
func (e *Engine) GetAll(ctx context.Context) (items []Item, err error) {
	ctx, span := e.start(ctx, "hybrid.GetAll")
	defer func() { endSpan(span, err) }()

	recent, err := e.recentMessages(ctx, e.opts.RecentLimit, nil)
	if err != nil {
		return nil, err
	}

	var sem []model.Match
	if e.opts.SemanticLimit > 0 {
		sem, err = e.semanticAll(ctx)
		if err != nil {
			return nil, err
		}
	}

	items = make([]Item, 0, min(e.opts.TotalLimit, len(recent)+len(sem)))
	seen := make(map[string]struct{}, cap(items))

	latest := newestFirst(recent)
	if len(latest) > e.opts.TotalLimit {
		latest = latest[:e.opts.TotalLimit]
	}
	for i := len(latest) - 1; i >= 0; i-- {
		seen[latest[i].ID] = struct{}{}
		items = append(items, recentItem(latest[i]))
	}
	for _, m := range sem {
		if len(items) == e.opts.TotalLimit {
			break
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		items = append(items, semanticItem(m))
	}

	span.SetAttributes(attribute.Int("vecmem.results", len(items)))
	return items, nil
}

func (e *Engine) semanticAll(ctx context.Context) ([]model.Match, error) {
	if e.opts.GetAllMode == ModeSemantic {
		q, err := e.embed(ctx, "")
		if err != nil {
			return nil, err
		}
		return e.semantic.Search(ctx, q, backend.WithLimit(e.opts.SemanticLimit))
	}

	recs, err := e.semantic.GetAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(recs) > e.opts.SemanticLimit {
		recs = recs[:e.opts.SemanticLimit]
	}
	out := make([]model.Match, len(recs))
	for i, r := range recs {
		out[i] = model.Match{ID: r.ID, Metadata: r.Metadata, Vector: r.Vector, Text: r.Text}
	}
	return out, nil
}

// GetRelevant merges a semantic search for query with the newest matching
// messages. round(RecentWeight*limit) slots go to recent messages and the
// rest to semantic hits; a pool that runs dry yields its slots to the other.
// A non-positive limit selects TotalLimit.
func (e *Engine) GetRelevant(ctx context.Context, query string, limit int, filter *metadata.FilterSet) (items []Item, err error) {
	ctx, span := e.start(ctx, "hybrid.GetRelevant")
	defer func() { endSpan(span, err) }()

	if limit <= 0 {
		limit = e.opts.TotalLimit
	}
	span.SetAttributes(attribute.Int("vecmem.limit", limit))

	if err := filter.Validate(); err != nil {
		return nil, err
	}

	q, err := e.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := e.semantic.Search(ctx, q,
		backend.WithLimit(limit+e.opts.RecentLimit),
		backend.WithFilter(filter),
	)
	if err != nil {
		return nil, err
	}

	recent, err := e.recentMessages(ctx, e.opts.RecentLimit, filter)
	if err != nil {
		return nil, err
	}

	items = merge(recent, hits, limit, e.opts.RecentWeight)

	span.SetAttributes(attribute.Int("vecmem.results", len(items)))
	return items, nil
}

// Clear empties both stores. Both are always attempted.
func (e *Engine) Clear(ctx context.Context) (err error) {
	ctx, span := e.start(ctx, "hybrid.Clear")
	defer func() { endSpan(span, err) }()

	var errs []error
	if err := e.clearRecent(ctx); err != nil {
		errs = append(errs, fmt.Errorf("hybrid: clear recent: %w", err))
	}
	if _, err := e.semantic.Clear(ctx, nil); err != nil {
		errs = append(errs, fmt.Errorf("hybrid: clear semantic: %w", err))
	}
	return errors.Join(errs...)
}

// clearRecent drops the tenant's messages and keeps everyone else's in order.
func (e *Engine) clearRecent(ctx context.Context) error {
	if e.opts.Tenant.IsZero() {
		return e.recent.Clear(ctx)
	}

	_, err := e.recent.Remove(ctx, func(r model.Record) bool {
		return e.opts.Tenant.Owns(r.Metadata)
	})
	return err
}

// recentMessages returns the newest n messages in scope matching filter, oldest first.
func (e *Engine) recentMessages(ctx context.Context, n int, filter *metadata.FilterSet) ([]model.Record, error) {
	if n <= 0 {
		return nil, nil
	}

	scope := e.opts.Tenant.Filter().And(filter)
	if scope.IsEmpty() {
		recs, err := e.recent.Recent(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("hybrid: read recent: %w", err)
		}
		return recs, nil
	}

	all, err := e.recent.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("hybrid: read recent: %w", err)
	}

	out := make([]model.Record, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		if scope.Matches(all[i].Metadata) {
			out = append(out, all[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (e *Engine) start(ctx context.Context, name string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("vecmem.key", e.opts.Key),
		attribute.String("vecmem.backend", e.semantic.Type()),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func recentItem(r model.Record) Item {
	return Item{ID: r.ID, Text: r.Text, Metadata: r.Metadata, Source: SourceRecent}
}

func semanticItem(m model.Match) Item {
	return Item{ID: m.ID, Text: m.Text, Metadata: m.Metadata, Score: m.Score, Source: SourceSemantic}
}

// recentSlots returns the number of slots reserved for recent messages.
func recentSlots(limit int, weight float64) int {
	return int(math.Round(weight * float64(limit)))
}
