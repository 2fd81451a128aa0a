package hybrid

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/vecmem/backend"
	"github.com/hupe1980/vecmem/model"
)

// SnapshotType marks hybrid snapshots.
const SnapshotType = "hybrid"

// Snapshot is the portable export layout of an engine scope.
type Snapshot struct {
	Type           string         `json:"type"`
	Key            string         `json:"key"`
	UserID         string         `json:"userId,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	Config         map[string]any `json:"config,omitempty"`
	Messages       []model.Record `json:"messages"`
	Records        []model.Record `json:"records"`
}

// Export captures the recent messages and semantic records in scope.
func (e *Engine) Export(ctx context.Context) (snap *Snapshot, err error) {
	ctx, span := e.start(ctx, "hybrid.Export")
	defer func() { endSpan(span, err) }()

	msgs, err := e.recentMessages(ctx, e.recent.Capacity(), nil)
	if err != nil {
		return nil, err
	}

	sem, err := e.semantic.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("hybrid: export semantic: %w", err)
	}

	cfg := map[string]any{
		"recentLimit":   e.opts.RecentLimit,
		"semanticLimit": e.opts.SemanticLimit,
		"totalLimit":    e.opts.TotalLimit,
		"recentWeight":  e.opts.RecentWeight,
		"getAllMode":    string(e.opts.GetAllMode),
		"backend":       sem.Type,
	}

	return &Snapshot{
		Type:           SnapshotType,
		Key:            e.opts.Key,
		UserID:         e.opts.Tenant.UserID,
		ConversationID: e.opts.Tenant.ConversationID,
		Config:         cfg,
		Messages:       msgs,
		Records:        sem.Records,
	}, nil
}

// Import replaces the engine scope with snap. Messages and records are
// stamped with the engine tenant.
func (e *Engine) Import(ctx context.Context, snap *Snapshot) (err error) {
	ctx, span := e.start(ctx, "hybrid.Import")
	defer func() { endSpan(span, err) }()

	if snap == nil {
		return backend.ErrNilSnapshot
	}
	if snap.Type != SnapshotType {
		return fmt.Errorf("hybrid: import: unexpected snapshot type %q", snap.Type)
	}

	if err := e.clearRecent(ctx); err != nil {
		return fmt.Errorf("hybrid: import: %w", err)
	}

	var errs []error
	for _, m := range snap.Messages {
		m.Metadata = e.opts.Tenant.Stamp(model.CloneMetadata(m.Metadata))
		if err := e.recent.Append(ctx, m); err != nil {
			errs = append(errs, fmt.Errorf("message %s: %w", m.ID, err))
		}
	}

	if err := e.semantic.Import(ctx, &backend.Snapshot{
		Type:    e.semantic.Type(),
		Key:     snap.Key,
		Records: snap.Records,
	}); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("hybrid: import %s: %w", snap.Key, err)
	}
	return nil
}
