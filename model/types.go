package model

import (
	"maps"
	"slices"

	"github.com/google/uuid"
)

// Reserved metadata keys.
const (
	KeyUserID         = "userId"
	KeyConversationID = "conversationId"
	// KeyText is used by drivers that can only persist metadata.
	KeyText = "text"
)

// IDPrefix is prepended to generated record IDs.
const IDPrefix = "vec_"

// NewID returns a fresh, collision-resistant record ID.
func NewID() string {
	return IDPrefix + uuid.NewString()
}

// Record represents a stored vector with its metadata.
type Record struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Text     string         `json:"text,omitempty"`
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	return Record{
		ID:       r.ID,
		Vector:   slices.Clone(r.Vector),
		Metadata: CloneMetadata(r.Metadata),
		Text:     r.Text,
	}
}

// Dimension returns the vector length.
func (r Record) Dimension() int { return len(r.Vector) }

// Match is a single search result.
type Match struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Vector   []float32      `json:"vector,omitempty"`
	Text     string         `json:"text,omitempty"`
}

// Record converts m back into a record.
func (m Match) Record() Record {
	return Record{ID: m.ID, Vector: m.Vector, Metadata: m.Metadata, Text: m.Text}
}

// CloneMetadata deep-copies nested maps and slices. Scalars are shared.
func CloneMetadata(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMetadata(t)
	case map[string]string:
		return maps.Clone(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return slices.Clone(t)
	case []float32:
		return slices.Clone(t)
	case []float64:
		return slices.Clone(t)
	case []int:
		return slices.Clone(t)
	case []byte:
		return slices.Clone(t)
	default:
		return v
	}
}
