package backend

import (
	"github.com/hupe1980/vecmem/metadata"
	"github.com/hupe1980/vecmem/model"
)

// Tenant identifies a user and conversation scope. Empty components are
// wildcards, so a Tenant with only UserID spans all of that user's conversations.
type Tenant struct {
	UserID         string `json:"userId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// IsZero reports whether t scopes nothing.
func (t Tenant) IsZero() bool {
	return t.UserID == "" && t.ConversationID == ""
}

// Filter returns the equality filter selecting t's records, or nil for the zero tenant.
func (t Tenant) Filter() *metadata.FilterSet {
	if t.IsZero() {
		return nil
	}
	fs := metadata.NewFilterSet()
	if t.UserID != "" {
		fs.Filters = append(fs.Filters, metadata.Eq(model.KeyUserID, t.UserID))
	}
	if t.ConversationID != "" {
		fs.Filters = append(fs.Filters, metadata.Eq(model.KeyConversationID, t.ConversationID))
	}
	return fs
}

// Owns reports whether md belongs to t.
func (t Tenant) Owns(md map[string]any) bool {
	if t.UserID != "" && !stringAt(md, model.KeyUserID, t.UserID) {
		return false
	}
	if t.ConversationID != "" && !stringAt(md, model.KeyConversationID, t.ConversationID) {
		return false
	}
	return true
}

// Stamp returns a copy of md carrying t's identity keys. Caller values for
// those keys are overwritten.
func (t Tenant) Stamp(md map[string]any) map[string]any {
	if t.IsZero() {
		return md
	}
	out := make(map[string]any, len(md)+2)
	for k, v := range md {
		out[k] = v
	}
	if t.UserID != "" {
		out[model.KeyUserID] = t.UserID
	}
	if t.ConversationID != "" {
		out[model.KeyConversationID] = t.ConversationID
	}
	return out
}

func stringAt(md map[string]any, key, want string) bool {
	s, ok := md[key].(string)
	return ok && s == want
}
