package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/vecmem/model"
)

func TestTenant(t *testing.T) {
	tests := []struct {
		name    string
		tenant  Tenant
		md      map[string]any
		owns    bool
		filters int
	}{
		{"zero owns everything", Tenant{}, map[string]any{model.KeyUserID: "x"}, true, 0},
		{"user match", Tenant{UserID: "u"}, map[string]any{model.KeyUserID: "u", model.KeyConversationID: "c"}, true, 1},
		{"user mismatch", Tenant{UserID: "u"}, map[string]any{model.KeyUserID: "v"}, false, 1},
		{"full match", Tenant{UserID: "u", ConversationID: "c"}, map[string]any{model.KeyUserID: "u", model.KeyConversationID: "c"}, true, 2},
		{"conversation missing", Tenant{UserID: "u", ConversationID: "c"}, map[string]any{model.KeyUserID: "u"}, false, 2},
		{"non-string value", Tenant{UserID: "1"}, map[string]any{model.KeyUserID: 1}, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.owns, tt.tenant.Owns(tt.md))

			fs := tt.tenant.Filter()
			if tt.filters == 0 {
				assert.Nil(t, fs)
				return
			}
			assert.Len(t, fs.Filters, tt.filters)
			assert.Equal(t, tt.owns, fs.Matches(tt.md))
		})
	}
}

func TestTenant_Stamp(t *testing.T) {
	md := map[string]any{"k": "v", model.KeyUserID: "spoof"}
	out := Tenant{UserID: "u", ConversationID: "c"}.Stamp(md)

	assert.Equal(t, "u", out[model.KeyUserID])
	assert.Equal(t, "c", out[model.KeyConversationID])
	assert.Equal(t, "v", out["k"])
	assert.Equal(t, "spoof", md[model.KeyUserID])

	assert.Nil(t, Tenant{}.Stamp(nil))
}
