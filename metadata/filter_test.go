package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterSetMatches(t *testing.T) {
	md := map[string]any{
		"category": "tech",
		"year":     2024,
		"score":    1.0,
		"tags":     []any{"a", "b"},
		"nested":   map[string]any{"k": "v"},
	}

	tests := []struct {
		name string
		fs   *FilterSet
		want bool
	}{
		{"nil matches all", nil, true},
		{"empty matches all", NewFilterSet(), true},
		{"string eq", NewFilterSet(Eq("category", "tech")), true},
		{"string ne", NewFilterSet(Eq("category", "sports")), false},
		{"int vs float", NewFilterSet(Eq("year", 2024.0)), true},
		{"float vs int", NewFilterSet(Eq("score", 1)), true},
		{"conjunction", NewFilterSet(Eq("category", "tech"), Eq("year", 2024)), true},
		{"conjunction miss", NewFilterSet(Eq("category", "tech"), Eq("year", 2023)), false},
		{"missing key", NewFilterSet(Eq("absent", "x")), false},
		{"array", NewFilterSet(Eq("tags", []string{"a", "b"})), true},
		{"object", NewFilterSet(Eq("nested", map[string]any{"k": "v"})), true},
		{"kind mismatch", NewFilterSet(Eq("year", "2024")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fs.Matches(md))
		})
	}
}

func TestFilterSetValidate(t *testing.T) {
	require.NoError(t, (*FilterSet)(nil).Validate())
	require.NoError(t, NewFilterSet(Eq("a", 1)).Validate())

	err := NewFilterSet(Filter{Key: "a", Operator: OpNotEqual, Value: Int(1)}).Validate()
	require.ErrorIs(t, err, ErrUnsupportedOperator)

	err = NewFilterSet(Eq("a", make(chan int))).Validate()
	require.ErrorIs(t, err, ErrInvalidFilterValue)
}

func TestFilterSetAnd(t *testing.T) {
	a := NewFilterSet(Eq("userId", "u1"))
	b := NewFilterSet(Eq("topic", "go"))

	assert.Nil(t, (*FilterSet)(nil).And(nil))
	assert.Len(t, a.And(nil).Filters, 1)
	assert.Len(t, (*FilterSet)(nil).And(b).Filters, 1)

	both := a.And(b)
	assert.Len(t, both.Filters, 2)
	assert.Len(t, a.Filters, 1, "inputs must not be modified")

	assert.False(t, both.Contradicts())
	assert.True(t, a.And(NewFilterSet(Eq("userId", "u2"))).Contradicts())
}

func TestFromMap(t *testing.T) {
	fs, err := FromMap(map[string]any{"b": 2, "a": "x"})
	require.NoError(t, err)
	require.Len(t, fs.Filters, 2)
	assert.Equal(t, "a", fs.Filters[0].Key)
	assert.Equal(t, map[string]any{"a": "x", "b": int64(2)}, fs.ToMap())

	fs, err = FromMap(nil)
	require.NoError(t, err)
	assert.True(t, fs.IsEmpty())

	_, err = FromMap(map[string]any{"bad": struct{}{}})
	require.ErrorIs(t, err, ErrInvalidFilterValue)
}

func TestValueKeyMatchesEquality(t *testing.T) {
	assert.Equal(t, Int(3).Key(), Float(3).Key())
	assert.NotEqual(t, Float(3.5).Key(), Int(3).Key())
	assert.Equal(t,
		Object(map[string]Value{"a": Int(1), "b": String("x")}).Key(),
		Object(map[string]Value{"b": String("x"), "a": Int(1)}).Key(),
	)
}
