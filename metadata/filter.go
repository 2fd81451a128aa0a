package metadata

import (
	"errors"
	"fmt"
	"slices"
)

// ErrUnsupportedOperator is returned when a filter uses anything but equality.
var ErrUnsupportedOperator = errors.New("unsupported filter operator")

// ErrInvalidFilterValue is returned when a filter value could not be typed.
var ErrInvalidFilterValue = errors.New("invalid filter value")

// Operator represents a comparison operator for filtering.
type Operator string

const (
	// OpEqual represents the equality operator.
	OpEqual Operator = "eq"
	// OpNotEqual represents the inequality operator. Not supported.
	OpNotEqual Operator = "ne"
	// OpIn represents the in list operator. Not supported.
	OpIn Operator = "in"
)

// Filter represents a single metadata filter condition.
type Filter struct {
	Key      string
	Operator Operator
	Value    Value
}

// Eq returns an equality filter for key. Values that cannot be typed yield
// a filter that fails validation.
func Eq(key string, value any) Filter {
	v, err := FromAny(value)
	if err != nil {
		v = Value{Kind: KindInvalid}
	}
	return Filter{Key: key, Operator: OpEqual, Value: v}
}

// Matches checks if the provided metadata matches this filter.
func (f *Filter) Matches(doc Document) bool {
	value, exists := doc[f.Key]
	if !exists {
		return false
	}

	switch f.Operator {
	case OpEqual:
		return compareEqual(value, f.Value)
	default:
		return false
	}
}

func (f *Filter) matchesAny(md map[string]any) bool {
	raw, exists := md[f.Key]
	if !exists {
		return false
	}
	value, err := FromAny(raw)
	if err != nil {
		return false
	}
	return f.Operator == OpEqual && compareEqual(value, f.Value)
}

// FilterSet represents a set of filters that must all match (AND logic).
// A nil or empty FilterSet matches everything.
type FilterSet struct {
	Filters []Filter
}

// NewFilterSet creates a new filter set.
func NewFilterSet(filters ...Filter) *FilterSet {
	return &FilterSet{Filters: filters}
}

// FromMap builds an equality conjunction from a plain key/value map.
func FromMap(m map[string]any) (*FilterSet, error) {
	if len(m) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	fs := &FilterSet{Filters: make([]Filter, 0, len(keys))}
	for _, k := range keys {
		v, err := FromAny(m[k])
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidFilterValue, k, err)
		}
		fs.Filters = append(fs.Filters, Filter{Key: k, Operator: OpEqual, Value: v})
	}
	return fs, nil
}

// IsEmpty reports whether fs has no conditions.
func (fs *FilterSet) IsEmpty() bool {
	return fs == nil || len(fs.Filters) == 0
}

// Validate checks that every condition is a well-typed equality.
func (fs *FilterSet) Validate() error {
	if fs == nil {
		return nil
	}
	for _, f := range fs.Filters {
		if f.Operator != OpEqual {
			return fmt.Errorf("%w: %q on field %q", ErrUnsupportedOperator, f.Operator, f.Key)
		}
		if f.Value.Kind == KindInvalid {
			return fmt.Errorf("%w: field %q", ErrInvalidFilterValue, f.Key)
		}
	}
	return nil
}

// And returns the conjunction of fs and other. Neither input is modified.
func (fs *FilterSet) And(other *FilterSet) *FilterSet {
	switch {
	case fs.IsEmpty() && other.IsEmpty():
		return nil
	case fs.IsEmpty():
		return &FilterSet{Filters: slices.Clone(other.Filters)}
	case other.IsEmpty():
		return &FilterSet{Filters: slices.Clone(fs.Filters)}
	}
	out := make([]Filter, 0, len(fs.Filters)+len(other.Filters))
	out = append(out, fs.Filters...)
	out = append(out, other.Filters...)
	return &FilterSet{Filters: out}
}

// Matches checks if the provided metadata matches all filters in the set.
func (fs *FilterSet) Matches(md map[string]any) bool {
	if fs == nil {
		return true
	}
	for i := range fs.Filters {
		if !fs.Filters[i].matchesAny(md) {
			return false
		}
	}
	return true
}

// MatchesDocument is Matches for an already typed document.
func (fs *FilterSet) MatchesDocument(doc Document) bool {
	if fs == nil {
		return true
	}
	for i := range fs.Filters {
		if !fs.Filters[i].Matches(doc) {
			return false
		}
	}
	return true
}

// ToMap returns the conditions as plain values, the shape remote stores
// expect for containment queries. Later conditions on the same key win.
func (fs *FilterSet) ToMap() map[string]any {
	if fs.IsEmpty() {
		return nil
	}
	out := make(map[string]any, len(fs.Filters))
	for _, f := range fs.Filters {
		out[f.Key] = f.Value.Any()
	}
	return out
}

// Contradicts reports whether fs requires two different values for one key.
func (fs *FilterSet) Contradicts() bool {
	if fs.IsEmpty() {
		return false
	}
	seen := make(map[string]string, len(fs.Filters))
	for _, f := range fs.Filters {
		k := f.Value.Key()
		if prev, ok := seen[f.Key]; ok && prev != k {
			return true
		}
		seen[f.Key] = k
	}
	return false
}

// compareEqual compares two values for equality.
func compareEqual(a, b Value) bool {
	if a.Kind == KindNull && b.Kind == KindNull {
		return true
	}
	if a.Kind == KindNull || b.Kind == KindNull {
		return false
	}

	if isNumber(a) && isNumber(b) {
		// Prefer exact int compare when possible.
		if a.Kind == KindInt && b.Kind == KindInt {
			return a.I64 == b.I64
		}
		return asFloat64(a) == asFloat64(b)
	}

	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case KindString:
		return a.s == b.s
	case KindBool:
		return a.B == b.B
	case KindArray:
		if len(a.A) != len(b.A) {
			return false
		}
		for i := range a.A {
			if !compareEqual(a.A[i], b.A[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.O) != len(b.O) {
			return false
		}
		for k, av := range a.O {
			bv, ok := b.O[k]
			if !ok || !compareEqual(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func isNumber(v Value) bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

func asFloat64(v Value) float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.I64)
	case KindFloat:
		return v.F64
	default:
		return 0
	}
}
