// Package metadata provides typed metadata values, equality filters and
// Roaring Bitmap posting lists for vecmem indexes.
//
// Records carry free-form map[string]any metadata. For filtering, stored and
// requested values are converted into typed Values so that comparisons never
// depend on reflection or fmt-based stringification.
//
// # Filters
//
// A FilterSet is a conjunction of field equality checks:
//
//	fs := metadata.NewFilterSet(
//	    metadata.Eq("category", "tech"),
//	    metadata.Eq("year", 2024),
//	)
//
// Only equality is supported. Validate rejects any other operator with
// ErrUnsupportedOperator.
//
// # Posting Lists
//
// Postings maps field/value pairs to Roaring Bitmaps of index slots. Indexes
// compile a FilterSet into a bitmap and only score the slots it contains.
package metadata
