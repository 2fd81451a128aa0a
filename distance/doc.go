// Package distance provides the similarity functions used by vecmem indexes.
//
// All scorers are "higher is better": cosine and dot product are returned as
// is, L2 is returned as the negated squared Euclidean distance. This keeps
// threshold and ordering semantics identical across metrics.
package distance
