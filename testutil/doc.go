// Package testutil provides testing utilities for vecmem.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random vectors, computing exact
// nearest neighbors, and verifying search recall.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UnitVectors(1000, 128)
//
// # Exact Search (Ground Truth)
//
//	truth := testutil.BruteForceSearch(vecs, query, k)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(truth, approx)
package testutil
