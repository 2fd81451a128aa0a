// Package index defines the contract shared by every vecmem index driver.
//
// A driver stores model.Records in one collection and answers similarity
// queries over them. The in-process drivers are:
//
//   - flat: exact brute-force scan, the correctness oracle
//   - hnsw: approximate graph index with tombstones and periodic rebuild
//
// Remote and embedded stores (chromem, sqlite, pgvector) implement the same
// interface so a collection can switch drivers without changing callers.
//
// # Ordering
//
// Search results are ordered by descending score. Ties are broken by the
// order in which records were first inserted; an upsert keeps its original
// position.
package index
