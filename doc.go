// Package vecmem provides vector-similarity memory for conversational agents.
//
// A memory is a collection of records (id, vector, metadata, text) stored in
// one of several engines and queried by cosine similarity. Records can be
// scoped to a tenant (user and conversation) so that many agents share one
// physical store without ever seeing each other's data.
//
// # Engines
//
//   - flat: exact in-memory search
//   - hnsw: in-memory graph index with tombstone rebuilds
//   - chromem: embedded chromem-go collection, optionally persisted
//   - sqlite: durable single-file store (pure Go driver)
//   - pgvector: remote PostgreSQL with the pgvector extension
//
// # Quick Start
//
//	ctx := context.Background()
//	cfg := vecmem.DefaultConfig()
//	cfg.Engine = vecmem.EngineHNSW
//
//	db, err := vecmem.Open(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	id, _ := db.Add(ctx, model.Record{Vector: vec, Text: "hello"})
//	matches, _ := db.Search(ctx, query, backend.WithLimit(5))
//
// Configuration can also come from the environment:
//
//	cfg, err := vecmem.LoadConfig("VECMEM") // VECMEM_ENGINE, VECMEM_HNSW_M, ...
//
// # Tenants
//
//	alice := db.ForTenant(backend.Tenant{UserID: "alice", ConversationID: "c1"})
//	alice.Add(ctx, rec) // stamped with userId/conversationId
//
// # Conversational Memory
//
// Hybrid combines a bounded recency buffer with the semantic store:
//
//	mem, _ := db.Hybrid(ctx, embed.NewHash(64))
//	mem.Add(ctx, hybrid.Message{Text: "I like green tea"})
//	items, _ := mem.GetRelevant(ctx, "what do I drink?", 5, nil)
//
// # Persistence
//
// Export snapshots are framed, checksummed and compressed:
//
//	store, _ := blobstore.NewLocalStore("./snapshots")
//	db.Save(ctx, store, "notes")
//	db.Restore(ctx, store, "notes")
package vecmem
