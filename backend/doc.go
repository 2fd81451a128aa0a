// Package backend defines the uniform contract every vector store in vecmem
// honours and implements it over any index.Index driver.
//
// A Collection owns a driver. Tenant handles created with ForTenant share that
// driver and thread the tenant's equality filter through every call, so a
// handle never observes records of another user or conversation:
//
//	coll, _ := backend.New(idx, backend.WithKey("notes"))
//	alice := coll.ForTenant(backend.Tenant{UserID: "alice"})
//	id, err := alice.Add(ctx, model.Record{Vector: v})
//	matches, err := alice.Search(ctx, q, backend.WithLimit(5), backend.WithThreshold(0.2))
//
// Bulk loading goes through Seed (sequential) or SeedAsync (bounded worker
// pool with an optional rate limit for remote drivers). Export and Import move
// the records of one scope in a self-describing Snapshot.
package backend
