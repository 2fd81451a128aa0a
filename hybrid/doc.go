// Package hybrid blends short-term history with semantic recall.
//
// An Engine writes every message to a recency.Store and, after embedding it,
// to a backend.Backend. Reads merge the newest messages with the best
// semantic matches, deduplicated by message identity:
//
//	eng, err := hybrid.New(recent, semantic, embedder, func(o *hybrid.Options) {
//	    o.RecentWeight = 0.3
//	})
//	id, err := eng.Add(ctx, hybrid.Message{Text: "the deploy failed at 3am"})
//	items, err := eng.GetRelevant(ctx, "deployment incidents", 5, nil)
//
// A failed semantic write never fails Add. The message stays in the recency
// store and the failure is logged and counted in Stats.
package hybrid
