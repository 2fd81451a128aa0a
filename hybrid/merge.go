package hybrid

import "github.com/hupe1980/vecmem/model"

// merge fills limit slots from recent (oldest first) and hits (best first).
// Recent messages are taken newest first. An id present in both pools is
// reported once as a recent item carrying the semantic score.
func merge(recent []model.Record, hits []model.Match, limit int, weight float64) []Item {
	rSlots := min(recentSlots(limit, weight), limit)

	scores := make(map[string]float32, len(hits))
	for _, h := range hits {
		if _, ok := scores[h.ID]; !ok {
			scores[h.ID] = h.Score
		}
	}

	pool := newestFirst(recent)

	taken := make(map[string]struct{}, limit)
	nRecent := min(rSlots, len(pool))
	for _, r := range pool[:nRecent] {
		taken[r.ID] = struct{}{}
	}

	var sem []model.Match
	for _, h := range hits {
		if len(sem) == limit-nRecent {
			break
		}
		if _, dup := taken[h.ID]; dup {
			continue
		}
		taken[h.ID] = struct{}{}
		sem = append(sem, h)
	}

	// semantic ran dry: hand the rest back to recent messages
	for _, r := range pool[nRecent:] {
		if nRecent+len(sem) >= limit {
			break
		}
		if _, dup := taken[r.ID]; dup {
			continue
		}
		taken[r.ID] = struct{}{}
		pool[nRecent] = r
		nRecent++
	}

	items := make([]Item, 0, nRecent+len(sem))
	for i := nRecent - 1; i >= 0; i-- {
		it := recentItem(pool[i])
		it.Score = scores[it.ID]
		items = append(items, it)
	}
	for _, h := range sem {
		items = append(items, semanticItem(h))
	}
	return items
}

// newestFirst reverses recent (oldest first) and keeps only the newest
// entry of each id.
func newestFirst(recent []model.Record) []model.Record {
	out := make([]model.Record, 0, len(recent))
	seen := make(map[string]struct{}, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		if _, dup := seen[recent[i].ID]; dup {
			continue
		}
		seen[recent[i].ID] = struct{}{}
		out = append(out, recent[i])
	}
	return out
}
