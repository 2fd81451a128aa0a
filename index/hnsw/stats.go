package hnsw

// Stats summarises the graph arena.
type Stats struct {
	Nodes      int
	Live       int
	Tombstones int
	MaxLevel   int
	Rebuilds   int
	// AvgDegree0 is the mean number of layer-0 links per live node.
	AvgDegree0 float64
}

// Stats returns statistics about the graph.
func (h *HNSW) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := Stats{
		Nodes:      len(h.g.nodes),
		Live:       len(h.ids),
		Tombstones: h.tombstones,
		MaxLevel:   h.g.maxLevel,
		Rebuilds:   h.rebuilds,
	}

	var links int
	for _, n := range h.g.nodes {
		if !n.deleted {
			links += len(n.links[0])
		}
	}
	if st.Live > 0 {
		st.AvgDegree0 = float64(links) / float64(st.Live)
	}
	return st
}
