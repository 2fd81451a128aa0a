package flat

// Stats summarises the arena of a flat index.
type Stats struct {
	Records   int
	FreeSlots int
	Dimension int
	Metric    string
}

// Stats returns statistics about the flat index.
func (f *Flat) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Stats{
		Records:   len(f.ids),
		FreeSlots: len(f.free),
		Dimension: f.dim,
		Metric:    f.opts.Metric.String(),
	}
}
