package metadata

// Postings is an inverted index from top-level metadata fields to the slots
// that carry a given value. It is not safe for concurrent use; owners guard
// it with their own lock.
type Postings struct {
	// key -> valueKey -> slots
	fields map[string]map[string]*LocalBitmap
}

// NewPostings returns an empty posting index.
func NewPostings() *Postings {
	return &Postings{fields: make(map[string]map[string]*LocalBitmap)}
}

// Add indexes md under slot. Fields whose value cannot be typed are skipped;
// filters on them fall back to evaluation.
func (p *Postings) Add(slot uint32, md map[string]any) {
	for k, raw := range md {
		v, err := FromAny(raw)
		if err != nil {
			continue
		}
		vm, ok := p.fields[k]
		if !ok {
			vm = make(map[string]*LocalBitmap)
			p.fields[k] = vm
		}
		vk := v.Key()
		bm, ok := vm[vk]
		if !ok {
			bm = NewLocalBitmap()
			vm[vk] = bm
		}
		bm.Add(slot)
	}
}

// Remove drops slot from every posting list md contributed to.
func (p *Postings) Remove(slot uint32, md map[string]any) {
	for k, raw := range md {
		v, err := FromAny(raw)
		if err != nil {
			continue
		}
		vm, ok := p.fields[k]
		if !ok {
			continue
		}
		vk := v.Key()
		bm, ok := vm[vk]
		if !ok {
			continue
		}
		bm.Remove(slot)
		if bm.IsEmpty() {
			delete(vm, vk)
		}
		if len(vm) == 0 {
			delete(p.fields, k)
		}
	}
}

// Clear drops all posting lists.
func (p *Postings) Clear() {
	p.fields = make(map[string]map[string]*LocalBitmap)
}

// Compile intersects the posting lists named by fs. The returned bitmap is a
// fresh copy owned by the caller. ok is false when fs is empty or uses an
// operator the index cannot answer.
func (p *Postings) Compile(fs *FilterSet) (bm *LocalBitmap, ok bool) {
	if fs.IsEmpty() {
		return nil, false
	}

	lists := make([]*LocalBitmap, 0, len(fs.Filters))
	for _, f := range fs.Filters {
		if f.Operator != OpEqual {
			return nil, false
		}
		vm, exists := p.fields[f.Key]
		if !exists {
			return NewLocalBitmap(), true
		}
		list, exists := vm[f.Value.Key()]
		if !exists {
			return NewLocalBitmap(), true
		}
		lists = append(lists, list)
	}

	// Start from the smallest list to reduce work.
	base := 0
	for i := 1; i < len(lists); i++ {
		if lists[i].Cardinality() < lists[base].Cardinality() {
			base = i
		}
	}

	out := lists[base].Clone()
	for i, list := range lists {
		if i == base {
			continue
		}
		out.And(list)
		if out.IsEmpty() {
			break
		}
	}
	return out, true
}
