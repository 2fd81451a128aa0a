package recency

import (
	"context"
	"sync"

	"github.com/hupe1980/vecmem/model"
)

// Compile-time check to ensure Memory satisfies the Store interface.
var _ Store = (*Memory)(nil)

// Memory is an in-process ring buffer.
type Memory struct {
	mu    sync.RWMutex
	buf   []model.Record
	head  int // index of the oldest entry
	count int
}

// NewMemory creates a ring buffer holding up to capacity records.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{buf: make([]model.Record, capacity)}
}

// Append implements Store.
func (m *Memory) Append(ctx context.Context, rec model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec = rec.Clone()
	if m.count < len(m.buf) {
		m.buf[(m.head+m.count)%len(m.buf)] = rec
		m.count++
		return nil
	}
	m.buf[m.head] = rec
	m.head = (m.head + 1) % len(m.buf)
	return nil
}

// Recent implements Store.
func (m *Memory) Recent(ctx context.Context, n int) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	n = min(max(n, 0), m.count)
	out := make([]model.Record, n)
	start := m.count - n
	for i := range n {
		out[i] = m.buf[(m.head+start+i)%len(m.buf)].Clone()
	}
	return out, nil
}

// All implements Store.
func (m *Memory) All(ctx context.Context) ([]model.Record, error) {
	return m.Recent(ctx, len(m.buf))
}

// Len implements Store.
func (m *Memory) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count, nil
}

// Clear implements Store.
func (m *Memory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.buf)
	m.head, m.count = 0, 0
	return nil
}

// Remove implements Store. The ring is compacted under the write lock.
func (m *Memory) Remove(ctx context.Context, match func(model.Record) bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]model.Record, 0, m.count)
	for i := range m.count {
		rec := m.buf[(m.head+i)%len(m.buf)]
		if !match(rec) {
			kept = append(kept, rec)
		}
	}

	removed := m.count - len(kept)
	if removed == 0 {
		return 0, nil
	}

	clear(m.buf)
	copy(m.buf, kept)
	m.head, m.count = 0, len(kept)
	return removed, nil
}

// Capacity implements Store.
func (m *Memory) Capacity() int { return len(m.buf) }
