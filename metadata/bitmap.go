package metadata

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

// LocalBitmap implements a 32-bit Roaring Bitmap of index slots.
// It wraps the official roaring implementation.
type LocalBitmap struct {
	rb *roaring.Bitmap
}

// NewLocalBitmap creates a new empty local bitmap.
func NewLocalBitmap() *LocalBitmap {
	return &LocalBitmap{
		rb: roaring.New(),
	}
}

// Add adds a slot to the bitmap.
func (b *LocalBitmap) Add(slot uint32) {
	b.rb.Add(slot)
}

// Remove removes a slot from the bitmap.
func (b *LocalBitmap) Remove(slot uint32) {
	b.rb.Remove(slot)
}

// Contains checks if a slot is in the bitmap.
func (b *LocalBitmap) Contains(slot uint32) bool {
	return b.rb.Contains(slot)
}

// IsEmpty returns true if the bitmap is empty.
func (b *LocalBitmap) IsEmpty() bool {
	return b.rb.IsEmpty()
}

// Cardinality returns the number of elements in the bitmap.
func (b *LocalBitmap) Cardinality() uint64 {
	return b.rb.GetCardinality()
}

// Clone returns a deep copy of the bitmap.
func (b *LocalBitmap) Clone() *LocalBitmap {
	return &LocalBitmap{
		rb: b.rb.Clone(),
	}
}

// Iterator returns an ascending iterator over the bitmap.
func (b *LocalBitmap) Iterator() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		it := b.rb.Iterator()
		for it.HasNext() {
			if !yield(it.Next()) {
				return
			}
		}
	}
}

// And computes the intersection of two bitmaps.
func (b *LocalBitmap) And(other *LocalBitmap) {
	b.rb.And(other.rb)
}

// Or computes the union of two bitmaps.
func (b *LocalBitmap) Or(other *LocalBitmap) {
	b.rb.Or(other.rb)
}

// Clear removes all elements from the bitmap.
func (b *LocalBitmap) Clear() {
	b.rb.Clear()
}

// GetSizeInBytes returns the size of the bitmap in bytes.
func (b *LocalBitmap) GetSizeInBytes() uint64 {
	return b.rb.GetSizeInBytes()
}
