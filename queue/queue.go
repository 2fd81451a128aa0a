// Package queue provides the binary heap used by graph traversal.
package queue

import "container/heap"

// Compile time check to ensure PriorityQueue satisfies the heap interface.
var _ heap.Interface = (*PriorityQueue)(nil)

// PriorityQueueItem represents an item in the priority queue.
type PriorityQueueItem struct {
	Node  uint32  // Node is the arena slot of the graph node.
	Distance float32 // Distance is the priority of the item in the queue.
	Index int     // Index is maintained by the heap.Interface methods.
}

// PriorityQueue implements heap.Interface and holds PriorityQueueItems.
type PriorityQueue struct {
	Order bool                 // Order is true for a max-heap (largest distance on top), false for a min-heap.
	Items []*PriorityQueueItem // Items contains the elements of the priority queue.
}

// NewMax returns an empty queue whose top is the largest distance.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{Order: true, Items: make([]*PriorityQueueItem, 0, capacity)}
}

// NewMin returns an empty queue whose top is the smallest distance.
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{Order: false, Items: make([]*PriorityQueueItem, 0, capacity)}
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.Items) }

// Less reports whether the element with index i should sort before the element with index j.
func (pq *PriorityQueue) Less(i, j int) bool {
	if pq.Order {
		return pq.Items[i].Distance > pq.Items[j].Distance
	}
	return pq.Items[i].Distance < pq.Items[j].Distance
}

// Swap swaps the elements with indexes i and j.
func (pq *PriorityQueue) Swap(i, j int) {
	pq.Items[i], pq.Items[j] = pq.Items[j], pq.Items[i]
	pq.Items[i].Index, pq.Items[j].Index = i, j
}

// Push adds x to the priority queue. Use PushItem from outside container/heap.
func (pq *PriorityQueue) Push(x any) {
	item, _ := x.(*PriorityQueueItem)
	item.Index = len(pq.Items)
	pq.Items = append(pq.Items, item)
}

// Pop removes and returns the last element. Use PopItem from outside container/heap.
func (pq *PriorityQueue) Pop() any {
	if len(pq.Items) == 0 {
		return nil
	}

	old := pq.Items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // Avoid memory leak
	item.Index = -1
	pq.Items = old[:n-1]

	return item
}

// PushItem adds a node with its distance, keeping heap order.
func (pq *PriorityQueue) PushItem(node uint32, dist float32) {
	heap.Push(pq, &PriorityQueueItem{Node: node, Distance: dist})
}

// PopItem removes and returns the top element.
func (pq *PriorityQueue) PopItem() *PriorityQueueItem {
	item, _ := heap.Pop(pq).(*PriorityQueueItem)
	return item
}

// Top returns the top element of the priority queue without removing it.
func (pq *PriorityQueue) Top() *PriorityQueueItem {
	return pq.Items[0]
}
