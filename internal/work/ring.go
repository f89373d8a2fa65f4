package work

import "sync"

// RingBuffer keeps the most recent completed items for the stats CLI.
// Fixed capacity; old entries are overwritten.
type RingBuffer struct {
	mu    sync.Mutex
	items []*Item
	head  int // next write position
	count int
}

func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{items: make([]*Item, size)}
}

func (r *RingBuffer) Push(item *Item) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	if r.count < len(r.items) {
		r.count++
	}
}

// All returns the buffered items newest first.
func (r *RingBuffer) All() []*Item {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Item, 0, r.count)
	for i := 1; i <= r.count; i++ {
		idx := (r.head - i + len(r.items)) % len(r.items)
		out = append(out, r.items[idx])
	}
	return out
}

func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.items {
		r.items[i] = nil
	}
	r.head = 0
	r.count = 0
}

func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
