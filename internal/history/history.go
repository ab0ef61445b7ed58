// Package history keeps the rolling window of per-cycle connection counts
// that feeds the trend view. Nothing here is persisted.
package history

// DefaultCapacity is the number of cycles kept when none is configured.
const DefaultCapacity = 30

// Buffer is a fixed-capacity FIFO of counts. Appending at capacity evicts
// the oldest entry. Buffer is not safe for concurrent use; the monitor
// guards it.
type Buffer struct {
	data []int
	head int // index of the oldest entry
	size int
}

// NewBuffer creates a Buffer holding at most capacity entries. A capacity
// below 1 is raised to 1.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{data: make([]int, capacity)}
}

// Append adds count at the tail, evicting the head when full.
func (b *Buffer) Append(count int) {
	if b.size < len(b.data) {
		b.data[(b.head+b.size)%len(b.data)] = count
		b.size++
		return
	}
	b.data[b.head] = count
	b.head = (b.head + 1) % len(b.data)
}

// Snapshot returns the entries oldest first. The slice is a copy.
func (b *Buffer) Snapshot() []int {
	out := make([]int, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.data[(b.head+i)%len(b.data)]
	}
	return out
}

// Len returns the number of entries held.
func (b *Buffer) Len() int {
	return b.size
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Last returns the newest entry, or false when empty.
func (b *Buffer) Last() (int, bool) {
	if b.size == 0 {
		return 0, false
	}
	return b.data[(b.head+b.size-1)%len(b.data)], true
}

// Stats summarizes the current window for display headers.
type Stats struct {
	Min, Max, Last int
}

// Summary returns min, max and last of the window; zero when empty.
func (b *Buffer) Summary() Stats {
	if b.size == 0 {
		return Stats{}
	}
	snap := b.Snapshot()
	s := Stats{Min: snap[0], Max: snap[0], Last: snap[len(snap)-1]}
	for _, v := range snap[1:] {
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
	}
	return s
}
