// Package ring implements the §4.C Ring Buffer: a fixed-capacity circular
// buffer of a value element type, with resize-preserving-live-data and
// snapshot iteration.
//
// Grounded on the original C++ CircularBuffer<T> (head/tail/full invariant,
// resize semantics) and the teacher's RingChannel doc-comment register
// (pkg/ble/internal/ringchan.go), translated from memmove-based resize to
// element-wise slice copies since T here is a plain value type (frame
// structs), not guaranteed trivially copyable in the memmove sense.
package ring

// Ring is a fixed-capacity circular buffer of T. It is not safe for
// concurrent use: per §5, ring buffers are owned exclusively by the service
// tick thread.
type Ring[T any] struct {
	buf   []T
	write int
	read  int
	full  bool
	gen   uint64
}

// New creates a Ring with the given capacity. Capacity must be >= 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Cap returns the buffer's capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Full reports whether the buffer holds Cap() items.
func (r *Ring[T]) Full() bool { return r.full }

// Len returns the current number of live items, 0 <= Len() <= Cap().
func (r *Ring[T]) Len() int {
	n := len(r.buf)
	if r.full {
		return n
	}
	if r.write >= r.read {
		return r.write - r.read
	}
	return n + r.write - r.read
}

// Push writes at head; if full, the oldest item (at tail) is overwritten
// and tail advances.
func (r *Ring[T]) Push(item T) {
	r.buf[r.write] = item
	if r.full {
		r.read = (r.read + 1) % len(r.buf)
	}
	r.write = (r.write + 1) % len(r.buf)
	r.full = r.write == r.read
}

// Pop reads from tail, advancing it. ok is false if the buffer is empty;
// reading never underflows.
func (r *Ring[T]) Pop() (item T, ok bool) {
	if r.Len() == 0 {
		return item, false
	}
	item = r.buf[r.read]
	r.full = false
	r.read = (r.read + 1) % len(r.buf)
	return item, true
}

// Reset empties the buffer without reallocating: head := tail, full :=
// false.
func (r *Ring[T]) Reset() {
	r.write = r.read
	r.full = false
	r.gen++
}

// Resize changes capacity, preserving live data. If the existing logical
// size exceeds newCapacity, the newest newCapacity items are kept (oldest
// dropped first). After resize, read is normalized to 0 and write to
// (number of items kept) % newCapacity.
func (r *Ring[T]) Resize(newCapacity int) {
	if newCapacity < 1 {
		newCapacity = 1
	}
	if newCapacity == len(r.buf) {
		return
	}

	size := r.Len()
	keep := size
	if keep > newCapacity {
		keep = newCapacity
	}

	newBuf := make([]T, newCapacity)
	if keep > 0 {
		// Copy the newest `keep` items in insertion order, oldest-kept
		// first, starting from (read + (size - keep)) to drop the oldest
		// (size - keep) items.
		start := (r.read + (size - keep)) % len(r.buf)
		for i := 0; i < keep; i++ {
			newBuf[i] = r.buf[(start+i)%len(r.buf)]
		}
	}

	r.buf = newBuf
	r.read = 0
	r.write = keep % newCapacity
	r.full = keep == newCapacity
	r.gen++
}

// Snapshot captures the buffer's current state (capacity, read index, write
// index, remaining count) and returns an iterator over it. The snapshot is
// invalidated by a subsequent Resize or Reset: continuing to call Next after
// invalidation returns ok=false rather than stale or out-of-range data.
func (r *Ring[T]) Snapshot() *Iterator[T] {
	return &Iterator[T]{
		owner:    r,
		gen:      r.gen,
		capAtGen: len(r.buf),
		idx:      r.read,
		remain:   r.Len(),
	}
}

// Iterator yields items oldest-first from a Ring snapshot taken at creation
// time. It visits exactly the number of items present when the snapshot was
// taken, each exactly once (§8 invariant 4).
type Iterator[T any] struct {
	owner    *Ring[T]
	gen      uint64
	capAtGen int
	idx      int
	remain   int
}

// Valid reports whether the iterator's captured generation still matches
// the owning ring's current generation; Resize and Reset both invalidate
// it, per §4.C.
func (it *Iterator[T]) Valid() bool {
	return it.owner != nil && it.gen == it.owner.gen
}

// Next returns the next item in insertion order, or ok=false when exhausted
// or invalidated.
func (it *Iterator[T]) Next() (item T, ok bool) {
	if !it.Valid() || it.remain == 0 {
		return item, false
	}
	item = it.owner.buf[it.idx]
	it.idx = (it.idx + 1) % it.capAtGen
	it.remain--
	return item, true
}

// Remaining returns the number of items left to yield.
func (it *Iterator[T]) Remaining() int { return it.remain }
