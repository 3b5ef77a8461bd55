// Package packetqueue implements the §4.D lock-free packet queue: a
// single-producer/single-consumer ring of frame.SensorPacket values backed
// by a fixed array and atomic indices, so Enqueue from the BLE notification
// thread never blocks.
//
// Grounded on the original moodycamel::ReaderWriterQueue usage in
// ServerSensorView, translated to an explicit atomic-index SPSC ring since
// no pack dependency exposes that exact API; see DESIGN.md for why
// hedzr/go-ringbuf/v2 was not a fit here.
package packetqueue

import (
	"sync/atomic"

	"github.com/srg/hslble/internal/frame"
)

// Queue is a fixed-capacity single-producer/single-consumer queue of
// frame.SensorPacket. The producer (BLE notification callback) calls
// Enqueue; the consumer (service tick thread) calls Dequeue. No other
// method is safe to call from more than one goroutine concurrently with
// itself.
//
// head is producer-owned and tail is consumer-owned, full stop: Enqueue
// never writes tail, even on overflow. A slot holds an atomic pointer
// rather than a bare frame.SensorPacket, because a SensorPacket carries
// slice fields (ECGFrame.Values, and similar for PPG/ACC) and overwriting
// one by value while the consumer is mid-read of the same physical slot
// would tear the slice header. Store/Load on the pointer is a single
// atomic word, so a concurrent overwrite can only ever hand the consumer
// the old packet or the new one, never a torn mix of both.
type Queue struct {
	buf  []atomic.Pointer[frame.SensorPacket]
	mask uint64

	head atomic.Uint64 // next slot to write (producer-owned)
	tail atomic.Uint64 // next slot to read (consumer-owned)
}

// New creates a Queue with the given capacity, rounded up to the next
// power of two so index wrap can use a mask instead of modulo.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	n := nextPowerOfTwo(capacity)
	return &Queue{
		buf:  make([]atomic.Pointer[frame.SensorPacket], n),
		mask: uint64(n - 1),
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Cap returns the backing array's capacity (a power of two, >= the
// capacity requested at New).
func (q *Queue) Cap() int { return len(q.buf) }

// Enqueue writes pkt at head and never blocks or touches tail. If the
// queue is full, this simply overwrites the slot the oldest unread packet
// occupies rather than dropping the new sample, per §4.D: producers must
// never stall a BLE notification callback. Dequeue is responsible for
// noticing and skipping past packets lapped this way.
func (q *Queue) Enqueue(pkt frame.SensorPacket) {
	h := q.head.Load()
	q.buf[h&q.mask].Store(&pkt)
	q.head.Store(h + 1)
}

// Dequeue reads the oldest packet and advances tail. ok is false if the
// queue is empty. If the producer has lapped the consumer since the
// previous call (more than Cap() packets enqueued without a Dequeue),
// tail is first fast-forwarded to the oldest slot the producer hasn't
// since overwritten again, so a stale logical index is never read back.
func (q *Queue) Dequeue() (pkt frame.SensorPacket, ok bool) {
	t := q.tail.Load()
	h := q.head.Load()
	if t >= h {
		return pkt, false
	}
	if h-t > uint64(len(q.buf)) {
		t = h - uint64(len(q.buf))
	}
	p := q.buf[t&q.mask].Load()
	q.tail.Store(t + 1)
	if p == nil {
		return pkt, false
	}
	return *p, true
}

// Len returns the approximate number of unread packets. Since Enqueue and
// Dequeue run concurrently on different threads, this is a snapshot, not a
// linearizable count.
func (q *Queue) Len() int {
	h := q.head.Load()
	t := q.tail.Load()
	if h < t {
		return 0
	}
	n := h - t
	if n > uint64(len(q.buf)) {
		n = uint64(len(q.buf))
	}
	return int(n)
}
