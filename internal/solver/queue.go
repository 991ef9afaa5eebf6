package solver

import (
	"runtime"
	"sync/atomic"
)

type pushResult uint8

const (
	pushAppended  pushResult = iota
	pushReplaced             // newest undrained entry was for the same frame
	pushCoalesced            // ring full, newest undrained entry overwritten
)

// frameRing is a bounded single-producer/single-consumer package queue.
// Thread-Safety:
//   - push: producer goroutine only
//   - pop: consumer goroutine only
//   - slots hold pointers so the producer can replace the newest undrained
//     entry with one CAS; pop swaps a slot to nil before advancing head, so a
//     failed CAS means the consumer already took the entry
type frameRing[T any] struct {
	slots []atomic.Pointer[T]
	mask  uint64
	head  atomic.Uint64 // read index, consumer-owned
	tail  atomic.Uint64 // write index, producer-owned
}

func newFrameRing[T any](capacity int) *frameRing[T] {
	size := uint64(1)
	for size < uint64(capacity) {
		size <<= 1
	}
	return &frameRing[T]{
		slots: make([]atomic.Pointer[T], size),
		mask:  size - 1,
	}
}

func (r *frameRing[T]) capacity() uint64 { return uint64(len(r.slots)) }

// push appends p. When replace reports true for the newest undrained entry,
// or when the ring is full, that entry is overwritten instead. Never blocks
// on the consumer; the retry loop only spins across a concurrent pop.
func (r *frameRing[T]) push(p *T, replace func(old *T) bool) pushResult {
	for {
		tail := r.tail.Load()
		head := r.head.Load()

		if tail > head && replace != nil {
			slot := &r.slots[(tail-1)&r.mask]
			if old := slot.Load(); old != nil && replace(old) {
				if slot.CompareAndSwap(old, p) {
					return pushReplaced
				}
				continue
			}
		}

		if tail-head < r.capacity() {
			r.slots[tail&r.mask].Store(p)
			r.tail.Store(tail + 1) // MUST be after slot store
			return pushAppended
		}

		slot := &r.slots[(tail-1)&r.mask]
		if old := slot.Load(); old != nil && slot.CompareAndSwap(old, p) {
			return pushCoalesced
		}
		runtime.Gosched()
	}
}

// pop removes the oldest entry.
func (r *frameRing[T]) pop() (*T, bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		return nil, false
	}
	p := r.slots[head&r.mask].Swap(nil)
	r.head.Store(head + 1)
	return p, p != nil
}

// len is approximate while the other side is active.
func (r *frameRing[T]) len() int {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail <= head {
		return 0
	}
	return int(tail - head)
}
