/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package buffer implements the slab-backed BufferPool: a fixed number of
// fixed-size byte regions rented to in-flight commands, with a one-shot
// heap allocation fallback for anything larger than the slab cutoff.
package buffer

import (
	"sync"

	liberr "github.com/sabouaram/kvasync/errors"
)

// SlabCutoff is the largest request size served from the slab. Anything
// bigger gets a dedicated heap allocation that is never returned to the pool.
const SlabCutoff = 128 * 1024

// roundUp8KiB rounds size up to the next multiple of 8 KiB, the slab slot
// granularity.
func roundUp8KiB(size int) int {
	const unit = 8 * 1024
	if size <= 0 {
		return unit
	}
	return (size + unit - 1) / unit * unit
}

// Segment is a (buffer, offset, length) view rented from a Pool. Overflow
// segments own a private heap allocation and are dropped, not recycled, on
// Return.
type Segment struct {
	buf      []byte
	slot     int
	overflow bool
}

// Bytes returns the full rented region. Callers slice it to the length they
// actually need.
func (s *Segment) Bytes() []byte {
	return s.buf
}

// Overflow reports whether this segment is a one-shot heap allocation
// (requested size exceeded SlabCutoff).
func (s *Segment) Overflow() bool {
	return s.overflow
}

// Pool is a fixed arena of N slab slots of size S, plus a fallback path for
// oversized requests. Acquisition and release are O(1), guarded by a single
// mutex per spec: slab bookkeeping is simple enough that a channel-as-lock
// (matching the teacher's semaphore-backed admission idiom) outperforms a
// lock-free structure at this size.
type Pool struct {
	slotSize int
	arena    []byte
	free     chan int

	mu     sync.Mutex
	closed bool
}

// New preallocates count slots of slotSize (rounded up to 8 KiB).
func New(count int, slotSize int) *Pool {
	if count <= 0 {
		count = 1
	}

	size := roundUp8KiB(slotSize)

	p := &Pool{
		slotSize: size,
		arena:    make([]byte, size*count),
		free:     make(chan int, count),
	}

	for i := 0; i < count; i++ {
		p.free <- i
	}

	return p
}

// SlotSize returns the size of one slab slot.
func (p *Pool) SlotSize() int {
	return p.slotSize
}

// Rent returns a Segment able to hold need bytes. Requests within the slot
// size come from the slab (blocking until one is free); larger requests get
// a dedicated heap buffer and never touch the slab.
func (p *Pool) Rent(need int) (*Segment, liberr.Error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return nil, ErrorPoolClosed.Error(nil)
	}

	if need > p.slotSize {
		return &Segment{buf: make([]byte, need), overflow: true}, nil
	}

	slot, ok := <-p.free
	if !ok {
		return nil, ErrorPoolClosed.Error(nil)
	}

	start := slot * p.slotSize
	return &Segment{buf: p.arena[start : start+p.slotSize : start+p.slotSize], slot: slot}, nil
}

// TryRent is the non-blocking variant of Rent for slab-sized requests; it
// returns ok=false instead of waiting when the slab is momentarily exhausted.
func (p *Pool) TryRent(need int) (seg *Segment, ok bool, err liberr.Error) {
	if need > p.slotSize {
		return &Segment{buf: make([]byte, need), overflow: true}, true, nil
	}

	select {
	case slot, open := <-p.free:
		if !open {
			return nil, false, ErrorPoolClosed.Error(nil)
		}
		start := slot * p.slotSize
		return &Segment{buf: p.arena[start : start+p.slotSize : start+p.slotSize], slot: slot}, true, nil
	default:
		return nil, false, nil
	}
}

// Return releases seg. Overflow segments are simply dropped for GC; slab
// segments go back on the free channel.
func (p *Pool) Return(seg *Segment) {
	if seg == nil || seg.overflow {
		return
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return
	}

	p.free <- seg.slot
}

// Close releases the slab. Any Segment still outstanding remains valid to
// use (it holds a slice into the still-alive arena) but Return on it after
// Close is a no-op.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.free)
}
