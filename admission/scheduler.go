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

// Package admission bounds the number of commands in flight against one
// cluster handle, per one of three policies: reject outright, block the
// caller, or queue for later admission.
package admission

import (
	"context"
	"sync"

	libatm "github.com/sabouaram/kvasync/atomic"
	"github.com/sabouaram/kvasync/buffer"

	"golang.org/x/sync/semaphore"
)

// Policy selects how the scheduler behaves once AsyncMaxCommands in-flight
// commands are already admitted.
type Policy uint8

const (
	// PolicyReject fails admission immediately over the limit.
	PolicyReject Policy = iota
	// PolicyBlock suspends the calling goroutine until a slot frees up.
	PolicyBlock
	// PolicyDelay queues the request FIFO until a slot frees up.
	PolicyDelay
)

// Scheduler is the per-cluster admission gate.
type Scheduler struct {
	policy Policy
	limit  int64
	pool   *buffer.Pool

	inFlight libatm.Value[int64]

	weighted *semaphore.Weighted

	mu      sync.Mutex
	queue   []chan struct{}
	maxWait int
	closed  bool
}

// New builds a Scheduler admitting up to limit concurrent commands under
// policy. maxWait bounds the PolicyDelay queue (0 means unbounded); it is
// ignored by the other policies.
func New(policy Policy, limit int64, maxWait int, pool *buffer.Pool) *Scheduler {
	s := &Scheduler{
		policy:   policy,
		limit:    limit,
		pool:     pool,
		inFlight: libatm.NewValue[int64](),
		maxWait:  maxWait,
	}

	if policy == PolicyBlock {
		s.weighted = semaphore.NewWeighted(limit)
	}

	return s
}

// Admit blocks, queues, or rejects depending on policy, returning once a
// slot has been granted.
func (s *Scheduler) Admit(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrorSchedulerClosed.Error(nil)
	}

	switch s.policy {
	case PolicyBlock:
		if err := s.weighted.Acquire(ctx, 1); err != nil {
			return err
		}
		addInt64(s.inFlight, 1)
		return nil

	case PolicyDelay:
		return s.admitDelay(ctx)

	default:
		return s.admitReject()
	}
}

func (s *Scheduler) admitReject() error {
	n := addInt64(s.inFlight, 1)
	if n > s.limit {
		addInt64(s.inFlight, -1)
		return ErrorCommandRejected.Error(nil)
	}
	return nil
}

func (s *Scheduler) admitDelay(ctx context.Context) error {
	s.mu.Lock()
	n := s.inFlight.Load()
	if n < s.limit {
		addInt64(s.inFlight, 1)
		s.mu.Unlock()
		return nil
	}

	if s.maxWait > 0 && len(s.queue) >= s.maxWait {
		s.mu.Unlock()
		return ErrorQueueFull.Error(nil)
	}

	wait := make(chan struct{})
	s.queue = append(s.queue, wait)
	s.mu.Unlock()

	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release hands back one admitted slot and returns seg to the buffer pool,
// then, under PolicyDelay, wakes the oldest queued caller if any is
// waiting — the coupling spec.md requires between release and the delay
// queue.
func (s *Scheduler) Release(seg *buffer.Segment) {
	if seg != nil && s.pool != nil {
		s.pool.Return(seg)
	}

	switch s.policy {
	case PolicyBlock:
		addInt64(s.inFlight, -1)
		s.weighted.Release(1)

	case PolicyDelay:
		s.releaseDelay()

	default:
		addInt64(s.inFlight, -1)
	}
}

func (s *Scheduler) releaseDelay() {
	s.mu.Lock()
	if len(s.queue) == 0 {
		addInt64(s.inFlight, -1)
		s.mu.Unlock()
		return
	}

	next := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()

	close(next)
}

// InFlight returns the current count of admitted, not-yet-released
// commands.
func (s *Scheduler) InFlight() int64 {
	return s.inFlight.Load()
}

// Close marks the scheduler closed; further Admit calls fail. Queued
// waiters are released without being admitted.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, w := range pending {
		close(w)
	}
}

func addInt64(v libatm.Value[int64], delta int64) int64 {
	for {
		old := v.Load()
		next := old + delta
		if v.CompareAndSwap(old, next) {
			return next
		}
	}
}
