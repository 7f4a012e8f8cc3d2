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

// Package timeoutwheel drives every in-flight command's and drain's
// deadline from one goroutine per cluster handle, the way the teacher
// drives periodic work from a single loop goroutine (see the polling
// idiom in monitor/*_test.go, reimplemented here for real since monitor
// itself shipped test-only in the pack) rather than one timer per
// command.
package timeoutwheel

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Deadliner is anything the wheel can track. CheckTimeout is invoked from
// the wheel's single goroutine when Deadline has elapsed; it returns true
// if the entry fired (and should be removed) or false if it rescheduled
// itself (Deadline changed) and must remain registered.
type Deadliner interface {
	Deadline() time.Time
	CheckTimeout() bool
}

type entry struct {
	d  Deadliner
	el *list.Element
}

// Wheel is a single-goroutine timeout driver: entries register a
// deadline, the loop sleeps until the nearest one, then walks the live
// list calling CheckTimeout on every entry whose deadline has elapsed.
type Wheel struct {
	register chan Deadliner
	cancel   chan Deadliner
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

// New starts the wheel's loop goroutine, bound to ctx's lifetime.
func New(ctx context.Context) *Wheel {
	w := &Wheel{
		register: make(chan Deadliner),
		cancel:   make(chan Deadliner),
		done:     make(chan struct{}),
	}

	go w.run(ctx)

	return w
}

// Register enqueues d for deadline tracking. Safe for concurrent callers;
// the actual list mutation happens on the wheel's own goroutine.
func (w *Wheel) Register(d Deadliner) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrorWheelClosed.Error(nil)
	}

	select {
	case w.register <- d:
		return nil
	case <-w.done:
		return ErrorWheelClosed.Error(nil)
	}
}

// Cancel removes d from tracking, e.g. once its command completes before
// the deadline fires.
func (w *Wheel) Cancel(d Deadliner) {
	select {
	case w.cancel <- d:
	case <-w.done:
	}
}

const idleCap = time.Second

func (w *Wheel) run(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.done)
	}()

	entries := list.New()
	timer := time.NewTimer(idleCap)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case d := <-w.register:
			entries.PushBack(&entry{d: d})
			resetTimer(timer, nextDeadline(entries))

		case d := <-w.cancel:
			removeEntry(entries, d)

		case <-timer.C:
			fireDue(entries)
			resetTimer(timer, nextDeadline(entries))
		}
	}
}

func removeEntry(entries *list.List, d Deadliner) {
	for e := entries.Front(); e != nil; e = e.Next() {
		if e.Value.(*entry).d == d {
			entries.Remove(e)
			return
		}
	}
}

func fireDue(entries *list.List) {
	now := time.Now()

	var next *list.Element
	for e := entries.Front(); e != nil; e = next {
		next = e.Next()
		en := e.Value.(*entry)
		if en.d.Deadline().After(now) {
			continue
		}
		if en.d.CheckTimeout() {
			entries.Remove(e)
		}
	}
}

func nextDeadline(entries *list.List) time.Duration {
	if entries.Len() == 0 {
		return idleCap
	}

	now := time.Now()
	min := idleCap

	for e := entries.Front(); e != nil; e = e.Next() {
		d := e.Value.(*entry).d.Deadline().Sub(now)
		if d < min {
			min = d
		}
	}

	if min < time.Millisecond {
		min = time.Millisecond
	}
	return min
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
