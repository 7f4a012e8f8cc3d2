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

// Package pool holds the bounded collection of idle connections owned by one
// node: a buffered channel standing in for the lock-free queue, plus the
// atomic bookkeeping (total-opened, recovered, in-flight) the cluster handle
// reports on.
package pool

import (
	"context"
	"sync"
	"time"

	libatm "github.com/sabouaram/kvasync/atomic"
	"github.com/sabouaram/kvasync/transport"
)

// Dialer builds one new, unconnected-then-connected transport.Conn.
type Dialer func(ctx context.Context) (transport.Conn, error)

// ConnectionPool is the bounded idle-connection pool for a single node.
type ConnectionPool struct {
	dial     Dialer
	capacity int
	maxIdle  time.Duration

	idle chan transport.Conn

	totalOpened libatm.Value[int64]
	recovered   libatm.Value[int64]
	inFlight    libatm.Value[int64]

	mu     sync.Mutex
	active bool
	closed bool
}

// addInt64 applies delta to v via a compare-and-swap retry loop, since
// libatm.Value has no native Add.
func addInt64(v libatm.Value[int64], delta int64) int64 {
	for {
		old := v.Load()
		next := old + delta
		if v.CompareAndSwap(old, next) {
			return next
		}
	}
}

// New returns a ConnectionPool bounded to capacity idle slots, dialing new
// connections with dial and treating a connection idle for more than maxIdle
// as stale.
func New(dial Dialer, capacity int, maxIdle time.Duration) *ConnectionPool {
	if capacity <= 0 {
		capacity = 1
	}

	return &ConnectionPool{
		dial:        dial,
		capacity:    capacity,
		maxIdle:     maxIdle,
		idle:        make(chan transport.Conn, capacity),
		active:      true,
		totalOpened: libatm.NewValue[int64](),
		recovered:   libatm.NewValue[int64](),
		inFlight:    libatm.NewValue[int64](),
	}
}

// TotalOpened returns the lifetime count of connections successfully dialed.
func (p *ConnectionPool) TotalOpened() int64 {
	return p.totalOpened.Load()
}

// Recovered returns the count of connections handed back by the drain path.
func (p *ConnectionPool) Recovered() int64 {
	return p.recovered.Load()
}

// InFlight returns the count of connections currently checked out.
func (p *ConnectionPool) InFlight() int64 {
	return p.inFlight.Load()
}

// MarkRecovered credits a connection returned via the drain path rather than
// a direct command completion.
func (p *ConnectionPool) MarkRecovered() {
	addInt64(p.recovered, 1)
}

// Get pops an idle connection, validating and discarding stale ones, and
// returns the first valid one. If the idle channel is empty it dials a new
// connection, provided the node has not reached its total-opened cap;
// otherwise it reports ErrorPoolExhausted.
func (p *ConnectionPool) Get(ctx context.Context) (transport.Conn, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrorPoolClosed.Error(nil)
	}

	for {
		select {
		case c := <-p.idle:
			if c.IsValid(p.maxIdle) {
				addInt64(p.inFlight, 1)
				return c, nil
			}
			_ = c.Close()
			addInt64(p.totalOpened, -1)
			continue
		default:
			return p.openNew(ctx)
		}
	}
}

func (p *ConnectionPool) openNew(ctx context.Context) (transport.Conn, error) {
	if int(p.totalOpened.Load()) >= p.capacity {
		return nil, ErrorPoolExhausted.Error(nil)
	}

	c, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	if err = c.Connect(ctx); err != nil {
		return nil, err
	}

	addInt64(p.totalOpened, 1)
	addInt64(p.inFlight, 1)
	return c, nil
}

// Put returns c to the idle set if the node is still active and the pool
// has room; otherwise it closes c and retires it from the total-opened
// count.
func (p *ConnectionPool) Put(c transport.Conn) {
	addInt64(p.inFlight, -1)

	p.mu.Lock()
	active := p.active && !p.closed
	p.mu.Unlock()

	if !active {
		_ = c.Close()
		addInt64(p.totalOpened, -1)
		return
	}

	c.MarkIdle()

	select {
	case p.idle <- c:
	default:
		_ = c.Close()
		addInt64(p.totalOpened, -1)
	}
}

// Discard retires one connection from the total-opened count without
// requiring the caller to hand it back through Put — used when a
// connection is closed directly outside the pool (e.g. a command closing
// it on a retry or a timed-out drain closing it unconditionally).
func (p *ConnectionPool) Discard() {
	addInt64(p.totalOpened, -1)
}

// SetActive flips whether Put keeps returned connections or discards them;
// mirrors the node's own liveness flag.
func (p *ConnectionPool) SetActive(active bool) {
	p.mu.Lock()
	p.active = active
	p.mu.Unlock()
}

// PreWarm dials connections until TotalOpened() reaches min, used once at
// node admission.
func (p *ConnectionPool) PreWarm(ctx context.Context, min int) {
	for int(p.totalOpened.Load()) < min {
		c, err := p.dial(ctx)
		if err != nil {
			return
		}
		if err = c.Connect(ctx); err != nil {
			return
		}

		addInt64(p.totalOpened, 1)

		select {
		case p.idle <- c:
		default:
			_ = c.Close()
			addInt64(p.totalOpened, -1)
			return
		}
	}
}

// Close tears down every idle connection and marks the pool closed; calls
// to Get after Close always fail.
func (p *ConnectionPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.active = false
	p.mu.Unlock()

	for {
		select {
		case c := <-p.idle:
			_ = c.Close()
		default:
			return
		}
	}
}
