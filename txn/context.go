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

// Package txn tracks one multi-record transaction's write set and drives
// its roll-forward/roll-back to a terminal outcome once every write has
// been verified, the same sequencing an MRT-capable client library gives
// its own transaction handle.
package txn

import (
	"sync"

	libatm "github.com/sabouaram/kvasync/atomic"
	liberr "github.com/sabouaram/kvasync/errors"
	"github.com/sabouaram/kvasync/fanout"
)

// State is the transaction's monotone lifecycle position.
type State int32

const (
	Open State = iota
	Verified
	Committed
	Aborted
)

// Outcome is Commit's terminal report, distinct from State because a
// successful commit can still report an abandoned roll-forward.
type Outcome int32

const (
	OutcomeCommitted Outcome = iota
	OutcomeAborted
	OutcomeRollForwardAbandoned
)

// ReadVersion is the record version a transaction observed on read,
// reapplied as a write's expected-generation check during roll-forward.
type ReadVersion struct {
	Generation uint32
	Expiration uint32
}

// Context tracks one transaction's write set, its read-key versions, and
// its monitor record, plus the monotone state machine every roll
// operation advances.
type Context struct {
	mu sync.Mutex

	monitor fanout.Key
	writes  map[string]fanout.Key
	reads   map[string]ReadVersion

	state   libatm.Value[State]
	inDoubt libatm.Value[bool]
}

// New builds an open transaction context rooted at monitor.
func New(monitor fanout.Key) *Context {
	c := &Context{
		monitor: monitor,
		writes:  make(map[string]fanout.Key),
		reads:   make(map[string]ReadVersion),
		state:   libatm.NewValue[State](),
		inDoubt: libatm.NewValue[bool](),
	}
	c.state.Store(Open)
	return c
}

func keyOf(k fanout.Key) string {
	return k.Namespace + "\x00" + k.Set + "\x00" + string(k.Digest)
}

// AddWrite records a key this transaction intends to write, idempotent on
// repeated calls for the same key.
func (c *Context) AddWrite(k fanout.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes[keyOf(k)] = k
}

// AddRead records the version this transaction observed for k, so
// roll-forward can reapply it as a generation check.
func (c *Context) AddRead(k fanout.Key, v ReadVersion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads[keyOf(k)] = v
}

// Writes returns the accumulated write-key set in no particular order.
func (c *Context) Writes() []fanout.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]fanout.Key, 0, len(c.writes))
	for _, k := range c.writes {
		out = append(out, k)
	}
	return out
}

// ReadVersionFor returns the recorded version for k, if any.
func (c *Context) ReadVersionFor(k fanout.Key) (ReadVersion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.reads[keyOf(k)]
	return v, ok
}

// Monitor returns the transaction's monitor record key.
func (c *Context) Monitor() fanout.Key {
	return c.monitor
}

// State returns the transaction's current lifecycle position.
func (c *Context) State() State {
	return c.state.Load()
}

// InDoubt reports whether a roll-forward write may have reached the
// server without a decisive response.
func (c *Context) InDoubt() bool {
	return c.inDoubt.Load()
}

// OnWriteInDoubt is the escalation point a roll-forward write's
// command.Listener calls when its own in-doubt flag fires: once a
// transaction has any in-doubt write, it stays in doubt until the monitor
// record resolves it, so this only ever flips false->true.
func (c *Context) OnWriteInDoubt() {
	c.inDoubt.CompareAndSwap(false, true)
}

// transitions lists every monotone state change this package allows;
// anything else is a programming error in the coordinator, not a runtime
// condition a caller can trigger.
var transitions = map[State]map[State]bool{
	Open:     {Verified: true, Aborted: true},
	Verified: {Committed: true, Aborted: true},
}

// transition advances the state machine, returning an error instead of
// panicking on a non-monotone request: Commit's sequencing bugs should
// surface as a failed commit, not a crashed goroutine.
func (c *Context) transition(to State) liberr.Error {
	for {
		from := c.state.Load()
		if from == to {
			return nil
		}
		if !transitions[from][to] {
			return ErrorNonMonotoneTransition.Error(nil)
		}
		if c.state.CompareAndSwap(from, to) {
			return nil
		}
	}
}
