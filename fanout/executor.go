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

// Package fanout splits one logical multi-key or multi-partition request
// into per-node child commands, and aggregates their independent
// completions back into a single listener callback: first-failure-wins,
// with a retryable child failure accounted for but re-issued instead of
// failing the whole request.
package fanout

import (
	"sync"

	libatm "github.com/sabouaram/kvasync/atomic"
	liberr "github.com/sabouaram/kvasync/errors"
	"github.com/sabouaram/kvasync/node"
	"github.com/sabouaram/kvasync/wire"
)

// Key identifies one record a batch fan-out needs, enough to resolve its
// current owning node.
type Key struct {
	Namespace string
	Set       string
	Digest    []byte
}

// NodeLocator resolves the node that currently owns a key; cluster.Cluster
// implements this from its partition map. Kept as a seam so fanout never
// has to import cluster back, the same way command.NodeResolver and
// partition.Locator avoid that dependency direction.
type NodeLocator interface {
	NodeForKey(key Key) (*node.Node, error)
}

// SplitByNode groups keys by their current owning node — the
// child-command splitter: each group becomes one child command sent to
// one node.
func SplitByNode(keys []Key, loc NodeLocator) (map[*node.Node][]Key, liberr.Error) {
	if len(keys) == 0 || loc == nil {
		return nil, ErrorParamEmpty.Error(nil)
	}

	out := make(map[*node.Node][]Key)
	for _, k := range keys {
		n, err := loc.NodeForKey(k)
		if err != nil {
			return nil, ErrorNoNodeForKey.Error(err)
		}
		out[n] = append(out[n], k)
	}
	return out, nil
}

// Listener is notified for every record any child produces, and exactly
// once for the fan-out's overall outcome.
type Listener interface {
	OnRecord(rec *wire.Record)
	// OnComplete reports the fan-out finished without a top-level
	// failure. status is false when at least one row-level
	// server-application error was recorded via SetRowError, separate
	// from a terminal failure of the whole request.
	OnComplete(status bool)
	OnFailure(err error, inDoubt bool)
}

// ChildGuard is the per-child once-only latch a caller threads through
// ChildSuccess/ChildFailure; each child command must resolve its own
// guard exactly once.
type ChildGuard struct {
	done libatm.Value[bool]
}

func newGuard() *ChildGuard {
	return &ChildGuard{done: libatm.NewValue[bool]()}
}

// Executor tracks max expected child completions against count received,
// and aggregates children's outcomes into a single Listener callback.
// max/count are mutex-protected because a retryable child failure mutates
// max mid-flight (the failed slot is accounted for and a sibling slot
// opens for the retry, atomically, so the outstanding count never dips to
// zero between the two).
type Executor struct {
	mu  sync.Mutex
	max int

	count int

	failErr     error
	failInDoubt bool

	rowError libatm.Value[bool]
	doneOnce libatm.Value[bool]

	listener Listener
}

// New builds an Executor with no children yet registered; call Begin for
// the initial child set.
func New(listener Listener) *Executor {
	return &Executor{
		listener: listener,
		rowError: libatm.NewValue[bool](),
		doneOnce: libatm.NewValue[bool](),
	}
}

// Begin reserves n child slots, returning one guard per slot in the order
// the caller should dispatch its child commands.
func (e *Executor) Begin(n int) []*ChildGuard {
	e.mu.Lock()
	e.max += n
	e.mu.Unlock()

	guards := make([]*ChildGuard, n)
	for i := range guards {
		guards[i] = newGuard()
	}
	return guards
}

// SetRowError flags that at least one record surfaced a row-level
// server-application error (e.g. a single key inside a batch response
// reporting KEY_NOT_FOUND_ERROR), without failing the fan-out overall.
func (e *Executor) SetRowError() {
	e.rowError.Store(true)
}

// OnRecord forwards one decoded record straight to the listener; fan-out
// itself never inspects record contents beyond what SetRowError already
// flagged.
func (e *Executor) OnRecord(rec *wire.Record) {
	if e.listener != nil {
		e.listener.OnRecord(rec)
	}
}

// ChildSuccess reports one child command's successful completion. A
// second call against the same guard is a no-op, matching the
// completion-latch contract command.State already uses.
func (e *Executor) ChildSuccess(g *ChildGuard) {
	if g == nil || !g.done.CompareAndSwap(false, true) {
		return
	}
	e.completeSlot()
}

// ChildFailure reports one child command's terminal failure. If retry is
// non-nil, the failure is treated as accounted-for-but-retryable: this
// slot's completion is recorded, a fresh slot opens atomically alongside
// it, and retry is handed the new guard to re-issue the work for the next
// round instead of failing the whole fan-out. If retry is nil, the
// failure is terminal: first-failure-wins across every concurrent caller.
func (e *Executor) ChildFailure(g *ChildGuard, err error, inDoubt bool, retry func(next *ChildGuard)) {
	if g == nil || !g.done.CompareAndSwap(false, true) {
		return
	}

	if retry != nil {
		next := e.growAndAccount()
		retry(next)
		return
	}

	e.recordFailure(err, inDoubt)
	e.completeSlot()
}

func (e *Executor) growAndAccount() *ChildGuard {
	e.mu.Lock()
	e.max++
	e.count++
	e.mu.Unlock()
	return newGuard()
}

func (e *Executor) recordFailure(err error, inDoubt bool) {
	e.mu.Lock()
	if e.failErr == nil {
		e.failErr = err
		e.failInDoubt = inDoubt
	}
	e.mu.Unlock()
}

func (e *Executor) completeSlot() {
	e.mu.Lock()
	e.count++
	done := e.count >= e.max
	e.mu.Unlock()

	if done {
		e.finish()
	}
}

func (e *Executor) finish() {
	if !e.doneOnce.CompareAndSwap(false, true) {
		return
	}

	e.mu.Lock()
	err := e.failErr
	inDoubt := e.failInDoubt
	e.mu.Unlock()

	if e.listener == nil {
		return
	}
	if err != nil {
		e.listener.OnFailure(err, inDoubt)
		return
	}
	e.listener.OnComplete(!e.rowError.Load())
}
