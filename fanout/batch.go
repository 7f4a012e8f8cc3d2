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

package fanout

import (
	"context"

	"github.com/sabouaram/kvasync/admission"
	"github.com/sabouaram/kvasync/buffer"
	"github.com/sabouaram/kvasync/command"
	liberr "github.com/sabouaram/kvasync/errors"
	"github.com/sabouaram/kvasync/node"
	"github.com/sabouaram/kvasync/timeoutwheel"
	"github.com/sabouaram/kvasync/wire"
)

// CapabilityBuilder renders one node's share of a fan-out into a
// command.Capability whose BuildRequest closure captures exactly that
// node's keys — built fresh per child, not shared process-wide by Kind,
// since concurrent children of the same Kind carry different key sets.
type CapabilityBuilder func(n *node.Node, keys []Key) command.Capability

// Rig bundles the scheduling primitives every child command in a fan-out
// shares, so RunBatch doesn't need a long positional parameter list.
type Rig struct {
	BufPool *buffer.Pool
	Adm     *admission.Scheduler
	Wheel   *timeoutwheel.Wheel
	Pol     command.Policy
	// Retries bounds how many times a node-level child failure is
	// re-dispatched (to the locator's then-current owner, which may have
	// changed) before it is reported as the fan-out's terminal failure.
	Retries int
}

// RunBatch is the batch fan-out entry point: split keys by current
// owning node, dispatch one command.MultiState child per node, and
// aggregate every child's outcome into listener. A child that fails at
// the connection/timeout level (never an application result code, which
// arrives as an ordinary record) is retried against the locator's
// current owner up to rig.Retries times before the fan-out gives up.
func RunBatch(ctx context.Context, keys []Key, loc NodeLocator, kind command.Kind, build CapabilityBuilder, rig Rig, listener Listener) liberr.Error {
	groups, err := SplitByNode(keys, loc)
	if err != nil {
		return err
	}

	ex := New(listener)
	guards := ex.Begin(len(groups))

	i := 0
	for n, ks := range groups {
		g := guards[i]
		i++
		go dispatchChild(ctx, kind, build, rig, ex, loc, n, ks, g, rig.Retries)
	}
	return nil
}

func dispatchChild(ctx context.Context, kind command.Kind, build CapabilityBuilder, rig Rig, ex *Executor, loc NodeLocator, n *node.Node, keys []Key, g *ChildGuard, retriesLeft int) {
	resolver := func(attempt int) (*node.Node, error) { return n, nil }
	adapter := &childAdapter{
		ex: ex, g: g, loc: loc,
		ctx: ctx, kind: kind, build: build, rig: rig,
		keys: keys, retriesLeft: retriesLeft,
	}

	m := command.NewMultiWithCapability(kind, build(n, keys), resolver, adapter, nil, rig.BufPool, rig.Adm, rig.Wheel, rig.Pol)
	m.Run(ctx)
}

// childAdapter bridges one command.MultiListener to its Executor slot,
// re-dispatching to the locator's then-current owner on a retryable
// failure instead of failing the whole fan-out.
type childAdapter struct {
	ex          *Executor
	g           *ChildGuard
	loc         NodeLocator
	ctx         context.Context
	kind        command.Kind
	build       CapabilityBuilder
	rig         Rig
	keys        []Key
	retriesLeft int
}

func (c *childAdapter) OnRecord(rec *wire.Record) {
	c.ex.OnRecord(rec)
}

func (c *childAdapter) OnComplete() {
	c.ex.ChildSuccess(c.g)
}

func (c *childAdapter) OnFailure(err error, inDoubt bool) {
	if c.retriesLeft <= 0 {
		c.ex.ChildFailure(c.g, err, inDoubt, nil)
		return
	}

	c.ex.ChildFailure(c.g, err, inDoubt, func(next *ChildGuard) {
		n, rerr := c.loc.NodeForKey(c.keys[0])
		if rerr != nil {
			c.ex.ChildFailure(next, rerr, false, nil)
			return
		}
		go dispatchChild(c.ctx, c.kind, c.build, c.rig, c.ex, c.loc, n, c.keys, next, c.retriesLeft-1)
	})
}
