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

package kvclient

import (
	"context"

	"github.com/sabouaram/kvasync/buffer"
	"github.com/sabouaram/kvasync/command"
	"github.com/sabouaram/kvasync/fanout"
)

// recordCapability builds the Capability shared by Get/Put/Delete: render
// the namespace/set/digest fields plus any write ops, parse the single
// response record with the default group-record layout.
func recordCapability(ns, set string, digest []byte, ops []Bin, isWrite bool, latency string) command.Capability {
	return command.Capability{
		BuildRequest: func(seg *buffer.Segment) (int, error) {
			return renderRequest(seg, keyFields(ns, set, digest), binOps(ops))
		},
		ParseBody:       command.DefaultParseBody,
		IsWrite:         isWrite,
		LatencyCategory: latency,
	}
}

func (c *Client) keyDispatch(ctx context.Context, kind command.Kind, ns, set string, digest []byte, ops []Bin, isWrite bool, latency string, pol command.Policy, listener Listener) {
	k := fanout.Key{Namespace: ns, Set: set, Digest: digest}
	cap := recordCapability(ns, set, digest, ops, isWrite, latency)
	s := command.NewWithCapability(kind, cap, c.resolverFor(k), listener, c.cl.BufPool(), c.cl.Admission(), c.cl.Wheel(), pol)
	s.Run(ctx)
}

// Get dispatches a single-key read. listener is notified on whichever
// goroutine completes the request.
func (c *Client) Get(ctx context.Context, ns, set string, digest []byte, listener Listener) {
	c.keyDispatch(ctx, command.KindRead, ns, set, digest, nil, false, "read", c.pol.Read, listener)
}

// Put dispatches a single-key write carrying bins, in the order given.
func (c *Client) Put(ctx context.Context, ns, set string, digest []byte, bins []Bin, listener Listener) {
	c.keyDispatch(ctx, command.KindWrite, ns, set, digest, bins, true, "write", c.pol.Write, listener)
}

// Delete dispatches a single-key delete: a write with no bins.
func (c *Client) Delete(ctx context.Context, ns, set string, digest []byte, listener Listener) {
	c.keyDispatch(ctx, command.KindWrite, ns, set, digest, nil, true, "write", c.pol.Write, listener)
}
