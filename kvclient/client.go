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

// Package kvclient is the user-facing facade: Get/Put/Delete/Batch/Scan/
// Query/Txn methods that build a command against the cluster handle's
// shared scheduling primitives and report through the caller's listener on
// whichever goroutine completed the request. Nothing here blocks; every
// method returns as soon as the command is admitted and dispatched.
package kvclient

import (
	"github.com/sabouaram/kvasync/admission"
	"github.com/sabouaram/kvasync/buffer"
	"github.com/sabouaram/kvasync/command"
	"github.com/sabouaram/kvasync/fanout"
	"github.com/sabouaram/kvasync/node"
	"github.com/sabouaram/kvasync/partition"
	"github.com/sabouaram/kvasync/timeoutwheel"
)

// Listener is notified exactly once for a single-key Get/Put/Delete, on
// whichever goroutine completed it.
type Listener = command.Listener

// ClusterHandle is the seam Client dispatches every command through:
// cluster.Cluster implements it directly, so kvclient never has to import
// cluster back, the same way command/fanout/partition avoid that
// dependency direction through their own Locator/NodeLocator seams.
type ClusterHandle interface {
	fanout.NodeLocator
	partition.Locator
	BufPool() *buffer.Pool
	Admission() *admission.Scheduler
	Wheel() *timeoutwheel.Wheel
}

// Policies bundles the per-operation-family command.Policy a Client
// dispatches with; config.EngineOptions supplies concrete values.
type Policies struct {
	Read  command.Policy
	Write command.Policy
	Batch command.Policy
	Scan  command.Policy
	Query command.Policy
	Txn   command.Policy
}

// Client is the embedding application's handle onto one cluster. It is
// safe for concurrent use: every method builds a fresh command/fan-out and
// dispatches it independently.
type Client struct {
	cl   ClusterHandle
	pol  Policies
	rig  fanout.Rig
	opts Options
}

// Options tunes fan-out/scan behavior a Client applies on top of the
// cluster handle's own scheduling primitives.
type Options struct {
	// FanoutRetries bounds how many times a Batch/Scan/Query child is
	// re-dispatched after a connection/timeout-level failure.
	FanoutRetries int
	// ScanRounds bounds how many AssignToNodes rounds Scan/Query will run
	// before giving up on partitions stuck Unavailable.
	ScanRounds int
}

// DefaultOptions returns a modest fan-out/scan retry budget.
func DefaultOptions() Options {
	return Options{FanoutRetries: 2, ScanRounds: 8}
}

// New builds a Client dispatching every command through cl's shared
// buffer pool, admission scheduler and timeout wheel.
func New(cl ClusterHandle, pol Policies, opts Options) *Client {
	return &Client{
		cl:  cl,
		pol: pol,
		rig: fanout.Rig{
			BufPool: cl.BufPool(),
			Adm:     cl.Admission(),
			Wheel:   cl.Wheel(),
			Pol:     pol.Batch,
			Retries: opts.FanoutRetries,
		},
		opts: opts,
	}
}

// resolverFor re-resolves k's owning node on every attempt (including
// retries), so a retry after a partition hand-off targets the new owner
// instead of repeating the failed one.
func (c *Client) resolverFor(k fanout.Key) command.NodeResolver {
	return func(attempt int) (*node.Node, error) {
		return c.cl.NodeForKey(k)
	}
}

// locator exposes the cluster handle as the seam fanout/partition need,
// without either package importing cluster directly.
func (c *Client) locator() fanout.NodeLocator { return c.cl }

func (c *Client) partitionLocator() partition.Locator { return c.cl }

// txnRig is the Rig a Txn's RollCoordinator dispatches its verify/roll
// phases through, carrying the client's txn-specific policy instead of
// Batch's.
func (c *Client) txnRig() fanout.Rig {
	return fanout.Rig{
		BufPool: c.cl.BufPool(),
		Adm:     c.cl.Admission(),
		Wheel:   c.cl.Wheel(),
		Pol:     c.pol.Txn,
		Retries: c.opts.FanoutRetries,
	}
}
