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
	"sync"

	"github.com/sabouaram/kvasync/buffer"
	"github.com/sabouaram/kvasync/command"
	liberr "github.com/sabouaram/kvasync/errors"
	"github.com/sabouaram/kvasync/node"
	"github.com/sabouaram/kvasync/partition"
	"github.com/sabouaram/kvasync/wire"
)

// ScanListener is notified for every record any partition's stream
// produces, and exactly once for the scan/query's overall completion.
// Unlike Batch, a node-level failure here does not fail the whole
// operation: the affected partitions are simply retried against their
// (possibly new) owner on the next round, up to the client's ScanRounds
// budget.
type ScanListener interface {
	OnRecord(rec *wire.Record)
	OnComplete()
}

// scanRoundAdapter bridges one node's MultiState to the shared tracker and
// listener for the round it was dispatched in.
type scanRoundAdapter struct {
	listener   ScanListener
	tracker    *partition.Tracker
	partitions []uint16
}

func (a *scanRoundAdapter) OnRecord(rec *wire.Record) {
	a.listener.OnRecord(rec)
}

func (a *scanRoundAdapter) OnComplete() {}

// OnFailure marks every partition this child was asked to stream as
// Unavailable again, so the next AssignToNodes round re-issues them
// against their then-current owner instead of leaving them stuck
// InProgress forever.
func (a *scanRoundAdapter) OnFailure(err error, inDoubt bool) {
	for _, id := range a.partitions {
		a.tracker.MarkUnavailable(id, wire.ResultNoMoreConnections)
	}
}

// scanQueryCapability renders one node's share of a scan/query round: the
// namespace plus the partition ids assigned to it, and an optional
// predicate payload (nil for a plain scan).
func scanQueryCapability(ns string, partitions []uint16, predicate []byte) command.Capability {
	return command.Capability{
		BuildRequest: func(seg *buffer.Segment) (int, error) {
			return encodePartitionList(seg, ns, partitions, predicate)
		},
		ParseBody: command.DefaultParseBody,
	}
}

// runRounds drives tracker through successive AssignToNodes rounds,
// dispatching one MultiState per node per round and waiting for the whole
// round to report in before deciding whether another round is needed.
func (c *Client) runRounds(ctx context.Context, ns string, kind command.Kind, pol command.Policy, predicate []byte, listener ScanListener) liberr.Error {
	tracker := partition.NewTracker(ns)

	for {
		assignments, err := tracker.AssignToNodes(c.partitionLocator())
		if err != nil {
			return err
		}
		if len(assignments) == 0 {
			break
		}

		var wg sync.WaitGroup
		for _, np := range assignments {
			wg.Add(1)
			go func(np partition.NodePartitions) {
				defer wg.Done()
				c.runRoundChild(ctx, kind, pol, ns, np, predicate, tracker, listener)
			}(np)
		}
		wg.Wait()

		if tracker.IsClusterComplete(partition.RoundPolicy{MaxRounds: c.opts.ScanRounds}) {
			break
		}
	}

	listener.OnComplete()
	return nil
}

func (c *Client) runRoundChild(ctx context.Context, kind command.Kind, pol command.Policy, ns string, np partition.NodePartitions, predicate []byte, tracker *partition.Tracker, listener ScanListener) {
	cap := scanQueryCapability(ns, np.Partitions, predicate)
	resolver := func(attempt int) (*node.Node, error) { return np.Node, nil }
	adapter := &scanRoundAdapter{listener: listener, tracker: tracker, partitions: np.Partitions}

	m := command.NewMultiWithCapability(kind, cap, resolver, adapter, tracker.MarkUnavailable, c.cl.BufPool(), c.cl.Admission(), c.cl.Wheel(), pol)
	m.Run(ctx)
}

// Scan streams every record in namespace ns across the cluster's
// partitions, round by round, until every partition has reported Done or
// the client's ScanRounds budget is exhausted.
func (c *Client) Scan(ctx context.Context, ns string, listener ScanListener) liberr.Error {
	return c.runRounds(ctx, ns, command.KindScanChild, c.pol.Scan, nil, listener)
}

// Query streams every record in namespace ns matching predicate (an
// opaque, caller-encoded filter expression — building it is out of this
// module's scope) across the cluster's partitions.
func (c *Client) Query(ctx context.Context, ns string, predicate []byte, listener ScanListener) liberr.Error {
	return c.runRounds(ctx, ns, command.KindQueryChild, c.pol.Query, predicate, listener)
}
