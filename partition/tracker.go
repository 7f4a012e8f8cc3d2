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

// Package partition tracks, for one namespace-scoped multi-record command
// (scan or query), which of the cluster's fixed partition set has been
// fully emitted, is mid-flight, or needs to be re-issued on the next
// round. A Tracker is owned by a single fanout.Executor batch; it never
// talks to a connection itself, only classifies and regroups partition
// ids for the caller to re-dispatch.
package partition

import (
	"encoding/binary"
	"sync"

	liberr "github.com/sabouaram/kvasync/errors"
	"github.com/sabouaram/kvasync/node"
	"github.com/sabouaram/kvasync/wire"
)

// Count is the fixed number of partitions the cluster's hash ring is
// split into. 4096 is small enough that a plain mutex over a flat status
// array beats a lock-free structure: the whole vector is a few KiB and
// every access already holds the lock only briefly.
const Count = 4096

// Status is one partition's position in a scan/query round.
type Status uint8

const (
	Unassigned Status = iota
	InProgress
	Done
	Unavailable
)

// Cursor is the last digest/value pair a partition's stream confirmed
// delivering, so a retried round can ask the server to resume after it
// instead of re-emitting records the listener already saw.
type Cursor struct {
	Digest []byte
	Value  []byte
}

// Locator resolves the node that currently owns a partition of a
// namespace. cluster.Cluster implements this; Tracker only depends on the
// interface, the same seam command.NodeResolver gives command.State so
// partition never has to import cluster back.
type Locator interface {
	NodeForPartition(ns string, partitionID uint16) (*node.Node, error)
}

// NodePartitions is one node's share of a round: the partition ids it
// should be asked to continue or start.
type NodePartitions struct {
	Node       *node.Node
	Partitions []uint16
}

// RoundPolicy bounds how many assignment rounds a Tracker will run before
// IsClusterComplete gives up on outstanding Unavailable partitions.
type RoundPolicy struct {
	MaxRounds int
}

// Tracker holds one namespace's partition status vector and cursors for
// the duration of a scan or query.
type Tracker struct {
	mu sync.RWMutex

	ns     string
	status [Count]Status
	cursor map[uint16]Cursor
	round  int
}

// NewTracker builds a Tracker with every partition Unassigned.
func NewTracker(ns string) *Tracker {
	return &Tracker{
		ns:     ns,
		cursor: make(map[uint16]Cursor),
	}
}

// ForDigest maps a record's digest to its owning partition, the same
// first-two-bytes-modulo-Count scheme the server uses to shard its hash
// ring.
func ForDigest(digest []byte) uint16 {
	if len(digest) < 2 {
		return 0
	}
	return uint16(binary.BigEndian.Uint16(digest[:2]) % Count)
}

// Namespace returns the namespace this Tracker was built for.
func (t *Tracker) Namespace() string {
	return t.ns
}

// Status returns one partition's current status.
func (t *Tracker) Status(partitionID uint16) (Status, liberr.Error) {
	if int(partitionID) >= Count {
		return Unassigned, ErrorPartitionOutOfRange.Error(nil)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status[partitionID], nil
}

// AssignToNodes groups every partition not yet Done by its current owning
// node, per spec's assignPartitionsToNodes: Unassigned and Unavailable
// partitions are eligible, marked InProgress as they're handed out, and
// InProgress partitions from a still-running prior round are left alone
// (a caller only calls AssignToNodes once per round, after the previous
// round's children have all reported in).
func (t *Tracker) AssignToNodes(loc Locator) ([]NodePartitions, liberr.Error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	byNode := make(map[*node.Node]*NodePartitions)
	order := make([]*node.Node, 0)

	for id := 0; id < Count; id++ {
		st := t.status[id]
		if st != Unassigned && st != Unavailable {
			continue
		}

		n, err := loc.NodeForPartition(t.ns, uint16(id))
		if err != nil {
			return nil, ErrorNoNodeForPartition.Error(err)
		}

		np, ok := byNode[n]
		if !ok {
			np = &NodePartitions{Node: n}
			byNode[n] = np
			order = append(order, n)
		}
		np.Partitions = append(np.Partitions, uint16(id))
		t.status[id] = InProgress
	}

	out := make([]NodePartitions, 0, len(order))
	for _, n := range order {
		out = append(out, *byNode[n])
	}
	return out, nil
}

// SetLast advances a partition's resume cursor, called as each record
// streams in so a later retried round can continue past it.
func (t *Tracker) SetLast(partitionID uint16, digest []byte, value []byte) {
	if int(partitionID) >= Count {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursor[partitionID] = Cursor{Digest: digest, Value: value}
}

// Last returns a partition's current resume cursor, if any was recorded.
func (t *Tracker) Last(partitionID uint16) (Cursor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.cursor[partitionID]
	return c, ok
}

// MarkUnavailable is the PartitionDoneFunc command.MultiState invokes for
// every PARTITION_DONE record: resultCode OK marks the partition Done,
// any other code marks it Unavailable so the next AssignToNodes round
// re-issues it.
func (t *Tracker) MarkUnavailable(partitionID uint16, resultCode uint8) {
	if int(partitionID) >= Count {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if resultCode == wire.ResultOK {
		t.status[partitionID] = Done
	} else {
		t.status[partitionID] = Unavailable
	}
}

// IsClusterComplete reports whether every partition has reached Done, or
// the round budget in pol has been exhausted. It advances the round
// counter each time it is called, so it must be called once per round,
// after a round's children have all reported in.
func (t *Tracker) IsClusterComplete(pol RoundPolicy) bool {
	t.mu.Lock()
	t.round++
	round := t.round
	t.mu.Unlock()

	t.mu.RLock()
	defer t.mu.RUnlock()
	for id := 0; id < Count; id++ {
		if t.status[id] != Done {
			if pol.MaxRounds > 0 && round >= pol.MaxRounds {
				return true
			}
			return false
		}
	}
	return true
}
