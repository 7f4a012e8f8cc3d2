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

// Package node models one cluster member: its identity, liveness, health
// counter and owned connection pool. Node lifecycle (discovery, removal) is
// owned by the embedding application's cluster membership collaborator; this
// package only holds the handle and the async-engine-local bookkeeping.
package node

import (
	libatm "github.com/sabouaram/kvasync/atomic"
	"github.com/sabouaram/kvasync/pool"
)

// ReplicaPolicy selects which replica of a partition a command targets.
type ReplicaPolicy uint8

const (
	PolicyMaster ReplicaPolicy = iota
	PolicyMasterProles
	PolicyRandom
	PolicySequence
	PolicyPreferRack
)

// Node is one server member of the cluster.
type Node struct {
	Name      string
	Addresses []string
	Rack      string

	live   libatm.Value[bool]
	health libatm.Value[int32]
	gen    libatm.Value[uint64]

	Pool *pool.ConnectionPool
}

// New builds a Node bound to a freshly constructed connection pool for opts.
func New(name string, addresses []string, rack string, pl *pool.ConnectionPool) *Node {
	n := &Node{
		Name:      name,
		Addresses: addresses,
		Rack:      rack,
		Pool:      pl,
		live:      libatm.NewValue[bool](),
		health:    libatm.NewValue[int32](),
		gen:       libatm.NewValue[uint64](),
	}

	n.live.Store(true)
	n.health.Store(100)

	return n
}

// IsActive reports whether the cluster still considers this node live.
func (n *Node) IsActive() bool {
	return n.live.Load()
}

// SetActive flips the liveness flag. Called by the cluster handle on
// membership changes; never by the async engine itself.
func (n *Node) SetActive(active bool) {
	n.live.Store(active)
}

// Health returns the current health counter: a monotonic integer decreased
// on network error and restored on success, clamped to [0, 100].
func (n *Node) Health() int32 {
	return n.health.Load()
}

// DecHealth lowers the health counter on a network error, clamped at 0.
func (n *Node) DecHealth(by int32) {
	for {
		old := n.health.Load()
		next := old - by
		if next < 0 {
			next = 0
		}
		if n.health.CompareAndSwap(old, next) {
			return
		}
	}
}

// RestoreHealth raises the health counter on a successful command, clamped
// at 100.
func (n *Node) RestoreHealth(by int32) {
	for {
		old := n.health.Load()
		next := old + by
		if next > 100 {
			next = 100
		}
		if n.health.CompareAndSwap(old, next) {
			return
		}
	}
}

// Generation returns the current partition-map generation this node last
// reported; used to detect a stale cached replica assignment.
func (n *Node) Generation() uint64 {
	return n.gen.Load()
}

// BumpGeneration advances the generation counter.
func (n *Node) BumpGeneration(g uint64) {
	n.gen.Store(g)
}

// Next advances the replica selection for a retry, per policy:
//   - SEQUENCE / MASTER_PROLES: round-robin over the replica set.
//   - RANDOM: independent re-roll each attempt.
//   - MASTER / PREFER_RACK: always replica 0 (the caller pre-sorts the
//     replica set so index 0 is the preferred target).
func (p ReplicaPolicy) Next(attempt int, replicaCount int, rnd func(int) int) int {
	if replicaCount <= 0 {
		return 0
	}

	switch p {
	case PolicySequence, PolicyMasterProles:
		return attempt % replicaCount
	case PolicyRandom:
		return rnd(replicaCount)
	default:
		return 0
	}
}
