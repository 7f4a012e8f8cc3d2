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

// Package cluster is the handle an embedding application's membership
// collaborator drives: Upsert/Remove as nodes join or leave, while every
// command dispatched through this module resolves its target node through
// the same handle. Node discovery and health tending are out of scope;
// cluster only ever reacts to Upsert/Remove calls.
package cluster

import (
	"sync"

	libatm "github.com/sabouaram/kvasync/atomic"
	"github.com/sabouaram/kvasync/admission"
	"github.com/sabouaram/kvasync/buffer"
	"github.com/sabouaram/kvasync/node"
	"github.com/sabouaram/kvasync/timeoutwheel"
)

// NodeInfo is what the embedding application's membership collaborator
// supplies on each Upsert: the node's dial targets plus the partitions it
// currently masters.
type NodeInfo struct {
	Name       string
	Addresses  []string
	Rack       string
	Partitions []uint16
}

// Cluster owns the node registry and the scheduling primitives every
// command dispatched against this cluster shares: one buffer.Pool, one
// admission.Scheduler, one timeoutwheel.Wheel. It implements
// partition.Locator and fanout.NodeLocator so command/fanout/partition
// never import cluster back.
type Cluster struct {
	opts Options

	nodes libatm.MapTyped[string, *node.Node]

	pmu        sync.RWMutex
	partitions map[uint16]*node.Node

	bufPool *buffer.Pool
	adm     *admission.Scheduler
	wheel   *timeoutwheel.Wheel
}

// BufPool returns the buffer.Pool every command dispatched through this
// cluster rents its wire segment from.
func (c *Cluster) BufPool() *buffer.Pool { return c.bufPool }

// Admission returns the admission.Scheduler every command is admitted
// through before it runs.
func (c *Cluster) Admission() *admission.Scheduler { return c.adm }

// Wheel returns the timeoutwheel.Wheel every command registers its
// deadline with.
func (c *Cluster) Wheel() *timeoutwheel.Wheel { return c.wheel }

// Get returns the node registered under name, if any.
func (c *Cluster) Get(name string) (*node.Node, bool) {
	return c.nodes.Load(name)
}
