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

package cluster

import (
	"context"
	"sync/atomic"

	"github.com/sabouaram/kvasync/admission"
	"github.com/sabouaram/kvasync/buffer"
	liberr "github.com/sabouaram/kvasync/errors"
	"github.com/sabouaram/kvasync/fanout"
	libatm "github.com/sabouaram/kvasync/atomic"
	"github.com/sabouaram/kvasync/node"
	"github.com/sabouaram/kvasync/partition"
	"github.com/sabouaram/kvasync/pool"
	"github.com/sabouaram/kvasync/timeoutwheel"
	"github.com/sabouaram/kvasync/transport"
)

// New builds a Cluster with no nodes registered yet; the embedding
// application's membership collaborator populates it via Upsert.
func New(ctx context.Context, opts Options) *Cluster {
	bufPool := buffer.New(opts.BufferSlotCount, opts.BufferSlotSize)

	return &Cluster{
		opts:       opts,
		nodes:      libatm.NewMapTyped[string, *node.Node](),
		partitions: make(map[uint16]*node.Node),
		bufPool:    bufPool,
		adm:        admission.New(opts.AdmissionPolicy, opts.AdmissionLimit, opts.AdmissionMaxWait, bufPool),
		wheel:      timeoutwheel.New(ctx),
	}
}

// Upsert registers info as live, creating a fresh Node (and its
// connection pool) the first time this name is seen, or updating an
// existing Node's address/rack/partition-mastership in place otherwise.
// Existing in-flight connections on a node that is merely being updated
// are left alone; the pool only dials fresh ones lazily.
func (c *Cluster) Upsert(info NodeInfo) liberr.Error {
	if info.Name == "" {
		return ErrorParamEmpty.Error(nil)
	}
	if len(info.Addresses) == 0 {
		return ErrorNoAddresses.Error(nil)
	}

	n, ok := c.nodes.Load(info.Name)
	if !ok {
		pl := pool.New(c.dialerFor(info.Addresses), c.opts.PoolCapacity, c.opts.PoolMaxIdle)
		n = node.New(info.Name, info.Addresses, info.Rack, pl)
		c.nodes.Store(info.Name, n)
		clusterLogAdded(info)
	} else {
		n.SetActive(true)
		n.BumpGeneration(n.Generation() + 1)
	}

	c.pmu.Lock()
	for _, id := range info.Partitions {
		c.partitions[id] = n
	}
	c.pmu.Unlock()

	return nil
}

// Remove marks a node dead and clears its partition ownership so future
// NodeForPartition/NodeForKey calls stop routing to it; it does not close
// the node's in-flight connections, which fail their own liveness check on
// next retry, per spec's "non-owning handle cleared" removal semantics.
func (c *Cluster) Remove(name string) liberr.Error {
	if name == "" {
		return ErrorParamEmpty.Error(nil)
	}

	n, ok := c.nodes.Load(name)
	if !ok {
		return ErrorNodeNotFound.Error(nil)
	}
	n.SetActive(false)

	c.pmu.Lock()
	for id, owner := range c.partitions {
		if owner == n {
			delete(c.partitions, id)
		}
	}
	c.pmu.Unlock()

	c.nodes.Delete(name)
	clusterLogRemoved(name)
	return nil
}

// NodeForPartition implements partition.Locator: the node currently
// mastering partitionID, independent of namespace (this module's
// partition map is cluster-wide, not namespace-scoped).
func (c *Cluster) NodeForPartition(ns string, partitionID uint16) (*node.Node, error) {
	c.pmu.RLock()
	defer c.pmu.RUnlock()

	n, ok := c.partitions[partitionID]
	if !ok || !n.IsActive() {
		return nil, ErrorNodeNotFound.Error(nil)
	}
	return n, nil
}

// NodeForKey implements fanout.NodeLocator: derives the owning partition
// from the key's digest the same way the server's hash ring does, then
// resolves it the same as NodeForPartition.
func (c *Cluster) NodeForKey(k fanout.Key) (*node.Node, error) {
	id := partition.ForDigest(k.Digest)
	return c.NodeForPartition(k.Namespace, id)
}

// dialerFor round-robins info.Addresses across successive pool.Dialer
// calls, so a multi-address node (e.g. one behind several listeners)
// spreads new connections instead of hammering the first address.
func (c *Cluster) dialerFor(addresses []string) pool.Dialer {
	var next int64
	return func(ctx context.Context) (transport.Conn, error) {
		i := atomic.AddInt64(&next, 1) - 1
		addr := addresses[int(i)%len(addresses)]

		conn, err := transport.New(transport.Options{
			Address:    addr,
			TLS:        c.opts.TLS,
			TLSConfig:  c.opts.TLSConfig,
			ServerName: c.opts.ServerName,
		})
		if err != nil {
			return nil, err
		}
		if err := conn.Connect(ctx); err != nil {
			return nil, err
		}
		return conn, nil
	}
}
