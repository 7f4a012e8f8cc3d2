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
	"time"

	libtls "github.com/sabouaram/kvasync/certificates"
	"github.com/sabouaram/kvasync/admission"
)

// Options configures the scheduling primitives a Cluster owns once, shared
// by every node it registers: one buffer.Pool, one admission.Scheduler,
// one timeoutwheel.Wheel, per Design Notes §9's "avoid process-wide
// singletons, one per Cluster" rule.
type Options struct {
	// TLS dials every node connection through libtls.TLSConfig when true.
	TLS        bool
	TLSConfig  libtls.TLSConfig
	ServerName string

	// PoolCapacity/PoolMaxIdle size each node's *pool.ConnectionPool.
	PoolCapacity int
	PoolMaxIdle  time.Duration

	// BufferSlotCount/BufferSlotSize size the shared buffer.Pool.
	BufferSlotCount int
	BufferSlotSize  int

	// AdmissionPolicy/AdmissionLimit/AdmissionMaxWait configure the shared
	// admission.Scheduler.
	AdmissionPolicy  admission.Policy
	AdmissionLimit   int64
	AdmissionMaxWait int
}

// DefaultOptions returns sane defaults for a small deployment: a handful
// of pooled connections per node, a modest shared buffer pool, and
// reject-on-overflow admission.
func DefaultOptions() Options {
	return Options{
		PoolCapacity:     8,
		PoolMaxIdle:      5 * time.Minute,
		BufferSlotCount:  256,
		BufferSlotSize:   64 * 1024,
		AdmissionPolicy:  admission.PolicyReject,
		AdmissionLimit:   100,
		AdmissionMaxWait: 0,
	}
}
