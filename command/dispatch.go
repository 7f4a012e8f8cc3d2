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

package command

import (
	libatm "github.com/sabouaram/kvasync/atomic"
	"github.com/sabouaram/kvasync/admission"
	"github.com/sabouaram/kvasync/buffer"
	"github.com/sabouaram/kvasync/timeoutwheel"
	"time"
)

// NewWithCapability builds a State from an explicit Capability instead of
// the process-wide Kind registry. fanout and txn children need a fresh
// BuildRequest closure per command instance (it captures that instance's
// specific keys/bins), not one shared closure per Kind the way a plain
// Read/Write command does; routing every concurrent child through
// Register/Lookup on the same Kind would race two children's closures
// against each other.
func NewWithCapability(kind Kind, cap Capability, resolver NodeResolver, listener Listener, bufPool *buffer.Pool, adm *admission.Scheduler, wheel *timeoutwheel.Wheel, pol Policy) *State {
	return &State{
		kind:     kind,
		cap:      cap,
		pol:      pol,
		resolver: resolver,
		listener: listener,
		bufPool:  bufPool,
		adm:      adm,
		wheel:    wheel,
		latch:    libatm.NewValue[uint8](),
		phase:    libatm.NewValue[int32](),
		inDoubt:  libatm.NewValue[bool](),
		start:    time.Now(),
	}
}

// NewMultiWithCapability is NewWithCapability's MultiState counterpart.
func NewMultiWithCapability(kind Kind, cap Capability, resolver NodeResolver, listener MultiListener, onPartitionDone PartitionDoneFunc, bufPool *buffer.Pool, adm *admission.Scheduler, wheel *timeoutwheel.Wheel, pol Policy) *MultiState {
	base := NewWithCapability(kind, cap, resolver, nil, bufPool, adm, wheel, pol)
	return &MultiState{State: base, multiListener: listener, onPartitionDone: onPartitionDone}
}
