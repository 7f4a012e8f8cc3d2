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
	"bytes"
	"context"
	"io"
	"time"

	"github.com/sabouaram/kvasync/admission"
	"github.com/sabouaram/kvasync/buffer"
	"github.com/sabouaram/kvasync/timeoutwheel"
	"github.com/sabouaram/kvasync/transport"
	"github.com/sabouaram/kvasync/wire"
)

// MultiListener is notified once per embedded record and once for the
// whole response's outcome; a fan-out child wraps this to feed its
// partition tracker and aggregation counters.
type MultiListener interface {
	OnRecord(rec *wire.Record)
	OnComplete()
	OnFailure(err error, inDoubt bool)
}

// PartitionDoneFunc is invoked once per record whose info3 carries
// PARTITION_DONE; generation is overloaded to the partition id for these
// records. command has no partition package dependency of its own, so the
// caller (fanout) supplies this to forward into its own
// partition.Tracker.MarkUnavailable.
type PartitionDoneFunc func(partitionID uint16, resultCode uint8)

// MultiState drives the same connect/send pipeline as State but consumes a
// stream of record groups instead of one fixed-length body, looping on
// !info3.LAST across as many frames as the server sends.
type MultiState struct {
	*State

	multiListener   MultiListener
	onPartitionDone PartitionDoneFunc
}

// NewMulti builds a MultiState wired the same way State is, but notifying
// through a MultiListener instead of Listener.
func NewMulti(kind Kind, resolver NodeResolver, listener MultiListener, onPartitionDone PartitionDoneFunc, bufPool *buffer.Pool, adm *admission.Scheduler, wheel *timeoutwheel.Wheel, pol Policy) *MultiState {
	base := New(kind, resolver, nil, bufPool, adm, wheel, pol)
	return &MultiState{State: base, multiListener: listener, onPartitionDone: onPartitionDone}
}

// CheckTimeout overrides the embedded State's: a multi-record command
// notifies through multiListener, not the base Listener the embedded
// State was built with (which is left nil by NewMulti).
func (m *MultiState) CheckTimeout() bool {
	if !m.complete() {
		return true
	}

	if m.Phase() == PhaseReadingBody && m.conn != nil && m.frameSize > m.bytesRead {
		d := recoverDrainer(m.State)
		go func() { _ = d.Run() }()
	} else if m.conn != nil {
		_ = m.conn.Close()
		m.node.Pool.Discard()
	}

	if m.adm != nil {
		m.adm.Release(m.seg)
	}
	if m.multiListener != nil {
		m.multiListener.OnFailure(ErrorCommandTimedOut.Error(nil), m.inDoubt.Load())
	}
	return true
}

// Run drives the multi-record command to completion on the calling
// goroutine, mirroring State.Run/attempt up through WRITING, then
// replacing the single fixed-length body read with a record-group loop.
func (m *MultiState) Run(ctx context.Context) {
	m.deadline = m.start.Add(m.pol.TotalTimeout)
	m.ctx = ctx
	if m.wheel != nil {
		_ = m.wheel.Register(m)
	}

	m.attemptMulti(ctx)
}

func (m *MultiState) attemptMulti(ctx context.Context) {
	m.setPhase(PhaseConnecting)

	n, err := m.resolver(m.iteration)
	if err != nil {
		m.terminalFailMulti(err)
		return
	}
	m.node = n

	conn, err := n.Pool.Get(ctx)
	if err != nil {
		m.retryOrFailMulti(err)
		return
	}
	m.conn = conn

	if m.seg == nil {
		seg, rerr := m.bufPool.Rent(m.bufPool.SlotSize())
		if rerr != nil {
			_ = conn.Close()
			n.Pool.Discard()
			m.terminalFailMulti(rerr)
			return
		}
		m.seg = seg
	}

	m.setPhase(PhaseWriting)
	length, err := m.cap.BuildRequest(m.seg)
	if err != nil {
		_ = conn.Close()
		n.Pool.Discard()
		m.terminalFailMulti(err)
		return
	}

	if err := m.writeAll(conn, length); err != nil {
		m.retryOrFailMulti(err)
		return
	}
	m.sent = true

	m.setPhase(PhaseReadingHeader)
	if err := m.runGroups(conn); err != nil {
		m.retryOrFailMulti(err)
		return
	}

	m.setPhase(PhaseDone)
	if m.wheel != nil {
		m.wheel.Cancel(m)
	}
	if !m.complete() {
		return
	}
	if m.conn != nil {
		m.node.Pool.Put(m.conn)
	}
	if m.adm != nil {
		m.adm.Release(m.seg)
	}
	if m.multiListener != nil {
		m.multiListener.OnComplete()
	}
}

// runGroups reads successive frames off conn, each holding a group of
// records, until a record's header reports IsLast. PARTITION_DONE records
// (meaningful for scan/query) are routed to onPartitionDone instead of the
// listener's per-record callback, with Generation overloaded to the
// partition id per spec.
func (m *MultiState) runGroups(conn transport.Conn) error {
	for {
		var hdrBuf [wire.FrameHeaderSize]byte
		if err := m.readFull(conn, hdrBuf[:]); err != nil {
			return err
		}

		fh, err := wire.DecodeFrameHeader(hdrBuf[:])
		if err != nil {
			return err
		}
		if fh.Type == wire.TypeCompressed {
			return ErrorResultNotRetryable.Error(nil)
		}

		m.frameSize = int64(fh.Size)
		m.bytesRead = 0

		body := make([]byte, fh.Size)
		if err := m.readBody(conn, body); err != nil {
			return err
		}

		p := wire.NewGroupParser(bytes.NewReader(body))
		last := false
		for {
			rec, perr := p.Next()
			if perr == io.EOF {
				break
			}
			if perr != nil {
				return perr
			}

			if rec.Header.IsPartitionDone() {
				if m.onPartitionDone != nil {
					m.onPartitionDone(uint16(rec.Header.Generation), rec.Header.ResultCode)
				}
			} else if m.multiListener != nil {
				m.multiListener.OnRecord(&rec)
			}

			if rec.Header.IsLast() {
				last = true
			}
		}

		if last {
			return nil
		}
	}
}

func (m *MultiState) retryOrFailMulti(err error) {
	if m.conn != nil {
		_ = m.conn.Close()
		m.node.Pool.Discard()
		m.conn = nil
	}
	if m.node != nil {
		m.node.DecHealth(10)
	}
	if m.sent && m.cap.IsWrite {
		m.inDoubt.CompareAndSwap(false, true)
	}

	m.iteration++
	elapsed := time.Since(m.start)

	if m.iteration < m.pol.MaxRetries && elapsed+m.pol.SleepBetweenRetries <= m.pol.TotalTimeout {
		if m.pol.SleepBetweenRetries > 0 {
			time.Sleep(m.pol.SleepBetweenRetries)
		}
		m.attemptMulti(m.ctx)
		return
	}

	m.terminalFailMulti(ErrorRetriesExhausted.Error(nil))
}

func (m *MultiState) terminalFailMulti(err error) {
	if m.conn != nil {
		_ = m.conn.Close()
		if m.node != nil {
			m.node.Pool.Discard()
		}
		m.conn = nil
	}

	if m.wheel != nil {
		m.wheel.Cancel(m)
	}
	if !m.complete() {
		return
	}
	if m.adm != nil {
		m.adm.Release(m.seg)
	}
	if m.multiListener != nil {
		m.multiListener.OnFailure(err, m.inDoubt.Load())
	}
}
