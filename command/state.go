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

// Package command drives one request through connect, send, receive and
// parse, with retry, timeout and in-doubt accounting layered on top of the
// transport/pool/buffer/admission primitives. A State is single-use: once
// it reaches Done its completion-latch has already fired and it is
// discarded, not reset.
package command

import (
	"context"
	"time"

	libatm "github.com/sabouaram/kvasync/atomic"
	"github.com/sabouaram/kvasync/admission"
	"github.com/sabouaram/kvasync/buffer"
	"github.com/sabouaram/kvasync/node"
	"github.com/sabouaram/kvasync/recover"
	"github.com/sabouaram/kvasync/timeoutwheel"
	"github.com/sabouaram/kvasync/transport"
	"github.com/sabouaram/kvasync/wire"
)

// Phase is the command's position in the connect->send->receive->parse
// pipeline.
type Phase int32

const (
	PhaseNew Phase = iota
	PhaseConnecting
	PhaseWriting
	PhaseReadingHeader
	PhaseReadingBody
	PhaseParsed
	PhaseDone
)

const (
	latchRunning uint8 = iota
	latchCompleted
)

// NodeResolver picks the node a given attempt should target; attempt 0 is
// the first try, attempt N the (N+1)th retry. Partition and replica-policy
// resolution live above this package (in partition/fanout); NodeResolver is
// the seam that keeps command free of that dependency.
type NodeResolver func(attempt int) (*node.Node, error)

// Listener is notified exactly once, by whichever actor wins the
// completion-latch race.
type Listener interface {
	OnSuccess(rec *wire.Record)
	OnFailure(err error, inDoubt bool)
}

// Policy carries the per-command timing and retry budget; config.Policy
// supplies concrete values.
type Policy struct {
	TotalTimeout        time.Duration
	SocketTimeout       time.Duration
	MaxRetries          int
	SleepBetweenRetries time.Duration
	TimeoutDelay        time.Duration
}

// State is a single-record command: a Kind, a capability table, a node
// resolver, the scheduling primitives it was admitted through, and the
// mutable bookkeeping the spec's Command invariant names (buffer segment,
// wire offset/length, iteration counter, deadline, completion-latch,
// connection handle, retryable/in-doubt flags).
type State struct {
	kind Kind
	cap  Capability
	pol  Policy

	resolver NodeResolver
	listener Listener

	bufPool *buffer.Pool
	adm     *admission.Scheduler
	wheel   *timeoutwheel.Wheel

	// Meta carries caller-attached context (partition id, batch index, ...)
	// this package never interprets.
	Meta interface{}

	latch libatm.Value[uint8]
	phase libatm.Value[int32]

	iteration int
	start     time.Time
	deadline  time.Time
	ctx       context.Context

	node *node.Node
	conn transport.Conn
	seg  *buffer.Segment

	frameSize int64
	bytesRead int64
	sent      bool

	inDoubt libatm.Value[bool]
}

// New builds a State ready to Run. wheel may be nil (tests that do not
// exercise timeout behavior).
func New(kind Kind, resolver NodeResolver, listener Listener, bufPool *buffer.Pool, adm *admission.Scheduler, wheel *timeoutwheel.Wheel, pol Policy) *State {
	cap, _ := Lookup(kind)

	return &State{
		kind:      kind,
		cap:       cap,
		pol:       pol,
		resolver:  resolver,
		listener:  listener,
		bufPool:   bufPool,
		adm:       adm,
		wheel:     wheel,
		latch:     libatm.NewValue[uint8](),
		phase:     libatm.NewValue[int32](),
		inDoubt:   libatm.NewValue[bool](),
		start:     time.Now(),
	}
}

// Phase returns the command's current pipeline position.
func (s *State) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *State) setPhase(p Phase) {
	s.phase.Store(int32(p))
}

// InDoubt reports whether a write may have reached the server without a
// decisive response.
func (s *State) InDoubt() bool {
	return s.inDoubt.Load()
}

// Deadline implements timeoutwheel.Deadliner.
func (s *State) Deadline() time.Time {
	return s.deadline
}

// CheckTimeout implements timeoutwheel.Deadliner. The receive/send/parse
// path and the wheel race on the same completion-latch CAS; whichever
// flips Running->Completed first owns closing (or recovering) the
// connection and notifying the listener. A loser (the command already
// finished before the wheel got to it) just reports "remove me".
func (s *State) CheckTimeout() bool {
	if !s.complete() {
		return true
	}

	if s.Phase() == PhaseReadingBody && s.conn != nil && s.frameSize > s.bytesRead {
		d := recoverDrainer(s)
		go func() { _ = d.Run() }()
	} else if s.conn != nil {
		_ = s.conn.Close()
		s.node.Pool.Discard()
	}

	if s.adm != nil {
		s.adm.Release(s.seg)
	}
	if s.listener != nil {
		s.listener.OnFailure(ErrorCommandTimedOut.Error(nil), s.inDoubt.Load())
	}
	return true
}

// complete is the sole completion-latch CAS point: Run's success/failure
// paths and the wheel's CheckTimeout all call it, and only the winner
// proceeds to release resources and notify the listener.
func (s *State) complete() bool {
	return s.latch.CompareAndSwap(latchRunning, latchCompleted)
}

// recoverDrainer builds the recover.Drain that salvages s's connection
// once its command has timed out mid-body, registering it with the same
// wheel so the drain itself stays bounded.
func recoverDrainer(s *State) *recover.Drain {
	d := recover.New(s.conn, s.node.Pool, recover.Options{
		Remaining:        s.frameSize - s.bytesRead,
		FrameType:        wire.TypeMessage,
		CurrentFrameLast: true,
		Budget:           s.pol.TimeoutDelay,
	})
	if s.wheel != nil {
		_ = s.wheel.Register(d)
	}
	return d
}

// Run drives the command to completion synchronously on the calling
// goroutine, matching spec's "callbacks run on whichever goroutine
// completed the operation" model: there is no fixed command-owning
// thread, only whichever goroutine is currently inside Run/retry.
func (s *State) Run(ctx context.Context) {
	s.deadline = s.start.Add(s.pol.TotalTimeout)
	s.ctx = ctx
	if s.wheel != nil {
		_ = s.wheel.Register(s)
	}

	s.attempt(ctx)
}

func (s *State) attempt(ctx context.Context) {
	s.setPhase(PhaseConnecting)

	n, err := s.resolver(s.iteration)
	if err != nil {
		s.terminalFail(err)
		return
	}
	s.node = n

	conn, err := n.Pool.Get(ctx)
	if err != nil {
		s.retryOrFail(err)
		return
	}
	s.conn = conn

	if s.seg == nil {
		seg, rerr := s.bufPool.Rent(s.bufPool.SlotSize())
		if rerr != nil {
			_ = conn.Close()
			n.Pool.Discard()
			s.terminalFail(rerr)
			return
		}
		s.seg = seg
	}

	s.setPhase(PhaseWriting)
	length, err := s.cap.BuildRequest(s.seg)
	if err != nil {
		_ = conn.Close()
		n.Pool.Discard()
		s.terminalFail(err)
		return
	}

	if err := s.writeAll(conn, length); err != nil {
		s.retryOrFail(err)
		return
	}
	s.sent = true

	s.setPhase(PhaseReadingHeader)
	var hdrBuf [wire.FrameHeaderSize]byte
	if err := s.readFull(conn, hdrBuf[:]); err != nil {
		s.retryOrFail(err)
		return
	}

	fh, err := wire.DecodeFrameHeader(hdrBuf[:])
	if err != nil {
		s.terminalFail(err)
		return
	}

	if fh.Size == 0 {
		s.finishSuccess(nil)
		return
	}

	s.setPhase(PhaseReadingBody)
	s.frameSize = int64(fh.Size)
	s.bytesRead = 0

	body := make([]byte, fh.Size)
	if err := s.readBody(conn, body); err != nil {
		s.retryOrFail(err)
		return
	}

	s.setPhase(PhaseParsed)
	rec, err := s.cap.ParseBody(body)
	if err != nil {
		s.terminalFail(err)
		return
	}

	s.finishSuccess(rec)
}

func (s *State) writeAll(conn transport.Conn, length int) error {
	buf := s.seg.Bytes()
	offset := 0
	for offset < length {
		n, err := conn.Send(buf[offset:length])
		if err != nil {
			return err
		}
		offset += n
	}
	return nil
}

func (s *State) readFull(conn transport.Conn, buf []byte) error {
	for n := 0; n < len(buf); {
		r, err := conn.Recv(buf[n:])
		if err != nil {
			return err
		}
		n += r
	}
	return nil
}

func (s *State) readBody(conn transport.Conn, buf []byte) error {
	for n := 0; n < len(buf); {
		r, err := conn.Recv(buf[n:])
		if err != nil {
			return err
		}
		n += r
		s.bytesRead += int64(r)
	}
	return nil
}

// retryOrFail handles a socket-level error encountered during any I/O
// phase: closes the connection, decreases node health, and retries if the
// iteration/timeout budget allows; otherwise completes as a terminal
// failure.
func (s *State) retryOrFail(err error) {
	if s.conn != nil {
		_ = s.conn.Close()
		s.node.Pool.Discard()
		s.conn = nil
	}
	if s.node != nil {
		s.node.DecHealth(10)
	}
	if s.sent && s.cap.IsWrite {
		s.inDoubt.CompareAndSwap(false, true)
	}

	s.iteration++
	elapsed := time.Since(s.start)

	if s.iteration < s.pol.MaxRetries && elapsed+s.pol.SleepBetweenRetries <= s.pol.TotalTimeout {
		if s.pol.SleepBetweenRetries > 0 {
			time.Sleep(s.pol.SleepBetweenRetries)
		}
		s.attempt(s.ctx)
		return
	}

	s.terminalFail(ErrorRetriesExhausted.Error(nil))
}

func (s *State) finishSuccess(rec *wire.Record) {
	s.setPhase(PhaseDone)

	if s.wheel != nil {
		s.wheel.Cancel(s)
	}

	if !s.complete() {
		return
	}

	if s.conn != nil {
		s.node.Pool.Put(s.conn)
	}
	if s.adm != nil {
		s.adm.Release(s.seg)
	}
	if s.listener != nil {
		s.listener.OnSuccess(rec)
	}
}

func (s *State) terminalFail(err error) {
	if s.conn != nil {
		_ = s.conn.Close()
		if s.node != nil {
			s.node.Pool.Discard()
		}
		s.conn = nil
	}
	s.notifyFailure(err)
}

func (s *State) notifyFailure(err error) {
	if s.wheel != nil {
		s.wheel.Cancel(s)
	}

	if !s.complete() {
		return
	}

	if s.adm != nil {
		s.adm.Release(s.seg)
	}
	if s.listener != nil {
		s.listener.OnFailure(err, s.inDoubt.Load())
	}
}
