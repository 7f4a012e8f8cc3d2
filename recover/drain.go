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

// Package recover parks a connection whose in-flight command timed out
// mid-read instead of closing it outright: it drains the bytes still
// queued on the wire and, once the response is fully consumed, returns
// the connection to its pool rather than wasting a warm socket.
package recover

import (
	"io"
	"time"

	libatm "github.com/sabouaram/kvasync/atomic"
	"github.com/sabouaram/kvasync/pool"
	"github.com/sabouaram/kvasync/transport"
	"github.com/sabouaram/kvasync/wire"
)

const (
	stateRunning uint8 = iota
	stateTimedOut
	stateDone
)

// Drain wires itself as the connection's active reader: further socket
// bytes route here instead of to the dead command. It implements
// timeoutwheel.Deadliner so the same wheel that tracks commands also
// bounds how long recovery is allowed to take.
type Drain struct {
	conn  transport.Conn
	pl    *pool.ConnectionPool
	state libatm.Value[uint8]

	remaining        int64
	multi            bool
	compressed       bool
	isAuthDrain      bool
	currentFrameLast bool

	deadline time.Time
}

// Options configures one drain attempt.
type Options struct {
	// Remaining is the number of still-unread bytes in the current
	// frame body (frame size minus bytes already consumed).
	Remaining int64
	// FrameType is the type byte of the frame currently being drained;
	// TypeCompressed refuses the drain outright.
	FrameType wire.FrameType
	// Multi marks a multi-record response: after the current frame is
	// drained, further frames are read and parsed until a record's
	// header reports IsLast.
	Multi bool
	// IsAuthDrain marks a single-byte authentication reply: the byte
	// must be validated as zero (success) once drained.
	IsAuthDrain bool
	// CurrentFrameLast tells the drain the in-flight frame's record
	// already carried the LAST bit, so no further frames need reading
	// once Remaining is drained.
	CurrentFrameLast bool
	// Budget bounds how long the drain may run before its connection
	// is closed unconditionally.
	Budget time.Duration
}

// New builds a Drain for conn, to be registered with a timeoutwheel.Wheel
// by the caller (the wheel package cannot import recover without a
// cycle, so registration is the caller's responsibility).
func New(conn transport.Conn, pl *pool.ConnectionPool, opts Options) *Drain {
	return &Drain{
		conn:             conn,
		pl:               pl,
		state:            libatm.NewValue[uint8](),
		remaining:        opts.Remaining,
		multi:            opts.Multi,
		compressed:       opts.FrameType == wire.TypeCompressed,
		isAuthDrain:      opts.IsAuthDrain,
		currentFrameLast: opts.CurrentFrameLast,
		deadline:         time.Now().Add(opts.Budget),
	}
}

// Deadline implements timeoutwheel.Deadliner.
func (d *Drain) Deadline() time.Time {
	return d.deadline
}

// CheckTimeout implements timeoutwheel.Deadliner: once the wheel calls
// this (only after Deadline has elapsed), the connection is closed
// unconditionally and the drain is considered finished.
func (d *Drain) CheckTimeout() bool {
	if !d.state.CompareAndSwap(stateRunning, stateTimedOut) {
		return true
	}

	_ = d.conn.Close()
	d.pl.Discard()
	return true
}

// Run performs the drain synchronously: reads the remainder of the
// current frame, then — for a multi-record response — further frames
// until the LAST bit is observed, then validates an auth byte if
// requested, and finally returns the connection to its pool. The caller
// runs this on its own goroutine; CheckTimeout races it from the wheel's
// goroutine via the shared Close call.
func (d *Drain) Run() error {
	if d.compressed {
		_ = d.conn.Close()
		if d.finish() {
			d.pl.Discard()
		}
		return ErrorCompressedDrainRefused.Error(nil)
	}

	if err := d.drainN(d.remaining); err != nil {
		_ = d.conn.Close()
		if d.finish() {
			d.pl.Discard()
		}
		return err
	}

	if d.multi && !d.currentFrameLast {
		if err := d.drainGroups(); err != nil {
			_ = d.conn.Close()
			if d.finish() {
				d.pl.Discard()
			}
			return err
		}
	}

	if d.isAuthDrain {
		if err := d.drainAuthByte(); err != nil {
			_ = d.conn.Close()
			if d.finish() {
				d.pl.Discard()
			}
			return err
		}
	}

	if !d.finish() {
		// timed out concurrently; the wheel already closed the
		// connection and retired it from the pool's count.
		return ErrorDrainDeadlineExceeded.Error(nil)
	}

	d.pl.Put(d.conn)
	return nil
}

// finish flips the completion latch to Done, unless the wheel already
// flipped it to TimedOut first. Returns true if this call won the race.
func (d *Drain) finish() bool {
	return d.state.CompareAndSwap(stateRunning, stateDone)
}

func (d *Drain) drainN(n int64) error {
	if n <= 0 {
		return nil
	}

	buf := make([]byte, 8*1024)
	for n > 0 {
		want := int64(len(buf))
		if n < want {
			want = n
		}
		r, err := d.conn.Recv(buf[:want])
		if err != nil {
			return err
		}
		n -= int64(r)
	}
	return nil
}

// connReader adapts transport.Conn.Recv to io.Reader for wire.GroupParser.
type connReader struct {
	conn transport.Conn
}

func (r connReader) Read(p []byte) (int, error) {
	return r.conn.Recv(p)
}

func (d *Drain) drainGroups() error {
	for {
		var hdrBuf [wire.FrameHeaderSize]byte
		if err := readFull(d.conn, hdrBuf[:]); err != nil {
			return err
		}

		fh, err := wire.DecodeFrameHeader(hdrBuf[:])
		if err != nil {
			return err
		}
		if fh.Type == wire.TypeCompressed {
			return ErrorCompressedDrainRefused.Error(nil)
		}

		parser := wire.NewGroupParser(io.LimitReader(connReader{d.conn}, int64(fh.Size)))
		last := false
		for {
			rec, err := parser.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
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

func (d *Drain) drainAuthByte() error {
	var b [1]byte
	if err := readFull(d.conn, b[:]); err != nil {
		return err
	}
	if b[0] != 0 {
		return ErrorAuthDrainFailed.Error(nil)
	}
	return nil
}

func readFull(conn transport.Conn, buf []byte) error {
	for n := 0; n < len(buf); {
		r, err := conn.Recv(buf[n:])
		if err != nil {
			return err
		}
		n += r
	}
	return nil
}
