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

package txn

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/sabouaram/kvasync/buffer"
	"github.com/sabouaram/kvasync/command"
	liberr "github.com/sabouaram/kvasync/errors"
	"github.com/sabouaram/kvasync/fanout"
	"github.com/sabouaram/kvasync/node"
	"github.com/sabouaram/kvasync/wire"
)

// RollCoordinator drives one Context through verify, mark-roll-forward,
// roll-forward and monitor close, dispatching each phase as a batch fan-out
// the same way a multi-key client operation does.
type RollCoordinator struct {
	Loc fanout.NodeLocator
	Rig fanout.Rig
}

// NewRollCoordinator builds a coordinator sharing loc/rig with whatever
// other fan-out operations the owning client issues.
func NewRollCoordinator(loc fanout.NodeLocator, rig fanout.Rig) *RollCoordinator {
	return &RollCoordinator{Loc: loc, Rig: rig}
}

// phaseResult collects one batch phase's outcome synchronously, bridging
// fanout.RunBatch's asynchronous callback model to Commit's sequential
// phase ordering.
type phaseResult struct {
	mu      sync.Mutex
	done    chan struct{}
	records []*wire.Record
	status  bool
	err     error
	inDoubt bool
}

func newPhaseResult() *phaseResult {
	return &phaseResult{done: make(chan struct{})}
}

func (p *phaseResult) OnRecord(rec *wire.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
}

func (p *phaseResult) OnComplete(status bool) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
	close(p.done)
}

func (p *phaseResult) OnFailure(err error, inDoubt bool) {
	p.mu.Lock()
	p.err = err
	p.inDoubt = inDoubt
	p.mu.Unlock()
	close(p.done)
}

func runPhase(ctx context.Context, keys []fanout.Key, loc fanout.NodeLocator, kind command.Kind, build fanout.CapabilityBuilder, rig fanout.Rig) *phaseResult {
	pr := newPhaseResult()
	if err := fanout.RunBatch(ctx, keys, loc, kind, build, rig, pr); err != nil {
		pr.err = err
		close(pr.done)
		return pr
	}
	<-pr.done
	return pr
}

// encodeDigestAndGeneration renders one key's digest followed by the
// 4-byte big-endian generation a verify phase expects the server to
// compare against the record's current generation.
func encodeDigestAndGeneration(buf []byte, k fanout.Key, generation uint32) int {
	n := copy(buf, k.Digest)
	if n+4 <= len(buf) {
		binary.BigEndian.PutUint32(buf[n:n+4], generation)
		n += 4
	}
	return n
}

// buildVerify renders one node's share of the read-key set into a request
// carrying each key's digest plus the generation it was read at, so the
// server can fail any key whose generation has since moved.
func buildVerify(tc *Context) fanout.CapabilityBuilder {
	return func(n *node.Node, keys []fanout.Key) command.Capability {
		return command.Capability{
			BuildRequest: func(seg *buffer.Segment) (int, error) {
				buf := seg.Bytes()
				off := 0
				for _, k := range keys {
					v, _ := tc.ReadVersionFor(k)
					off += encodeDigestAndGeneration(buf[off:], k, v.Generation)
				}
				return off, nil
			},
			ParseBody: command.DefaultParseBody,
		}
	}
}

// buildMarker renders the digest of every key a roll phase targets; the
// roll-forward/close phases carry no payload beyond identifying which
// record(s) they target.
func buildMarker() fanout.CapabilityBuilder {
	return func(n *node.Node, keys []fanout.Key) command.Capability {
		return command.Capability{
			BuildRequest: func(seg *buffer.Segment) (int, error) {
				buf := seg.Bytes()
				off := 0
				for _, k := range keys {
					off += copy(buf[off:], k.Digest)
				}
				return off, nil
			},
			ParseBody: command.DefaultParseBody,
		}
	}
}

// Commit sequences verify -> markRollForward -> rollForward -> closeMonitor
// for tc, returning the commit's terminal Outcome. A verify failure aborts
// the transaction outright; a failure after markRollForward has already
// succeeded still reports the transaction committed (the monitor record is
// durable proof of intent), just with an abandoned roll-forward outcome.
func (r *RollCoordinator) Commit(ctx context.Context, tc *Context) (Outcome, liberr.Error) {
	writes := tc.Writes()
	if len(writes) == 0 {
		return OutcomeAborted, ErrorParamEmpty.Error(nil)
	}

	if verr := r.verify(ctx, tc); verr != nil {
		_ = tc.transition(Aborted)
		return OutcomeAborted, verr
	}
	if terr := tc.transition(Verified); terr != nil {
		return OutcomeAborted, terr
	}

	aborted, merr := r.markRollForward(ctx, tc)
	if aborted {
		_ = tc.transition(Aborted)
		return OutcomeAborted, merr
	}
	if merr != nil {
		_ = tc.transition(Aborted)
		return OutcomeAborted, merr
	}

	if terr := tc.transition(Committed); terr != nil {
		return OutcomeAborted, terr
	}

	abandoned := r.rollForward(ctx, tc)
	abandoned = r.closeMonitor(ctx, tc) || abandoned

	if abandoned {
		return OutcomeRollForwardAbandoned, nil
	}
	return OutcomeCommitted, nil
}

// verify re-checks every recorded read version; a row reporting anything
// other than ResultOK means the record changed since it was read and the
// transaction must abort rather than commit a stale view.
func (r *RollCoordinator) verify(ctx context.Context, tc *Context) liberr.Error {
	writes := tc.Writes()
	pr := runPhase(ctx, writes, r.Loc, command.KindTxnVerify, buildVerify(tc), r.Rig)
	if pr.err != nil {
		return ErrorAborted.Error(pr.err)
	}
	for _, rec := range pr.records {
		if rec.Header.ResultCode != wire.ResultOK {
			return ErrorAborted.Error(nil)
		}
	}
	return nil
}

// markRollForward writes the monitor record's roll-forward marker.
// BIN_EXISTS_ERROR means a previous attempt already wrote the marker and
// is treated as idempotent success; MRT_ABORTED means the server gave up
// on this transaction independently and clears in-doubt on the way to
// Aborted.
func (r *RollCoordinator) markRollForward(ctx context.Context, tc *Context) (aborted bool, err liberr.Error) {
	pr := runPhase(ctx, []fanout.Key{tc.Monitor()}, r.Loc, command.KindTxnRoll, buildMarker(), r.Rig)
	if pr.err != nil {
		if pr.inDoubt {
			tc.OnWriteInDoubt()
		}
		return false, ErrorRollForwardAbandoned.Error(pr.err)
	}

	for _, rec := range pr.records {
		switch rec.Header.ResultCode {
		case wire.ResultOK, wire.ResultBinExistsError:
			continue
		case wire.ResultMRTAborted:
			tc.inDoubt.CompareAndSwap(true, false)
			return true, ErrorAborted.Error(nil)
		default:
			return false, ErrorRollForwardAbandoned.Error(nil)
		}
	}
	return false, nil
}

// rollForward applies every write key against its current owner. Any
// failure here is reported as an abandoned roll-forward, not a failed
// commit: the monitor record already marked this transaction committed.
func (r *RollCoordinator) rollForward(ctx context.Context, tc *Context) (abandoned bool) {
	writes := tc.Writes()
	pr := runPhase(ctx, writes, r.Loc, command.KindTxnRoll, buildMarker(), r.Rig)
	if pr.err != nil {
		if pr.inDoubt {
			tc.OnWriteInDoubt()
		}
		return true
	}
	for _, rec := range pr.records {
		if rec.Header.ResultCode != wire.ResultOK {
			return true
		}
	}
	return false
}

// closeMonitor removes the monitor record once every write has rolled
// forward; its failure only affects monitor cleanup, not the already
// committed transaction outcome.
func (r *RollCoordinator) closeMonitor(ctx context.Context, tc *Context) (abandoned bool) {
	pr := runPhase(ctx, []fanout.Key{tc.Monitor()}, r.Loc, command.KindTxnClose, buildMarker(), r.Rig)
	if pr.err != nil {
		return true
	}
	for _, rec := range pr.records {
		if rec.Header.ResultCode != wire.ResultOK {
			return true
		}
	}
	return false
}
