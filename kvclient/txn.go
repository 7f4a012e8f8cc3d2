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

package kvclient

import (
	"context"

	liberr "github.com/sabouaram/kvasync/errors"
	"github.com/sabouaram/kvasync/fanout"
	"github.com/sabouaram/kvasync/txn"
)

// Txn is one multi-record transaction's client-facing handle: register
// the keys it reads and writes, then Commit to drive verify/roll-forward/
// close to a terminal outcome.
type Txn struct {
	ctx  *txn.Context
	coor *txn.RollCoordinator
}

// BeginTxn opens a transaction rooted at monitor, the record the server
// uses to durably record this transaction's intent before any write rolls
// forward.
func (c *Client) BeginTxn(monitor fanout.Key) *Txn {
	return &Txn{
		ctx:  txn.New(monitor),
		coor: txn.NewRollCoordinator(c.locator(), c.txnRig()),
	}
}

// AddWrite records a key this transaction intends to write.
func (t *Txn) AddWrite(k fanout.Key) {
	t.ctx.AddWrite(k)
}

// AddRead records the version this transaction observed for k, so
// roll-forward can reapply it as a generation check on commit.
func (t *Txn) AddRead(k fanout.Key, v txn.ReadVersion) {
	t.ctx.AddRead(k, v)
}

// State returns the transaction's current lifecycle position.
func (t *Txn) State() txn.State {
	return t.ctx.State()
}

// InDoubt reports whether a roll-forward write may have reached the
// server without a decisive response.
func (t *Txn) InDoubt() bool {
	return t.ctx.InDoubt()
}

// Commit drives the transaction through verify, roll-forward and monitor
// close, blocking the calling goroutine for the duration of every phase
// (unlike Get/Put/Batch/Scan, a transaction's phases are strictly
// sequential and cannot be reported piecemeal to a listener).
func (t *Txn) Commit(ctx context.Context) (txn.Outcome, liberr.Error) {
	return t.coor.Commit(ctx, t.ctx)
}
