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
	"sync"

	"github.com/sabouaram/kvasync/buffer"
	"github.com/sabouaram/kvasync/wire"
)

// Kind tags which family of command a State drives. Opcode encoding and
// record/bin interpretation are an external collaborator's concern (the
// wire-format of individual opcodes is out of scope here); Kind only
// selects write-vs-read accounting and retry/latency bucketing.
type Kind uint8

const (
	KindRead Kind = iota
	KindWrite
	KindBatchChild
	KindScanChild
	KindQueryChild
	KindTxnVerify
	KindTxnRoll
	KindTxnClose
)

// Capability is the per-Kind behavior table: how to fill the request bytes
// and how to turn the response body into a parsed wire.Record, plus the
// accounting flags the state machine and fan-out executor read without
// caring what the command actually does on the wire.
type Capability struct {
	// BuildRequest renders one request into seg, returning the number of
	// bytes written.
	BuildRequest func(seg *buffer.Segment) (int, error)
	// ParseBody turns one response body into its record. DefaultParseBody
	// covers the common single-record shape (record header, then fields
	// and ops) shared by every Kind; a capability may override it when the
	// response has a different shape.
	ParseBody func(body []byte) (*wire.Record, error)
	// IsWrite marks commands whose failure-after-send leaves the server
	// state ambiguous (in-doubt accounting applies).
	IsWrite bool
	// LatencyCategory buckets this Kind for policy lookups (read/write/
	// batch/scan/query all commonly carry distinct timeout policies).
	LatencyCategory string
}

// DefaultParseBody decodes the single wire.Record (header, fields, ops)
// that makes up a response body, using the same group-record layout
// wire.GroupParser already walks for multi-record responses.
func DefaultParseBody(body []byte) (*wire.Record, error) {
	p := wire.NewGroupParser(bytes.NewReader(body))
	rec, err := p.Next()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// registry holds the capability table an embedding application builds up
// at startup, keyed by Kind — the opcode/bin logic behind BuildRequest and
// ParseBody is supplied by that caller, not by this package.
var (
	registryMu sync.RWMutex
	registry   = map[Kind]Capability{}
)

// Register installs cap as the capability used for every State built with
// the given Kind. Call during startup, before any command of that Kind is
// created; safe for concurrent registration of distinct kinds.
func Register(kind Kind, cap Capability) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = cap
}

// Lookup returns the registered capability for kind, if any.
func Lookup(kind Kind) (Capability, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	cap, ok := registry[kind]
	return cap, ok
}
