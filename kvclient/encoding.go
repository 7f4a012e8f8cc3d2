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
	"encoding/binary"

	"github.com/sabouaram/kvasync/buffer"
	"github.com/sabouaram/kvasync/wire"
)

// renderRequest lays out a FrameHeader followed by a RecordHeader, fields
// and ops into seg, in the shape the server expects a single-record
// request to take. The particle/opcode bytes themselves are this module's
// caller's concern (kvclient only carries whatever bytes it is handed);
// this only assembles the surrounding record framing.
func renderRequest(seg *buffer.Segment, fields []wire.Field, ops []wire.Op) (int, error) {
	buf := seg.Bytes()
	if len(buf) < wire.FrameHeaderSize+wire.RecordHeaderSize {
		return 0, ErrorParamEmpty.Error(nil)
	}

	body := make([]byte, wire.RecordHeaderSize, wire.RecordHeaderSize+64)
	wire.EncodeRecordHeader(wire.RecordHeader{
		FieldCount: uint16(len(fields)),
		OpCount:    uint16(len(ops)),
	}, body[:wire.RecordHeaderSize])

	for _, f := range fields {
		body = wire.EncodeField(f, body)
	}
	for _, o := range ops {
		body = wire.EncodeOp(o, body)
	}

	total := wire.FrameHeaderSize + len(body)
	if total > len(buf) {
		return 0, ErrorParamEmpty.Error(nil)
	}

	wire.EncodeFrameHeader(wire.FrameHeader{
		Type: wire.TypeMessage,
		Size: uint64(len(body)),
	}, buf[:wire.FrameHeaderSize])
	copy(buf[wire.FrameHeaderSize:], body)

	return total, nil
}

// keyFields renders the namespace/set/digest triple every single-key and
// batch-child request carries.
func keyFields(ns, set string, digest []byte) []wire.Field {
	return []wire.Field{
		{Type: wire.FieldNamespace, Payload: []byte(ns)},
		{Type: wire.FieldTable, Payload: []byte(set)},
		{Type: wire.FieldDigestRipe, Payload: digest},
	}
}

// binOps renders one write op per bin, in the deterministic order the
// caller supplied (map iteration order is not used: callers pass an
// ordered slice so retries build byte-identical requests).
type Bin struct {
	Name  string
	Value []byte
}

func binOps(bins []Bin) []wire.Op {
	ops := make([]wire.Op, 0, len(bins))
	for _, b := range bins {
		ops = append(ops, wire.Op{Name: b.Name, Particle: b.Value})
	}
	return ops
}

// encodePartitionList renders a scan/query request's namespace field
// followed by the partition id set this child is being asked to stream.
func encodePartitionList(seg *buffer.Segment, ns string, partitions []uint16, predicate []byte) (int, error) {
	fields := []wire.Field{{Type: wire.FieldNamespace, Payload: []byte(ns)}}

	body := make([]byte, 0, 4+2*len(partitions)+len(predicate))
	body = appendUint16Count(body, len(partitions))
	for _, id := range partitions {
		body = appendUint16(body, id)
	}
	body = append(body, predicate...)

	// No FieldType names a partition-id set; the scan/query wire payload
	// beyond namespace is opaque to this module (per Non-goals, no
	// opcode/particle codec), so it rides along as a single field.
	fields = append(fields, wire.Field{Type: wire.FieldRecordVersion, Payload: body})
	return renderRequest(seg, fields, nil)
}

func appendUint16Count(dst []byte, n int) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(n))
	return append(dst, b[:]...)
}

func appendUint16(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}
