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

package wire

import "io"

// Record is one decoded record: its header plus the fields and ops it
// carries, in wire order.
type Record struct {
	Header RecordHeader
	Fields []Field
	Ops    []Op
}

// GroupParser reads successive records from a multi-record response body,
// one at a time, until a record's header reports IsLast.
type GroupParser struct {
	r io.Reader
}

// NewGroupParser wraps r, which must yield one or more frame bodies
// concatenated in wire order (the caller has already stripped the
// 8-byte FrameHeader of each frame).
func NewGroupParser(r io.Reader) *GroupParser {
	return &GroupParser{r: r}
}

// Next reads one record: its 22-byte header, FieldCount field entries,
// then OpCount op entries. It returns io.EOF once the underlying reader
// is exhausted with nothing pending.
func (g *GroupParser) Next() (Record, error) {
	var hdrBuf [RecordHeaderSize]byte
	if _, err := io.ReadFull(g.r, hdrBuf[:]); err != nil {
		return Record{}, err
	}

	hdr, err := DecodeRecordHeader(hdrBuf[:])
	if err != nil {
		return Record{}, err
	}

	rec := Record{Header: hdr}

	for i := uint16(0); i < hdr.FieldCount; i++ {
		f, err := readField(g.r)
		if err != nil {
			return Record{}, err
		}
		rec.Fields = append(rec.Fields, f)
	}

	for i := uint16(0); i < hdr.OpCount; i++ {
		o, err := readOp(g.r)
		if err != nil {
			return Record{}, err
		}
		rec.Ops = append(rec.Ops, o)
	}

	return rec, nil
}

func readField(r io.Reader) (Field, error) {
	var szBuf [4]byte
	if _, err := io.ReadFull(r, szBuf[:]); err != nil {
		return Field{}, err
	}

	length := int(beUint32(szBuf[:]))
	if length < 1 {
		return Field{}, ErrorShortField.Error(nil)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Field{}, err
	}

	return Field{Type: FieldType(body[0]), Payload: body[1:]}, nil
}

func readOp(r io.Reader) (Op, error) {
	var hdrBuf [8]byte
	if _, err := io.ReadFull(r, hdrBuf[:]); err != nil {
		return Op{}, err
	}

	opSize := int(beUint32(hdrBuf[0:4]))
	if opSize < 4 {
		return Op{}, ErrorShortOp.Error(nil)
	}

	rest := make([]byte, opSize-4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Op{}, err
	}

	nameSize := int(hdrBuf[7])
	if nameSize > len(rest) {
		return Op{}, ErrorShortOp.Error(nil)
	}

	return Op{
		OpType:       hdrBuf[4],
		ParticleType: hdrBuf[5],
		Version:      hdrBuf[6],
		Name:         string(rest[:nameSize]),
		Particle:     rest[nameSize:],
	}, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
