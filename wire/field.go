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

import "encoding/binary"

// FieldType identifies the payload carried by a Field entry.
type FieldType uint8

const (
	FieldDigestRipe    FieldType = 0
	FieldNamespace     FieldType = 1
	FieldTable         FieldType = 2
	FieldRecordVersion FieldType = 18
	FieldMRTDeadline   FieldType = 23
)

// Field is one `len(4BE) | type(1) | payload(len-1)` entry.
type Field struct {
	Type    FieldType
	Payload []byte
}

// DecodeField parses one field entry from the start of src, returning the
// field and the number of bytes consumed.
func DecodeField(src []byte) (Field, int, error) {
	if len(src) < 4 {
		return Field{}, 0, ErrorShortField.Error(nil)
	}

	length := int(binary.BigEndian.Uint32(src[0:4]))
	if length < 1 || len(src) < 4+length {
		return Field{}, 0, ErrorShortField.Error(nil)
	}

	return Field{
		Type:    FieldType(src[4]),
		Payload: src[5 : 4+length],
	}, 4 + length, nil
}

// EncodeField appends one field entry to dst and returns the result.
func EncodeField(f Field, dst []byte) []byte {
	length := uint32(len(f.Payload) + 1)

	var hdr [5]byte
	binary.BigEndian.PutUint32(hdr[0:4], length)
	hdr[4] = byte(f.Type)

	dst = append(dst, hdr[:]...)
	dst = append(dst, f.Payload...)
	return dst
}

// Op is one `opSize(4BE) | opType(1) | particleType(1)@5 | version(1) |
// nameSize(1)@7 | name | particle` entry inside a record.
type Op struct {
	OpType       uint8
	ParticleType uint8
	Version      uint8
	Name         string
	Particle     []byte
}

// DecodeOp parses one op entry from the start of src, returning the op and
// the number of bytes consumed.
func DecodeOp(src []byte) (Op, int, error) {
	if len(src) < 8 {
		return Op{}, 0, ErrorShortOp.Error(nil)
	}

	opSize := int(binary.BigEndian.Uint32(src[0:4]))
	if opSize < 4 || len(src) < 4+opSize {
		return Op{}, 0, ErrorShortOp.Error(nil)
	}

	nameSize := int(src[7])
	if 8+nameSize > 4+opSize {
		return Op{}, 0, ErrorShortOp.Error(nil)
	}

	name := string(src[8 : 8+nameSize])
	particle := src[8+nameSize : 4+opSize]

	return Op{
		OpType:       src[4],
		ParticleType: src[5],
		Version:      src[6],
		Name:         name,
		Particle:     particle,
	}, 4 + opSize, nil
}

// EncodeOp appends one op entry to dst and returns the result.
func EncodeOp(o Op, dst []byte) []byte {
	nameSize := len(o.Name)
	opSize := 4 + nameSize + len(o.Particle)

	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(opSize))
	hdr[4] = o.OpType
	hdr[5] = o.ParticleType
	hdr[6] = o.Version
	hdr[7] = byte(nameSize)

	dst = append(dst, hdr[:]...)
	dst = append(dst, o.Name...)
	dst = append(dst, o.Particle...)
	return dst
}
