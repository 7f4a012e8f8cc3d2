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

// Package wire encodes and decodes the frame/record/field/op layout the
// cluster's nodes speak on the socket. Every entry point here is a pure
// function over a byte slice; nothing in this package blocks or owns a
// connection.
package wire

import "encoding/binary"

// FrameType is the first byte of a FrameHeader.
type FrameType uint8

const (
	TypeMessage    FrameType = 1
	TypeCompressed FrameType = 3
)

// FrameHeaderSize is the fixed 8-byte size of a FrameHeader.
const FrameHeaderSize = 8

// FrameHeader is the 8-byte preamble of every request/response frame:
// type(8) | version(8) | size(48-bit big-endian).
type FrameHeader struct {
	Type    FrameType
	Version uint8
	Size    uint64
}

// EncodeFrameHeader writes h into the first 8 bytes of dst, which must be
// at least FrameHeaderSize long.
func EncodeFrameHeader(h FrameHeader, dst []byte) {
	var buf [FrameHeaderSize]byte

	binary.BigEndian.PutUint64(buf[:], h.Size&0x0000FFFFFFFFFFFF)
	buf[0] = byte(h.Type)
	buf[1] = h.Version

	copy(dst[:FrameHeaderSize], buf[:])
}

// DecodeFrameHeader parses the first 8 bytes of src.
func DecodeFrameHeader(src []byte) (FrameHeader, error) {
	if len(src) < FrameHeaderSize {
		return FrameHeader{}, ErrorShortFrameHeader.Error(nil)
	}

	var buf [FrameHeaderSize]byte
	copy(buf[:], src[:FrameHeaderSize])

	size := binary.BigEndian.Uint64(buf[:]) & 0x0000FFFFFFFFFFFF

	return FrameHeader{
		Type:    FrameType(buf[0]),
		Version: buf[1],
		Size:    size,
	}, nil
}

// RecordHeaderSize is the fixed 22-byte size of a RecordHeader.
const RecordHeaderSize = 22

// info3 bit flags inspected by the core.
const (
	Info3Last          uint8 = 1 << 1
	Info3PartitionDone uint8 = 1 << 4
)

// RecordHeader is the 22-byte message header embedded in a frame body.
type RecordHeader struct {
	Info3      uint8
	ResultCode uint8
	Generation uint32
	Expiration uint32
	FieldCount uint16
	OpCount    uint16
}

// DecodeRecordHeader parses the 22-byte record header at the start of src.
func DecodeRecordHeader(src []byte) (RecordHeader, error) {
	if len(src) < RecordHeaderSize {
		return RecordHeader{}, ErrorShortRecordHeader.Error(nil)
	}

	return RecordHeader{
		Info3:      src[3],
		ResultCode: src[5],
		Generation: binary.BigEndian.Uint32(src[6:10]),
		Expiration: binary.BigEndian.Uint32(src[10:14]),
		FieldCount: binary.BigEndian.Uint16(src[18:20]),
		OpCount:    binary.BigEndian.Uint16(src[20:22]),
	}, nil
}

// EncodeRecordHeader writes h into the first RecordHeaderSize bytes of
// dst.
func EncodeRecordHeader(h RecordHeader, dst []byte) {
	for i := range dst[:RecordHeaderSize] {
		dst[i] = 0
	}

	dst[3] = h.Info3
	dst[5] = h.ResultCode
	binary.BigEndian.PutUint32(dst[6:10], h.Generation)
	binary.BigEndian.PutUint32(dst[10:14], h.Expiration)
	binary.BigEndian.PutUint16(dst[18:20], h.FieldCount)
	binary.BigEndian.PutUint16(dst[20:22], h.OpCount)
}

// IsLast reports whether the record header's info3 flags mark it the end
// of a multi-record response.
func (h RecordHeader) IsLast() bool {
	return h.Info3&Info3Last != 0
}

// IsPartitionDone reports whether the record header's info3 flags mark
// the per-partition scan/query terminator.
func (h RecordHeader) IsPartitionDone() bool {
	return h.Info3&Info3PartitionDone != 0
}
