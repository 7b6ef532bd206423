// Package kbin contains the primitive big-endian encodings used by the wire
// protocol: fixed-width integers and the length-prefixed string/bytes/array
// encodings described in the protocol's primitive type table.
package kbin

import (
	"encoding/binary"
	"errors"
)

// ErrNotEnoughData is returned by Reader methods when the source slice is
// exhausted before a value can be fully decoded.
var ErrNotEnoughData = errors.New("kbin: not enough data to decode")

// AppendInt8 appends a big-endian int8.
func AppendInt8(dst []byte, i int8) []byte { return append(dst, byte(i)) }

// AppendInt16 appends a big-endian int16.
func AppendInt16(dst []byte, i int16) []byte {
	return appendUint16(dst, uint16(i))
}

// AppendInt32 appends a big-endian int32.
func AppendInt32(dst []byte, i int32) []byte {
	return appendUint32(dst, uint32(i))
}

// AppendInt64 appends a big-endian int64.
func AppendInt64(dst []byte, i int64) []byte {
	return appendUint64(dst, uint64(i))
}

// AppendUint32 appends a big-endian uint32.
func AppendUint32(dst []byte, u uint32) []byte { return appendUint32(dst, u) }

func appendUint16(dst []byte, u uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], u)
	return append(dst, buf[:]...)
}

func appendUint32(dst []byte, u uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], u)
	return append(dst, buf[:]...)
}

func appendUint64(dst []byte, u uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], u)
	return append(dst, buf[:]...)
}

// AppendString appends a Kafka-style string: int16 length prefix followed by
// the UTF-8 bytes. A nil-marker string (length -1) is never produced by this
// helper; use AppendNullableString for that.
func AppendString(dst []byte, s string) []byte {
	dst = AppendInt16(dst, int16(len(s)))
	return append(dst, s...)
}

// AppendNullableString appends a string that may be nil, encoded as length
// -1 with no following bytes.
func AppendNullableString(dst []byte, s *string) []byte {
	if s == nil {
		return AppendInt16(dst, -1)
	}
	return AppendString(dst, *s)
}

// AppendBytes appends a Kafka-style byte array: int32 length prefix followed
// by the raw bytes. A nil slice is encoded as length -1.
func AppendBytes(dst, b []byte) []byte {
	if b == nil {
		return AppendInt32(dst, -1)
	}
	dst = AppendInt32(dst, int32(len(b)))
	return append(dst, b...)
}

// AppendArrayLen appends the int32 element count that precedes every array
// encoding.
func AppendArrayLen(dst []byte, n int) []byte {
	return AppendInt32(dst, int32(n))
}

// Reader reads primitives off Src, accumulating the first error encountered
// so that callers can perform a long chain of reads and check Complete once
// at the end, matching how the codec's generated-style decoders are written.
type Reader struct {
	Src []byte
	err error
}

// Complete returns the error encountered during reading, or ErrNotEnoughData
// if the source was not fully consumed by field reads that expect to cover
// the whole message -- callers that intentionally stop early should not call
// this.
func (r *Reader) Complete() error {
	if r.err != nil {
		return r.err
	}
	if len(r.Src) > 0 {
		return ErrNotEnoughData
	}
	return nil
}

// Err returns any sticky error produced by a prior read.
func (r *Reader) Err() error { return r.err }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.Src) < n {
		r.err = ErrNotEnoughData
		return nil
	}
	b := r.Src[:n]
	r.Src = r.Src[n:]
	return b
}

// Int8 reads a big-endian int8.
func (r *Reader) Int8() int8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return int8(b[0])
}

// Int16 reads a big-endian int16.
func (r *Reader) Int16() int16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return int16(binary.BigEndian.Uint16(b))
}

// Int32 reads a big-endian int32.
func (r *Reader) Int32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

// Uint32 reads a big-endian uint32.
func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// Int64 reads a big-endian int64.
func (r *Reader) Int64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

// String reads a Kafka-style string, treating length -1 as "".
func (r *Reader) String() string {
	l := r.Int16()
	if l < 0 || r.err != nil {
		return ""
	}
	b := r.take(int(l))
	return string(b)
}

// NullableString reads a Kafka-style string, returning nil if the encoded
// length was -1.
func (r *Reader) NullableString() *string {
	l := r.Int16()
	if r.err != nil {
		return nil
	}
	if l < 0 {
		return nil
	}
	b := r.take(int(l))
	if r.err != nil {
		return nil
	}
	s := string(b)
	return &s
}

// Bytes reads a Kafka-style byte array, returning nil if the encoded length
// was -1.
func (r *Reader) Bytes() []byte {
	l := r.Int32()
	if r.err != nil {
		return nil
	}
	if l < 0 {
		return nil
	}
	b := r.take(int(l))
	if r.err != nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ArrayLen reads the int32 count preceding an array; a count of -1 (null
// array) is normalized to 0 and reported via ok=false.
func (r *Reader) ArrayLen() (n int, ok bool) {
	l := r.Int32()
	if r.err != nil {
		return 0, false
	}
	if l < 0 {
		return 0, false
	}
	if l > 1<<20 {
		// A single array cannot plausibly exceed the remaining
		// buffer; reject implausible counts rather than attempting
		// a giant allocation from a corrupt or malicious frame.
		r.err = ErrNotEnoughData
		return 0, false
	}
	return int(l), true
}
