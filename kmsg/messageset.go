package kmsg

import (
	"hash/crc32"

	"github.com/dcrodman/kaf/kbin"
)

// CompressionNone, CompressionGzip, CompressionSnappy are the three
// attribute-bit compression codecs the original wire format defines
// (spec §4.A). kcompress recognizes two additional codecs (lz4, zstd) as an
// extension beyond the mandatory two; see kcompress for the full table.
const (
	CompressionNone   int8 = 0
	CompressionGzip   int8 = 1
	CompressionSnappy int8 = 2
)

// attributesCompressionMask isolates the three-bit codec selector within a
// message's attributes byte (spec §4.A "attributes & 0x07").
const attributesCompressionMask = 0x07

// Message is a single entry of a MessageSet (spec §4.A). Offset is the
// entry's absolute offset as it appears on the wire; for a compressed entry
// this is the *last* offset of the nested batch (spec: "a compressed
// message's value is itself a valid MessageSet once decompressed").
type Message struct {
	Offset     int64
	Magic      int8
	Attributes int8
	Key        []byte
	Value      []byte
}

// Compression returns the codec selected by this message's attributes.
func (m Message) Compression() int8 { return m.Attributes & attributesCompressionMask }

// MessageSet is an ordered sequence of Messages sharing a (topic, partition)
// (spec §3 RecordSet, before compression-envelope flattening).
type MessageSet struct {
	Messages []Message
}

// crc32Of computes the IEEE CRC32 over magic..value inclusive, matching
// spec §6 "CRC32 (IEEE) over magic..value inclusive for every message-set
// entry".
func crc32Of(magic, attributes int8, key, value []byte) uint32 {
	buf := make([]byte, 0, 2+4+len(key)+4+len(value))
	buf = kbin.AppendInt8(buf, magic)
	buf = kbin.AppendInt8(buf, attributes)
	buf = kbin.AppendBytes(buf, key)
	buf = kbin.AppendBytes(buf, value)
	return crc32.ChecksumIEEE(buf)
}

// AppendTo appends the wire encoding of the message set to dst.
func (ms MessageSet) AppendTo(dst []byte) []byte {
	for _, m := range ms.Messages {
		dst = kbin.AppendInt64(dst, m.Offset)

		sizeIdx := len(dst)
		dst = kbin.AppendInt32(dst, 0) // message_size placeholder

		bodyStart := len(dst)
		crc := crc32Of(m.Magic, m.Attributes, m.Key, m.Value)
		dst = kbin.AppendUint32(dst, crc)
		dst = kbin.AppendInt8(dst, m.Magic)
		dst = kbin.AppendInt8(dst, m.Attributes)
		dst = kbin.AppendBytes(dst, m.Key)
		dst = kbin.AppendBytes(dst, m.Value)

		size := int32(len(dst) - bodyStart)
		putInt32At(dst, sizeIdx, size)
	}
	return dst
}

func putInt32At(b []byte, at int, v int32) {
	b[at] = byte(v >> 24)
	b[at+1] = byte(v >> 16)
	b[at+2] = byte(v >> 8)
	b[at+3] = byte(v)
}

// ReadMessageSet decodes a message set from src. Unlike a normal
// length-prefixed array, a MessageSet runs to the end of its enclosing
// bytes field, so entries are read until src is exhausted or a partial
// trailing entry is encountered (a truncated final entry is dropped, not an
// error -- brokers commonly send a partial last message when a fetch
// response hits its byte cap).
func ReadMessageSet(src []byte) (MessageSet, error) {
	var ms MessageSet
	for len(src) > 0 {
		if len(src) < 12 {
			break // truncated trailing entry: offset(8) + size(4) minimum
		}
		r := kbin.Reader{Src: src}
		offset := r.Int64()
		size := r.Int32()
		if size < 0 {
			return ms, &ProtocolError{Err: errInvalidMessageSize}
		}
		rest := r.Src
		if int64(len(rest)) < int64(size) {
			break // truncated trailing entry
		}
		body := rest[:size]
		src = rest[size:]

		br := kbin.Reader{Src: body}
		wantCRC := br.Uint32()
		crcBody := br.Src
		magic := br.Int8()
		attributes := br.Int8()
		key := br.Bytes()
		value := br.Bytes()
		if err := br.Complete(); err != nil {
			return ms, &ProtocolError{Err: err}
		}

		gotCRC := crc32.ChecksumIEEE(crcBody)
		if gotCRC != wantCRC {
			return ms, &ProtocolError{Err: errCRCMismatch}
		}

		ms.Messages = append(ms.Messages, Message{
			Offset:     offset,
			Magic:      magic,
			Attributes: attributes,
			Key:        key,
			Value:      value,
		})
	}
	return ms, nil
}

var (
	errInvalidMessageSize = protoErr("negative message_size in message set entry")
	errCRCMismatch        = protoErr("crc32 mismatch in message set entry")
)

type protoErr string

func (e protoErr) Error() string { return string(e) }
