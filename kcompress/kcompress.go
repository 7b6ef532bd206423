// Package kcompress implements the compression envelope (spec §4.B):
// transparently wrapping and unwrapping record batches under the codecs
// selected by a message's attributes bits. Gzip and snappy are mandatory;
// lz4 and zstd are offered as additional codecs the teacher's dependency
// stack already carries (see SPEC_FULL.md DOMAIN STACK).
package kcompress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"

	"github.com/dcrodman/kaf/kmsg"
)

// Codec identifies a compression codec by the attribute bits it occupies.
// Gzip and Snappy reuse the wire protocol's own attribute values (spec
// §4.A); LZ4 and Zstd extend the three-bit space the same way later Kafka
// protocol versions did, using the next two values.
type Codec int8

const (
	CodecNone   Codec = Codec(kmsg.CompressionNone)
	CodecGzip   Codec = Codec(kmsg.CompressionGzip)
	CodecSnappy Codec = Codec(kmsg.CompressionSnappy)
	CodecLZ4    Codec = 3
	CodecZstd   Codec = 4
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecGzip:
		return "gzip"
	case CodecSnappy:
		return "snappy"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	}
	return fmt.Sprintf("codec(%d)", c)
}

// UnsupportedCompressionError is returned when a message's attribute bits
// select a codec this build has no decoder for (spec §7.5): it names the
// missing codec so callers know which dependency to add.
type UnsupportedCompressionError struct {
	Codec string
}

func (e *UnsupportedCompressionError) Error() string {
	return fmt.Sprintf("kcompress: unsupported compression codec %q", e.Codec)
}

// Compress compresses src under codec, returning the wrapped bytes to place
// in an outer Message's Value.
func Compress(codec Codec, src []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return src, nil
	case CodecGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(src); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CodecSnappy:
		return snappy.Encode(nil, src), nil
	case CodecLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(src); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CodecZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(src, nil), nil
	}
	return nil, &UnsupportedCompressionError{Codec: codec.String()}
}

// Decompress reverses Compress for the codec selected by attrs (spec §4.A
// "attributes & 0x07"), returning an UnsupportedCompressionError if this
// build lacks the codec's decoder.
func Decompress(attrs int8, src []byte) ([]byte, error) {
	codec := Codec(attrs & 0x07)
	switch codec {
	case CodecNone:
		return src, nil
	case CodecGzip:
		r, err := gzip.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case CodecSnappy:
		return snappy.Decode(nil, src)
	case CodecLZ4:
		r := lz4.NewReader(bytes.NewReader(src))
		return io.ReadAll(r)
	case CodecZstd:
		dec, err := zstd.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return io.ReadAll(dec)
	}
	return nil, &UnsupportedCompressionError{Codec: codec.String()}
}

// Unwrap flattens a MessageSet, recursively decompressing any compressed
// entries into their nested MessageSet and reconstructing inner offsets by
// subtraction from the outer (last) offset, per spec §4.A:
//
//	"A compressed message's value is itself a valid MessageSet once
//	decompressed, and offsets in the outer message set may be the last
//	offset of the inner batch; inner offsets are reconstructed by
//	subtraction."
func Unwrap(ms kmsg.MessageSet) ([]kmsg.Message, error) {
	var out []kmsg.Message
	for _, m := range ms.Messages {
		if m.Compression() == kmsg.CompressionNone {
			out = append(out, m)
			continue
		}

		inner, err := Decompress(m.Attributes, m.Value)
		if err != nil {
			return nil, err
		}
		innerSet, err := kmsg.ReadMessageSet(inner)
		if err != nil {
			return nil, &kmsg.ProtocolError{Err: fmt.Errorf("decoding nested message set: %w", err)}
		}

		flattened, err := Unwrap(innerSet)
		if err != nil {
			return nil, err
		}

		if len(flattened) > 0 {
			lastInner := flattened[len(flattened)-1].Offset
			base := m.Offset - lastInner
			for i := range flattened {
				flattened[i].Offset += base
			}
		}
		out = append(out, flattened...)
	}
	return out, nil
}

// Wrap builds a single outer Message whose Value is the compressed
// encoding of inner, for use on the producer path (spec §4.B "Envelope
// producers... wrap a user batch into a single outer message whose value is
// the compressed inner MessageSet").
func Wrap(codec Codec, inner kmsg.MessageSet, outerOffset int64) (kmsg.Message, error) {
	if codec == CodecNone {
		return kmsg.Message{}, fmt.Errorf("kcompress: Wrap called with CodecNone")
	}
	raw := inner.AppendTo(nil)
	compressed, err := Compress(codec, raw)
	if err != nil {
		return kmsg.Message{}, err
	}
	return kmsg.Message{
		Offset:     outerOffset,
		Magic:      0,
		Attributes: int8(codec),
		Value:      compressed,
	}, nil
}
