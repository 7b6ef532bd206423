package kmsg

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
)

// P1/P2: a MessageSet round-trips through AppendTo/ReadMessageSet exactly.
// CRC32 corruption detection is covered by TestMessageSetCRCMismatch.
func TestMessageSetRoundTrip(t *testing.T) {
	want := MessageSet{Messages: []Message{
		{Offset: 0, Magic: 0, Attributes: 0, Key: []byte("k1"), Value: []byte("v1")},
		{Offset: 1, Magic: 0, Attributes: 0, Key: nil, Value: []byte("v2")},
		{Offset: 2, Magic: 0, Attributes: 0, Key: []byte("k3"), Value: nil},
	}}

	encoded := want.AppendTo(nil)
	got, err := ReadMessageSet(encoded)
	if err != nil {
		t.Fatalf("ReadMessageSet: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s\ngot: %s", diff, spew.Sdump(got))
	}
}

func TestMessageSetCRCMismatch(t *testing.T) {
	ms := MessageSet{Messages: []Message{
		{Offset: 0, Value: []byte("hello")},
	}}
	encoded := ms.AppendTo(nil)

	// Flip a byte inside the value payload without updating the CRC.
	encoded[len(encoded)-1] ^= 0xFF

	if _, err := ReadMessageSet(encoded); err == nil {
		t.Fatalf("want CRC mismatch error, got nil")
	}
}

func TestMessageSetTruncatedTrailingEntryIsDropped(t *testing.T) {
	ms := MessageSet{Messages: []Message{
		{Offset: 0, Value: []byte("full")},
		{Offset: 1, Value: []byte("also full")},
	}}
	encoded := ms.AppendTo(nil)

	// Truncate partway through the second entry, simulating a fetch
	// response that hit its byte cap mid-message.
	truncated := encoded[:len(encoded)-3]

	got, err := ReadMessageSet(truncated)
	if err != nil {
		t.Fatalf("ReadMessageSet: %v", err)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("want the truncated trailing entry dropped, got %d messages", len(got.Messages))
	}
}

func TestMessageCompressionFromAttributes(t *testing.T) {
	m := Message{Attributes: CompressionGzip}
	if m.Compression() != CompressionGzip {
		t.Fatalf("want gzip codec bit, got %d", m.Compression())
	}
}
