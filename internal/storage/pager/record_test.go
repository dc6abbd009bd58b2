package pager

import (
	"bytes"
	"testing"
)

func TestRecordHeaderRoundTrip(t *testing.T) {
	h := RecordHeader{
		Index: 3, Order: 2, Length: 128, MaxLength: 256,
		Deleted: true, AliasIndex: 9, AliasOrder: 4,
	}
	buf := make([]byte, RecordHeaderSize)
	MarshalRecordHeader(&h, buf)
	got := UnmarshalRecordHeader(buf)
	if got != h {
		t.Fatalf("round trip = %+v, want %+v", got, h)
	}
}

func TestRecordHeaderHasAlias(t *testing.T) {
	plain := RecordHeader{Index: 1, Order: 1}
	if plain.HasAlias() {
		t.Fatal("zero alias fields should not report HasAlias")
	}
	aliased := RecordHeader{Index: 1, Order: 1, AliasIndex: 5}
	if !aliased.HasAlias() {
		t.Fatal("non-zero AliasIndex should report HasAlias")
	}
}

func TestNewRecord(t *testing.T) {
	h := RecordHeader{Index: 1, Order: 1, Length: 5, MaxLength: 5}
	payload := []byte("hello")
	buf := NewRecord(h, payload)
	if len(buf) != RecordHeaderSize+len(payload) {
		t.Fatalf("len(buf) = %d, want %d", len(buf), RecordHeaderSize+len(payload))
	}
	gotHeader := UnmarshalRecordHeader(buf)
	if gotHeader != h {
		t.Fatalf("embedded header = %+v, want %+v", gotHeader, h)
	}
	if !bytes.Equal(buf[RecordHeaderSize:], payload) {
		t.Fatalf("embedded payload = %q, want %q", buf[RecordHeaderSize:], payload)
	}
}
