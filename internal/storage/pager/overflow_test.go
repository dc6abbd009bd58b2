package pager

import (
	"bytes"
	"testing"
)

func TestSplitChunksRoundTrip(t *testing.T) {
	const payloadSize = 64
	data := bytes.Repeat([]byte("x"), 500)
	chunks := SplitChunks(data, payloadSize)

	maxFree := MaximumFreeSize(payloadSize)
	for i, c := range chunks {
		if len(c) > maxFree {
			t.Fatalf("chunk %d has length %d, exceeds MaximumFreeSize %d", i, len(c), maxFree)
		}
	}
	if got := ChunkCount(len(data), payloadSize); got != len(chunks) {
		t.Fatalf("ChunkCount = %d, len(chunks) = %d", got, len(chunks))
	}

	var rebuilt []byte
	for _, c := range chunks {
		rebuilt = append(rebuilt, c...)
	}
	if !bytes.Equal(rebuilt, data) {
		t.Fatal("rebuilt chunks do not reproduce original data")
	}
}

func TestSplitChunksSmallInput(t *testing.T) {
	const payloadSize = 4096
	data := []byte("short")
	chunks := SplitChunks(data, payloadSize)
	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if !bytes.Equal(chunks[0], data) {
		t.Fatalf("chunks[0] = %q, want %q", chunks[0], data)
	}
}

func TestSetPagePayloadAndPageChunk(t *testing.T) {
	const payloadSize = 128
	page := NewPage(payloadSize, PageTypeOverflow, 2)
	h := UnmarshalHeader(page)

	chunk := bytes.Repeat([]byte("y"), MaximumFreeSize(payloadSize))
	SetPagePayload(page, payloadSize, &h, chunk)

	if h.Count != 1 || h.Free != 0 {
		t.Fatalf("header after SetPagePayload = %+v, want Count=1 Free=0", h)
	}
	if err := VerifyPageCRC(page); err != nil {
		t.Fatalf("VerifyPageCRC: %v", err)
	}

	got := PageChunk(page, len(chunk))
	if !bytes.Equal(got, chunk) {
		t.Fatal("PageChunk did not reproduce the stored chunk")
	}
}
