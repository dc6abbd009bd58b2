package storage

import (
	"bytes"
	"testing"
)

func TestMemoryBackendCreateReadUpdate(t *testing.T) {
	b := NewMemoryBackend()
	if exists, _ := b.Exists(); exists {
		t.Fatal("fresh MemoryBackend should not exist")
	}
	if err := b.Boot(); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if err := b.Create([]byte("hello")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if exists, _ := b.Exists(); !exists {
		t.Fatal("MemoryBackend should exist after Create")
	}
	if err := b.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	got, err := b.Read(0, 5)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("Read = %q, want %q", got, "hello")
	}

	n, err := b.Update(1, []byte("ELL"))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n != 3 {
		t.Fatalf("Update wrote %d bytes, want 3", n)
	}
	got, _ = b.Read(0, 5)
	if !bytes.Equal(got, []byte("hELLo")) {
		t.Fatalf("Read after Update = %q, want %q", got, "hELLo")
	}
}

func TestMemoryBackendUpdatePastEOFSilentlyTruncated(t *testing.T) {
	b := NewMemoryBackend()
	b.Boot()
	b.Create([]byte("abc"))
	b.Open()

	n, err := b.Update(1, []byte("XYZW"))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n != 2 {
		t.Fatalf("Update wrote %d bytes, want 2 (silently truncated at EOF)", n)
	}
	got, _ := b.Read(0, -1)
	if !bytes.Equal(got, []byte("aXY")) {
		t.Fatalf("Read = %q, want %q", got, "aXY")
	}
}

func TestMemoryBackendUpdateEntirelyPastEOF(t *testing.T) {
	b := NewMemoryBackend()
	b.Boot()
	b.Create([]byte("abc"))
	b.Open()

	n, err := b.Update(10, []byte("zzz"))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n != 0 {
		t.Fatalf("Update past EOF wrote %d bytes, want 0", n)
	}
}

func TestMemoryBackendAppendAndSize(t *testing.T) {
	b := NewMemoryBackend()
	b.Boot()
	b.Create([]byte("abc"))
	b.Open()

	if err := b.Append([]byte("def")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	size, err := b.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 6 {
		t.Fatalf("Size = %d, want 6", size)
	}
	got, _ := b.Read(0, -1)
	if !bytes.Equal(got, []byte("abcdef")) {
		t.Fatalf("Read = %q, want %q", got, "abcdef")
	}
}

func TestMemoryBackendTruncate(t *testing.T) {
	b := NewMemoryBackend()
	b.Boot()
	b.Create([]byte("abcdef"))
	b.Open()

	if err := b.Truncate(3); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	got, _ := b.Read(0, -1)
	if !bytes.Equal(got, []byte("abc")) {
		t.Fatalf("Read after Truncate = %q, want %q", got, "abc")
	}
}

func TestMemoryBackendUnlinkAndReset(t *testing.T) {
	b := NewMemoryBackend()
	b.Boot()
	b.Create([]byte("abc"))
	if err := b.Unlink(); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if exists, _ := b.Exists(); exists {
		t.Fatal("MemoryBackend should not exist after Unlink")
	}

	b.Create([]byte("abc"))
	if err := b.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if exists, _ := b.Exists(); exists {
		t.Fatal("MemoryBackend should not exist after Reset")
	}
}

func TestMemoryBackendClone(t *testing.T) {
	b := NewMemoryBackend()
	b.Boot()
	b.Create([]byte("abc"))
	clone := b.Clone()
	if exists, _ := clone.Exists(); exists {
		t.Fatal("MemoryBackend.Clone should return a fresh, empty backend")
	}
}
