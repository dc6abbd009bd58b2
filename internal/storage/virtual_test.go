package storage

import (
	"bytes"
	"testing"
	"time"
)

func newTestVirtualEngine(chunkSize int) (*VirtualEngine, *MemoryBackend) {
	backend := NewMemoryBackend()
	backend.Boot()
	backend.Create(nil)
	backend.Open()
	v := NewVirtualEngine(backend, VirtualEngineOptions{ChunkSize: chunkSize, CacheLifespan: time.Minute})
	return v, backend
}

func TestVirtualEngineAppendReadRoundTrip(t *testing.T) {
	v, _ := newTestVirtualEngine(16)
	if err := v.Append([]byte("hello, world")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := v.Read(0, -1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("hello, world")) {
		t.Fatalf("Read = %q, want %q", got, "hello, world")
	}
}

func TestVirtualEngineUpdateBeforeCommitIsVisible(t *testing.T) {
	v, _ := newTestVirtualEngine(8)
	if err := v.Append(bytes.Repeat([]byte{0}, 32)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := v.Update(10, []byte("XYZ")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := v.Read(10, 3)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("XYZ")) {
		t.Fatalf("Read = %q, want %q", got, "XYZ")
	}
}

func TestVirtualEngineCommitFlushesToBackend(t *testing.T) {
	v, backend := newTestVirtualEngine(8)
	if err := v.Append([]byte("0123456789ABCDEF")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := v.Update(4, []byte("xxxx")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := v.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err := backend.Read(0, 16)
	if err != nil {
		t.Fatalf("backend.Read: %v", err)
	}
	if !bytes.Equal(got, []byte("0123xxxx89ABCDEF")) {
		t.Fatalf("backend contents = %q, want %q", got, "0123xxxx89ABCDEF")
	}
}

func TestVirtualEngineTruncate(t *testing.T) {
	v, backend := newTestVirtualEngine(8)
	if err := v.Append([]byte("0123456789ABCDEF")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := v.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := v.Truncate(5); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	size, err := v.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 5 {
		t.Fatalf("Size after Truncate = %d, want 5", size)
	}
	gotBackendSize, err := backend.Size()
	if err != nil {
		t.Fatalf("backend.Size: %v", err)
	}
	if gotBackendSize != 5 {
		t.Fatalf("backend Size after Truncate = %d, want 5", gotBackendSize)
	}
}

func TestVirtualEngineCommitInvokesBackupHooksForOverwrite(t *testing.T) {
	v, _ := newTestVirtualEngine(8)
	if err := v.Append([]byte("0123456789ABCDEF")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := v.Commit(); err != nil {
		t.Fatalf("first Commit: %v", err)
	}

	var started, ended bool
	var backedUp []uint32
	v.SetBackupHooks(BackupHooks{
		Start: func() error { started = true; return nil },
		Backup: func(chunkIndex uint32, preImage []byte) error {
			backedUp = append(backedUp, chunkIndex)
			return nil
		},
		End: func(commitErr error) error { ended = true; return nil },
	})

	if _, err := v.Update(0, []byte("ZZ")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := v.Commit(); err != nil {
		t.Fatalf("second Commit: %v", err)
	}

	if !started || !ended {
		t.Fatalf("started=%v ended=%v, want both true", started, ended)
	}
	if len(backedUp) != 1 || backedUp[0] != 0 {
		t.Fatalf("backedUp = %v, want [0]", backedUp)
	}
}

func TestVirtualEngineCommitDoesNotBackUpNewlyAppendedChunks(t *testing.T) {
	v, _ := newTestVirtualEngine(8)
	var backedUp []uint32
	v.SetBackupHooks(BackupHooks{
		Backup: func(chunkIndex uint32, preImage []byte) error {
			backedUp = append(backedUp, chunkIndex)
			return nil
		},
	})
	if err := v.Append([]byte("01234567")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := v.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(backedUp) != 0 {
		t.Fatalf("backedUp = %v, want none (chunk was never on disk before)", backedUp)
	}
}

func TestVirtualEngineCommitWithDebounceCoalesces(t *testing.T) {
	backend := NewMemoryBackend()
	backend.Boot()
	backend.Create(nil)
	backend.Open()
	v := NewVirtualEngine(backend, VirtualEngineOptions{
		ChunkSize:                 8,
		CacheLifespan:             time.Minute,
		CommitDebounce:            20 * time.Millisecond,
		CommitDebounceMaximumSkip: 100,
	})

	if err := v.Append([]byte("01234567")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	done := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() { done <- v.CommitWithDebounce() }()
	}
	for i := 0; i < 3; i++ {
		if err := <-done; err != nil {
			t.Fatalf("CommitWithDebounce: %v", err)
		}
	}
	got, err := backend.Read(0, 8)
	if err != nil {
		t.Fatalf("backend.Read: %v", err)
	}
	if !bytes.Equal(got, []byte("01234567")) {
		t.Fatalf("backend contents = %q, want %q", got, "01234567")
	}
}
