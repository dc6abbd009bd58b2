package pager

import (
	"bytes"
	"testing"

	"github.com/SimonWaldherr/tissueroll/internal/storage"
)

const journalTestPayloadSize = 256

func journalTestChunkSize() int {
	return PageSize(journalTestPayloadSize)
}

func fillByte(n int, b byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

func TestJournalRestoreNoFile(t *testing.T) {
	j := NewJournal(storage.NewMemoryBackend(), journalTestChunkSize())
	db := storage.NewMemoryBackend()
	result, err := j.Restore(db, nil)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if result.Restored {
		t.Fatal("Restore reported Restored=true with no journal file present")
	}
}

func TestJournalRestoreCleanShutdown(t *testing.T) {
	snapshot := fillByte(MetadataSize, 0xAA)
	j := NewJournal(storage.NewMemoryBackend(), journalTestChunkSize())
	if err := j.Open(snapshot); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j.StartTransaction(1); err != nil {
		t.Fatalf("StartTransaction: %v", err)
	}
	if err := j.EndTransaction(2); err != nil {
		t.Fatalf("EndTransaction: %v", err)
	}

	db := storage.NewMemoryBackend()
	if err := db.Boot(); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if err := db.Create(append(append([]byte(nil), snapshot...), fillByte(journalTestChunkSize(), 0x01)...)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := db.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	result, err := j.Restore(db, nil)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if result.Restored {
		t.Fatal("Restore should not replay a cleanly ended transaction")
	}
}

func TestJournalRestoreReplaysPreImage(t *testing.T) {
	chunkSize := journalTestChunkSize()
	snapshot := fillByte(MetadataSize, 0x11)

	preImagePage1 := NewPage(journalTestPayloadSize, PageTypeInternal, 1)
	dbBackend := storage.NewMemoryBackend()
	if err := dbBackend.Boot(); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	initial := append(append([]byte(nil), snapshot...), preImagePage1...)
	if err := dbBackend.Create(initial); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := dbBackend.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	journalBackend := storage.NewMemoryBackend()
	j := NewJournal(journalBackend, chunkSize)
	if err := j.Open(snapshot); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j.StartTransaction(1); err != nil {
		t.Fatalf("StartTransaction: %v", err)
	}

	chunk0, err := dbBackend.Read(0, int64(chunkSize))
	if err != nil {
		t.Fatalf("Read pre-image: %v", err)
	}
	if err := j.BackupPage(0, chunk0); err != nil {
		t.Fatalf("BackupPage: %v", err)
	}

	// Simulate the in-flight write corrupting page 1's header, then a crash
	// before EndTransaction runs.
	corrupt := fillByte(PageHeaderSize, 0xFF)
	if _, err := dbBackend.Update(int64(MetadataSize), corrupt); err != nil {
		t.Fatalf("Update (simulated crash write): %v", err)
	}

	// Reopen as if after a process restart: a fresh Journal handle over the
	// same (not-cleanly-closed) journal backend.
	j2 := NewJournal(journalBackend, chunkSize)
	var doneMetadata []byte
	result, err := j2.Restore(dbBackend, func(metadata []byte) error {
		doneMetadata = metadata
		return nil
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !result.Restored {
		t.Fatal("expected Restore to report a replayed transaction")
	}
	if result.MaximumPageIndex != 1 {
		t.Fatalf("MaximumPageIndex = %d, want 1", result.MaximumPageIndex)
	}
	if !bytes.Equal(doneMetadata, snapshot) {
		t.Fatal("done callback did not receive the restored metadata snapshot")
	}

	gotMetadata, err := dbBackend.Read(0, MetadataSize)
	if err != nil {
		t.Fatalf("Read metadata: %v", err)
	}
	if !bytes.Equal(gotMetadata, snapshot) {
		t.Fatal("metadata was not restored to its pre-transaction snapshot")
	}

	gotPage1, err := dbBackend.Read(int64(MetadataSize), int64(chunkSize))
	if err != nil {
		t.Fatalf("Read page 1: %v", err)
	}
	if !bytes.Equal(gotPage1, preImagePage1) {
		t.Fatal("page 1 was not restored to its pre-transaction contents")
	}

	// A second Restore against the now-reset journal must be a no-op.
	j3 := NewJournal(journalBackend, chunkSize)
	result2, err := j3.Restore(dbBackend, nil)
	if err != nil {
		t.Fatalf("second Restore: %v", err)
	}
	if result2.Restored {
		t.Fatal("Restore replayed a transaction twice")
	}
}

func TestJournalBackupPageIsIdempotentPerTransaction(t *testing.T) {
	chunkSize := journalTestChunkSize()
	j := NewJournal(storage.NewMemoryBackend(), chunkSize)
	if err := j.Open(fillByte(MetadataSize, 0)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j.StartTransaction(1); err != nil {
		t.Fatalf("StartTransaction: %v", err)
	}
	chunk := fillByte(chunkSize, 0x42)
	if err := j.BackupPage(3, chunk); err != nil {
		t.Fatalf("first BackupPage: %v", err)
	}
	sizeAfterFirst, err := j.backend.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if err := j.BackupPage(3, chunk); err != nil {
		t.Fatalf("second BackupPage: %v", err)
	}
	sizeAfterSecond, err := j.backend.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if sizeAfterFirst != sizeAfterSecond {
		t.Fatal("BackupPage appended a duplicate entry for an already-backed-up chunk")
	}
}
