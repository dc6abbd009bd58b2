package pager

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/SimonWaldherr/tissueroll/internal/storage"
)

// ───────────────────────────────────────────────────────────────────────────
// Journal — the crash-safe undo log (§3.5, §4.4)
// ───────────────────────────────────────────────────────────────────────────
//
// The journal owns its own Backend (obtained via the main backend's Clone,
// per §5: "the journal owns its own backend instance; it never shares a
// handle with the main DB file"). Its layout is:
//
//	+ 100 B   root header (working u8, maximumPageIndex u32, journalVersion u16, pad)
//	+ 200 B   snapshot of DB metadata written by Make/Open and by each Reset
//	+ N × (100 B journal-page header + chunkSize payload)   backup pages
//
// A backed-up page's `originalIndex` lives in the virtual engine's 0-based
// chunk-index space, not the record engine's 1-based page index: chunk 0
// spans the 200-byte metadata prefix followed by the start of page 1,
// which is why restoring chunk 0 requires stripping its first 200 bytes
// before writing it out as page data (§4.4.1 step 5).

const (
	journalRootHeaderSize = 100
	journalPageHeaderSize = 100

	jrWorkingOff        = 0
	jrMaximumIndexOff   = jrWorkingOff + 1      // 1
	jrJournalVersionOff = jrMaximumIndexOff + 4 // 5

	jpOriginalIndexOff = 0

	// CurrentJournalVersion is the format version this implementation
	// writes and the minimum version it accepts on restore.
	CurrentJournalVersion uint16 = 1
)

// JournalSuffix is appended to a database's path to name its journal file.
const JournalSuffix = ".journal"

// Journal implements the undo log described in §3.5/§4.4.
type Journal struct {
	backend   storage.Backend
	chunkSize int

	backedUp map[uint32]bool
}

// NewJournal wraps backend (already Clone()'d from the main backend by the
// caller) as a Journal using chunkSize-sized backup pages.
func NewJournal(backend storage.Backend, chunkSize int) *Journal {
	return &Journal{
		backend:   backend,
		chunkSize: chunkSize,
		backedUp:  make(map[uint32]bool),
	}
}

func marshalRootHeader(working bool, maximumPageIndex uint32, version uint16) []byte {
	buf := make([]byte, journalRootHeaderSize)
	if working {
		buf[jrWorkingOff] = 1
	}
	binary.BigEndian.PutUint32(buf[jrMaximumIndexOff:], maximumPageIndex)
	binary.BigEndian.PutUint16(buf[jrJournalVersionOff:], version)
	return buf
}

func unmarshalRootHeader(buf []byte) (working bool, maximumPageIndex uint32, version uint16) {
	working = buf[jrWorkingOff] != 0
	maximumPageIndex = binary.BigEndian.Uint32(buf[jrMaximumIndexOff:])
	version = binary.BigEndian.Uint16(buf[jrJournalVersionOff:])
	return
}

func marshalJournalPageHeader(originalIndex uint32) []byte {
	buf := make([]byte, journalPageHeaderSize)
	binary.BigEndian.PutUint32(buf[jpOriginalIndexOff:], originalIndex)
	return buf
}

// Exists reports whether the journal file is present.
func (j *Journal) Exists() (bool, error) {
	return j.backend.Exists()
}

// Make lazily creates the journal file: boot, create with a root header
// (working=0) plus the given metadata snapshot, then open.
func (j *Journal) Make(initialMetadata []byte) error {
	if err := j.backend.Boot(); err != nil {
		return err
	}
	initial := make([]byte, 0, journalRootHeaderSize+MetadataSize)
	initial = append(initial, marshalRootHeader(false, 0, CurrentJournalVersion)...)
	initial = append(initial, initialMetadata...)
	if err := j.backend.Create(initial); err != nil {
		return err
	}
	return j.backend.Open()
}

// Open opens the journal's backend, creating it first if absent.
func (j *Journal) Open(initialMetadata []byte) error {
	exists, err := j.Exists()
	if err != nil {
		return err
	}
	if !exists {
		return j.Make(initialMetadata)
	}
	if err := j.backend.Boot(); err != nil {
		return err
	}
	return j.backend.Open()
}

// StartTransaction marks a transaction in flight, capturing maximumPageIndex
// (the DB's current nextIndex) so restore knows where to truncate on crash.
func (j *Journal) StartTransaction(maximumPageIndex uint32) error {
	clear(j.backedUp)
	_, err := j.backend.Update(0, marshalRootHeader(true, maximumPageIndex, CurrentJournalVersion))
	return err
}

// BackupPage appends chunk (chunkSize bytes, the pre-image) for chunkIndex,
// unless it was already backed up during this transaction.
func (j *Journal) BackupPage(chunkIndex uint32, chunk []byte) error {
	if j.backedUp[chunkIndex] {
		return nil
	}
	if len(chunk) != j.chunkSize {
		padded := make([]byte, j.chunkSize)
		copy(padded, chunk)
		chunk = padded
	}
	entry := append(marshalJournalPageHeader(chunkIndex), chunk...)
	if err := j.backend.Append(entry); err != nil {
		return err
	}
	j.backedUp[chunkIndex] = true
	return nil
}

// EndTransaction clears the working flag.
func (j *Journal) EndTransaction(maximumPageIndex uint32) error {
	_, err := j.backend.Update(0, marshalRootHeader(false, maximumPageIndex, CurrentJournalVersion))
	return err
}

// Reset truncates the journal back to just the root header and metadata
// snapshot, clearing the in-memory backed-up set.
func (j *Journal) Reset(metadata []byte) error {
	clear(j.backedUp)
	if err := j.backend.Truncate(0); err != nil {
		return err
	}
	if err := j.backend.Append(marshalRootHeader(false, 0, CurrentJournalVersion)); err != nil {
		return err
	}
	return j.backend.Append(metadata)
}

// Close unlinks the journal file. Must not be called with a transaction in
// flight.
func (j *Journal) Close() error {
	if err := j.backend.Close(); err != nil {
		return err
	}
	return j.backend.Unlink()
}

// RestoreResult reports what Restore found and did.
type RestoreResult struct {
	Restored         bool
	MaximumPageIndex uint32
}

// Restore implements §4.4.1 against dbBackend (the main database's own,
// already-open backend). done is invoked with the restored metadata bytes
// so the caller can reload its in-memory metadata cache.
func (j *Journal) Restore(dbBackend storage.Backend, done func(metadata []byte) error) (RestoreResult, error) {
	exists, err := j.Exists()
	if err != nil {
		return RestoreResult{}, err
	}
	if !exists {
		return RestoreResult{}, nil
	}
	if err := j.backend.Boot(); err != nil {
		return RestoreResult{}, err
	}
	if err := j.backend.Open(); err != nil {
		return RestoreResult{}, err
	}
	defer j.backend.Close()

	rootBuf, err := j.backend.Read(0, journalRootHeaderSize)
	if err != nil {
		return RestoreResult{}, err
	}
	if len(rootBuf) < journalRootHeaderSize {
		return RestoreResult{}, fmt.Errorf("pager: journal root header truncated")
	}
	working, maximumPageIndex, version := unmarshalRootHeader(rootBuf)

	snapshot, err := j.backend.Read(journalRootHeaderSize, MetadataSize)
	if err != nil {
		return RestoreResult{}, err
	}

	if !working || version < CurrentJournalVersion {
		if version < CurrentJournalVersion && working {
			log.Printf("pager: journal version %d below minimum %d, discarding recovery data", version, CurrentJournalVersion)
		}
		if err := j.Reset(snapshot); err != nil {
			return RestoreResult{}, err
		}
		return RestoreResult{}, nil
	}

	log.Printf("pager: restoring from journal: maximumPageIndex=%d pageSize=%d", maximumPageIndex, j.chunkSize)

	// Equivalent to PagePosition(maximumPageIndex+1, payloadSize) computed
	// directly from chunkSize, since chunkSize == PageSize(payloadSize).
	targetOffset := int64(MetadataSize) + int64(j.chunkSize)*int64(maximumPageIndex)
	if err := dbBackend.Truncate(targetOffset); err != nil {
		return RestoreResult{}, err
	}
	if _, err := dbBackend.Update(0, snapshot); err != nil {
		return RestoreResult{}, err
	}

	entrySize := int64(journalPageHeaderSize + j.chunkSize)
	pos := int64(journalRootHeaderSize + MetadataSize)
	journalSize, err := j.backend.Size()
	if err != nil {
		return RestoreResult{}, err
	}
	for pos+entrySize <= journalSize {
		entry, err := j.backend.Read(pos, entrySize)
		if err != nil {
			return RestoreResult{}, err
		}
		if int64(len(entry)) < entrySize {
			break
		}
		chunkIndex := binary.BigEndian.Uint32(entry[jpOriginalIndexOff:])
		chunk := entry[journalPageHeaderSize:]

		var writeErr error
		if chunkIndex == 0 {
			_, writeErr = dbBackend.Update(int64(MetadataSize), chunk[MetadataSize:])
		} else {
			_, writeErr = dbBackend.Update(int64(chunkIndex)*int64(j.chunkSize), chunk)
		}
		if writeErr != nil {
			return RestoreResult{}, writeErr
		}
		pos += entrySize
	}

	if err := j.Reset(snapshot); err != nil {
		return RestoreResult{}, err
	}
	if done != nil {
		if err := done(snapshot); err != nil {
			return RestoreResult{}, err
		}
	}
	return RestoreResult{Restored: true, MaximumPageIndex: maximumPageIndex}, nil
}
