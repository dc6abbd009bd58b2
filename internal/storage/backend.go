// Package storage implements the ambient layer underneath the paged record
// engine: the byte-addressed storage backend (§4.1), the write-back virtual
// engine (§4.2), the lazy cache primitive (§4.7), the locker (§5), the FIFO
// transaction manager (§4.5), and the optional cron-driven checkpoint.
package storage

import "errors"

// ErrLocked is returned when a disk backend cannot acquire its advisory
// file lock because another process already holds it. Cross-process
// multi-writer coordination remains a Non-goal; this only turns silent
// corruption into an explicit, early error.
var ErrLocked = errors.New("storage: database file is locked by another process")

// Backend is the byte-addressed random-access file abstraction the record
// engine is built on (§4.1). Implementations: DiskBackend (a real file,
// advisory-locked) and MemoryBackend (an in-memory byte slice, for tests
// and ephemeral databases).
type Backend interface {
	// Exists reports whether the backend's target already has contents.
	Exists() (bool, error)

	// Boot performs idempotent preparation (e.g. ensuring a parent
	// directory exists). Safe to call multiple times.
	Boot() error

	// Create writes the initial contents of a brand-new backend target.
	Create(initial []byte) error

	// Open acquires whatever resources the backend needs for Read/Update/
	// Append/Truncate (e.g. opening the file handle). Idempotent.
	Open() error

	// Close releases resources acquired by Open. Idempotent.
	Close() error

	// Size returns the current size in bytes.
	Size() (int64, error)

	// Read returns length bytes starting at offset. A negative length
	// means "read to end".
	Read(offset int64, length int64) ([]byte, error)

	// Update overwrites length bytes starting at offset with data. It
	// never extends the backend: bytes past the current size are
	// silently dropped, and the number of bytes actually written is
	// returned.
	Update(offset int64, data []byte) (int, error)

	// Append writes data past the current end, extending the backend.
	Append(data []byte) error

	// Truncate resizes the backend to newSize, which must not exceed the
	// current size.
	Truncate(newSize int64) error

	// Unlink removes the backend's target entirely.
	Unlink() error

	// Reset returns the backend to its pre-Boot state.
	Reset() error

	// Clone returns a fresh, unopened instance of the same kind of
	// backend pointed at the same target. The journal uses this to get
	// its own handle, per spec.md §5: "the journal owns its own backend
	// instance... it never shares a handle with the main DB file."
	Clone() Backend
}
