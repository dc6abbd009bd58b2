package tissueroll

import (
	"errors"

	"github.com/SimonWaldherr/tissueroll/internal/storage"
	"github.com/SimonWaldherr/tissueroll/internal/storage/pager"
)

// Sentinel errors for the public API (§7). Each wraps (or stands in for)
// the pager-level error of the same meaning so callers never need to
// import internal/storage/pager to use errors.Is against the taxonomy
// spec.md's §7 table describes.
var (
	// ErrAlreadyExists is returned by Create on an existing path without
	// Options.Overwrite.
	ErrAlreadyExists = errors.New("tissueroll: database already exists")

	// ErrNotFound is returned by Open on a missing path.
	ErrNotFound = errors.New("tissueroll: database not found")

	// ErrInvalid is returned when a file's metadata magic does not read
	// "TissueRoll". The file is left untouched.
	ErrInvalid = pager.ErrInvalid

	// ErrAlreadyDeleted is returned by Pick/Update/Delete against a record
	// whose deleted flag is already set.
	ErrAlreadyDeleted = pager.ErrAlreadyDeleted

	// ErrInvalidRecord is returned when a record ID is malformed or
	// decrypts to a plaintext that isn't well-formed hex. Alias targets are
	// not checked for staleness.
	ErrInvalidRecord = pager.ErrInvalidRecord

	// ErrUnsupportedEngine is declared for the taxonomy of §7; no operation
	// in this package returns it, including on a DB opened with
	// Options.DisableJournal().
	ErrUnsupportedEngine = errors.New("tissueroll: journal feature used without a journal")

	// ErrClosing is returned by any operation called after Close has
	// started.
	ErrClosing = pager.ErrClosing

	// ErrValidationFailed is declared for forward compatibility with the
	// document layer's scheme-validation errors (§6.2, §7); core never
	// raises it.
	ErrValidationFailed = errors.New("tissueroll: validation failed")

	// ErrLocked is re-exported from internal/storage so callers can detect
	// a second process holding the advisory file lock without importing
	// internal/storage directly.
	ErrLocked = storage.ErrLocked
)
