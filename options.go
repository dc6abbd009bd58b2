package tissueroll

import (
	"time"

	"github.com/SimonWaldherr/tissueroll/internal/storage/pager"
)

// Options configures Create and Open (§6.1).
type Options struct {
	// PayloadSize is the per-page payload size in bytes. Defaults to 4096.
	// Must be large enough that an overflow page can hold more than a
	// 40-byte record header (payloadSize-4 > 40); payloadSize must be > 4.
	PayloadSize int

	// Overwrite allows Create to replace an existing file instead of
	// failing with ErrAlreadyExists.
	Overwrite bool

	// CommitDebounce, if positive, batches writes: a commit is scheduled
	// this long after the last write instead of running inline.
	CommitDebounce time.Duration

	// CommitDebounceMaximumSkip forces an immediate commit after this many
	// debounced calls have been coalesced, even if writes keep arriving.
	// Defaults to 10.
	CommitDebounceMaximumSkip int

	// CacheLifespan is the TTL of the record engine's internal caches.
	// Defaults to 3 minutes.
	CacheLifespan time.Duration

	// VerifyChecksums is carried in Options (and the CLI's YAML config) but
	// nothing reads it: Pick and GetRecords do not check a page's CRC32
	// whether it is set or not. Page CRCs are checked by Verify.
	VerifyChecksums bool

	// AutoCheckpoint, if non-empty, is a 6-field cron expression (seconds
	// first) on which the database forces a commit in the background,
	// independent of CommitDebounce. Useful for long-lived processes with
	// sparse writes that would otherwise leave dirty chunks uncommitted
	// indefinitely.
	AutoCheckpoint string

	// CustomJournal, if set, is used in place of the default sibling-file
	// journal (§6.1's `journal?=true|Journal` union). Rarely needed outside
	// tests that want to inspect or pre-seed journal state directly.
	CustomJournal *pager.Journal

	disableJournal  bool
	requireExisting bool
}

// withDefaults returns a copy of o with zero fields replaced by defaults.
func (o Options) withDefaults() Options {
	if o.PayloadSize <= 0 {
		o.PayloadSize = pager.DefaultPayloadSize
	}
	if o.CommitDebounceMaximumSkip <= 0 {
		o.CommitDebounceMaximumSkip = 10
	}
	if o.CacheLifespan <= 0 {
		o.CacheLifespan = 3 * time.Minute
	}
	return o
}

// journalEnabled reports whether Options requests a journal, defaulting to
// true when the caller didn't set the field explicitly. Options has no way
// to distinguish "unset" from "false" for a bool, so the zero value (false)
// would normally mean "disabled" — Create/Open instead treat Journal as an
// opt-out flag via DisableJournal to keep the safe default without that
// ambiguity. See DisableJournal.
func (o Options) journalEnabled() bool {
	return !o.disableJournal
}

// DisableJournal turns off the crash journal for databases that don't need
// crash-recovery (e.g. disposable caches backed by MemoryBackend, where a
// process crash already loses everything). Exposed as a method rather than
// a second bool field so Options{} keeps the safe "journal on" default.
func (o Options) DisableJournal() Options {
	o.disableJournal = true
	return o
}

// RequireExisting makes Open fail with ErrNotFound instead of creating a
// fresh database when path is missing. Open's default (per §6.1, "Creates
// if missing, same defaults") is convenient for long-lived embedded use but
// surprising for callers who expect a typo'd path to fail loudly.
func (o Options) RequireExisting() Options {
	o.requireExisting = true
	return o
}
