// Package tissueroll implements an embedded, single-file, append-biased
// record store with a crash-safe journal (§1). It composes the paged
// record engine (internal/storage/pager), the write-back virtual engine
// and FIFO transaction manager (internal/storage) into the public API of
// §6.1: Create/Open, Pick/Put/Batch/Update/Delete/Exists/GetRecords, Close.
package tissueroll

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/SimonWaldherr/tissueroll/internal/storage"
	"github.com/SimonWaldherr/tissueroll/internal/storage/pager"
)

// PickResult is the outcome of a successful Pick (§6.1).
type PickResult struct {
	ID        string
	PageIndex uint32
	Order     uint32
	Payload   string
}

// Record is one stored record as returned by GetRecords: its identity,
// decoded header fields, and payload text.
type Record struct {
	ID         string
	PageIndex  uint32
	Order      uint32
	Payload    string
	Deleted    bool
	AliasIndex uint32
	AliasOrder uint32
}

// DB is a single open tissueroll database (§6.1).
type DB struct {
	path    string
	opts    Options
	backend *storage.DiskBackend
	v       *storage.VirtualEngine
	journal *pager.Journal
	engine  *pager.Engine
	tx      *storage.TxManager
	sched   *storage.Scheduler

	// startIndex is metadata.NextIndex as observed at the start of the
	// write transaction currently holding (or that most recently held)
	// the write lock — the page count *before* this transaction appends
	// anything. It is what the journal's StartTransaction records as
	// maximumPageIndex (§4.4), so that restore-on-crash truncates away
	// every page this transaction appended, not just the ones it failed
	// to finish committing. Safe to touch without its own lock: it is
	// only ever written and read while the TxManager's single write lock
	// is held, which serializes all writers already.
	startIndex uint32

	closeMu sync.Mutex
	closed  bool
}

// withWrite runs fn inside a write transaction, first recording
// metadata.NextIndex as it stood before fn had a chance to mutate it, so
// the journal's Start hook can report the transaction's true starting
// page count rather than whatever it grew to by commit time.
func (db *DB) withWrite(fn func() error) error {
	return db.tx.WithWrite(func() error {
		db.startIndex = db.engine.Metadata().NextIndex
		return fn()
	})
}

// Create makes a brand-new database file at path (§6.1). It fails with
// ErrAlreadyExists unless Options.Overwrite is set.
func Create(path string, opts Options) (*DB, error) {
	opts = opts.withDefaults()
	if opts.PayloadSize <= pager.MinPayloadSize-1 {
		return nil, fmt.Errorf("tissueroll: payloadSize must be > %d", pager.MinPayloadSize-1)
	}

	backend := storage.NewDiskBackend(path)
	exists, err := backend.Exists()
	if err != nil {
		return nil, fmt.Errorf("tissueroll: checking %s: %w", path, err)
	}
	if exists {
		if !opts.Overwrite {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, path)
		}
		if err := backend.Reset(); err != nil {
			return nil, fmt.Errorf("tissueroll: clearing %s for overwrite: %w", path, err)
		}
		// A stale journal from the file being overwritten no longer
		// describes anything useful; drop it so the fresh database never
		// sees a bogus in-flight transaction on its next open.
		if err := storage.NewDiskBackend(journalPath(path)).Reset(); err != nil {
			return nil, fmt.Errorf("tissueroll: clearing stale journal for %s: %w", path, err)
		}
	}

	if err := backend.Boot(); err != nil {
		return nil, err
	}
	meta, err := pager.NewMetadata(opts.PayloadSize, uint64(time.Now().UnixMilli()))
	if err != nil {
		return nil, err
	}
	if err := backend.Create(meta.Marshal()); err != nil {
		return nil, err
	}
	if err := backend.Open(); err != nil {
		return nil, err
	}

	db, err := newDB(path, backend, *meta, opts, false)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return db, nil
}

// Open opens an existing database at path, creating one with the given
// options if it is missing (§6.1), unless Options.RequireExisting() was
// set. If a journal exists and records an in-flight transaction, Open
// restores the database to its pre-transaction state before serving any
// request (§4.4.1).
func Open(path string, opts Options) (*DB, error) {
	opts = opts.withDefaults()

	probe := storage.NewDiskBackend(path)
	exists, err := probe.Exists()
	if err != nil {
		return nil, fmt.Errorf("tissueroll: checking %s: %w", path, err)
	}
	if !exists {
		if opts.requireExisting {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Create(path, opts)
	}

	backend := storage.NewDiskBackend(path)
	if err := backend.Boot(); err != nil {
		return nil, err
	}
	if err := backend.Open(); err != nil {
		return nil, err
	}

	metaBuf, err := backend.Read(0, int64(pager.MetadataSize))
	if err != nil {
		backend.Close()
		return nil, err
	}
	meta, err := pager.UnmarshalMetadata(metaBuf)
	if err != nil {
		backend.Close()
		return nil, err
	}

	restored := false
	if opts.journalEnabled() || opts.CustomJournal != nil {
		chunkSize := pager.PageSize(int(meta.PayloadSize))
		probeJournal := opts.CustomJournal
		if probeJournal == nil {
			probeJournal = pager.NewJournal(storage.NewDiskBackend(journalPath(path)), chunkSize)
		}
		jExists, err := probeJournal.Exists()
		if err != nil {
			backend.Close()
			return nil, err
		}
		if jExists {
			var restoredMeta *pager.Metadata
			result, err := probeJournal.Restore(backend, func(snapshot []byte) error {
				m, err := pager.UnmarshalMetadata(snapshot)
				if err != nil {
					return err
				}
				restoredMeta = m
				return nil
			})
			if err != nil {
				backend.Close()
				return nil, fmt.Errorf("tissueroll: restoring %s from journal: %w", path, err)
			}
			if result.Restored {
				restored = true
				// §4.4.1: restore protocol ends by closing and reopening
				// the database file, since Restore's own Truncate/Update
				// calls may have changed its size out from under any
				// cached os.File state.
				if err := backend.Close(); err != nil {
					return nil, err
				}
				if err := backend.Open(); err != nil {
					return nil, err
				}
				if restoredMeta != nil {
					meta = restoredMeta
				}
				log.Printf("tissueroll: recovered %s from journal (maximumPageIndex=%d, pageSize=%d)",
					path, result.MaximumPageIndex, chunkSize)
			}
		}
	}

	db, err := newDB(path, backend, *meta, opts, restored)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return db, nil
}

// journalPath returns the sibling journal file path for a database at
// dbPath (§3.5: "Path is <db-path>.journal").
func journalPath(dbPath string) string {
	return dbPath + pager.JournalSuffix
}

// newDB wires a freshly opened backend + metadata into a ready-to-use DB:
// the virtual engine, the journal (unless disabled), the record engine,
// the transaction manager, and the optional auto-checkpoint scheduler.
// alreadyRestored is accepted but not used; the wiring is identical
// whether or not Open restored from the journal.
func newDB(path string, backend *storage.DiskBackend, meta pager.Metadata, opts Options, alreadyRestored bool) (*DB, error) {
	_ = alreadyRestored
	payloadSize := int(meta.PayloadSize)
	chunkSize := pager.PageSize(payloadSize)

	vOpts := storage.DefaultVirtualEngineOptions()
	vOpts.ChunkSize = chunkSize
	vOpts.CacheLifespan = opts.CacheLifespan
	vOpts.CommitDebounce = opts.CommitDebounce
	vOpts.CommitDebounceMaximumSkip = opts.CommitDebounceMaximumSkip
	v := storage.NewVirtualEngine(backend, vOpts)

	db := &DB{path: path, opts: opts, backend: backend, v: v}

	var jrnl *pager.Journal
	switch {
	case opts.CustomJournal != nil:
		jrnl = opts.CustomJournal
	case opts.journalEnabled():
		jrnl = pager.NewJournal(storage.NewDiskBackend(journalPath(path)), chunkSize)
	}
	if jrnl != nil {
		if err := jrnl.Open(meta.Marshal()); err != nil {
			return nil, fmt.Errorf("tissueroll: opening journal for %s: %w", path, err)
		}
		db.journal = jrnl
		v.SetBackupHooks(storage.BackupHooks{
			Start: func() error {
				return jrnl.StartTransaction(db.startIndex)
			},
			Backup: jrnl.BackupPage,
			End: func(commitErr error) error {
				if commitErr != nil {
					// A failed commit leaves the journal's working flag
					// set and its pre-image snapshot in place so the next
					// open can still restore; only report the original
					// commit error upward.
					return commitErr
				}
				if err := jrnl.EndTransaction(db.startIndex); err != nil {
					return err
				}
				return jrnl.Reset(db.engine.Metadata().Marshal())
			},
		})
	}

	db.engine = pager.NewEngine(v, meta, pager.Options{
		PayloadSize:   payloadSize,
		CacheLifespan: opts.CacheLifespan,
	})

	db.tx = storage.NewTxManager(func() error {
		return v.CommitWithDebounce()
	})

	if opts.AutoCheckpoint != "" {
		db.sched = storage.NewScheduler(checkpointerFunc(func() error { return v.Commit() }))
		if err := db.sched.Start(opts.AutoCheckpoint); err != nil {
			return nil, fmt.Errorf("tissueroll: starting auto-checkpoint: %w", err)
		}
	}

	return db, nil
}

// checkpointerFunc adapts a plain func() error to storage.Checkpointer.
type checkpointerFunc func() error

func (f checkpointerFunc) Commit() error { return f() }

// Pick resolves id to its record, following an alias if the head record
// was superseded by a grown Update (§4.3.5).
func (db *DB) Pick(id string) (PickResult, error) {
	if db.isClosed() {
		return PickResult{}, ErrClosing
	}
	var out PickResult
	err := db.tx.WithRead(func() error {
		p, err := db.engine.Pick(id, true)
		if err != nil {
			return err
		}
		out = PickResult{
			ID:        id,
			PageIndex: p.PageIndex,
			Order:     p.Order,
			Payload:   string(p.Record.Payload),
		}
		return nil
	})
	return out, err
}

// Put inserts text as a new record and returns its ID.
func (db *DB) Put(text string) (string, error) {
	if db.isClosed() {
		return "", ErrClosing
	}
	var id string
	err := db.withWrite(func() error {
		var err error
		id, err = db.engine.Put([]byte(text), true)
		return err
	})
	return id, err
}

// Batch inserts every text as a new record and returns their IDs in order,
// all within a single write transaction. A failure partway returns the
// error without a commit, but the records inserted before the failure are
// not rolled back: they stay in the virtual engine's dirty chunks and are
// written by the next commit.
func (db *DB) Batch(texts []string) ([]string, error) {
	if db.isClosed() {
		return nil, ErrClosing
	}
	items := make([][]byte, len(texts))
	for i, t := range texts {
		items[i] = []byte(t)
	}
	var ids []string
	err := db.withWrite(func() error {
		var err error
		ids, err = db.engine.Batch(items)
		return err
	})
	return ids, err
}

// Update rewrites id's record with text, returning the same id if the new
// payload still fits in its reserved capacity, or a new alias-target id if
// it grew (§4.3.6).
func (db *DB) Update(id, text string) (string, error) {
	if db.isClosed() {
		return "", ErrClosing
	}
	var newID string
	err := db.withWrite(func() error {
		var err error
		newID, err = db.engine.Update(id, []byte(text))
		return err
	})
	return newID, err
}

// Delete marks id's record deleted.
func (db *DB) Delete(id string) error {
	if db.isClosed() {
		return ErrClosing
	}
	return db.withWrite(func() error {
		return db.engine.Delete(id)
	})
}

// Exists reports whether id resolves to a live, non-deleted record.
func (db *DB) Exists(id string) bool {
	if db.isClosed() {
		return false
	}
	var exists bool
	db.tx.WithRead(func() error {
		exists = db.engine.Exists(id)
		return nil
	})
	return exists
}

// GetRecords returns every record stored on the Internal page heading the
// chain that contains pageIndex (§4.3.9).
func (db *DB) GetRecords(pageIndex uint32) ([]Record, error) {
	if db.isClosed() {
		return nil, ErrClosing
	}
	var out []Record
	err := db.tx.WithRead(func() error {
		recs, err := db.engine.GetRecords(pageIndex)
		if err != nil {
			return err
		}
		key := db.engine.Metadata().SecretKey
		out = make([]Record, 0, len(recs))
		for _, r := range recs {
			id, err := pager.EncodeRecordID(key, r.Header.Index, r.Header.Order)
			if err != nil {
				return err
			}
			out = append(out, Record{
				ID:         id,
				PageIndex:  r.Header.Index,
				Order:      r.Header.Order,
				Payload:    string(r.Payload),
				Deleted:    r.Header.Deleted,
				AliasIndex: r.Header.AliasIndex,
				AliasOrder: r.Header.AliasOrder,
			})
		}
		return nil
	})
	return out, err
}

// Verify runs pager.VerifyDB against this database's own file, returning
// any structural issues found (§6.4 observability, supplemented).
func (db *DB) Verify() ([]string, error) {
	return pager.VerifyDB(db.path)
}

// Path returns the filesystem path this database was opened from.
func (db *DB) Path() string { return db.path }

func (db *DB) isClosed() bool {
	db.closeMu.Lock()
	defer db.closeMu.Unlock()
	return db.closed
}

// Close flushes any pending writes, closes the journal (if any) and the
// underlying file, and marks db closed. Idempotent: a second call returns
// ErrClosing rather than erroring on an already-released resource
// (§4.3.11).
//
// A caller may have already observed isClosed() == false in Put/Update/
// Delete and be about to enter (or already be queued behind) a write
// transaction when closed flips true here. Close acquires its own write
// transaction through db.tx before touching engine/journal/backend state,
// which — by the FIFO admission queue of storage.TxManager — drains every
// writer that joined the queue before Close did. It then marks the engine
// closing while still holding that transaction, so any writer admitted
// after Close (including one that was queued behind it) sees the engine's
// own ErrClosing guard and returns cleanly instead of hitting an I/O error
// from a file Close has already closed out from under it.
func (db *DB) Close() error {
	db.closeMu.Lock()
	if db.closed {
		db.closeMu.Unlock()
		return ErrClosing
	}
	db.closed = true
	db.closeMu.Unlock()

	tx := db.tx.BeginWrite()

	db.engine.Close()
	if db.sched != nil {
		db.sched.Stop()
	}

	var firstErr error
	if err := db.v.Commit(); err != nil {
		firstErr = err
	}
	if db.journal != nil {
		if err := db.journal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := db.backend.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	tx.Rollback()
	return firstErr
}
