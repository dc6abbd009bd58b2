package storage

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
)

// VirtualEngineOptions configures a VirtualEngine. If ChunkSize is not
// positive, the whole struct is replaced by DefaultVirtualEngineOptions at
// construction; otherwise every field, zero or not, is used as given.
type VirtualEngineOptions struct {
	ChunkSize                 int
	CacheLifespan             time.Duration
	CommitDebounce            time.Duration
	CommitDebounceMaximumSkip int
}

// DefaultVirtualEngineOptions mirrors the record engine's own defaults
// (chunkSize == pageSize is set by the caller; the rest mirror §6.1's
// create/open option defaults).
func DefaultVirtualEngineOptions() VirtualEngineOptions {
	return VirtualEngineOptions{
		ChunkSize:                 4096 + 100,
		CacheLifespan:             3 * time.Minute,
		CommitDebounce:            0,
		CommitDebounceMaximumSkip: 10,
	}
}

// BackupHooks lets the owner (the root DB facade) wire the virtual engine's
// commit path through a journal without the storage package importing the
// pager package that defines Journal.
type BackupHooks struct {
	Start  func() error
	Backup func(chunkIndex uint32, preImage []byte) error
	End    func(commitErr error) error
}

// VirtualEngine is the chunk-cached, write-back layer interposed between
// the record engine and the storage Backend (§4.2). Its chunk index grid
// starts at file offset 0 — chunk 0 therefore begins with the 200-byte
// metadata header followed by the start of page 1's bytes; it is not the
// same indexing as the record engine's 1-based page numbers.
type VirtualEngine struct {
	backend Backend
	opts    VirtualEngineOptions
	locker  *Locker

	clean *Cache[[]byte]

	dirtyMu sync.Mutex
	dirty   map[int64][]byte

	size atomic.Int64 // -1 == unknown

	hooksMu sync.Mutex
	hooks   BackupHooks

	debounced       func(func())
	debounceMu      sync.Mutex
	debounceWaiters []chan error
	debounceSkips   int
}

// NewVirtualEngine wraps backend with a chunk cache and dirty map.
func NewVirtualEngine(backend Backend, opts VirtualEngineOptions) *VirtualEngine {
	if opts.ChunkSize <= 0 {
		opts = DefaultVirtualEngineOptions()
	}
	v := &VirtualEngine{
		backend: backend,
		opts:    opts,
		locker:  NewLocker(),
		clean:   NewCache[[]byte](opts.CacheLifespan),
		dirty:   make(map[int64][]byte),
	}
	v.size.Store(-1)
	if opts.CommitDebounce > 0 {
		v.debounced = debounce.New(opts.CommitDebounce)
	}
	return v
}

// SetBackupHooks installs the journal callbacks Commit invokes. Must be
// called before the first write; a zero-value BackupHooks makes Commit a
// plain flush with no crash-safety net.
func (v *VirtualEngine) SetBackupHooks(h BackupHooks) {
	v.hooksMu.Lock()
	defer v.hooksMu.Unlock()
	v.hooks = h
}

func (v *VirtualEngine) chunkSize() int64 { return int64(v.opts.ChunkSize) }

// Size returns the cached logical file size, reading it from the backend on
// first use; Append and Truncate keep the cached value current afterwards.
func (v *VirtualEngine) Size() (int64, error) {
	if s := v.size.Load(); s >= 0 {
		return s, nil
	}
	s, err := v.backend.Size()
	if err != nil {
		return 0, err
	}
	v.size.Store(s)
	return s, nil
}

func chunkKey(idx int64) string { return strconv.FormatInt(idx, 10) }

// cleanChunk fetches (and caches) the backend's committed contents for
// chunk idx, zero-padded to a full chunk if the backend is shorter.
func (v *VirtualEngine) cleanChunk(idx int64) ([]byte, error) {
	return v.clean.Get(chunkKey(idx), func() ([]byte, error) {
		backendSize, err := v.backend.Size()
		if err != nil {
			return nil, err
		}
		start := idx * v.chunkSize()
		buf := make([]byte, v.opts.ChunkSize)
		if start >= backendSize {
			return buf, nil
		}
		length := v.chunkSize()
		if start+length > backendSize {
			length = backendSize - start
		}
		data, err := v.backend.Read(start, length)
		if err != nil {
			return nil, err
		}
		copy(buf, data)
		return buf, nil
	})
}

// chunkForMutation returns a private copy of chunk idx (dirty if present,
// else clean-cached/backend), ready to be mutated in place.
func (v *VirtualEngine) chunkForMutation(idx int64) ([]byte, error) {
	v.dirtyMu.Lock()
	d, ok := v.dirty[idx]
	v.dirtyMu.Unlock()
	if ok {
		out := make([]byte, len(d))
		copy(out, d)
		return out, nil
	}
	c, err := v.cleanChunk(idx)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(c))
	copy(out, c)
	return out, nil
}

// Read returns length bytes starting at start. length < 0 reads to the
// cached end of file.
func (v *VirtualEngine) Read(start int64, length int64) ([]byte, error) {
	tok := v.locker.RLock()
	defer v.locker.RUnlock(tok)

	size, err := v.Size()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		length = size - start
	}
	if start+length > size {
		length = size - start
	}
	if length <= 0 {
		return []byte{}, nil
	}

	startChunk := start / v.chunkSize()
	endChunk := (start + length - 1) / v.chunkSize()

	buf := make([]byte, 0, (endChunk-startChunk+1)*v.chunkSize())
	for idx := startChunk; idx <= endChunk; idx++ {
		v.dirtyMu.Lock()
		d, dirty := v.dirty[idx]
		v.dirtyMu.Unlock()
		if dirty {
			buf = append(buf, d...)
			continue
		}
		c, err := v.cleanChunk(idx)
		if err != nil {
			return nil, err
		}
		buf = append(buf, c...)
	}

	sliceStart := start - startChunk*v.chunkSize()
	sliceEnd := sliceStart + length
	if sliceEnd > int64(len(buf)) {
		sliceEnd = int64(len(buf))
	}
	out := make([]byte, sliceEnd-sliceStart)
	copy(out, buf[sliceStart:sliceEnd])
	return out, nil
}

// Update overwrites data at start, clamped so the write never extends the
// file (Append must be used for that). Returns the bytes actually written.
func (v *VirtualEngine) Update(start int64, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	tok := v.locker.Lock()
	defer v.locker.Unlock(tok)

	size, err := v.Size()
	if err != nil {
		return 0, err
	}
	writable := size - start
	if writable <= 0 {
		return 0, nil
	}
	if int64(len(data)) > writable {
		data = data[:writable]
	}

	startChunk := start / v.chunkSize()
	endChunk := (start + int64(len(data)) - 1) / v.chunkSize()

	for idx := startChunk; idx <= endChunk; idx++ {
		chunkBuf, err := v.chunkForMutation(idx)
		if err != nil {
			return 0, err
		}
		chunkStart := idx * v.chunkSize()
		lo := start - chunkStart
		if lo < 0 {
			lo = 0
		}
		hi := lo + int64(len(data)) - (chunkStart - start)
		if hi > v.chunkSize() {
			hi = v.chunkSize()
		}
		// Compute the slice of `data` landing in this chunk.
		dataOffset := chunkStart + lo - start
		n := hi - lo
		if dataOffset < 0 {
			n += dataOffset
			dataOffset = 0
		}
		if n > 0 {
			copy(chunkBuf[lo:lo+n], data[dataOffset:dataOffset+n])
		}
		v.dirtyMu.Lock()
		v.dirty[idx] = chunkBuf
		v.dirtyMu.Unlock()
	}
	return len(data), nil
}

// Append extends the file with data, creating new dirty chunks as needed.
// Newly created chunks have no pre-image: commit must zero-fill the
// backend up to the new size before overwriting with real data (§9,
// "commit ordering on growth").
func (v *VirtualEngine) Append(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	tok := v.locker.Lock()
	defer v.locker.Unlock(tok)

	size, err := v.Size()
	if err != nil {
		return err
	}
	pos := size
	remaining := data
	for len(remaining) > 0 {
		idx := pos / v.chunkSize()
		offsetInChunk := pos % v.chunkSize()

		var chunkBuf []byte
		if offsetInChunk > 0 {
			chunkBuf, err = v.chunkForMutation(idx)
			if err != nil {
				return err
			}
		} else {
			chunkBuf = make([]byte, v.opts.ChunkSize)
		}

		n := copy(chunkBuf[offsetInChunk:], remaining)
		v.dirtyMu.Lock()
		v.dirty[idx] = chunkBuf
		v.dirtyMu.Unlock()

		pos += int64(n)
		remaining = remaining[n:]
	}
	v.size.Store(size + int64(len(data)))
	return nil
}

// Truncate drops dirty/clean chunks past newSize, right-trims the chunk
// straddling the new boundary, and truncates the backend.
func (v *VirtualEngine) Truncate(newSize int64) error {
	tok := v.locker.Lock()
	defer v.locker.Unlock(tok)

	maxIdx := newSize / v.chunkSize()

	v.dirtyMu.Lock()
	for idx := range v.dirty {
		if idx > maxIdx {
			delete(v.dirty, idx)
		}
	}
	if tail, ok := v.dirty[maxIdx]; ok {
		cut := int(newSize % v.chunkSize())
		trimmed := make([]byte, len(tail))
		copy(trimmed, tail)
		for i := cut; i < len(trimmed); i++ {
			trimmed[i] = 0
		}
		v.dirty[maxIdx] = trimmed
	}
	v.dirtyMu.Unlock()
	v.clean.InvalidateAll()

	if err := v.backend.Truncate(newSize); err != nil {
		return err
	}
	v.size.Store(newSize)
	return nil
}

// Commit performs a forced flush of every dirty chunk (§4.2 `commit()`).
func (v *VirtualEngine) Commit() error {
	v.hooksMu.Lock()
	hooks := v.hooks
	v.hooksMu.Unlock()

	if hooks.Start != nil {
		if err := hooks.Start(); err != nil {
			return err
		}
	}

	tok := v.locker.Lock()
	commitErr := v.commitLocked(hooks)
	v.locker.Unlock(tok)

	if hooks.End != nil {
		if err := hooks.End(commitErr); err != nil && commitErr == nil {
			commitErr = err
		}
	}
	return commitErr
}

func (v *VirtualEngine) commitLocked(hooks BackupHooks) error {
	v.dirtyMu.Lock()
	indices := make([]int64, 0, len(v.dirty))
	for idx := range v.dirty {
		indices = append(indices, idx)
	}
	v.dirtyMu.Unlock()
	sortInt64s(indices)

	min, err := v.backend.Size()
	if err != nil {
		return err
	}
	max, err := v.Size()
	if err != nil {
		return err
	}
	if max > min {
		if err := v.backend.Append(make([]byte, max-min)); err != nil {
			return err
		}
	}

	for _, idx := range indices {
		v.dirtyMu.Lock()
		chunkBuf := v.dirty[idx]
		v.dirtyMu.Unlock()

		position := idx * v.chunkSize()
		if position < min && hooks.Backup != nil {
			preImage, err := v.cleanChunk(idx)
			if err != nil {
				return err
			}
			realSize := v.chunkSize()
			if min-position < realSize {
				realSize = min - position
			}
			if err := hooks.Backup(uint32(idx), preImage[:realSize]); err != nil {
				return err
			}
		}
		if _, err := v.backend.Update(position, chunkBuf); err != nil {
			return err
		}
		v.clean.Set(chunkKey(idx), chunkBuf)
		v.dirtyMu.Lock()
		delete(v.dirty, idx)
		v.dirtyMu.Unlock()
	}
	return nil
}

// CommitWithDebounce schedules (or performs inline) a commit per the
// configured debounce policy: a single scheduled flush shared by every
// caller in the quiet window, with a vector of one-shot completions
// (§9, "Debounce with FIFO promise fan-in") and a maximum-skip escape
// that forces an immediate flush once too many calls have been coalesced.
func (v *VirtualEngine) CommitWithDebounce() error {
	if v.opts.CommitDebounce <= 0 || v.debounced == nil {
		return v.Commit()
	}

	done := make(chan error, 1)
	v.debounceMu.Lock()
	v.debounceWaiters = append(v.debounceWaiters, done)
	v.debounceSkips++
	forceNow := v.debounceSkips > v.opts.CommitDebounceMaximumSkip
	v.debounceMu.Unlock()

	flush := func() {
		v.debounceMu.Lock()
		waiters := v.debounceWaiters
		v.debounceWaiters = nil
		v.debounceSkips = 0
		v.debounceMu.Unlock()
		err := v.Commit()
		for _, w := range waiters {
			w <- err
		}
	}

	if forceNow {
		flush()
	} else {
		v.debounced(flush)
	}
	return <-done
}

// Backend exposes the underlying backend for callers (e.g. Close/Exists
// pass-through) that don't need the chunk cache.
func (v *VirtualEngine) Backend() Backend { return v.backend }

func sortInt64s(s []int64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
