// Package storage - Locker
//
// What: The per-engine multi-reader/single-writer primitive every public
//       API method acquires before touching shared state (§5).
// How: A sync.RWMutex does the actual exclusion; a fresh google/uuid token
//      is minted per acquisition purely for tracing (log lines, deadlock
//      diagnostics) — the guarantee is exclusion, not identity, exactly as
//      spec.md's design notes (§9) call for.
// Why: Mirrors the teacher's concurrency.go idiom (atomic counters guarding
//      a worker pool) scaled down to the one primitive this engine needs.
package storage

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Locker is a non-reentrant read/write lock: many readers may hold it
// concurrently, but a writer excludes everyone else. The token returned by
// each acquisition is for tracing only; it does not grant re-entry.
type Locker struct {
	mu            sync.RWMutex
	activeReaders atomic.Int64
	writerHeld    atomic.Bool
}

// NewLocker creates an unlocked Locker.
func NewLocker() *Locker {
	return &Locker{}
}

// Token is a per-acquisition identifier used only for tracing; it carries
// no ownership semantics of its own.
type Token string

func newToken() Token {
	return Token(uuid.NewString())
}

// RLock acquires the read side of the lock and returns a token identifying
// this acquisition.
func (l *Locker) RLock() Token {
	l.mu.RLock()
	l.activeReaders.Add(1)
	return newToken()
}

// RUnlock releases a read acquisition.
func (l *Locker) RUnlock(Token) {
	l.activeReaders.Add(-1)
	l.mu.RUnlock()
}

// Lock acquires the write side of the lock, excluding all readers and any
// other writer, and returns a token identifying this acquisition.
func (l *Locker) Lock() Token {
	l.mu.Lock()
	l.writerHeld.Store(true)
	return newToken()
}

// Unlock releases a write acquisition.
func (l *Locker) Unlock(Token) {
	l.writerHeld.Store(false)
	l.mu.Unlock()
}

// WithRLock runs fn while holding the read lock, releasing it on every
// return path (including panics).
func (l *Locker) WithRLock(fn func() error) error {
	tok := l.RLock()
	defer l.RUnlock(tok)
	return fn()
}

// WithLock runs fn while holding the write lock, releasing it on every
// return path (including panics).
func (l *Locker) WithLock(fn func() error) error {
	tok := l.Lock()
	defer l.Unlock(tok)
	return fn()
}
