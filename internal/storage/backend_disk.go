package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// DiskBackend is the default Backend: a single real file on disk, guarded
// by an advisory exclusive flock. The lock is a corruption-detection net,
// not a coordination protocol — cross-process multi-writer concurrency
// remains a Non-goal; a second process opening the same path fails fast
// with ErrLocked instead of silently corrupting the file.
type DiskBackend struct {
	path string

	mu    sync.Mutex
	file  *os.File
	opens int
}

// NewDiskBackend returns a DiskBackend targeting path. Boot/Create/Open
// must still be called before it is usable.
func NewDiskBackend(path string) *DiskBackend {
	return &DiskBackend{path: path}
}

func (b *DiskBackend) Exists() (bool, error) {
	_, err := os.Stat(b.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (b *DiskBackend) Boot() error {
	return os.MkdirAll(filepath.Dir(b.path), 0o755)
}

func (b *DiskBackend) Create(initial []byte) error {
	return os.WriteFile(b.path, initial, 0o644)
}

func (b *DiskBackend) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.file != nil {
		b.opens++
		return nil
	}
	f, err := os.OpenFile(b.path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("storage: opening %s: %w", b.path, err)
	}
	if err := flockRetryEINTR(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return fmt.Errorf("%w: %s", ErrLocked, b.path)
		}
		return fmt.Errorf("storage: locking %s: %w", b.path, err)
	}
	b.file = f
	b.opens = 1
	return nil
}

func (b *DiskBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.file == nil {
		return nil
	}
	b.opens--
	if b.opens > 0 {
		return nil
	}
	unix.Flock(int(b.file.Fd()), unix.LOCK_UN)
	err := b.file.Close()
	b.file = nil
	return err
}

func (b *DiskBackend) Size() (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, err := b.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (b *DiskBackend) Read(offset int64, length int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if length < 0 {
		info, err := b.file.Stat()
		if err != nil {
			return nil, err
		}
		length = info.Size() - offset
		if length < 0 {
			length = 0
		}
	}
	buf := make([]byte, length)
	n, err := b.file.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// Update overwrites data at offset without extending the file: bytes that
// would land past the current size are silently dropped, per the spec's
// documented "silently truncated" backend contract (§9).
func (b *DiskBackend) Update(offset int64, data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, err := b.file.Stat()
	if err != nil {
		return 0, err
	}
	writable := info.Size() - offset
	if writable <= 0 {
		return 0, nil
	}
	if int64(len(data)) > writable {
		data = data[:writable]
	}
	n, err := b.file.WriteAt(data, offset)
	return n, err
}

func (b *DiskBackend) Append(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, err := b.file.Stat()
	if err != nil {
		return err
	}
	_, err = b.file.WriteAt(data, info.Size())
	return err
}

func (b *DiskBackend) Truncate(newSize int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Truncate(newSize)
}

func (b *DiskBackend) Unlink() error {
	return os.Remove(b.path)
}

func (b *DiskBackend) Reset() error {
	b.mu.Lock()
	if b.file != nil {
		unix.Flock(int(b.file.Fd()), unix.LOCK_UN)
		b.file.Close()
		b.file = nil
		b.opens = 0
	}
	b.mu.Unlock()
	if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (b *DiskBackend) Clone() Backend {
	return NewDiskBackend(b.path)
}

// flockRetryEINTR wraps unix.Flock, retrying on EINTR the way the advisory
// lock in calvinalkan-agent-task's internal/fs/lock.go does: a blocking
// syscall interrupted by a signal hasn't failed, it just needs retrying.
func flockRetryEINTR(fd int, how int) error {
	const maxEINTRRetries = 10000
	var err error
	for range maxEINTRRetries {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}
	return err
}
