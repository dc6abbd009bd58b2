package storage

import "sync"

// MemoryBackend is an in-memory Backend implementation: a growable byte
// slice guarded by a mutex. Used for ephemeral databases and tests. There
// is no ecosystem dependency to exercise here — it is a slice wrapped in a
// lock, nothing more.
type MemoryBackend struct {
	mu     sync.Mutex
	data   []byte
	booted bool
	opened bool
}

// NewMemoryBackend returns an empty, unbooted MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Exists() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data != nil, nil
}

func (b *MemoryBackend) Boot() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.booted = true
	return nil
}

func (b *MemoryBackend) Create(initial []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append([]byte(nil), initial...)
	return nil
}

func (b *MemoryBackend) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = true
	return nil
}

func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = false
	return nil
}

func (b *MemoryBackend) Size() (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.data)), nil
}

func (b *MemoryBackend) Read(offset int64, length int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if length < 0 {
		length = int64(len(b.data)) - offset
	}
	if offset < 0 || offset > int64(len(b.data)) {
		return nil, nil
	}
	end := offset + length
	if end > int64(len(b.data)) {
		end = int64(len(b.data))
	}
	out := make([]byte, end-offset)
	copy(out, b.data[offset:end])
	return out, nil
}

// Update overwrites data at offset, clamping to the current size so the
// backend is never extended by this call (the "silently truncated"
// contract, §9).
func (b *MemoryBackend) Update(offset int64, data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writable := int64(len(b.data)) - offset
	if writable <= 0 {
		return 0, nil
	}
	if int64(len(data)) > writable {
		data = data[:writable]
	}
	copy(b.data[offset:], data)
	return len(data), nil
}

func (b *MemoryBackend) Append(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, data...)
	return nil
}

func (b *MemoryBackend) Truncate(newSize int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if newSize < int64(len(b.data)) {
		b.data = b.data[:newSize]
	}
	return nil
}

func (b *MemoryBackend) Unlink() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = nil
	return nil
}

func (b *MemoryBackend) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = nil
	b.booted = false
	b.opened = false
	return nil
}

func (b *MemoryBackend) Clone() Backend {
	return NewMemoryBackend()
}
