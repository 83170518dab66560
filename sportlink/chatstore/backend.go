package chatstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Storage namespace names. SessionsIndexKey is reserved and holds no data.
const (
	StorageKey       = "sportlink_chats"
	SessionsIndexKey = "sportlink_chat_sessions"
)

var (
	ErrNotFound           = errors.New("chat record not found")
	ErrVersionConflict    = errors.New("chat record version conflict")
	ErrQuotaExceeded      = errors.New("chat storage quota exceeded")
	ErrCorruptThread      = errors.New("chat record is corrupt")
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrWriteDropped       = errors.New("chat write dropped: storage quota exceeded")
)

// Record is one serialized thread as held by a Backend.
type Record struct {
	Key       string
	Data      []byte
	Version   int64
	UpdatedAt time.Time
}

// Backend is a keyed table of thread records.
//
// Put with expectedVersion 0 creates the record and fails with ErrVersionConflict
// if it already exists; any other value must equal the stored version. Put
// returns the new version.
type Backend interface {
	Get(ctx context.Context, key string) (Record, error)
	Put(ctx context.Context, rec Record, expectedVersion int64) (int64, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context) ([]Record, error)
	Size(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}

// MemoryBackend keeps records in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]Record
	size    int64
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]Record)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) (Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (b *MemoryBackend) Put(_ context.Context, rec Record, expectedVersion int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	current, exists := b.records[rec.Key]
	switch {
	case expectedVersion == 0 && exists:
		return 0, ErrVersionConflict
	case expectedVersion != 0 && (!exists || current.Version != expectedVersion):
		return 0, ErrVersionConflict
	}
	rec = cloneRecord(rec)
	rec.Version = expectedVersion + 1
	b.size += int64(len(rec.Data)) - int64(len(current.Data))
	b.records[rec.Key] = rec
	return rec.Version, nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[key]
	if !ok {
		return false, nil
	}
	b.size -= int64(len(rec.Data))
	delete(b.records, key)
	return true, nil
}

func (b *MemoryBackend) List(_ context.Context) ([]Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Record, 0, len(b.records))
	for _, rec := range b.records {
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (b *MemoryBackend) Size(_ context.Context) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size, nil
}

func (b *MemoryBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = make(map[string]Record)
	b.size = 0
	return nil
}

func cloneRecord(rec Record) Record {
	rec.Data = append([]byte(nil), rec.Data...)
	return rec
}
