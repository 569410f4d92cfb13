package state

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-settings/layering"
)

// MemoryStore is an in-memory Store for tests and examples. It keys records
// by Ref.Identifier() and deep-copies objects on both load and save, so
// callers never share maps with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	storage map[string]any
	meta    Meta
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]memoryRecord{}, now: time.Now}
}

func (s *MemoryStore) Load(_ context.Context, ref Ref) (map[string]any, Meta, bool, error) {
	key, err := ref.Identifier()
	if err != nil {
		return nil, Meta{}, false, err
	}

	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return nil, Meta{}, false, nil
	}
	return layering.CloneMap(record.storage), cloneMeta(record.meta), true, nil
}

func (s *MemoryStore) Save(_ context.Context, ref Ref, storage map[string]any, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}
	_, etag, err := encodeStorage(storage)
	if err != nil {
		return Meta{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.records[key]; ok {
		if err := checkETag(meta.ETag, current.meta.ETag); err != nil {
			return current.meta, err
		}
	}
	saved := nextMeta(meta, etag, s.now())
	s.records[key] = memoryRecord{storage: layering.CloneMap(storage), meta: saved}
	return cloneMeta(saved), nil
}

// Len reports the number of stored plugin objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
