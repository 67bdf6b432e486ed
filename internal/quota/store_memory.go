package quota

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. Updates for one client are
// serialized by a per-client mutex; different clients proceed in parallel.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	locks   map[string]*sync.Mutex
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) Load(ctx context.Context, clientID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	rec := s.records[clientID]
	s.mu.RUnlock()
	return rec.clone(), nil
}

func (s *MemoryStore) Apply(ctx context.Context, clientID string, fn func(*Record) error) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	lock := s.clientLock(clientID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	rec := s.records[clientID].clone()
	s.mu.RUnlock()

	if err := fn(&rec); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	s.records[clientID] = rec.clone()
	s.mu.Unlock()
	return rec, nil
}

func (s *MemoryStore) clientLock(clientID string) *sync.Mutex {
	s.mu.RLock()
	lock, ok := s.locks[clientID]
	s.mu.RUnlock()
	if ok {
		return lock
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if lock, ok = s.locks[clientID]; !ok {
		lock = &sync.Mutex{}
		s.locks[clientID] = lock
	}
	return lock
}

var _ Store = (*MemoryStore)(nil)
