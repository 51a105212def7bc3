package store

import (
	"context"
	"sync"

	"savings-rate-service/internal/domain/ports"
	"savings-rate-service/pkg/logger"
)

type MemoryStore struct {
	values map[string]string
	mutex  sync.RWMutex
	log    *logger.Logger
}

var _ ports.KVStore = (*MemoryStore)(nil)

func NewMemoryStore(log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
		log:    log,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	value, found := s.values[key]
	return value, found, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.values[key] = value
	s.log.Debug("Store set", "backend", "memory", "key", key)
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.values, key)
	s.log.Debug("Store remove", "backend", "memory", "key", key)
	return nil
}
