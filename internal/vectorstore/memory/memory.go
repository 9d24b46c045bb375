package memory

import (
	"errors"
	"sync"

	"wordmap/internal/vectorstore"
)

// Storage keeps the last saved index in process memory.
type Storage struct {
	mu    sync.RWMutex
	index *vectorstore.Index
	saves int
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index != nil
}

func (s *Storage) Load() (*vectorstore.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return nil, errors.New("no index saved")
	}
	return s.index, nil
}

func (s *Storage) Save(idx *vectorstore.Index) error {
	if idx == nil || idx.Dim() <= 0 {
		return errors.New("invalid index")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = idx
	s.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (s *Storage) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
