package memory

import (
	"context"
	"slices"
	"sync"

	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
)

// Storage keeps device storage in process memory. It is the default backend
// for development and the substitute used throughout the tests.
type Storage struct {
	mu      sync.RWMutex
	devices map[string]map[string][]byte
}

// New returns an empty Storage.
func New() *Storage {
	return &Storage{devices: make(map[string]map[string][]byte)}
}

func (s *Storage) Load(_ context.Context, deviceID, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.devices[deviceID][key]
	if !ok {
		return nil, apperrors.NotFound(key, deviceID)
	}
	return slices.Clone(v), nil
}

func (s *Storage) Store(_ context.Context, deviceID, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.devices[deviceID]
	if !ok {
		keys = make(map[string][]byte)
		s.devices[deviceID] = keys
	}
	keys[key] = slices.Clone(value)
	return nil
}

func (s *Storage) Remove(_ context.Context, deviceID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.devices[deviceID], key)
	if len(s.devices[deviceID]) == 0 {
		delete(s.devices, deviceID)
	}
	return nil
}

// Ping always succeeds.
func (s *Storage) Ping(context.Context) error { return nil }
