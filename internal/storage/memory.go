package storage

import (
	"context"
	"sync"
	"time"
)

// InMemoryBlobStore keeps the initial implementation lightweight and
// testable. It intentionally favors clarity over performance.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string]Blob)}
}

func (s *InMemoryBlobStore) Put(_ context.Context, key, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.blobs[key] = Blob{
		Key:         key,
		ContentType: contentType,
		Data:        stored,
		Size:        int64(len(stored)),
		UploadedAt:  time.Now(),
	}
	return nil
}

func (s *InMemoryBlobStore) Get(_ context.Context, key string) (Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if blob, ok := s.blobs[key]; ok {
		return blob, nil
	}
	return Blob{}, ErrNotFound
}

func (s *InMemoryBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, key)
	return nil
}
