package memory

import (
	"context"
	"fmt"
	"sync"

	"kycflow/internal/blob"
)

// InMemoryStore keeps blobs in a map. The ref is the key.
type InMemoryStore struct {
	mu      sync.RWMutex
	objects map[string]blob.Object
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{objects: make(map[string]blob.Object)}
}

func (s *InMemoryStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = blob.Object{Ref: key, ContentType: contentType, Data: cp}
	return key, nil
}

func (s *InMemoryStore) Get(_ context.Context, ref string) (*blob.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[ref]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, blob.ErrNotFound)
	}
	data := make([]byte, len(obj.Data))
	copy(data, obj.Data)
	obj.Data = data
	return &obj, nil
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
