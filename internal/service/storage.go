package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/windfall/engapp_service/internal/assessment"
)

// AudioStore persists recordings and returns a URL for them.
// CloudflareClient (R2) and StorageClient (GCS) satisfy it.
type AudioStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// AudioKey is the object key of a phase recording.
func AudioKey(sessionID string, phase assessment.Phase, attempt int) string {
	return fmt.Sprintf("assessments/%s/%s/attempt-%d.wav", sessionID, phase, attempt)
}

// InMemoryAudioStore keeps recordings in process. Used for local development.
type InMemoryAudioStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
}

// NewInMemoryAudioStore creates a store whose URLs start with baseURL.
func NewInMemoryAudioStore(baseURL string) *InMemoryAudioStore {
	if baseURL == "" {
		baseURL = "memory://audio"
	}
	return &InMemoryAudioStore{
		baseURL: baseURL,
		objects: make(map[string][]byte),
	}
}

// Upload implements AudioStore.
func (s *InMemoryAudioStore) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = append([]byte(nil), data...)
	return s.baseURL + "/" + key, nil
}

// Get returns a stored object.
func (s *InMemoryAudioStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[key]
	return data, ok
}
