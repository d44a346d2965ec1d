package storage

import (
	"context"
	"errors"
	"strings"
	"sync"

	appbilling "github.com/lexdesk/backend/internal/application/billing"
)

// StubObject is a stored object held in memory
type StubObject struct {
	Data        []byte
	ContentType string
}

// StubObjectStore keeps uploads in memory.
// Use this for development and tests when no bucket is configured.
type StubObjectStore struct {
	// BaseURL prefixes public URLs.
	// Defaults to "https://storage.example.com" if not set
	BaseURL string

	mu      sync.RWMutex
	objects map[string]StubObject
}

// NewStubObjectStore creates a new StubObjectStore
func NewStubObjectStore(baseURL string) *StubObjectStore {
	if baseURL == "" {
		baseURL = "https://storage.example.com"
	}
	return &StubObjectStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]StubObject),
	}
}

// Ensure StubObjectStore implements ObjectStore
var _ appbilling.ObjectStore = (*StubObjectStore)(nil)

// Upload keeps a copy of data under key
func (s *StubObjectStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	copied := make([]byte, len(data))
	copy(copied, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = StubObject{Data: copied, ContentType: contentType}
	return nil
}

// PublicURL returns BaseURL joined with key
func (s *StubObjectStore) PublicURL(key string) string {
	return s.BaseURL + "/" + escapeKey(key)
}

// Get returns a stored object
func (s *StubObjectStore) Get(key string) (StubObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}

// Len returns the number of stored objects
func (s *StubObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
