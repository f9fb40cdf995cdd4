package oclient

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Store = &MemoryStore{}

// MemoryStore keeps credentials in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]StoredCredential
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credentials: make(map[string]StoredCredential),
		now:         time.Now,
	}
}

func credentialKey(userID, provider string) string {
	return userID + "\x00" + provider
}

func (s *MemoryStore) Get(_ context.Context, userID, provider string) (*StoredCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[credentialKey(userID, provider)]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) Put(_ context.Context, c StoredCredential) (*StoredCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := credentialKey(c.UserID, c.Provider)
	now := s.now().UTC()
	if cur, ok := s.credentials[key]; ok {
		c.ID = cur.ID
		c.CreatedAt = cur.CreatedAt
		c.Version = cur.Version + 1
	} else {
		c.ID = uuid.NewString()
		c.CreatedAt = now
		c.Version = 1
	}
	c.UpdatedAt = now
	s.credentials[key] = c
	return &c, nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, c StoredCredential) (*StoredCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := credentialKey(c.UserID, c.Provider)
	cur, ok := s.credentials[key]
	if !ok || cur.Version != c.Version {
		return nil, ErrVersionConflict
	}
	c.ID = cur.ID
	c.CreatedAt = cur.CreatedAt
	c.Version = cur.Version + 1
	c.UpdatedAt = s.now().UTC()
	s.credentials[key] = c
	return &c, nil
}

func (s *MemoryStore) Delete(_ context.Context, userID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.credentials, credentialKey(userID, provider))
	return nil
}

func (s *MemoryStore) CompareAndDelete(_ context.Context, userID, provider string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := credentialKey(userID, provider)
	cur, ok := s.credentials[key]
	if !ok || cur.Version != version {
		return ErrVersionConflict
	}
	delete(s.credentials, key)
	return nil
}

func (s *MemoryStore) ListProviders(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, c := range s.credentials {
		if c.UserID == userID {
			out = append(out, c.Provider)
		}
	}
	slices.Sort(out)
	return out, nil
}
