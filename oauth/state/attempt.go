package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Attempt is the server side half of an in-flight authorization.
type Attempt struct {
	State        string    `json:"state"`
	Provider     string    `json:"provider"`
	UserID       string    `json:"user_id"`
	RedirectURI  string    `json:"redirect_uri"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AttemptStore keeps attempts until their callback arrives. Take is single use.
type AttemptStore interface {
	Save(ctx context.Context, a Attempt, ttl time.Duration) error
	// Take returns and removes the attempt, or ErrStateExpired.
	Take(ctx context.Context, state string) (*Attempt, error)
}

var (
	_ AttemptStore = &RedisAttemptStore{}
	_ AttemptStore = &MemoryAttemptStore{}
)

// redisCmdable is the subset of redis.Cmdable the store needs.
type redisCmdable interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

// RedisAttemptStore stores attempts as JSON values with a TTL.
type RedisAttemptStore struct {
	redis  redisCmdable
	prefix string
}

// NewRedisAttemptStore accepts any redis.Cmdable (client, cluster or ring).
func NewRedisAttemptStore(cmdable redisCmdable) *RedisAttemptStore {
	return &RedisAttemptStore{redis: cmdable, prefix: "oauth:attempt:"}
}

func (s *RedisAttemptStore) key(state string) string {
	return s.prefix + state
}

func (s *RedisAttemptStore) Save(ctx context.Context, a Attempt, ttl time.Duration) error {
	if a.State == "" {
		return errors.New("attempt: missing state")
	}
	if ttl <= 0 {
		return errors.New("attempt: ttl must be positive")
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("attempt: marshal: %w", err)
	}
	return s.redis.Set(ctx, s.key(a.State), data, ttl).Err()
}

func (s *RedisAttemptStore) Take(ctx context.Context, state string) (*Attempt, error) {
	if state == "" {
		return nil, ErrStateExpired
	}
	val, err := s.redis.GetDel(ctx, s.key(state)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateExpired
	}
	if err != nil {
		return nil, fmt.Errorf("attempt: getdel: %w", err)
	}
	var a Attempt
	if err := json.Unmarshal([]byte(val), &a); err != nil {
		return nil, fmt.Errorf("attempt: unmarshal: %w", err)
	}
	return &a, nil
}

type memoryAttempt struct {
	attempt   Attempt
	expiresAt time.Time
}

// MemoryAttemptStore is the single process fallback used when Redis is not configured.
type MemoryAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]memoryAttempt
	now      func() time.Time
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{
		attempts: make(map[string]memoryAttempt),
		now:      time.Now,
	}
}

func (s *MemoryAttemptStore) Save(_ context.Context, a Attempt, ttl time.Duration) error {
	if a.State == "" {
		return errors.New("attempt: missing state")
	}
	if ttl <= 0 {
		return errors.New("attempt: ttl must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, v := range s.attempts {
		if now.After(v.expiresAt) {
			delete(s.attempts, k)
		}
	}
	s.attempts[a.State] = memoryAttempt{attempt: a, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryAttemptStore) Take(_ context.Context, state string) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attempts[state]
	if !ok {
		return nil, ErrStateExpired
	}
	delete(s.attempts, state)
	if s.now().After(v.expiresAt) {
		return nil, ErrStateExpired
	}
	a := v.attempt
	return &a, nil
}
