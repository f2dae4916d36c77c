package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when a session ID is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

// Repository stores server-side sessions by ID.
type Repository interface {
	Load(ctx context.Context, id string) (Credentials, error)
	Save(ctx context.Context, id string, creds Credentials, ttl time.Duration) error
	// Update replaces the credentials of an existing session and keeps its expiry.
	Update(ctx context.Context, id string, creds Credentials) error
	Delete(ctx context.Context, id string) error
}

const (
	fieldAccessToken  = "access_token"
	fieldRefreshToken = "refresh_token"
)

// RedisRepository keeps each session in a Redis hash under "<prefix>:<id>".
type RedisRepository struct {
	rdb    redis.UniversalClient
	prefix string
}

// Compile-time check to ensure RedisRepository implements Repository
var _ Repository = (*RedisRepository)(nil)

// NewRedisRepository creates a RedisRepository. An empty prefix defaults to "session".
func NewRedisRepository(rdb redis.UniversalClient, prefix string) (*RedisRepository, error) {
	if rdb == nil {
		return nil, fmt.Errorf("missing redis client")
	}
	if prefix == "" {
		prefix = "session"
	}
	return &RedisRepository{rdb: rdb, prefix: prefix}, nil
}

func (r *RedisRepository) key(id string) string {
	return r.prefix + ":" + id
}

// Load implements Repository.
func (r *RedisRepository) Load(ctx context.Context, id string) (Credentials, error) {
	fields, err := r.rdb.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return Credentials{}, fmt.Errorf("loading session: %w", err)
	}
	// HGETALL on a missing key yields an empty map, not redis.Nil
	if len(fields) == 0 {
		return Credentials{}, ErrSessionNotFound
	}

	return Credentials{
		AccessToken:  fields[fieldAccessToken],
		RefreshToken: fields[fieldRefreshToken],
	}, nil
}

// Save implements Repository. A zero ttl keeps the session until deleted.
func (r *RedisRepository) Save(ctx context.Context, id string, creds Credentials, ttl time.Duration) error {
	key := r.key(id)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldAccessToken, creds.AccessToken, fieldRefreshToken, creds.RefreshToken)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		} else {
			pipe.Persist(ctx, key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Update implements Repository. HSET leaves the key's TTL untouched.
func (r *RedisRepository) Update(ctx context.Context, id string, creds Credentials) error {
	key := r.key(id)
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		// Writing to an expired key would recreate it without a TTL
		if n == 0 {
			return ErrSessionNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldAccessToken, creds.AccessToken, fieldRefreshToken, creds.RefreshToken)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSessionNotFound):
		return err
	default:
		return fmt.Errorf("updating session: %w", err)
	}
}

// Delete implements Repository.
func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

type memoryEntry struct {
	creds     Credentials
	expiresAt time.Time
}

// MemoryRepository is an in-process Repository for single-instance deployments and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

// Compile-time check to ensure MemoryRepository implements Repository
var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

// Load implements Repository.
func (m *MemoryRepository) Load(ctx context.Context, id string) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	m.mu.RLock()
	entry, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok || (!entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt)) {
		return Credentials{}, ErrSessionNotFound
	}
	return entry.creds, nil
}

// Save implements Repository.
func (m *MemoryRepository) Save(ctx context.Context, id string, creds Credentials, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entry := memoryEntry{creds: creds}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.sessions[id] = entry
	m.mu.Unlock()
	return nil
}

// Update implements Repository.
func (m *MemoryRepository) Update(ctx context.Context, id string, creds Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[id]
	if !ok || (!entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt)) {
		return ErrSessionNotFound
	}
	entry.creds = creds
	m.sessions[id] = entry
	return nil
}

// Delete implements Repository.
func (m *MemoryRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}
