package store

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenRevoker tracks revoked session token IDs (jti) until their tokens
// would have expired anyway.
type TokenRevoker interface {
	Revoke(jti string, ttl time.Duration) error
	IsRevoked(jti string) (bool, error)
}

// MemoryTokenRevoker keeps revoked jtis in-memory. Matches the lifetime of
// a single process; a restart clears the set.
type MemoryTokenRevoker struct {
	mu   sync.Mutex
	jtis map[string]time.Time
}

// NewMemoryTokenRevoker builds an in-memory revoker.
func NewMemoryTokenRevoker() *MemoryTokenRevoker {
	return &MemoryTokenRevoker{
		jtis: make(map[string]time.Time),
	}
}

// Revoke marks a jti as revoked until its token expires. Idempotent.
// Entries whose tokens have expired are swept out on every revocation,
// so the set stays bounded even for jtis that are never queried again.
func (r *MemoryTokenRevoker) Revoke(jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := time.Now()
	r.mu.Lock()
	for id, expiry := range r.jtis {
		if now.After(expiry) {
			delete(r.jtis, id)
		}
	}
	r.jtis[jti] = now.Add(ttl)
	r.mu.Unlock()
	return nil
}

// IsRevoked checks membership, pruning entries whose tokens have expired
// so the set stays bounded.
func (r *MemoryTokenRevoker) IsRevoked(jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expiry, ok := r.jtis[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(r.jtis, jti)
		return false, nil
	}
	return true, nil
}

// RedisTokenRevoker stores revoked jtis in Redis with TTL, so revocations
// survive a process restart.
type RedisTokenRevoker struct {
	client *redis.Client
}

// NewRedisTokenRevoker builds a Redis-backed revoker.
func NewRedisTokenRevoker(addr, password string) *RedisTokenRevoker {
	return &RedisTokenRevoker{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// Revoke marks a jti as revoked until its token expires.
func (r *RedisTokenRevoker) Revoke(jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return r.client.Set(ctx, revocationKey(jti), "1", ttl).Err()
}

// IsRevoked checks if the jti is revoked.
func (r *RedisTokenRevoker) IsRevoked(jti string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	res, err := r.client.Exists(ctx, revocationKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return res > 0, nil
}

func revocationKey(jti string) string {
	return "revoked:" + jti
}
