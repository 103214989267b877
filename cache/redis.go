package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/velatir/sessiongate/fingerprint"
	"github.com/velatir/sessiongate/httpapi"
)

// RedisStore is the Redis-backed [Store], for shells that keep several
// renderer processes behind one session (kiosk fleets, embedded
// webviews). Freshness is enforced twice: Redis TTL for expiry under
// normal operation, and the stored capture time for clock-skewed
// writers.
type RedisStore struct {
	redis redis.UniversalClient
	key   string
	ttl   time.Duration
	now   func() time.Time
}

type redisEntry struct {
	User        *httpapi.Identity `json:"user"`
	Fingerprint string            `json:"fingerprint"`
	CapturedAt  int64             `json:"capturedAt"`
}

// NewRedisStore builds a [RedisStore] under the given key prefix.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "sg"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		redis: client,
		key:   prefix + ":resolution",
		ttl:   ttl,
		now:   time.Now,
	}
}

// Read implements [Store]. A payload that fails to decode is deleted
// and reported as a miss; a stale or foreign-fingerprint payload is a
// plain miss.
func (s *RedisStore) Read(ctx context.Context, fp fingerprint.Digest) (*Entry, error) {
	data, err := s.redis.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	var decoded redisEntry
	if err := json.Unmarshal(data, &decoded); err != nil {
		_ = s.redis.Del(ctx, s.key).Err()
		return nil, ErrMiss
	}

	storedFP, err := fingerprint.ParseDigest(decoded.Fingerprint)
	if err != nil {
		_ = s.redis.Del(ctx, s.key).Err()
		return nil, ErrMiss
	}

	capturedAt := time.UnixMilli(decoded.CapturedAt)
	if s.now().Sub(capturedAt) >= s.ttl {
		return nil, ErrMiss
	}
	if storedFP != fp {
		return nil, ErrMiss
	}

	return &Entry{
		User:        decoded.User,
		Fingerprint: storedFP,
		CapturedAt:  capturedAt,
	}, nil
}

// Write implements [Store]. SET with TTL is atomic, so concurrent
// writers resolve to last-write-wins without partial states.
func (s *RedisStore) Write(ctx context.Context, entry *Entry) error {
	capturedAt := entry.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = s.now()
	}

	data, err := json.Marshal(redisEntry{
		User:        entry.User,
		Fingerprint: entry.Fingerprint.String(),
		CapturedAt:  capturedAt.UnixMilli(),
	})
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Invalidate implements [Store].
func (s *RedisStore) Invalidate(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
