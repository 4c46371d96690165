package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeySession holds a session: garan24:session:{id} -> JSON
	KeySession = "garan24:session:%s"

	// KeyPushClaim marks a provider push being handled: garan24:push:{order}
	KeyPushClaim = "garan24:push:%s"
)

// NewRedisClient creates a client with short command timeouts.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Redis stores sessions as JSON strings with a sliding TTL.
type Redis struct {
	rdb *redis.Client
}

// NewRedis returns a session store backed by rdb.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (r *Redis) Load(ctx context.Context, id string) (*Session, error) {
	data, err := r.rdb.Get(ctx, fmt.Sprintf(KeySession, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sessionNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	s.ID = id
	return &s, nil
}

func (r *Redis) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := r.rdb.Set(ctx, fmt.Sprintf(KeySession, s.ID), data, TTL).Err(); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, fmt.Sprintf(KeySession, id)).Err()
}

// Claim sets key with SET NX and reports whether this caller won.
func (r *Redis) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming %s: %w", key, err)
	}
	return ok, nil
}

var _ Store = (*Redis)(nil)
