package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "bannerizer:state:"

func keyState(user int64) string { return keyPrefix + strconv.FormatInt(user, 10) }

// RedisStore keeps sessions across bot restarts. The TTL is refreshed on
// every write; banner files of expired sessions are left to the temp sweeper.
type RedisStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, userID int64) (Session, error) {
	raw, err := s.rdb.Get(ctx, keyState(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session %d: %w", userID, err)
	}
	var v Session
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return Session{}, fmt.Errorf("decode session %d: %w", userID, err)
	}
	return v, nil
}

func (s *RedisStore) Upsert(ctx context.Context, v Session) error {
	v.UpdatedAt = time.Now()
	b, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keyState(v.UserID), b, s.ttl).Err()
}

func (s *RedisStore) Remove(ctx context.Context, userID int64) error {
	return s.rdb.Del(ctx, keyState(userID)).Err()
}

func (s *RedisStore) Range(ctx context.Context, fn func(Session) bool) error {
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id, err := strconv.ParseInt(strings.TrimPrefix(iter.Val(), keyPrefix), 10, 64)
		if err != nil {
			continue
		}
		v, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if !fn(v) {
			return nil
		}
	}
	return iter.Err()
}
