package session

import (
	"context"
	"sync"
	"time"
)

const shardCount = 32

type shard struct {
	mu sync.RWMutex
	m  map[int64]Session
}

// MemoryStore is a sharded map, so users never contend on one lock.
type MemoryStore struct {
	shards [shardCount]shard
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i].m = make(map[int64]Session)
	}
	return s
}

func (s *MemoryStore) shard(userID int64) *shard {
	return &s.shards[uint64(userID)%shardCount]
}

func (s *MemoryStore) Get(_ context.Context, userID int64) (Session, error) {
	sh := s.shard(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.m[userID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Upsert(_ context.Context, v Session) error {
	v.UpdatedAt = s.now()
	sh := s.shard(v.UserID)
	sh.mu.Lock()
	sh.m[v.UserID] = v
	sh.mu.Unlock()
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, userID int64) error {
	sh := s.shard(userID)
	sh.mu.Lock()
	delete(sh.m, userID)
	sh.mu.Unlock()
	return nil
}

func (s *MemoryStore) Range(ctx context.Context, fn func(Session) bool) error {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		snapshot := make([]Session, 0, len(sh.m))
		for _, v := range sh.m {
			snapshot = append(snapshot, v)
		}
		sh.mu.RUnlock()
		for _, v := range snapshot {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !fn(v) {
				return nil
			}
		}
	}
	return nil
}
