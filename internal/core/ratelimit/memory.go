package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/tgfiles/tgfiles/internal/core"
)

const shardCount = 32

// MemoryStore keeps windows in process memory, split across shards so
// unrelated keys do not contend on one lock.
type MemoryStore struct {
	shards [shardCount]memoryShard
}

type memoryShard struct {
	mu      sync.Mutex
	windows map[core.WindowKey]core.RateWindow
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i].windows = make(map[core.WindowKey]core.RateWindow)
	}
	return s
}

// Backend implements Backend.
func (s *MemoryStore) Backend() string { return "memory" }

// Hit implements WindowStore.
func (s *MemoryStore) Hit(_ context.Context, key core.WindowKey, now time.Time, window time.Duration) (core.RateWindow, error) {
	shard := s.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.windows[key]
	if !ok || state.Expired(now) {
		state = core.RateWindow{Count: 1, WindowStart: now, Window: window}
	} else {
		state.Count++
	}
	shard.windows[key] = state
	return state, nil
}

// Sweep implements WindowStore. It holds each shard lock for the whole pass
// over that shard, so it never removes a window a concurrent Hit just reset.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	evicted := 0
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		for key, state := range shard.windows {
			if state.Expired(now) {
				delete(shard.windows, key)
				evicted++
			}
		}
		shard.mu.Unlock()
	}
	return evicted, nil
}

// Len returns the number of tracked windows.
func (s *MemoryStore) Len() int {
	total := 0
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		total += len(shard.windows)
		shard.mu.Unlock()
	}
	return total
}

func (s *MemoryStore) shard(key core.WindowKey) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.Route))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.Client))
	return &s.shards[h.Sum32()%shardCount]
}
