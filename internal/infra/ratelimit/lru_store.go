package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

type window struct {
	count   int
	resetAt time.Time
}

// LRUStore はプロセス内のカウンタ。
// キー数の上限を超えたら古いキーから捨てる（捨てられたキーは新しいウィンドウから数え直し）。
type LRUStore struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func NewLRUStore(maxKeys int) (*LRUStore, error) {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	cache, err := lru.New(maxKeys)
	if err != nil {
		return nil, fmt.Errorf("rate limit store: %w", err)
	}
	return &LRUStore{cache: cache}, nil
}

func (s *LRUStore) Incr(ctx context.Context, key string, now time.Time, ttl time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := window{count: 1, resetAt: now.Add(ttl)}
	if v, ok := s.cache.Get(key); ok {
		cur := v.(window)
		//reset_at を過ぎていたら作り直し
		if !now.After(cur.resetAt) {
			w = window{count: cur.count + 1, resetAt: cur.resetAt}
		}
	}

	s.cache.Add(key, w)
	return w.count, w.resetAt, nil
}

// 保持しているキー数
func (s *LRUStore) Len() int {
	return s.cache.Len()
}
