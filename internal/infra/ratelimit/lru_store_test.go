package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUStore_Incr(t *testing.T) {
	s, err := NewLRUStore(10)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	count, resetAt, err := s.Incr(context.Background(), "k", now, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, now.Add(time.Second), resetAt)

	count, resetAt2, err := s.Incr(context.Background(), "k", now.Add(500*time.Millisecond), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, resetAt, resetAt2)

	count, _, err = s.Incr(context.Background(), "k", now.Add(2*time.Second), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLRUStore_EvictsOldestKeys(t *testing.T) {
	s, err := NewLRUStore(2)
	require.NoError(t, err)
	now := time.Now()

	_, _, _ = s.Incr(context.Background(), "a", now, time.Minute)
	_, _, _ = s.Incr(context.Background(), "b", now, time.Minute)
	_, _, _ = s.Incr(context.Background(), "c", now, time.Minute)

	assert.Equal(t, 2, s.Len())

	//a は追い出されているので 1 から
	count, _, _ := s.Incr(context.Background(), "a", now, time.Minute)
	assert.Equal(t, 1, count)
}

func TestLRUStore_ConcurrentIncr(t *testing.T) {
	s, err := NewLRUStore(10)
	require.NoError(t, err)
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = s.Incr(context.Background(), "k", now, time.Minute)
		}()
	}
	wg.Wait()

	count, _, _ := s.Incr(context.Background(), "k", now, time.Minute)
	assert.Equal(t, 101, count)
}
