// Package ratelimit は固定ウィンドウのレート制限。
// カウンタの置き場所は CounterStore で差し替える（既定はプロセス内）。
// 再起動で消えてよい。二重入場を防ぐのは DB の条件付き UPDATE であってここではない。
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"passgate/internal/clock"
)

// 操作ごとの設定
type Config struct {
	Window      time.Duration
	MaxRequests int
}

func (c Config) Validate() error {
	if c.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	if c.MaxRequests <= 0 {
		return errors.New("rate limit max requests must be positive")
	}
	return nil
}

// 判定結果
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// 次に許可されるまでの秒数（切り上げ、最低1）
func (d Decision) RetryAfterSeconds(now time.Time) int {
	wait := d.ResetAt.Sub(now)
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// CounterStore はキーごとのカウンタ。
// now が resetAt を過ぎていたら count=1 / resetAt=now+window で作り直し、
// そうでなければ count を +1 して返す。
type CounterStore interface {
	Incr(ctx context.Context, key string, now time.Time, window time.Duration) (count int, resetAt time.Time, err error)
}

type Limiter struct {
	store CounterStore
	clock clock.Clock
}

func New(store CounterStore, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.Real()
	}
	return &Limiter{store: store, clock: clk}
}

// Check は key を1回数えて判定する。
// ストアが落ちているときは許可する（あくまで補助の仕組み）。
func (l *Limiter) Check(ctx context.Context, key string, cfg Config) Decision {
	now := l.clock.Now()

	count, resetAt, err := l.store.Incr(ctx, key, now, cfg.Window)
	if err != nil {
		slog.Warn("rate limit store unavailable, allowing request",
			slog.String("key", key),
			slog.Any("error", err))
		return Decision{Allowed: true, Remaining: cfg.MaxRequests, ResetAt: now.Add(cfg.Window)}
	}

	remaining := cfg.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= cfg.MaxRequests,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

func (l *Limiter) Now() time.Time {
	return l.clock.Now()
}
