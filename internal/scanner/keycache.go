package scanner

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"log/slog"
	"sync"
	"time"

	"passgate/internal/clock"
)

const defaultKeyMaxAge = time.Hour

// 公開鍵の取得元（通常は Client）
type KeyFetcher interface {
	FetchPublicKey(ctx context.Context) (*ecdsa.PublicKey, error)
}

var ErrNoPublicKey = errors.New("no public key available")

// KeyCache は QR 検証用の公開鍵を時刻付きで持つ。
// MaxAge を過ぎたら取り直すが、取れなければ古い鍵を使い続ける。
type KeyCache struct {
	Fetcher KeyFetcher
	MaxAge  time.Duration
	Clock   clock.Clock

	mu        sync.Mutex
	key       *ecdsa.PublicKey
	fetchedAt time.Time
}

func NewKeyCache(fetcher KeyFetcher, maxAge time.Duration, clk clock.Clock) *KeyCache {
	return &KeyCache{Fetcher: fetcher, MaxAge: maxAge, Clock: clk}
}

func (c *KeyCache) now() time.Time {
	if c.Clock == nil {
		return time.Now().UTC()
	}
	return c.Clock.Now()
}

func (c *KeyCache) maxAge() time.Duration {
	if c.MaxAge <= 0 {
		return defaultKeyMaxAge
	}
	return c.MaxAge
}

// PublicKey はキャッシュが新しければそれを返し、古ければ取り直す
func (c *KeyCache) PublicKey(ctx context.Context) (*ecdsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key != nil && c.now().Sub(c.fetchedAt) <= c.maxAge() {
		return c.key, nil
	}
	return c.refreshLocked(ctx)
}

// Refresh は年齢に関係なく取り直す
func (c *KeyCache) Refresh(ctx context.Context) (*ecdsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *KeyCache) refreshLocked(ctx context.Context) (*ecdsa.PublicKey, error) {
	if c.Fetcher == nil {
		if c.key != nil {
			return c.key, nil
		}
		return nil, ErrNoPublicKey
	}

	key, err := c.Fetcher.FetchPublicKey(ctx)
	if err != nil {
		//古い鍵があればそれで続ける
		if c.key != nil {
			slog.Warn("public key refresh failed, using stale key",
				slog.Time("fetched_at", c.fetchedAt),
				slog.Any("error", err))
			return c.key, nil
		}
		return nil, errors.Join(ErrNoPublicKey, err)
	}

	c.key = key
	c.fetchedAt = c.now()
	return key, nil
}

// Invalidate は次の PublicKey で必ず取り直させる（古い鍵はフォールバック用に残す）
func (c *KeyCache) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

// 最後に取得できた時刻。未取得ならゼロ値
func (c *KeyCache) FetchedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchedAt
}
