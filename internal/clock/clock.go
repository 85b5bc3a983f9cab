package clock

import (
	"sync"
	"time"
)

// Clock は現在時刻の取得を差し替えられるようにする。
// 本番は Real、テストは Fake を注入する。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// Real は UTC の現在時刻を返す。
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// Fake はテスト用。Advance で進める。
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(now time.Time) *Fake {
	return &Fake{now: now.UTC()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *Fake) Set(now time.Time) {
	f.mu.Lock()
	f.now = now.UTC()
	f.mu.Unlock()
}
