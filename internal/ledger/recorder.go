// Package ledger はスキャン台帳への追記。
// 追記は非同期で、失敗しても入場判定の結果は変えない。
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"passgate/internal/domain/model"
	"passgate/internal/repository"

	"github.com/google/uuid"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultMaxInFlight  = 256
)

type Recorder struct {
	repo    repository.ScanEventRepository
	timeout time.Duration
	wg      sync.WaitGroup

	//書き込み中の追記数の上限。埋まっていたら捨てる
	slots   chan struct{}
	dropped atomic.Int64
}

func NewRecorder(repo repository.ScanEventRepository, writeTimeout time.Duration, maxInFlight int) *Recorder {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	return &Recorder{repo: repo, timeout: writeTimeout, slots: make(chan struct{}, maxInFlight)}
}

// Record は1件を非同期で追記する（待たない）。
// リクエストがキャンセルされても書き込みは続ける。
// 書き込み中が上限に達していたら（ストレージ障害など）その1件は捨ててログに残す。
func (r *Recorder) Record(ctx context.Context, event model.ScanEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	select {
	case r.slots <- struct{}{}:
	default:
		r.dropped.Add(1)
		slog.Error("scan ledger backlog full, event dropped",
			slog.String("scan_id", event.ID),
			slog.String("pass_id", derefString(event.PassID)),
			slog.String("result", string(event.Result)),
			slog.String("device_id", event.DeviceID),
			slog.Int("in_flight", cap(r.slots)))
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { <-r.slots }()

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		if err := r.repo.Append(writeCtx, event); err != nil {
			slog.Error("scan ledger append failed",
				slog.String("scan_id", event.ID),
				slog.String("result", string(event.Result)),
				slog.String("device_id", event.DeviceID),
				slog.Any("error", err))
			return
		}

		slog.Info("scan recorded",
			slog.String("scan_id", event.ID),
			slog.String("pass_id", derefString(event.PassID)),
			slog.String("result", string(event.Result)),
			slog.String("reason", event.Reason),
			slog.Int64("staff_id", event.StaffID),
			slog.String("device_id", event.DeviceID),
			slog.Int64("latency_ms", event.LatencyMs))
	}()
}

// 上限超過で捨てた件数
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close は書き込み中の追記を待つ。ctx が先に終わったらそのエラーを返す
func (r *Recorder) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
