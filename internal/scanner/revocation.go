package scanner

import (
	"context"
	"sync"
	"time"

	"passgate/internal/domain/model"
)

// /revocations の応答
type RevocationDelta struct {
	Revoked    []model.RevocationEntry `json:"revoked"`
	SyncedAt   time.Time               `json:"synced_at"`
	HasMore    bool                    `json:"has_more"`
	NextCursor string                  `json:"next_cursor,omitempty"`
}

// cursor が空でなければ since は無視される
type RevocationFetcher interface {
	FetchRevocations(ctx context.Context, since *time.Time, cursor string) (*RevocationDelta, error)
}

// 1回の Sync で追うページ数の上限
const maxSyncPages = 100

// RevocationSet は端末ローカルの失効済み pass_id 集合。
// マージは和集合なので、同じ差分を何度取り込んでも結果は変わらない。
type RevocationSet struct {
	mu       sync.RWMutex
	ids      map[string]time.Time
	syncedAt *time.Time
	//ページ送りの途中なら続きの位置
	cursor string
}

func NewRevocationSet() *RevocationSet {
	return &RevocationSet{ids: make(map[string]time.Time)}
}

// Merge は entries を取り込み、新しく増えた件数を返す
func (s *RevocationSet) Merge(entries []model.RevocationEntry) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, e := range entries {
		if e.PassID == "" {
			continue
		}
		prev, ok := s.ids[e.PassID]
		if !ok {
			added++
		}
		//どの順で届いても最初の revoked_at を残す
		if !ok || e.RevokedAt.Before(prev) {
			s.ids[e.PassID] = e.RevokedAt
		}
	}
	return added
}

func (s *RevocationSet) Contains(passID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[passID]
	return ok
}

func (s *RevocationSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// 最後に同期したサーバー時刻。未同期なら nil
func (s *RevocationSet) SyncedAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.syncedAt == nil {
		return nil
	}
	t := *s.syncedAt
	return &t
}

// Sync は前回の synced_at 以降の差分を取り込む。has_more の間は next_cursor でページを追う。
// synced_at は最後のページまで取り切ったときだけ進める。途中で失敗したら次回は続きから。
// 取り込んだ新規件数を返す。
func (s *RevocationSet) Sync(ctx context.Context, fetcher RevocationFetcher) (int, error) {
	added := 0
	for page := 0; page < maxSyncPages; page++ {
		since, cursor := s.position()
		delta, err := fetcher.FetchRevocations(ctx, since, cursor)
		if err != nil {
			return added, err
		}

		added += s.Merge(delta.Revoked)

		if !s.advance(delta) {
			break
		}
	}
	return added, nil
}

func (s *RevocationSet) position() (*time.Time, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.syncedAt == nil {
		return nil, s.cursor
	}
	t := *s.syncedAt
	return &t, s.cursor
}

// advance は同期位置を進め、続きのページがあれば true を返す
func (s *RevocationSet) advance(delta *RevocationDelta) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if delta.HasMore && delta.NextCursor != "" {
		s.cursor = delta.NextCursor
		return true
	}

	//cursor を返さないサーバーでは同じページを取り直すだけなので、ここで止める
	s.cursor = ""
	synced := delta.SyncedAt
	s.syncedAt = &synced
	return false
}
