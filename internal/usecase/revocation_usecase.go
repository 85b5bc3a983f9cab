package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"passgate/internal/clock"
	"passgate/internal/domain/model"
	repo "passgate/internal/repository"
)

const revocationPageSize = 1000

var ErrInvalidCursor = errors.New("invalid cursor")

type RevocationUsecase struct {
	passes  repo.PassRepository
	clock   clock.Clock
	overlap time.Duration
}

func NewRevocationUsecase(passes repo.PassRepository, clk clock.Clock, overlap time.Duration) *RevocationUsecase {
	if overlap < 0 {
		overlap = 0
	}
	return &RevocationUsecase{passes: passes, clock: clk, overlap: overlap}
}

// GET /revocations の出力。
// has_more のときは next_cursor で続きを取る。synced_at は最後のページのものだけを次の since に使う。
type RevocationSyncOutput struct {
	Revoked    []model.RevocationEntry `json:"revoked"`
	SyncedAt   time.Time               `json:"synced_at"`
	HasMore    bool                    `json:"has_more"`
	NextCursor string                  `json:"next_cursor,omitempty"`
}

// Sync は since 以降の失効を返す。since が nil なら全件。
// 前回の同期とすれ違った commit を拾うため since から overlap だけ戻して検索する。
// cursor があるときはページの続きなので since も overlap も使わない。
// 重複はクライアント側の和集合マージで吸収される。
func (u *RevocationUsecase) Sync(ctx context.Context, since *time.Time, cursor string) (*RevocationSyncOutput, error) {
	//検索より先に取る（検索中の commit は次回拾う）
	syncedAt := u.clock.Now()

	var (
		entries []model.RevocationEntry
		err     error
	)
	if cursor != "" {
		after, derr := decodeRevocationCursor(cursor)
		if derr != nil {
			return nil, WrapHTTPError(http.StatusBadRequest, "invalid cursor", derr)
		}
		entries, err = u.passes.ListRevokedAfter(ctx, after, revocationPageSize)
	} else {
		var from time.Time
		if since != nil {
			from = since.UTC().Add(-u.overlap)
		}
		entries, err = u.passes.ListRevokedSince(ctx, from, revocationPageSize)
	}
	if err != nil {
		return nil, dbError(err)
	}

	out := &RevocationSyncOutput{Revoked: entries, SyncedAt: syncedAt}
	if len(entries) >= revocationPageSize {
		last := entries[len(entries)-1]
		out.HasMore = true
		out.NextCursor = encodeRevocationCursor(repo.RevocationCursor{RevokedAt: last.RevokedAt, PassID: last.PassID})
	}
	return out, nil
}

// "<unix nano>:<pass_id>" を base64url に
func encodeRevocationCursor(c repo.RevocationCursor) string {
	raw := strconv.FormatInt(c.RevokedAt.UnixNano(), 10) + ":" + c.PassID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeRevocationCursor(s string) (repo.RevocationCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return repo.RevocationCursor{}, ErrInvalidCursor
	}
	nanos, passID, ok := strings.Cut(string(raw), ":")
	if !ok || passID == "" {
		return repo.RevocationCursor{}, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return repo.RevocationCursor{}, ErrInvalidCursor
	}
	return repo.RevocationCursor{RevokedAt: time.Unix(0, n).UTC(), PassID: passID}, nil
}
