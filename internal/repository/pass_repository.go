package repository

import (
	"context"
	"errors"
	"time"

	"passgate/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// redeem 成功時に書き込む値
type RedeemCommand struct {
	PassID     string
	StaffID    int64
	DeviceID   string
	RedeemedAt time.Time
}

// claim 成功時に書き込む値
type ClaimCommand struct {
	PassID         string
	ClaimTokenHash string
	OwnerUserID    int64
	ClaimedAt      time.Time
}

// 失効リストのページ位置（直前のページの最後の行）
type RevocationCursor struct {
	RevokedAt time.Time
	PassID    string
}

// パスの保存・取得と状態遷移の約束。
// 状態遷移はすべて「今の status を条件にした1回の UPDATE」。
// false は競合に負けた（0件更新）ことを表し、エラーではない。
type PassRepository interface {
	Create(ctx context.Context, pass *model.Pass) error
	FindByID(ctx context.Context, passID string) (*model.Pass, error)
	ListByOwner(ctx context.Context, ownerUserID int64, limit int, offset int) ([]model.Pass, error)

	//created かつ hash 一致のときだけ claimed にする
	ClaimIfCreated(ctx context.Context, cmd ClaimCommand) (bool, error)

	//claimed のときだけ redeemed にする
	RedeemIfClaimed(ctx context.Context, cmd RedeemCommand) (bool, error)

	//created/claimed のときだけ revoked にする
	RevokeIfActive(ctx context.Context, passID string, reason string, revokedAt time.Time) (bool, error)

	//revoked_at >= since の失効を古い順で返す
	ListRevokedSince(ctx context.Context, since time.Time, limit int) ([]model.RevocationEntry, error)

	//(revoked_at, id) が after より後ろの失効を古い順で返す
	ListRevokedAfter(ctx context.Context, after RevocationCursor, limit int) ([]model.RevocationEntry, error)
}
