package repository

import (
	"context"
	"time"

	"passgate/internal/domain/model"
)

// スキャン台帳の絞り込み条件。
type ScanEventFilter struct {
	PassID   *string
	DeviceID *string
	StaffID  *int64
	Result   *model.RedeemResult
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// 追記と検索だけ。更新・削除は持たない。
type ScanEventRepository interface {
	Append(ctx context.Context, event model.ScanEvent) error
	List(ctx context.Context, filter ScanEventFilter) ([]model.ScanEvent, error)
}
