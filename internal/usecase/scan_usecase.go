package usecase

import (
	"context"
	"net/http"

	"passgate/internal/domain/model"
	repo "passgate/internal/repository"
)

// 台帳の参照（管理者向け）。集計や不正検知はしない
type ScanUsecase struct {
	events repo.ScanEventRepository
}

func NewScanUsecase(events repo.ScanEventRepository) *ScanUsecase {
	return &ScanUsecase{events: events}
}

func (u *ScanUsecase) List(ctx context.Context, f repo.ScanEventFilter) ([]model.ScanEvent, error) {
	if f.Limit < 1 || f.Limit > 200 {
		return []model.ScanEvent{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if f.Offset < 0 {
		return []model.ScanEvent{}, NewHTTPError(http.StatusBadRequest, "invalid offset")
	}
	if f.Result != nil && !f.Result.IsKnown() {
		return []model.ScanEvent{}, NewHTTPError(http.StatusBadRequest, "invalid result")
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return []model.ScanEvent{}, NewHTTPError(http.StatusBadRequest, "invalid range")
	}

	events, err := u.events.List(ctx, f)
	if err != nil {
		return []model.ScanEvent{}, dbError(err)
	}
	return events, nil
}
