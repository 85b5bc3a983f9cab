package repository

import (
	"context"

	"passgate/internal/domain/model"
	repo "passgate/internal/repository"

	"gorm.io/gorm"
)

type scanEventGormRepository struct {
	db *gorm.DB
}

func NewScanEventGormRepository(db *gorm.DB) repo.ScanEventRepository {
	return &scanEventGormRepository{db: db}
}

// 1件追記。INSERT だけ
func (r *scanEventGormRepository) Append(ctx context.Context, event model.ScanEvent) error {
	if err := r.db.WithContext(ctx).Create(&event).Error; err != nil {
		return err
	}
	return nil
}

func (r *scanEventGormRepository) List(ctx context.Context, filter repo.ScanEventFilter) ([]model.ScanEvent, error) {
	q := r.db.WithContext(ctx).Model(&model.ScanEvent{})

	if filter.PassID != nil {
		q = q.Where("pass_id = ?", *filter.PassID)
	}
	if filter.DeviceID != nil {
		q = q.Where("device_id = ?", *filter.DeviceID)
	}
	if filter.StaffID != nil {
		q = q.Where("staff_id = ?", *filter.StaffID)
	}
	if filter.Result != nil {
		q = q.Where("result = ?", *filter.Result)
	}
	if filter.From != nil {
		q = q.Where("ts >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("ts <= ?", *filter.To)
	}

	//新しい順
	q = q.Order("ts DESC").Order("id DESC")

	// limit/offset
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	q = q.Limit(limit).Offset(filter.Offset)

	var events []model.ScanEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
