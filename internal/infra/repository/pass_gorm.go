package repository

import (
	"context"
	"errors"
	"time"

	"passgate/internal/domain/model"
	repo "passgate/internal/repository"

	"gorm.io/gorm"
)

type passGormRepository struct {
	db *gorm.DB
}

// DI
func NewPassGormRepository(db *gorm.DB) repo.PassRepository {
	return &passGormRepository{db: db}
}

// パスを作成
func (r *passGormRepository) Create(ctx context.Context, pass *model.Pass) error {
	if err := r.db.WithContext(ctx).Create(pass).Error; err != nil {
		return err
	}
	return nil
}

// pass_idで1件取得
func (r *passGormRepository) FindByID(ctx context.Context, passID string) (*model.Pass, error) {
	var p model.Pass
	err := r.db.WithContext(ctx).Where("id = ?", passID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// 所有パス一覧（新しい順）
func (r *passGormRepository) ListByOwner(ctx context.Context, ownerUserID int64, limit int, offset int) ([]model.Pass, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var list []model.Pass
	if err := r.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&list).Error; err != nil {
		return []model.Pass{}, err
	}
	return list, nil
}

// created かつシークレット一致のときだけ claimed にする。
// claim_token_hash を NULL にするので同じシークレットは二度と一致しない。
func (r *passGormRepository) ClaimIfCreated(ctx context.Context, cmd repo.ClaimCommand) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Pass{}).
		Where("id = ? AND status = ? AND claim_token_hash = ?", cmd.PassID, model.PassStatusCreated, cmd.ClaimTokenHash).
		Updates(map[string]interface{}{
			"status":           model.PassStatusClaimed,
			"owner_user_id":    cmd.OwnerUserID,
			"claimed_at":       cmd.ClaimedAt,
			"claim_token_hash": nil,
			"updated_at":       cmd.ClaimedAt,
		})

	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

// claimed のときだけ redeemed にする（1回の条件付きUPDATE）。
// 同時に来たスキャンはこのUPDATEで1件だけ勝つ。
func (r *passGormRepository) RedeemIfClaimed(ctx context.Context, cmd repo.RedeemCommand) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Pass{}).
		Where("id = ? AND status = ?", cmd.PassID, model.PassStatusClaimed).
		Updates(map[string]interface{}{
			"status":               model.PassStatusRedeemed,
			"redeemed_at":          cmd.RedeemedAt,
			"redeemed_by_staff_id": cmd.StaffID,
			"redeemed_device_id":   cmd.DeviceID,
			"updated_at":           cmd.RedeemedAt,
		})

	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

// created/claimed のときだけ revoked にする
func (r *passGormRepository) RevokeIfActive(ctx context.Context, passID string, reason string, revokedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Pass{}).
		Where("id = ? AND status IN ?", passID, []model.PassStatus{model.PassStatusCreated, model.PassStatusClaimed}).
		Updates(map[string]interface{}{
			"status":           model.PassStatusRevoked,
			"revoked_at":       revokedAt.UTC(),
			"revoke_reason":    reason,
			"claim_token_hash": nil,
			"updated_at":       revokedAt,
		})

	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

// 差分同期用。revoked_at >= since を (revoked_at, id) の昇順で
func (r *passGormRepository) ListRevokedSince(ctx context.Context, since time.Time, limit int) ([]model.RevocationEntry, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND revoked_at >= ?", model.PassStatusRevoked, since.UTC())
	return listRevocations(q, limit)
}

// ページの続き。(revoked_at, id) が cursor より後ろの行だけ返す
func (r *passGormRepository) ListRevokedAfter(ctx context.Context, after repo.RevocationCursor, limit int) ([]model.RevocationEntry, error) {
	at := after.RevokedAt.UTC()
	q := r.db.WithContext(ctx).
		Where("status = ? AND (revoked_at > ? OR (revoked_at = ? AND id > ?))",
			model.PassStatusRevoked, at, at, after.PassID)
	return listRevocations(q, limit)
}

func listRevocations(q *gorm.DB, limit int) ([]model.RevocationEntry, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}

	var rows []model.Pass
	if err := q.
		Select("id", "revoked_at").
		Order("revoked_at asc").
		Order("id asc").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return []model.RevocationEntry{}, err
	}

	entries := make([]model.RevocationEntry, 0, len(rows))
	for _, p := range rows {
		if p.RevokedAt == nil {
			continue
		}
		entries = append(entries, model.RevocationEntry{PassID: p.ID, RevokedAt: *p.RevokedAt})
	}
	return entries, nil
}
