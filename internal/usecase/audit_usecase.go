package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"passgate/internal/domain/model"
	repo "passgate/internal/repository"
)

// 監査ログの参照（管理者向け）
type AuditUsecase struct {
	logs repo.AuditLogRepository
}

func NewAuditUsecase(logs repo.AuditLogRepository) *AuditUsecase {
	return &AuditUsecase{logs: logs}
}

func (u *AuditUsecase) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	if f.Limit < 1 || f.Limit > 200 {
		return []model.AuditLog{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if f.Offset < 0 {
		return []model.AuditLog{}, NewHTTPError(http.StatusBadRequest, "invalid offset")
	}
	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedTo.Before(*f.CreatedFrom) {
		return []model.AuditLog{}, NewHTTPError(http.StatusBadRequest, "invalid range")
	}

	logs, err := u.logs.List(ctx, f)
	if err != nil {
		return []model.AuditLog{}, dbError(err)
	}
	return logs, nil
}

// 監査ログに残すパスの状態
type passAudit struct {
	Status       model.PassStatus `json:"status"`
	RevokedAt    *time.Time       `json:"revoked_at,omitempty"`
	RevokeReason string           `json:"revoke_reason,omitempty"`
}

func passAuditOf(p *model.Pass) passAudit {
	return passAudit{Status: p.Status, RevokedAt: p.RevokedAt, RevokeReason: p.RevokeReason}
}

// 監査ログに残すユーザーの状態
type userAudit struct {
	Role         model.Role `json:"role"`
	TokenVersion int        `json:"token_version"`
}

func userAuditOf(u *model.User) userAudit {
	return userAudit{Role: u.Role, TokenVersion: u.TokenVersion}
}

func newAuditLog(
	actorUserID int64,
	action model.AuditAction,
	resourceType model.AuditResourceType,
	resourceID string,
	before, after interface{},
	now time.Time,
) (model.AuditLog, error) {
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return model.AuditLog{}, err
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return model.AuditLog{}, err
	}

	return model.AuditLog{
		ActorUserID:  actorUserID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		BeforeJSON:   string(beforeJSON),
		AfterJSON:    string(afterJSON),
		CreatedAt:    now,
	}, nil
}
