package usecase

import (
	"context"
	"errors"
	"net/http"

	"passgate/internal/clock"
	"passgate/internal/domain/model"
	repo "passgate/internal/repository"
)

var (
	// claimed 以降のパスに claim しようとした
	ErrAlreadyClaimed = errors.New("already claimed")
	// 失効済み
	ErrRevoked = errors.New("revoked")
	// created 以外（expired など）で claim できない
	ErrNotClaimable = errors.New("not claimable")
	// シークレットの hash が一致しない
	ErrInvalidClaimSecret = errors.New("invalid claim secret")
	// 入場済みのパスは失効できない
	ErrAlreadyRedeemed = errors.New("already redeemed")
	// 期限切れなど、失効させる対象でない
	ErrNotRevocable = errors.New("not revocable")
	// 所有者でも発行者でもない
	ErrNotPassOwner = errors.New("not pass owner")
)

// usecaseがValidatorInterfaceに依存する約束
type PassValidator interface {
	ValidateClaimSecret(secret string) error
	ValidateRevokeReason(reason string) error
	ValidateRedeem(deviceID string) error
}

type PassUsecase struct {
	passes    repo.PassRepository
	tx        repo.TransactionManager
	validator PassValidator
	ids       IDGenerator
	clock     clock.Clock
}

func NewPassUsecase(passes repo.PassRepository, tx repo.TransactionManager, validator PassValidator, ids IDGenerator, clk clock.Clock) *PassUsecase {
	return &PassUsecase{passes: passes, tx: tx, validator: validator, ids: ids, clock: clk}
}

// POST /passes の出力。claim_secret はこの1回しか返さない
type CreatePassOutput struct {
	Pass        model.Pass `json:"pass"`
	ClaimSecret string     `json:"claim_secret"`
}

func (u *PassUsecase) Create(ctx context.Context, issuerUserID int64) (*CreatePassOutput, error) {
	if issuerUserID <= 0 {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	plain, hash, err := newSecretAndHash()
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	now := u.clock.Now()
	p := &model.Pass{
		ID:             u.ids.NewID(),
		IssuerUserID:   issuerUserID,
		ClaimTokenHash: &hash,
		Status:         model.PassStatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := u.passes.Create(ctx, p); err != nil {
		return nil, dbError(err)
	}

	return &CreatePassOutput{Pass: *p, ClaimSecret: plain}, nil
}

// Claim は created → claimed。
// 1回の条件付き UPDATE で遷移させ、0件なら読み直して理由を決める。
func (u *PassUsecase) Claim(ctx context.Context, userID int64, passID string, secret string) (*model.Pass, error) {
	if userID <= 0 {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if passID == "" {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := u.validator.ValidateClaimSecret(secret); err != nil {
		return nil, badRequest(err)
	}

	ok, err := u.passes.ClaimIfCreated(ctx, repo.ClaimCommand{
		PassID:         passID,
		ClaimTokenHash: hashSecret(secret),
		OwnerUserID:    userID,
		ClaimedAt:      u.clock.Now(),
	})
	if err != nil {
		return nil, dbError(err)
	}

	p, err := u.passes.FindByID(ctx, passID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, WrapHTTPError(http.StatusNotFound, "pass not found", repo.ErrNotFound)
	}
	if err != nil {
		return nil, dbError(err)
	}
	if ok {
		return p, nil
	}

	return nil, classifyLostClaim(p.Status)
}

func classifyLostClaim(status model.PassStatus) error {
	switch status {
	case model.PassStatusClaimed, model.PassStatusRedeemed:
		return WrapHTTPError(http.StatusConflict, "already claimed", ErrAlreadyClaimed)
	case model.PassStatusRevoked:
		return WrapHTTPError(http.StatusConflict, "revoked", ErrRevoked)
	case model.PassStatusCreated:
		//まだ created なのに UPDATE が外れた = hash 不一致
		return WrapHTTPError(http.StatusForbidden, "invalid claim secret", ErrInvalidClaimSecret)
	default:
		if status.IsTerminal() {
			return WrapHTTPError(http.StatusConflict, "pass is "+string(status), ErrNotClaimable)
		}
		return WrapHTTPError(http.StatusBadRequest, "not claimable", ErrNotClaimable)
	}
}

// Get は所有者か発行者だけ読める
func (u *PassUsecase) Get(ctx context.Context, userID int64, passID string) (*model.Pass, error) {
	if userID <= 0 {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	p, err := u.passes.FindByID(ctx, passID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, WrapHTTPError(http.StatusNotFound, "pass not found", repo.ErrNotFound)
	}
	if err != nil {
		return nil, dbError(err)
	}

	if !p.IsOwnedBy(userID) && p.IssuerUserID != userID {
		return nil, WrapHTTPError(http.StatusForbidden, "forbidden", ErrNotPassOwner)
	}
	return p, nil
}

func (u *PassUsecase) ListMine(ctx context.Context, userID int64, limit int, offset int) ([]model.Pass, error) {
	if userID <= 0 {
		return []model.Pass{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if limit < 1 || limit > 100 {
		return []model.Pass{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if offset < 0 {
		return []model.Pass{}, NewHTTPError(http.StatusBadRequest, "invalid offset")
	}

	list, err := u.passes.ListByOwner(ctx, userID, limit, offset)
	if err != nil {
		return []model.Pass{}, dbError(err)
	}
	return list, nil
}

// Revoke は created/claimed → revoked（運用者の操作）。
// 入場済みは 409 で失敗させる。失効済みならそのまま返す（revoked_at は最初の値）。
// 状態遷移と監査ログは同じトランザクションで書く。
func (u *PassUsecase) Revoke(ctx context.Context, actorUserID int64, passID string, reason string) (*model.Pass, error) {
	if actorUserID <= 0 {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if passID == "" {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := u.validator.ValidateRevokeReason(reason); err != nil {
		return nil, badRequest(err)
	}

	var out *model.Pass
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Passes().FindByID(ctx, passID)
		if errors.Is(err, repo.ErrNotFound) {
			return WrapHTTPError(http.StatusNotFound, "pass not found", repo.ErrNotFound)
		}
		if err != nil {
			return dbError(err)
		}

		//判定は条件付き UPDATE の結果で行う（before は監査用）
		now := u.clock.Now()
		ok, err := r.Passes().RevokeIfActive(ctx, passID, reason, now)
		if err != nil {
			return dbError(err)
		}

		after, err := r.Passes().FindByID(ctx, passID)
		if err != nil {
			return dbError(err)
		}

		if !ok {
			switch after.Status {
			case model.PassStatusRevoked:
				out = after
				return nil
			case model.PassStatusRedeemed:
				return WrapHTTPError(http.StatusConflict, "already redeemed", ErrAlreadyRedeemed)
			default:
				return WrapHTTPError(http.StatusConflict, "pass is "+string(after.Status), ErrNotRevocable)
			}
		}

		// 監査ログ（REVOKE_PASS）
		log, err := newAuditLog(actorUserID, model.AuditActionRevokePass, model.AuditResourcePass, passID,
			passAuditOf(before), passAuditOf(after), now)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "internal error")
		}
		if err := r.AuditLogs().Create(ctx, log); err != nil {
			return dbError(err)
		}

		out = after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
