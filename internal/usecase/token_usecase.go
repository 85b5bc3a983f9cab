package usecase

import (
	"context"
	"errors"
	"net/http"
	"time"

	"passgate/internal/domain/model"
	repo "passgate/internal/repository"
)

const defaultTokenTTL = 300 * time.Second

type TokenUsecase struct {
	passes repo.PassRepository
	codec  TokenCodec
	qr     QRWrapper
	ttl    time.Duration
}

func NewTokenUsecase(passes repo.PassRepository, codec TokenCodec, qr QRWrapper, ttl time.Duration) *TokenUsecase {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenUsecase{passes: passes, codec: codec, qr: qr, ttl: ttl}
}

// issue-token の出力。qr_token は {token, sig, exp} の JSON 文字列
type IssueTokenOutput struct {
	QRToken string `json:"qr_token"`
	Exp     int64  `json:"exp"`
}

// Issue は所有者に短命の入場トークンを渡す。claimed のパスだけ。
func (u *TokenUsecase) Issue(ctx context.Context, userID int64, passID string) (*IssueTokenOutput, error) {
	if userID <= 0 {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if passID == "" {
		return nil, NewHTTPError(http.StatusBadRequest, "pass_id is required")
	}

	p, err := u.passes.FindByID(ctx, passID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, WrapHTTPError(http.StatusNotFound, "pass not found", repo.ErrNotFound)
	}
	if err != nil {
		return nil, dbError(err)
	}

	if !p.IsOwnedBy(userID) {
		return nil, WrapHTTPError(http.StatusForbidden, "not pass owner", ErrNotPassOwner)
	}
	if p.Status != model.PassStatusClaimed {
		return nil, NewHTTPError(http.StatusBadRequest, "pass is not claimed")
	}

	signed, err := u.codec.Sign(p.ID, int64(u.ttl/time.Second))
	if err != nil {
		return nil, WrapHTTPError(http.StatusInternalServerError, "internal error", err)
	}

	qr, err := u.qr.Wrap(signed)
	if err != nil {
		return nil, WrapHTTPError(http.StatusInternalServerError, "internal error", err)
	}

	return &IssueTokenOutput{QRToken: qr, Exp: signed.Exp}, nil
}
