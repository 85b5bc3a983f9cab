package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"passgate/internal/clock"
	"passgate/internal/domain/model"
	"passgate/internal/qrsign"
	repo "passgate/internal/repository"
	"passgate/internal/token"
)

// 再分類時の reason
const (
	reasonNotFound = "not_found"
	reasonStatus   = "status:"
)

type RedeemInput struct {
	QRToken  string
	DeviceID string
	StaffID  int64
	//リクエスト受付時刻（latency の起点）。ゼロなら usecase に入った時刻
	StartedAt time.Time
}

// 入場判定の結果。業務上の失敗もここで返す（エラーにしない）
type RedeemOutput struct {
	Result     model.RedeemResult `json:"result"`
	PassID     *string            `json:"pass_id,omitempty"`
	RedeemedAt *time.Time         `json:"redeemed_at,omitempty"`
}

type RedeemUsecase struct {
	passes    repo.PassRepository
	codec     TokenCodec
	ledger    ScanRecorder
	validator PassValidator
	clock     clock.Clock
}

func NewRedeemUsecase(
	passes repo.PassRepository,
	codec TokenCodec,
	ledger ScanRecorder,
	validator PassValidator,
	clk clock.Clock,
) *RedeemUsecase {
	return &RedeemUsecase{
		passes:    passes,
		codec:     codec,
		ledger:    ledger,
		validator: validator,
		clock:     clk,
	}
}

// Redeem は次の順で判定する。順番を入れ替えないこと。
//  1. QR ペイロードを読む（JSON でなければ生トークン）
//  2. トークン検証（署名 → aud → exp）
//  3. claimed → redeemed の条件付き UPDATE
//  4. 0件なら読み直して USED / REVOKED / INVALID
//
// 分類できた結果は台帳に1件だけ追記して 200 で返す。
// DB エラーは 500（台帳には書かない）。
func (u *RedeemUsecase) Redeem(ctx context.Context, in RedeemInput) (*RedeemOutput, error) {
	start := in.StartedAt
	if start.IsZero() {
		start = u.clock.Now()
	}

	if in.StaffID <= 0 {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := u.validator.ValidateRedeem(in.DeviceID); err != nil {
		return nil, badRequest(err)
	}

	//1) ペイロード。EC 署名はスキャナ側の早期判定用なのでここでは見ない
	payload := qrsign.ParsePayload(in.QRToken)

	//2) トークン検証
	claims, err := u.codec.Verify(payload.Token)
	if err != nil {
		if errors.Is(err, token.ErrExpired) && claims != nil {
			passID := claims.PassID
			return u.decide(ctx, start, in, model.RedeemResultExpired, &passID, nil, token.ReasonExpired), nil
		}
		return u.decide(ctx, start, in, model.RedeemResultInvalid, nil, nil, token.Reason(err)), nil
	}
	passID := claims.PassID

	//3) 条件付き UPDATE（同時スキャンはここで1件だけ勝つ）
	now := u.clock.Now()
	ok, err := u.passes.RedeemIfClaimed(ctx, repo.RedeemCommand{
		PassID:     passID,
		StaffID:    in.StaffID,
		DeviceID:   in.DeviceID,
		RedeemedAt: now,
	})
	if err != nil {
		slog.Error("redeem conditional write failed",
			slog.String("pass_id", passID),
			slog.String("device_id", in.DeviceID),
			slog.Any("error", err))
		return nil, dbError(err)
	}
	if ok {
		return u.decide(ctx, start, in, model.RedeemResultValid, &passID, &now, ""), nil
	}

	//4) 負けたので読み直して分類
	p, err := u.passes.FindByID(ctx, passID)
	if errors.Is(err, repo.ErrNotFound) {
		return u.decide(ctx, start, in, model.ClassifyLostRedeem(false, ""), &passID, nil, reasonNotFound), nil
	}
	if err != nil {
		slog.Error("redeem reclassify read failed",
			slog.String("pass_id", passID),
			slog.Any("error", err))
		return nil, dbError(err)
	}

	result := model.ClassifyLostRedeem(true, p.Status)
	var redeemedAt *time.Time
	if result == model.RedeemResultUsed {
		redeemedAt = p.RedeemedAt
	}
	return u.decide(ctx, start, in, result, &passID, redeemedAt, reasonStatus+string(p.Status)), nil
}

// 台帳に追記して出力を作る（追記は待たない）
func (u *RedeemUsecase) decide(
	ctx context.Context,
	start time.Time,
	in RedeemInput,
	result model.RedeemResult,
	passID *string,
	redeemedAt *time.Time,
	reason string,
) *RedeemOutput {
	decidedAt := u.clock.Now()
	latency := decidedAt.Sub(start).Milliseconds()
	if latency < 0 {
		latency = 0
	}

	u.ledger.Record(ctx, model.ScanEvent{
		PassID:    passID,
		StaffID:   in.StaffID,
		DeviceID:  in.DeviceID,
		Result:    result,
		Reason:    reason,
		LatencyMs: latency,
		Ts:        decidedAt,
	})

	return &RedeemOutput{
		Result:     result,
		PassID:     passID,
		RedeemedAt: redeemedAt,
	}
}
