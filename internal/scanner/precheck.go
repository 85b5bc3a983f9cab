package scanner

import (
	"context"
	"time"

	"passgate/internal/clock"
	"passgate/internal/domain/model"
	"passgate/internal/qrsign"
)

// 残りこれ以下なら再発行を促す
const ReissueThreshold = 30 * time.Second

// 端末側の判定理由
const (
	LocalReasonSignature = "local_signature"
	LocalReasonNoKey     = "local_no_key"
	LocalReasonExpired   = "local_expired"
	LocalReasonRevoked   = "local_revoked"
)

// Verdict は端末での事前判定。
// Forward が true ならバックエンドに送る。false なら Result で即表示してよい。
type Verdict struct {
	Forward bool
	Result  model.RedeemResult
	Reason  string
	PassID  string
	Payload QRPayload
}

type Prechecker struct {
	Keys        *KeyCache
	Revocations *RevocationSet
	Clock       clock.Clock
}

func NewPrechecker(keys *KeyCache, revocations *RevocationSet, clk clock.Clock) *Prechecker {
	if clk == nil {
		clk = clock.Real()
	}
	return &Prechecker{Keys: keys, Revocations: revocations, Clock: clk}
}

// Precheck は 解析 → ES256 検証 → exp → ローカル失効 の順で見る。
// 署名なしの QR は何もせずに送る。
func (p *Prechecker) Precheck(ctx context.Context, raw string) Verdict {
	payload := ParseQRPayload(raw)
	forward := Verdict{Forward: true, Payload: payload}

	if !payload.Signed {
		return forward
	}

	//1) 外側の署名
	pub, err := p.Keys.PublicKey(ctx)
	if err != nil {
		//鍵が無いなら判定できないので送る
		forward.Reason = LocalReasonNoKey
		return forward
	}
	if err := qrsign.Verify(payload.wire(), pub); err != nil {
		return Verdict{Result: model.RedeemResultInvalid, Reason: LocalReasonSignature, Payload: payload}
	}

	//署名済みなので中身は信用して読める
	claims, err := readTokenClaims(payload.Token)
	if err != nil {
		return forward
	}
	forward.PassID = claims.PassID

	//2) exp（exp == now はまだ有効）
	if claims.Exp < p.Clock.Now().Unix() {
		return Verdict{Result: model.RedeemResultExpired, Reason: LocalReasonExpired, PassID: claims.PassID, Payload: payload}
	}

	//3) ローカルの失効リスト
	if p.Revocations != nil && p.Revocations.Contains(claims.PassID) {
		return Verdict{Result: model.RedeemResultRevoked, Reason: LocalReasonRevoked, PassID: claims.PassID, Payload: payload}
	}

	return forward
}

// NeedsReissue は残りが ReissueThreshold 以下（期限切れ含む）なら true
func NeedsReissue(exp int64, now time.Time) bool {
	return time.Unix(exp, 0).Sub(now) <= ReissueThreshold
}
