// Package scanner はドア側（スキャナ端末）のライブラリ。
// 端末でできる判定はすべて「早めに弾く」ためのもので、最終判断はバックエンドが行う。
package scanner

import (
	"errors"

	"passgate/internal/qrsign"
	"passgate/internal/token"

	"github.com/golang-jwt/jwt/v4"
)

// 読み取った QR の中身
type QRPayload struct {
	Token  string
	Sig    string
	Exp    int64
	Signed bool
}

// ParseQRPayload は JSON ラッパーを読む。JSON でなければ文字列そのものを署名なしトークンとする
func ParseQRPayload(raw string) QRPayload {
	p := qrsign.ParsePayload(raw)
	return QRPayload{
		Token:  p.Token,
		Sig:    p.Sig,
		Exp:    p.Exp,
		Signed: p.Signed(),
	}
}

func (p QRPayload) wire() qrsign.Payload {
	return qrsign.Payload{Token: p.Token, Sig: p.Sig, Exp: p.Exp}
}

var errNoPassID = errors.New("token has no pass_id")

// 端末では HMAC 鍵を持たないので中身だけ読む。
// ES256 の署名を確認したあとに呼ぶこと。
func readTokenClaims(tok string) (*token.Claims, error) {
	var claims token.Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return nil, err
	}
	if claims.PassID == "" {
		return nil, errNoPassID
	}
	return &claims, nil
}
