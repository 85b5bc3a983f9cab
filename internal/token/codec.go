// Package token は入場用の短命トークン（HS256, header.payload.signature）を
// 発行・検証する。
//
// 検証は必ず 署名 → aud → exp の順で行う。署名が壊れているトークンを
// exp の値で「期限切れ」と誤判定しないため。
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"passgate/internal/clock"

	"github.com/golang-jwt/jwt/v4"
)

// スキャナ向けトークンの aud
const Audience = "scanner"

var (
	// 構造・署名・aud のどれかが不正
	ErrInvalid = errors.New("token invalid")
	// 署名は正しいが exp を過ぎている
	ErrExpired = errors.New("token expired")
	// HMAC 鍵が空
	ErrEmptySecret = errors.New("token secret is empty")
)

// 失敗理由（台帳の reason に入る）
const (
	ReasonMalformed = "malformed"
	ReasonSignature = "signature"
	ReasonAudience  = "audience"
	ReasonClaims    = "claims"
	ReasonExpired   = "expired"
)

// VerifyError は ErrInvalid / ErrExpired に理由を付けたもの。
type VerifyError struct {
	Err    error
	Reason string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Reason)
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}

// Reason はエラーから失敗理由を取り出す。
func Reason(err error) string {
	var ve *VerifyError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}

// Claims はトークンの payload。
// 検証は Codec.Verify が順番に行うので Valid は何もしない。
type Claims struct {
	PassID string `json:"pass_id"`
	Exp    int64  `json:"exp"`
	Jti    string `json:"jti"`
	Aud    string `json:"aud"`
	Iat    int64  `json:"iat"`
}

func (c Claims) Valid() error {
	return nil
}

// Signed は発行結果
type Signed struct {
	Token string
	Exp   int64
}

type Codec struct {
	secret []byte
	clock  clock.Clock
	parser *jwt.Parser
}

func NewCodec(secret []byte, clk clock.Clock) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Codec{
		secret: secret,
		clock:  clk,
		//claims の検証は自前で順番にやる
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Sign は pass_id を束ねたトークンを作る。
// ttlSeconds が負なら最初から期限切れのトークンになる（テスト用）。
func (c *Codec) Sign(passID string, ttlSeconds int64) (Signed, error) {
	jti, err := newJTI()
	if err != nil {
		return Signed{}, fmt.Errorf("generate jti: %w", err)
	}

	now := c.clock.Now().Unix()
	claims := Claims{
		PassID: passID,
		Exp:    now + ttlSeconds,
		Jti:    jti,
		Aud:    Audience,
		Iat:    now,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return Signed{}, fmt.Errorf("sign token: %w", err)
	}

	return Signed{Token: signed, Exp: claims.Exp}, nil
}

// Verify は 署名 → aud → exp の順で検証する。
// 期限切れのときも claims は返す（pass_id を台帳に残すため）。
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	var claims Claims

	//1) 構造と署名（HMAC は定数時間比較）
	_, err := c.parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, &VerifyError{Err: ErrInvalid, Reason: parseFailureReason(err)}
	}

	//2) aud と必須項目
	if claims.Aud != Audience {
		return nil, &VerifyError{Err: ErrInvalid, Reason: ReasonAudience}
	}
	if claims.PassID == "" || claims.Exp == 0 {
		return nil, &VerifyError{Err: ErrInvalid, Reason: ReasonClaims}
	}

	//3) exp（exp == now はまだ有効）
	if claims.Exp < c.clock.Now().Unix() {
		return &claims, &VerifyError{Err: ErrExpired, Reason: ReasonExpired}
	}

	return &claims, nil
}

// 残り有効秒数
func (c *Codec) Remaining(claims *Claims) time.Duration {
	return time.Unix(claims.Exp, 0).Sub(c.clock.Now())
}

func parseFailureReason(err error) string {
	var ve *jwt.ValidationError
	if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorMalformed != 0 {
		return ReasonMalformed
	}
	return ReasonSignature
}

// 128bit の乱数を hex で
func newJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
