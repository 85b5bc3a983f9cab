// Package qrsign は HMAC トークンを ES256 でもう一度署名して QR に載せる。
// スキャナは配布された公開鍵だけでオフライン検証できる。
// ここでの検証はあくまで端末側の早期リジェクト用で、判定の正はバックエンド。
package qrsign

import (
	"crypto/ecdsa"
	"encoding/base64"
	"errors"
	"fmt"

	"passgate/internal/token"

	"github.com/golang-jwt/jwt/v4"
)

// 公開鍵の形式
const Algorithm = "ES256"

var ErrBadSignature = errors.New("qr signature invalid")

type Signer struct {
	key       *ecdsa.PrivateKey
	publicRaw []byte
	keyID     string
}

func NewSigner(key *ecdsa.PrivateKey) (*Signer, error) {
	if key == nil {
		return nil, errors.New("qr signer: nil key")
	}
	if _, err := requireP256(key); err != nil {
		return nil, err
	}
	raw, err := EncodePublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("qr signer: %w", err)
	}
	return &Signer{key: key, publicRaw: raw, keyID: KeyID(raw)}, nil
}

// Wrap はトークン文字列そのものに ES256 署名して QR 用 JSON を返す
func (s *Signer) Wrap(signed token.Signed) (string, error) {
	sig, err := jwt.SigningMethodES256.Sign(signed.Token, s.key)
	if err != nil {
		return "", fmt.Errorf("qr sign: %w", err)
	}

	return Payload{Token: signed.Token, Sig: sig, Exp: signed.Exp}.Encode()
}

// 公開鍵（生の EC 点）
func (s *Signer) PublicKey() []byte {
	out := make([]byte, len(s.publicRaw))
	copy(out, s.publicRaw)
	return out
}

func (s *Signer) PublicKeyBase64() string {
	return base64.RawURLEncoding.EncodeToString(s.publicRaw)
}

func (s *Signer) KeyID() string {
	return s.keyID
}

// Verify は QR の sig をトークン文字列に対して検証する
func Verify(p Payload, pub *ecdsa.PublicKey) error {
	if !p.Signed() {
		return ErrBadSignature
	}
	if err := jwt.SigningMethodES256.Verify(p.Token, p.Sig, pub); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}
