package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"passgate/internal/domain/model"
	"passgate/internal/token"

	"github.com/google/uuid"
)

// UUID 等のIDを作る約束
type IDGenerator interface {
	NewID() string
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// 入場トークンの発行と検証（token.Codec）
type TokenCodec interface {
	Sign(passID string, ttlSeconds int64) (token.Signed, error)
	Verify(tokenString string) (*token.Claims, error)
}

// トークンを QR ペイロードに包む（qrsign.Signer）
type QRWrapper interface {
	Wrap(signed token.Signed) (string, error)
}

// スキャン台帳への非同期追記（ledger.Recorder）
type ScanRecorder interface {
	Record(ctx context.Context, event model.ScanEvent)
}

// ワンタイムシークレット（平文 + 保存用hash）
func newSecretAndHash() (plain string, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}

	plain = base64.RawURLEncoding.EncodeToString(b)
	return plain, hashSecret(plain), nil
}

func hashSecret(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
