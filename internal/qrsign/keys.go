package qrsign

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
)

var ErrNotP256 = errors.New("qr signing key must be an ECDSA P-256 key")

// GenerateKey は新しい P-256 鍵を作る
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// ParsePrivateKeyPEM は "EC PRIVATE KEY"（SEC1）と "PRIVATE KEY"（PKCS#8）を読む
func ParsePrivateKeyPEM(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("qr signing key: no PEM block found")
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("qr signing key: %w", err)
		}
		return requireP256(key)
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("qr signing key: %w", err)
		}
		key, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, ErrNotP256
		}
		return requireP256(key)
	default:
		return nil, fmt.Errorf("qr signing key: unexpected PEM type %q", block.Type)
	}
}

// EncodePrivateKeyPEM は SEC1 の PEM にする
func EncodePrivateKeyPEM(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// EncodePublicKey は公開鍵を生の EC 点（非圧縮 65 バイト）にする
func EncodePublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	return pub.Bytes()
}

// ParsePublicKey は生の EC 点から公開鍵を作る（曲線上にあるかも確認される）
func ParsePublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	pub, err := ecdsa.ParseUncompressedPublicKey(elliptic.P256(), raw)
	if err != nil {
		return nil, fmt.Errorf("qr public key: %w", err)
	}
	return pub, nil
}

// ParsePublicKeyBase64 は /keys/qr の public_key（base64url）を読む
func ParsePublicKeyBase64(s string) (*ecdsa.PublicKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("qr public key: %w", err)
	}
	return ParsePublicKey(raw)
}

// KeyID は公開鍵の短い識別子（SHA-256 先頭 8 バイト）
func KeyID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}

func requireP256(key *ecdsa.PrivateKey) (*ecdsa.PrivateKey, error) {
	if key.Curve != elliptic.P256() {
		return nil, ErrNotP256
	}
	return key, nil
}
