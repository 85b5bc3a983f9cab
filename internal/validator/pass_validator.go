package validator

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"passgate/internal/usecase"
)

const (
	// claim シークレットは 32 バイトの base64url（パディングなし）
	claimSecretBytes   = 32
	maxDeviceIDLen     = 128
	maxRevokeReasonLen = 255
)

type passValidator struct{}

func NewPassValidator() usecase.PassValidator {
	return passValidator{}
}

func (passValidator) ValidateClaimSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("%w: claim_secret is required", ErrInvalidInput)
	}
	b, err := base64.RawURLEncoding.DecodeString(secret)
	if err != nil || len(b) != claimSecretBytes {
		return fmt.Errorf("%w: claim_secret format", ErrInvalidInput)
	}
	return nil
}

func (passValidator) ValidateRevokeReason(reason string) error {
	if utf8.RuneCountInString(reason) > maxRevokeReasonLen {
		return fmt.Errorf("%w: reason is too long", ErrInvalidInput)
	}
	return nil
}

func (passValidator) ValidateRedeem(deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidInput)
	}
	if len(deviceID) > maxDeviceIDLen {
		return fmt.Errorf("%w: device_id is too long", ErrInvalidInput)
	}
	return nil
}
