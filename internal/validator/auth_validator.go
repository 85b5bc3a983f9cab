package validator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"passgate/internal/domain/model"
	"passgate/internal/repository"
	"passgate/internal/usecase"
)

// 入力が不正
var ErrInvalidInput = errors.New("invalid input")

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// パスワード最低文字数
const minPasswordLen = 8

type authValidator struct {
	users repository.UserRepository
}

// Usecaseは interface を依存注入
func NewAuthValidator(users repository.UserRepository) usecase.AuthValidator {
	return &authValidator{users: users}
}

// サインアップの入力を検証
func (v *authValidator) ValidateRegister(ctx context.Context, email string, password string) error {
	email = strings.TrimSpace(email)

	// 必須チェック
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	// email形式
	if !isEmailLike(email) {
		return fmt.Errorf("%w: email format", ErrInvalidInput)
	}

	if len(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}

	// email重複チェック（DBが必要）
	u, err := v.users.FindByEmail(ctx, email)
	if err == nil && u != nil {
		return repository.ErrEmailAlreadyExists
	}

	return nil
}

// ログインの入力を検証
func (v *authValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	email = strings.TrimSpace(email)

	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	if !isEmailLike(email) {
		return fmt.Errorf("%w: email format", ErrInvalidInput)
	}

	return nil
}

// 強制ログアウトの入力を検証
func (v *authValidator) ValidateForceLogout(ctx context.Context, targetUserID int64) error {
	if targetUserID <= 0 {
		return fmt.Errorf("%w: user_id", ErrInvalidInput)
	}
	return nil
}

func (v *authValidator) ValidateSetRole(ctx context.Context, targetUserID int64, role string) error {
	if targetUserID <= 0 {
		return fmt.Errorf("%w: user_id", ErrInvalidInput)
	}
	if !model.Role(role).IsValid() {
		return fmt.Errorf("%w: role must be USER, STAFF or ADMIN", ErrInvalidInput)
	}
	return nil
}

// 簡易メール形式をチェック
func isEmailLike(s string) bool {
	return emailPattern.MatchString(s)
}
