package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"passgate/internal/clock"
	"passgate/internal/config"
	"passgate/internal/domain/model"
	"passgate/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// accesstokenの有効期限
const accessTokenTTL = 15 * time.Minute

// usecaseがValidatorInterfaceに依存する約束
type AuthValidator interface {
	ValidateRegister(ctx context.Context, email string, password string) error
	ValidateLogin(ctx context.Context, email string, password string) error
	ValidateForceLogout(ctx context.Context, targetUserID int64) error
	ValidateSetRole(ctx context.Context, targetUserID int64, role string) error
}

type UserDTO struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	TokenVersion int    `json:"token_version"`
	IsActive     bool   `json:"is_active"`
}

type JwtAccessTokenDTO struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenVersion int    `json:"token_version"`
}

type AuthRegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthRegisterResponse struct {
	User UserDTO `json:"user"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginResponse struct {
	User  UserDTO           `json:"user"`
	Token JwtAccessTokenDTO `json:"token"`
}

type ForceLogoutResponse struct {
	UserID          int64 `json:"user_id"`
	NewTokenVersion int   `json:"new_token_version"`
}

type AuthUsecase struct {
	cfg       config.Config
	users     repository.UserRepository
	tx        repository.TransactionManager
	validator AuthValidator
	clock     clock.Clock
}

func NewAuthUsecase(
	cfg config.Config,
	users repository.UserRepository,
	tx repository.TransactionManager,
	validator AuthValidator,
	clk clock.Clock,
) *AuthUsecase {
	return &AuthUsecase{
		cfg:       cfg,
		users:     users,
		tx:        tx,
		validator: validator,
		clock:     clk,
	}
}

func (u *AuthUsecase) Register(ctx context.Context, req AuthRegisterRequest) (*AuthRegisterResponse, error) {
	req.Email = strings.TrimSpace(req.Email)

	//入力検証（validatorに寄せる）
	if err := u.validator.ValidateRegister(ctx, req.Email, req.Password); err != nil {
		if errors.Is(err, repository.ErrEmailAlreadyExists) {
			return nil, WrapHTTPError(http.StatusConflict, "email already exists", err)
		}
		return nil, badRequest(err)
	}

	//パスワードは必ずハッシュ化して保存（平文保存しない）
	pwHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	user := &model.User{
		Email:        req.Email,
		PasswordHash: string(pwHash),
		Role:         model.RoleUser,
		TokenVersion: 0,
		IsActive:     true,
	}

	//validator をすり抜けた同時登録は unique 制約で弾く
	if err := u.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailAlreadyExists) {
			return nil, WrapHTTPError(http.StatusConflict, "email already exists", err)
		}
		return nil, dbError(err)
	}

	return &AuthRegisterResponse{User: toUserDTO(user)}, nil
}

func (u *AuthUsecase) Login(ctx context.Context, req AuthLoginRequest) (*AuthLoginResponse, error) {
	req.Email = strings.TrimSpace(req.Email)

	if err := u.validator.ValidateLogin(ctx, req.Email, req.Password); err != nil {
		return nil, badRequest(err)
	}

	user, err := u.users.FindByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return nil, dbError(err)
	}

	//停止ユーザーはログイン不可
	if !user.IsActive {
		return nil, NewHTTPError(http.StatusForbidden, "user is inactive")
	}

	//パスワード照合（bcrypt）
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	//last_login更新
	now := u.clock.Now()
	user.LastLoginAt = &now
	if err := u.users.Update(ctx, user); err != nil {
		slog.Warn("update last_login_at failed", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}

	accessToken, expiresIn, err := u.issueAccessToken(user)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return &AuthLoginResponse{
		User: toUserDTO(user),
		Token: JwtAccessTokenDTO{
			AccessToken:  accessToken,
			ExpiresIn:    expiresIn,
			TokenVersion: user.TokenVersion,
		},
	}, nil
}

func (u *AuthUsecase) Me(ctx context.Context, userID int64) (*UserDTO, error) {
	if userID <= 0 {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	user, err := u.users.FindByID(ctx, userID)
	if err != nil || user == nil {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	if !user.IsActive {
		return nil, NewHTTPError(http.StatusForbidden, "user is inactive")
	}

	dto := toUserDTO(user)
	return &dto, nil
}

// token_version を上げて発行済みの access token を全部無効にする
func (u *AuthUsecase) ForceLogout(ctx context.Context, actorUserID int64, targetUserID int64) (*ForceLogoutResponse, error) {
	if err := u.validator.ValidateForceLogout(ctx, targetUserID); err != nil {
		return nil, badRequest(err)
	}

	var after *model.User
	err := u.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		before, err := r.Users().FindByID(ctx, targetUserID)
		if errors.Is(err, repository.ErrUserNotFound) {
			return NewHTTPError(http.StatusNotFound, "user not found")
		}
		if err != nil {
			return dbError(err)
		}

		if err := r.Users().IncrementTokenVersion(ctx, targetUserID); err != nil {
			return dbError(err)
		}

		//更新後を取得してnew_token_versionを返す
		after, err = r.Users().FindByID(ctx, targetUserID)
		if err != nil {
			return dbError(err)
		}

		return u.audit(ctx, r, actorUserID, model.AuditActionForceLogout, before, after)
	})
	if err != nil {
		return nil, err
	}

	return &ForceLogoutResponse{
		UserID:          after.ID,
		NewTokenVersion: after.TokenVersion,
	}, nil
}

// ロール変更（STAFF の付与はここから）。token_version も上がるので再ログインが必要
func (u *AuthUsecase) SetRole(ctx context.Context, actorUserID int64, targetUserID int64, role string) (*UserDTO, error) {
	role = strings.ToUpper(strings.TrimSpace(role))
	if err := u.validator.ValidateSetRole(ctx, targetUserID, role); err != nil {
		return nil, badRequest(err)
	}

	var after *model.User
	err := u.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		before, err := r.Users().FindByID(ctx, targetUserID)
		if errors.Is(err, repository.ErrUserNotFound) {
			return NewHTTPError(http.StatusNotFound, "user not found")
		}
		if err != nil {
			return dbError(err)
		}

		if err := r.Users().UpdateRole(ctx, targetUserID, model.Role(role)); err != nil {
			return dbError(err)
		}

		after, err = r.Users().FindByID(ctx, targetUserID)
		if err != nil {
			return dbError(err)
		}

		return u.audit(ctx, r, actorUserID, model.AuditActionSetUserRole, before, after)
	})
	if err != nil {
		return nil, err
	}

	dto := toUserDTO(after)
	return &dto, nil
}

// ユーザー操作の監査ログ
func (u *AuthUsecase) audit(ctx context.Context, r repository.TxRepos, actorUserID int64, action model.AuditAction, before, after *model.User) error {
	log, err := newAuditLog(actorUserID, action, model.AuditResourceUser, strconv.FormatInt(after.ID, 10),
		userAuditOf(before), userAuditOf(after), u.clock.Now())
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if err := r.AuditLogs().Create(ctx, log); err != nil {
		return dbError(err)
	}
	return nil
}

// EnsureAdmin は起動時に管理者を1人用意する。既にいれば ADMIN にするだけ
func (u *AuthUsecase) EnsureAdmin(ctx context.Context, email string, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil
	}

	user, err := u.users.FindByEmail(ctx, email)
	if err == nil {
		if user.Role == model.RoleAdmin {
			return nil
		}
		return u.users.UpdateRole(ctx, user.ID, model.RoleAdmin)
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}

	pwHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return u.users.Create(ctx, &model.User{
		Email:        email,
		PasswordHash: string(pwHash),
		Role:         model.RoleAdmin,
		IsActive:     true,
	})
}

// jwt発行
func (u *AuthUsecase) issueAccessToken(user *model.User) (string, int, error) {
	now := u.clock.Now()
	exp := now.Add(accessTokenTTL)

	claims := jwt.MapClaims{
		"sub":  user.ID,
		"role": string(user.Role),
		"tv":   user.TokenVersion,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := t.SignedString([]byte(u.cfg.JWTSecret))
	if err != nil {
		return "", 0, err
	}

	return signed, int(accessTokenTTL.Seconds()), nil
}

// model.UserをAPI返却用DTOに変換。
func toUserDTO(u *model.User) UserDTO {
	return UserDTO{
		ID:           u.ID,
		Email:        u.Email,
		Role:         string(u.Role),
		TokenVersion: u.TokenVersion,
		IsActive:     u.IsActive,
	}
}
