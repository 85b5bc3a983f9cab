package server

import (
	"fmt"

	"passgate/internal/clock"
	"passgate/internal/config"
	"passgate/internal/handler"
	memstore "passgate/internal/infra/ratelimit"
	infraRepo "passgate/internal/infra/repository"
	"passgate/internal/ledger"
	"passgate/internal/qrsign"
	"passgate/internal/ratelimit"
	"passgate/internal/token"
	"passgate/internal/usecase"
	"passgate/internal/validator"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// App は組み立て済みのサーバー。
// Recorder は停止時に Close して書き込み中の台帳を待つ。
type App struct {
	Echo     *echo.Echo
	Auth     *usecase.AuthUsecase
	Recorder *ledger.Recorder
}

// Build は repository → usecase → handler の順に組み立てて routes を登録する
func Build(cfg config.Config, gormDB *gorm.DB, signer *qrsign.Signer, clk clock.Clock) (*App, error) {
	if clk == nil {
		clk = clock.Real()
	}

	//Repository（GORM実装）
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	passRepo := infraRepo.NewPassGormRepository(gormDB)
	scanRepo := infraRepo.NewScanEventGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	codec, err := token.NewCodec([]byte(cfg.RedemptionSecret), clk)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	store, err := memstore.NewLRUStore(cfg.RateLimitMaxKeys)
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.New(store, clk)
	recorder := ledger.NewRecorder(scanRepo, cfg.LedgerWriteTimeout, cfg.LedgerMaxInFlight)

	//Usecase
	passValidator := validator.NewPassValidator()
	authUC := usecase.NewAuthUsecase(cfg, userRepo, txm, validator.NewAuthValidator(userRepo), clk)
	passUC := usecase.NewPassUsecase(passRepo, txm, passValidator, usecase.UUIDGenerator{}, clk)
	tokenUC := usecase.NewTokenUsecase(passRepo, codec, signer, cfg.TokenTTL)
	redeemUC := usecase.NewRedeemUsecase(passRepo, codec, recorder, passValidator, clk)
	revocationUC := usecase.NewRevocationUsecase(passRepo, clk, cfg.RevocationOverlap)
	scanUC := usecase.NewScanUsecase(scanRepo)
	auditUC := usecase.NewAuditUsecase(auditRepo)

	//Handler + routes
	e := New()
	handler.NewAuthHandler(authUC).RegisterRoutes(e, cfg, userRepo)
	handler.NewAdminUserHandler(authUC).RegisterRoutes(e, cfg, userRepo)
	handler.NewPassHandler(passUC, tokenUC, limiter, cfg.ClaimRateLimit, cfg.IssueRateLimit).RegisterRoutes(e, cfg, userRepo)
	handler.NewRedeemHandler(redeemUC, limiter, cfg.RedeemRateLimit, clk).RegisterRoutes(e, cfg, userRepo)
	handler.NewRevocationHandler(revocationUC).RegisterRoutes(e, cfg, userRepo)
	handler.NewAdminPassHandler(passUC, scanUC, auditUC).RegisterRoutes(e, cfg, userRepo)
	handler.NewKeyHandler(signer).RegisterRoutes(e)

	return &App{Echo: e, Auth: authUC, Recorder: recorder}, nil
}
