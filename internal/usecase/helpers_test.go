package usecase_test

import (
	"context"
	"testing"
	"time"

	"passgate/internal/clock"
	"passgate/internal/domain/model"
	"passgate/internal/infra/db"
	infraRepo "passgate/internal/infra/repository"
	"passgate/internal/ledger"
	"passgate/internal/qrsign"
	repo "passgate/internal/repository"
	"passgate/internal/token"
	"passgate/internal/usecase"
	"passgate/internal/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

const (
	issuerID int64 = 1
	ownerID  int64 = 2
	otherID  int64 = 3
	staffID  int64 = 10
	adminID  int64 = 20
)

// sqlite の上に本物の部品を組む
type testEnv struct {
	db       *gorm.DB
	clock    *clock.Fake
	passes   repo.PassRepository
	events   repo.ScanEventRepository
	audits   repo.AuditLogRepository
	tx       repo.TransactionManager
	codec    *token.Codec
	signer   *qrsign.Signer
	recorder *ledger.Recorder

	passUC       *usecase.PassUsecase
	tokenUC      *usecase.TokenUsecase
	redeemUC     *usecase.RedeemUsecase
	revocationUC *usecase.RevocationUsecase
	scanUC       *usecase.ScanUsecase
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gormDB, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	clk := clock.NewFake(testNow)
	passes := infraRepo.NewPassGormRepository(gormDB)
	events := infraRepo.NewScanEventGormRepository(gormDB)
	audits := infraRepo.NewAuditLogGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	codec, err := token.NewCodec([]byte("redemption-secret"), clk)
	require.NoError(t, err)

	key, err := qrsign.GenerateKey()
	require.NoError(t, err)
	signer, err := qrsign.NewSigner(key)
	require.NoError(t, err)

	rec := ledger.NewRecorder(events, time.Second, 64)
	pv := validator.NewPassValidator()

	return &testEnv{
		db:       gormDB,
		clock:    clk,
		passes:   passes,
		events:   events,
		audits:   audits,
		tx:       txm,
		codec:    codec,
		signer:   signer,
		recorder: rec,

		passUC:       usecase.NewPassUsecase(passes, txm, pv, usecase.UUIDGenerator{}, clk),
		tokenUC:      usecase.NewTokenUsecase(passes, codec, signer, 300*time.Second),
		redeemUC:     usecase.NewRedeemUsecase(passes, codec, rec, pv, clk),
		revocationUC: usecase.NewRevocationUsecase(passes, clk, 30*time.Second),
		scanUC:       usecase.NewScanUsecase(events),
	}
}

// created のパスを作ってシークレットも返す
func (e *testEnv) createPass(t *testing.T) (*model.Pass, string) {
	t.Helper()
	out, err := e.passUC.Create(context.Background(), issuerID)
	require.NoError(t, err)
	return &out.Pass, out.ClaimSecret
}

// ownerID が claim 済みのパス
func (e *testEnv) claimedPass(t *testing.T) *model.Pass {
	t.Helper()
	p, secret := e.createPass(t)
	claimed, err := e.passUC.Claim(context.Background(), ownerID, p.ID, secret)
	require.NoError(t, err)
	return claimed
}

func (e *testEnv) issue(t *testing.T, passID string) string {
	t.Helper()
	out, err := e.tokenUC.Issue(context.Background(), ownerID, passID)
	require.NoError(t, err)
	return out.QRToken
}

func (e *testEnv) redeem(t *testing.T, qr string, deviceID string) *usecase.RedeemOutput {
	t.Helper()
	out, err := e.redeemUC.Redeem(context.Background(), usecase.RedeemInput{
		QRToken:  qr,
		DeviceID: deviceID,
		StaffID:  staffID,
	})
	require.NoError(t, err)
	return out
}

// 非同期の台帳追記を待ってから全件取る
func (e *testEnv) ledgerEvents(t *testing.T) []model.ScanEvent {
	t.Helper()
	require.NoError(t, e.recorder.Close(context.Background()))
	events, err := e.events.List(context.Background(), repo.ScanEventFilter{Limit: 200})
	require.NoError(t, err)
	return events
}

func (e *testEnv) auditLogs(t *testing.T) []model.AuditLog {
	t.Helper()
	logs, err := e.audits.List(context.Background(), repo.AuditLogFilter{Limit: 200})
	require.NoError(t, err)
	return logs
}

func (e *testEnv) reload(t *testing.T, passID string) *model.Pass {
	t.Helper()
	p, err := e.passes.FindByID(context.Background(), passID)
	require.NoError(t, err)
	return p
}

func assertHTTPStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok, "not an HTTPError: %v", err)
	assert.Equal(t, status, he.Status, he.Message)
}

