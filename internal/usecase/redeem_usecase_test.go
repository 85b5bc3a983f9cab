package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"passgate/internal/domain/model"
	"passgate/internal/qrsign"
	repo "passgate/internal/repository"
	"passgate/internal/usecase"
	"passgate/internal/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// P1: 作成 → claim → 発行 → 入場 VALID → 同じトークンで USED
func TestScenario_HappyPath(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	p, secret := e.createPass(t)
	assert.Equal(t, model.PassStatusCreated, p.Status)

	claimed, err := e.passUC.Claim(ctx, ownerID, p.ID, secret)
	require.NoError(t, err)
	assert.Equal(t, model.PassStatusClaimed, claimed.Status)
	assert.True(t, claimed.IsOwnedBy(ownerID))

	issued, err := e.tokenUC.Issue(ctx, ownerID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(300*time.Second).Unix(), issued.Exp)

	first := e.redeem(t, issued.QRToken, "door-1")
	assert.Equal(t, model.RedeemResultValid, first.Result)
	require.NotNil(t, first.PassID)
	assert.Equal(t, p.ID, *first.PassID)
	require.NotNil(t, first.RedeemedAt)

	stored := e.reload(t, p.ID)
	assert.Equal(t, model.PassStatusRedeemed, stored.Status)
	require.NotNil(t, stored.RedeemedByStaffID)
	assert.Equal(t, staffID, *stored.RedeemedByStaffID)
	require.NotNil(t, stored.RedeemedDeviceID)
	assert.Equal(t, "door-1", *stored.RedeemedDeviceID)

	second := e.redeem(t, issued.QRToken, "door-1")
	assert.Equal(t, model.RedeemResultUsed, second.Result)
	require.NotNil(t, second.RedeemedAt)
	assert.True(t, first.RedeemedAt.Equal(*second.RedeemedAt))

	events := e.ledgerEvents(t)
	require.Len(t, events, 2)
	results := []model.RedeemResult{events[0].Result, events[1].Result}
	assert.ElementsMatch(t, []model.RedeemResult{model.RedeemResultValid, model.RedeemResultUsed}, results)
}

func TestRedeem_ConcurrentAtMostOnce(t *testing.T) {
	for _, n := range []int{2, 10, 50} {
		t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
			e := newTestEnv(t)
			p := e.claimedPass(t)
			qr := e.issue(t, p.ID)

			results := make([]model.RedeemResult, n)
			errs := make([]error, n)

			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					out, err := e.redeemUC.Redeem(context.Background(), usecase.RedeemInput{
						QRToken:  qr,
						DeviceID: fmt.Sprintf("door-%d", i),
						StaffID:  staffID,
					})
					errs[i] = err
					if out != nil {
						results[i] = out.Result
					}
				}(i)
			}
			close(start)
			wg.Wait()

			valid, used := 0, 0
			for i := range results {
				require.NoError(t, errs[i])
				switch results[i] {
				case model.RedeemResultValid:
					valid++
				case model.RedeemResultUsed:
					used++
				}
			}
			assert.Equal(t, 1, valid)
			assert.Equal(t, n-1, used)

			//台帳はちょうど N 件
			assert.Len(t, e.ledgerEvents(t), n)
		})
	}
}

func TestRedeem_TokenOutcomes(t *testing.T) {
	e := newTestEnv(t)

	t.Run("expired keeps pass id", func(t *testing.T) {
		p := e.claimedPass(t)
		qr := e.issue(t, p.ID)

		e.clock.Advance(301 * time.Second)
		out := e.redeem(t, qr, "door-1")
		assert.Equal(t, model.RedeemResultExpired, out.Result)
		require.NotNil(t, out.PassID)
		assert.Equal(t, p.ID, *out.PassID)
		assert.Equal(t, model.PassStatusClaimed, e.reload(t, p.ID).Status)
	})

	t.Run("tampered payload is invalid", func(t *testing.T) {
		p := e.claimedPass(t)
		payload := qrsign.ParsePayload(e.issue(t, p.ID))

		parts := strings.Split(payload.Token, ".")
		mid := []byte(parts[1])
		mid[3] ^= 0x01
		tampered := parts[0] + "." + string(mid) + "." + parts[2]

		out := e.redeem(t, tampered, "door-1")
		assert.Equal(t, model.RedeemResultInvalid, out.Result)
		assert.Nil(t, out.PassID)
		assert.Equal(t, model.PassStatusClaimed, e.reload(t, p.ID).Status)
	})

	t.Run("garbage is invalid", func(t *testing.T) {
		for _, raw := range []string{"", "not a token", "a.b", `{"token":"x.y.z","sig":"abc","exp":1}`} {
			out := e.redeem(t, raw, "door-1")
			assert.Equal(t, model.RedeemResultInvalid, out.Result, raw)
			assert.Nil(t, out.PassID)
		}
	})

	t.Run("raw token without wrapper is accepted", func(t *testing.T) {
		p := e.claimedPass(t)
		payload := qrsign.ParsePayload(e.issue(t, p.ID))

		out := e.redeem(t, payload.Token, "door-1")
		assert.Equal(t, model.RedeemResultValid, out.Result)
	})

	t.Run("unknown pass is invalid", func(t *testing.T) {
		signed, err := e.codec.Sign("no-such-pass", 300)
		require.NoError(t, err)

		out := e.redeem(t, signed.Token, "door-1")
		assert.Equal(t, model.RedeemResultInvalid, out.Result)
	})

	t.Run("created pass is invalid", func(t *testing.T) {
		p, _ := e.createPass(t)
		signed, err := e.codec.Sign(p.ID, 300)
		require.NoError(t, err)

		out := e.redeem(t, signed.Token, "door-1")
		assert.Equal(t, model.RedeemResultInvalid, out.Result)
		assert.Equal(t, model.PassStatusCreated, e.reload(t, p.ID).Status)
	})
}

// 失効後は有効なトークンでも入場できない
func TestScenario_RevocationFinality(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	p := e.claimedPass(t)
	qr := e.issue(t, p.ID)

	_, err := e.passUC.Revoke(ctx, adminID, p.ID, "refund")
	require.NoError(t, err)

	out := e.redeem(t, qr, "door-1")
	assert.Equal(t, model.RedeemResultRevoked, out.Result)

	out = e.redeem(t, qr, "door-2")
	assert.Equal(t, model.RedeemResultRevoked, out.Result)
	assert.Equal(t, model.PassStatusRevoked, e.reload(t, p.ID).Status)

	_, err = e.tokenUC.Issue(ctx, ownerID, p.ID)
	assertHTTPStatus(t, err, http.StatusBadRequest)
}

func TestRedeem_LedgerFacts(t *testing.T) {
	e := newTestEnv(t)
	p := e.claimedPass(t)
	qr := e.issue(t, p.ID)

	e.redeem(t, qr, "door-1")
	e.redeem(t, "garbage", "door-2")

	events := e.ledgerEvents(t)
	require.Len(t, events, 2)

	byDevice := map[string]model.ScanEvent{}
	for _, ev := range events {
		byDevice[ev.DeviceID] = ev
		assert.NotEmpty(t, ev.ID)
		assert.Equal(t, staffID, ev.StaffID)
		assert.GreaterOrEqual(t, ev.LatencyMs, int64(0))
	}

	assert.Equal(t, model.RedeemResultValid, byDevice["door-1"].Result)
	require.NotNil(t, byDevice["door-1"].PassID)
	assert.Equal(t, p.ID, *byDevice["door-1"].PassID)

	assert.Equal(t, model.RedeemResultInvalid, byDevice["door-2"].Result)
	assert.Nil(t, byDevice["door-2"].PassID)
	assert.Equal(t, "malformed", byDevice["door-2"].Reason)
}

func TestRedeem_LatencyFromRequestStart(t *testing.T) {
	e := newTestEnv(t)
	p := e.claimedPass(t)
	qr := e.issue(t, p.ID)

	_, err := e.redeemUC.Redeem(context.Background(), usecase.RedeemInput{
		QRToken:   qr,
		DeviceID:  "door-1",
		StaffID:   staffID,
		StartedAt: testNow.Add(-250 * time.Millisecond),
	})
	require.NoError(t, err)

	events := e.ledgerEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, int64(250), events[0].LatencyMs)
}

func TestRedeem_RequestErrorsAreNotLogged(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.redeemUC.Redeem(context.Background(), usecase.RedeemInput{QRToken: "x", DeviceID: "door-1"})
	assertHTTPStatus(t, err, http.StatusUnauthorized)

	_, err = e.redeemUC.Redeem(context.Background(), usecase.RedeemInput{QRToken: "x", StaffID: staffID})
	assertHTTPStatus(t, err, http.StatusBadRequest)

	assert.Empty(t, e.ledgerEvents(t))
}

type PassRepoMock struct{ mock.Mock }

func (m *PassRepoMock) Create(ctx context.Context, pass *model.Pass) error {
	return m.Called(ctx, pass).Error(0)
}

func (m *PassRepoMock) FindByID(ctx context.Context, passID string) (*model.Pass, error) {
	args := m.Called(ctx, passID)
	p, _ := args.Get(0).(*model.Pass)
	return p, args.Error(1)
}

func (m *PassRepoMock) ListByOwner(ctx context.Context, ownerUserID int64, limit int, offset int) ([]model.Pass, error) {
	panic("not used in redeem tests")
}

func (m *PassRepoMock) ClaimIfCreated(ctx context.Context, cmd repo.ClaimCommand) (bool, error) {
	panic("not used in redeem tests")
}

func (m *PassRepoMock) RedeemIfClaimed(ctx context.Context, cmd repo.RedeemCommand) (bool, error) {
	args := m.Called(ctx, cmd)
	return args.Bool(0), args.Error(1)
}

func (m *PassRepoMock) RevokeIfActive(ctx context.Context, passID string, reason string, revokedAt time.Time) (bool, error) {
	panic("not used in redeem tests")
}

func (m *PassRepoMock) ListRevokedSince(ctx context.Context, since time.Time, limit int) ([]model.RevocationEntry, error) {
	panic("not used in redeem tests")
}

func (m *PassRepoMock) ListRevokedAfter(ctx context.Context, after repo.RevocationCursor, limit int) ([]model.RevocationEntry, error) {
	panic("not used in redeem tests")
}

type RecorderMock struct{ mock.Mock }

func (m *RecorderMock) Record(ctx context.Context, event model.ScanEvent) {
	m.Called(ctx, event)
}

func TestRedeem_StorageErrors(t *testing.T) {
	e := newTestEnv(t)
	signed, err := e.codec.Sign("p1", 300)
	require.NoError(t, err)

	t.Run("conditional write fails", func(t *testing.T) {
		passes := new(PassRepoMock)
		passes.On("RedeemIfClaimed", mock.Anything, mock.Anything).Return(false, errors.New("connection refused")).Once()
		rec := new(RecorderMock)

		uc := usecase.NewRedeemUsecase(passes, e.codec, rec, validator.NewPassValidator(), e.clock)
		_, err := uc.Redeem(context.Background(), usecase.RedeemInput{QRToken: signed.Token, DeviceID: "d", StaffID: staffID})

		assertHTTPStatus(t, err, http.StatusInternalServerError)
		rec.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
		passes.AssertExpectations(t)
	})

	t.Run("reclassify read fails", func(t *testing.T) {
		passes := new(PassRepoMock)
		passes.On("RedeemIfClaimed", mock.Anything, mock.Anything).Return(false, nil).Once()
		passes.On("FindByID", mock.Anything, "p1").Return(nil, errors.New("timeout")).Once()
		rec := new(RecorderMock)

		uc := usecase.NewRedeemUsecase(passes, e.codec, rec, validator.NewPassValidator(), e.clock)
		_, err := uc.Redeem(context.Background(), usecase.RedeemInput{QRToken: signed.Token, DeviceID: "d", StaffID: staffID})

		assertHTTPStatus(t, err, http.StatusInternalServerError)
		rec.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	})

	t.Run("unexpected status is invalid", func(t *testing.T) {
		passes := new(PassRepoMock)
		passes.On("RedeemIfClaimed", mock.Anything, mock.Anything).Return(false, nil).Once()
		passes.On("FindByID", mock.Anything, "p1").Return(&model.Pass{ID: "p1", Status: model.PassStatusExpired}, nil).Once()
		rec := new(RecorderMock)
		rec.On("Record", mock.Anything, mock.MatchedBy(func(ev model.ScanEvent) bool {
			return ev.Result == model.RedeemResultInvalid && ev.Reason == "status:expired"
		})).Once()

		uc := usecase.NewRedeemUsecase(passes, e.codec, rec, validator.NewPassValidator(), e.clock)
		out, err := uc.Redeem(context.Background(), usecase.RedeemInput{QRToken: signed.Token, DeviceID: "d", StaffID: staffID})

		require.NoError(t, err)
		assert.Equal(t, model.RedeemResultInvalid, out.Result)
		rec.AssertExpectations(t)
	})
}
