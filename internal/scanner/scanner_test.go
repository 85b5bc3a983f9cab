package scanner

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"passgate/internal/clock"
	"passgate/internal/domain/model"
	"passgate/internal/qrsign"
	"passgate/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	clk    *clock.Fake
	codec  *token.Codec
	signer *qrsign.Signer
	keys   *KeyCache
	revs   *RevocationSet
	pre    *Prechecker
}

type staticKeyFetcher struct {
	mu    sync.Mutex
	key   *ecdsa.PublicKey
	err   error
	calls int
}

func (f *staticKeyFetcher) FetchPublicKey(ctx context.Context) (*ecdsa.PublicKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.key, nil
}

func newSigner(t *testing.T) *qrsign.Signer {
	t.Helper()
	key, err := qrsign.GenerateKey()
	require.NoError(t, err)
	s, err := qrsign.NewSigner(key)
	require.NoError(t, err)
	return s
}

func publicKeyOf(t *testing.T, s *qrsign.Signer) *ecdsa.PublicKey {
	t.Helper()
	pub, err := qrsign.ParsePublicKey(s.PublicKey())
	require.NoError(t, err)
	return pub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(t0)
	codec, err := token.NewCodec([]byte("secret"), clk)
	require.NoError(t, err)
	signer := newSigner(t)

	keys := NewKeyCache(&staticKeyFetcher{key: publicKeyOf(t, signer)}, time.Hour, clk)
	revs := NewRevocationSet()
	return &fixture{
		clk:    clk,
		codec:  codec,
		signer: signer,
		keys:   keys,
		revs:   revs,
		pre:    NewPrechecker(keys, revs, clk),
	}
}

func (f *fixture) qr(t *testing.T, passID string, ttl int64) string {
	t.Helper()
	signed, err := f.codec.Sign(passID, ttl)
	require.NoError(t, err)
	qr, err := f.signer.Wrap(signed)
	require.NoError(t, err)
	return qr
}

func TestParseQRPayload(t *testing.T) {
	p := ParseQRPayload(`{"token":"a.b.c","sig":"xyz","exp":123}`)
	assert.Equal(t, QRPayload{Token: "a.b.c", Sig: "xyz", Exp: 123, Signed: true}, p)

	p = ParseQRPayload("a.b.c")
	assert.Equal(t, "a.b.c", p.Token)
	assert.False(t, p.Signed)

	p = ParseQRPayload(`{"exp":1}`)
	assert.Equal(t, `{"exp":1}`, p.Token)
	assert.False(t, p.Signed)
}

func TestKeyCache_UsesCacheWithinMaxAge(t *testing.T) {
	clk := clock.NewFake(t0)
	pub := publicKeyOf(t, newSigner(t))
	fetcher := &staticKeyFetcher{key: pub}
	cache := NewKeyCache(fetcher, time.Minute, clk)

	got, err := cache.PublicKey(context.Background())
	require.NoError(t, err)
	assert.True(t, pub.Equal(got))

	clk.Advance(time.Minute)
	_, err = cache.PublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)

	clk.Advance(time.Second)
	_, err = cache.PublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
	assert.Equal(t, clk.Now(), cache.FetchedAt())
}

func TestKeyCache_StaleKeyTolerance(t *testing.T) {
	clk := clock.NewFake(t0)
	pub := publicKeyOf(t, newSigner(t))
	fetcher := &staticKeyFetcher{key: pub}
	cache := NewKeyCache(fetcher, time.Minute, clk)

	_, err := cache.PublicKey(context.Background())
	require.NoError(t, err)

	//取得に失敗しても古い鍵で続ける
	fetcher.err = errors.New("offline")
	clk.Advance(time.Hour)
	got, err := cache.PublicKey(context.Background())
	require.NoError(t, err)
	assert.True(t, pub.Equal(got))
	assert.Equal(t, t0, cache.FetchedAt())
}

func TestKeyCache_NoKeyAndFetchFails(t *testing.T) {
	cache := NewKeyCache(&staticKeyFetcher{err: errors.New("offline")}, time.Minute, clock.NewFake(t0))

	_, err := cache.PublicKey(context.Background())
	assert.ErrorIs(t, err, ErrNoPublicKey)
}

func TestKeyCache_Invalidate(t *testing.T) {
	fetcher := &staticKeyFetcher{key: publicKeyOf(t, newSigner(t))}
	cache := NewKeyCache(fetcher, time.Hour, clock.NewFake(t0))

	_, err := cache.PublicKey(context.Background())
	require.NoError(t, err)
	cache.Invalidate()
	_, err = cache.PublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
}

func TestRevocationSet_MergeIsIdempotent(t *testing.T) {
	s := NewRevocationSet()
	entry := model.RevocationEntry{PassID: "p1", RevokedAt: t0}

	assert.Equal(t, 1, s.Merge([]model.RevocationEntry{entry}))
	assert.Equal(t, 0, s.Merge([]model.RevocationEntry{entry}))
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Contains("p1"))
	assert.False(t, s.Contains("p2"))
}

func TestRevocationSet_MergeIsOrderIndependent(t *testing.T) {
	a := []model.RevocationEntry{{PassID: "p1", RevokedAt: t0}, {PassID: "p2", RevokedAt: t0.Add(time.Second)}}
	b := []model.RevocationEntry{{PassID: "p3", RevokedAt: t0.Add(2 * time.Second)}, {PassID: "p1", RevokedAt: t0}}

	s1 := NewRevocationSet()
	s1.Merge(a)
	s1.Merge(b)

	s2 := NewRevocationSet()
	s2.Merge(b)
	s2.Merge(a)

	assert.Equal(t, s1.ids, s2.ids)
	assert.Equal(t, 3, s1.Len())
}

type fetchCall struct {
	since  *time.Time
	cursor string
}

type pagedFetcher struct {
	pages []*RevocationDelta
	calls []fetchCall
	// len(calls) がこの値に達したら err を返す
	failAt int
	err    error
}

func (f *pagedFetcher) FetchRevocations(ctx context.Context, since *time.Time, cursor string) (*RevocationDelta, error) {
	f.calls = append(f.calls, fetchCall{since: since, cursor: cursor})
	if f.err != nil && len(f.calls) >= f.failAt {
		return nil, f.err
	}
	p := f.pages[0]
	f.pages = f.pages[1:]
	return p, nil
}

func TestRevocationSet_SyncFollowsCursor(t *testing.T) {
	s := NewRevocationSet()
	f := &pagedFetcher{pages: []*RevocationDelta{
		{Revoked: []model.RevocationEntry{{PassID: "p1", RevokedAt: t0}}, SyncedAt: t0, HasMore: true, NextCursor: "c1"},
		{Revoked: []model.RevocationEntry{{PassID: "p1", RevokedAt: t0}, {PassID: "p2", RevokedAt: t0}}, SyncedAt: t0.Add(time.Minute)},
	}}

	added, err := s.Sync(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, 2, s.Len())

	require.Len(t, f.calls, 2)
	assert.Nil(t, f.calls[0].since)
	assert.Empty(t, f.calls[0].cursor)
	assert.Equal(t, "c1", f.calls[1].cursor)
	assert.Equal(t, t0.Add(time.Minute), *s.SyncedAt())
}

// 途中のページで失敗したら synced_at は進めず、次回は cursor の続きから
func TestRevocationSet_SyncResumesFromCursor(t *testing.T) {
	s := NewRevocationSet()
	f := &pagedFetcher{
		pages: []*RevocationDelta{
			{Revoked: []model.RevocationEntry{{PassID: "p1", RevokedAt: t0}}, SyncedAt: t0, HasMore: true, NextCursor: "c1"},
		},
		failAt: 2,
		err:    errors.New("offline"),
	}

	added, err := s.Sync(context.Background(), f)
	assert.Error(t, err)
	assert.Equal(t, 1, added)
	assert.Nil(t, s.SyncedAt())

	f.err = nil
	f.pages = []*RevocationDelta{
		{Revoked: []model.RevocationEntry{{PassID: "p2", RevokedAt: t0}}, SyncedAt: t0.Add(time.Minute)},
	}
	added, err = s.Sync(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, "c1", f.calls[2].cursor)
	assert.Equal(t, t0.Add(time.Minute), *s.SyncedAt())
}

// has_more なのに cursor が無い応答では同じページを取り直さない
func TestRevocationSet_SyncStopsWithoutCursor(t *testing.T) {
	s := NewRevocationSet()
	f := &pagedFetcher{pages: []*RevocationDelta{
		{Revoked: []model.RevocationEntry{{PassID: "p1", RevokedAt: t0}}, SyncedAt: t0, HasMore: true},
	}}

	_, err := s.Sync(context.Background(), f)
	require.NoError(t, err)
	assert.Len(t, f.calls, 1)
	assert.Equal(t, t0, *s.SyncedAt())
}

func TestRevocationSet_SyncErrorKeepsState(t *testing.T) {
	s := NewRevocationSet()
	s.Merge([]model.RevocationEntry{{PassID: "p1", RevokedAt: t0}})

	_, err := s.Sync(context.Background(), &pagedFetcher{failAt: 1, err: errors.New("offline")})
	assert.Error(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Nil(t, s.SyncedAt())
}

func TestPrecheck_ValidForwards(t *testing.T) {
	f := newFixture(t)
	v := f.pre.Precheck(context.Background(), f.qr(t, "pass-1", 300))

	assert.True(t, v.Forward)
	assert.Equal(t, "pass-1", v.PassID)
	assert.Empty(t, v.Reason)
}

func TestPrecheck_TamperedIsLocalInvalid(t *testing.T) {
	f := newFixture(t)
	p := ParseQRPayload(f.qr(t, "pass-1", 300))
	p.Token += "x"
	raw, err := json.Marshal(p.wire())
	require.NoError(t, err)

	v := f.pre.Precheck(context.Background(), string(raw))
	assert.False(t, v.Forward)
	assert.Equal(t, model.RedeemResultInvalid, v.Result)
	assert.Equal(t, LocalReasonSignature, v.Reason)
}

// 署名は exp より先に見る
func TestPrecheck_SignatureBeforeExpiry(t *testing.T) {
	f := newFixture(t)
	other := newSigner(t)

	signed, err := f.codec.Sign("pass-1", -60)
	require.NoError(t, err)
	qr, err := other.Wrap(signed)
	require.NoError(t, err)

	v := f.pre.Precheck(context.Background(), qr)
	assert.Equal(t, model.RedeemResultInvalid, v.Result)
}

func TestPrecheck_Expired(t *testing.T) {
	f := newFixture(t)
	qr := f.qr(t, "pass-1", 10)

	f.clk.Advance(10 * time.Second)
	assert.True(t, f.pre.Precheck(context.Background(), qr).Forward)

	f.clk.Advance(time.Second)
	v := f.pre.Precheck(context.Background(), qr)
	assert.False(t, v.Forward)
	assert.Equal(t, model.RedeemResultExpired, v.Result)
	assert.Equal(t, "pass-1", v.PassID)
}

func TestPrecheck_LocallyRevoked(t *testing.T) {
	f := newFixture(t)
	f.revs.Merge([]model.RevocationEntry{{PassID: "pass-1", RevokedAt: t0}})

	v := f.pre.Precheck(context.Background(), f.qr(t, "pass-1", 300))
	assert.False(t, v.Forward)
	assert.Equal(t, model.RedeemResultRevoked, v.Result)

	//失効リストに無ければ送る
	assert.True(t, f.pre.Precheck(context.Background(), f.qr(t, "pass-2", 300)).Forward)
}

func TestPrecheck_UnsignedAlwaysForwards(t *testing.T) {
	f := newFixture(t)
	f.revs.Merge([]model.RevocationEntry{{PassID: "pass-1", RevokedAt: t0}})

	signed, err := f.codec.Sign("pass-1", -60)
	require.NoError(t, err)

	v := f.pre.Precheck(context.Background(), signed.Token)
	assert.True(t, v.Forward)
	assert.False(t, v.Payload.Signed)
}

func TestPrecheck_NoKeyForwards(t *testing.T) {
	f := newFixture(t)
	f.pre.Keys = NewKeyCache(&staticKeyFetcher{err: errors.New("offline")}, time.Hour, f.clk)

	v := f.pre.Precheck(context.Background(), f.qr(t, "pass-1", 300))
	assert.True(t, v.Forward)
	assert.Equal(t, LocalReasonNoKey, v.Reason)
}

func TestNeedsReissue(t *testing.T) {
	exp := t0.Add(5 * time.Minute).Unix()

	assert.False(t, NeedsReissue(exp, t0))
	assert.False(t, NeedsReissue(exp, t0.Add(4*time.Minute+29*time.Second)))
	assert.True(t, NeedsReissue(exp, t0.Add(4*time.Minute+30*time.Second)))
	assert.True(t, NeedsReissue(exp, t0.Add(time.Hour)))
}

func TestDisplay_AllResultsDistinct(t *testing.T) {
	seen := map[DisplayInfo]model.RedeemResult{}
	for _, r := range model.AllRedeemResults {
		d := Display(r)
		assert.NotEmpty(t, d.Message, r)
		_, dup := seen[d]
		assert.False(t, dup, "duplicate display for %s", r)
		seen[d] = r
	}

	assert.True(t, Display(model.RedeemResultInvalid).ManualCheck)
	assert.True(t, Display(model.RedeemResultExpired).ManualCheck)
	assert.False(t, Display(model.RedeemResultValid).ManualCheck)
	assert.Equal(t, "gray", Display("SOMETHING").Color)
}

func newBackend(t *testing.T, signer *qrsign.Signer) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string
	var mu sync.Mutex

	mux := http.NewServeMux()
	mux.HandleFunc("/keys/qr", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"alg":        qrsign.Algorithm,
			"kid":        signer.KeyID(),
			"public_key": signer.PublicKeyBase64(),
		})
	})
	mux.HandleFunc("/revocations", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		q := r.URL.Query()
		seen = append(seen, q.Get("since")+"|"+q.Get("cursor"))
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(RevocationDelta{
			Revoked:  []model.RevocationEntry{{PassID: "p-revoked", RevokedAt: t0}},
			SyncedAt: t0.Add(time.Minute),
		})
	})
	mux.HandleFunc("/redeem", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer staff-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["device_id"] == "busy" {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many requests","retry_after":7}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":"USED","pass_id":"p1","redeemed_at":"2026-05-01T12:00:00Z"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestClient_Endpoints(t *testing.T) {
	signer := newSigner(t)
	srv, seen := newBackend(t, signer)
	c := NewClient(srv.URL+"/", "staff-token")
	ctx := context.Background()

	pub, err := c.FetchPublicKey(ctx)
	require.NoError(t, err)
	assert.True(t, publicKeyOf(t, signer).Equal(pub))

	since := t0
	delta, err := c.FetchRevocations(ctx, &since, "")
	require.NoError(t, err)
	require.Len(t, delta.Revoked, 1)

	//cursor があれば since は送らない
	_, err = c.FetchRevocations(ctx, &since, "next-page")
	require.NoError(t, err)
	assert.Equal(t, []string{t0.Format(time.RFC3339Nano) + "|", "|next-page"}, *seen)

	res, err := c.Redeem(ctx, "qr", "door-1")
	require.NoError(t, err)
	assert.Equal(t, model.RedeemResultUsed, res.Result)
	require.NotNil(t, res.RedeemedAt)
	assert.Equal(t, t0, res.RedeemedAt.UTC())

	_, err = c.Redeem(ctx, "qr", "busy")
	wait, ok := IsRateLimited(err)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, wait)

	c.AccessToken = ""
	_, err = c.Redeem(ctx, "qr", "door-1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "unauthorized", apiErr.Message)
}

func TestRefresh(t *testing.T) {
	signer := newSigner(t)
	srv, _ := newBackend(t, signer)
	c := NewClient(srv.URL, "staff-token")

	keys := NewKeyCache(c, time.Hour, clock.NewFake(t0))
	revs := NewRevocationSet()

	added, err := Refresh(context.Background(), keys, revs, c)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.True(t, revs.Contains("p-revoked"))
	assert.Equal(t, t0, keys.FetchedAt())
}
