package scanner

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"passgate/internal/domain/model"
	"passgate/internal/qrsign"
)

const defaultHTTPTimeout = 10 * time.Second

// Client はバックエンドの /keys/qr, /revocations, /redeem を叩く
type Client struct {
	BaseURL     string
	AccessToken string
	HTTP        *http.Client
}

func NewClient(baseURL, accessToken string) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		AccessToken: accessToken,
		HTTP:        &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// APIError は 2xx 以外の応答
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// RateLimitedError は 429
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

type keyResponse struct {
	Alg       string `json:"alg"`
	Kid       string `json:"kid"`
	PublicKey string `json:"public_key"`
}

type RedeemResponse struct {
	Result     model.RedeemResult `json:"result"`
	PassID     *string            `json:"pass_id,omitempty"`
	RedeemedAt *time.Time         `json:"redeemed_at,omitempty"`
}

// FetchPublicKey は GET /keys/qr
func (c *Client) FetchPublicKey(ctx context.Context) (*ecdsa.PublicKey, error) {
	var res keyResponse
	if err := c.do(ctx, http.MethodGet, "/keys/qr", nil, &res); err != nil {
		return nil, err
	}
	if res.Alg != qrsign.Algorithm {
		return nil, fmt.Errorf("unexpected key alg %q", res.Alg)
	}
	return qrsign.ParsePublicKeyBase64(res.PublicKey)
}

// FetchRevocations は GET /revocations?since= （続きのページは ?cursor=）
func (c *Client) FetchRevocations(ctx context.Context, since *time.Time, cursor string) (*RevocationDelta, error) {
	path := "/revocations"
	switch {
	case cursor != "":
		path += "?cursor=" + url.QueryEscape(cursor)
	case since != nil:
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}

	var res RevocationDelta
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Redeem は POST /redeem。スキャンした文字列をそのまま送る
func (c *Client) Redeem(ctx context.Context, qrToken, deviceID string) (*RedeemResponse, error) {
	body := map[string]string{"qr_token": qrToken, "device_id": deviceID}

	var res RedeemResponse
	if err := c.do(ctx, http.MethodPost, "/redeem", body, &res); err != nil {
		return nil, err
	}
	if !res.Result.IsKnown() {
		return nil, fmt.Errorf("unknown redeem result %q", res.Result)
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitedError{RetryAfter: retryAfter(resp.Header.Get("Retry-After"), raw)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ヘッダ優先、無ければ本文の retry_after
func retryAfter(header string, body []byte) time.Duration {
	if n, err := strconv.Atoi(header); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	var b struct {
		RetryAfter int `json:"retry_after"`
	}
	if json.Unmarshal(body, &b) == nil && b.RetryAfter > 0 {
		return time.Duration(b.RetryAfter) * time.Second
	}
	return time.Second
}

// IsRateLimited は 429 かどうかと待ち時間を返す
func IsRateLimited(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
