// client.go -- Backend token exchange client.
//
// Posts the canonical initData payload to {backend}/user/token and returns the
// backend's session. Any failure is reported as "no session", never as a panic.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// TokenPath is appended to the backend base URL.
const TokenPath = "/user/token"

// DefaultTimeout bounds a single exchange.
const DefaultTimeout = 5 * time.Second

// maxResponseBytes caps how much of the backend response is read.
const maxResponseBytes = 1 << 20

// Session is the backend's answer to a successful exchange.
// User is passed through untouched.
type Session struct {
	AccessToken string          `json:"accessToken"`
	User        json.RawMessage `json:"user,omitempty"`
}

type request struct {
	InitData     string `json:"initData"`
	ReferralCode string `json:"referralCode,omitempty"`
}

// Client calls the backend token exchange endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient returns a Client for backendURL using the given timeout.
// A non-positive timeout uses DefaultTimeout.
func NewClient(backendURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint:   strings.TrimRight(backendURL, "/") + TokenPath,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Exchange trades initData for a backend session.
// Returns nil on any failure; the cause is logged.
func (c *Client) Exchange(ctx context.Context, initData, referralCode string) *Session {
	sess, err := c.exchange(ctx, initData, referralCode)
	if err != nil {
		slog.WarnContext(ctx, "token exchange failed", "error", err, "endpoint", c.endpoint)
		return nil
	}
	return sess
}

func (c *Client) exchange(ctx context.Context, initData, referralCode string) (*Session, error) {
	body, err := json.Marshal(request{InitData: initData, ReferralCode: referralCode})
	if err != nil {
		return nil, fmt.Errorf("exchange: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("exchange: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("exchange: backend returned %d", resp.StatusCode)
	}

	var sess Session
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&sess); err != nil {
		return nil, fmt.Errorf("exchange: decoding response: %w", err)
	}
	if sess.AccessToken == "" {
		return nil, fmt.Errorf("exchange: response has no access token")
	}
	return &sess, nil
}
