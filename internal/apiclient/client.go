// Package apiclient is a typed HTTP client for the account-management REST
// API consumed by the account controller and credential engine. It follows
// the same injectable-httpClient, mutex-guarded-config shape as
// grimm-is-flywall/internal/notification.Dispatcher, generalized to the
// vpn-api's routes, auth headers and retry rules.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	nymerrors "go.nymvpn.network/core/internal/errors"
	"go.nymvpn.network/core/internal/logging"
)

const (
	requestTimeout  = 60 * time.Second
	retryAttempts   = 3
	retryBackoff    = 500 * time.Millisecond
	deviceAuthorHdr = "x-device-authorization"
)

// Client talks to the account-management API under /public/v1. It is
// cloneable in spirit (safe for concurrent use) and internally
// synchronized; SetStaticAddresses replaces the resolved base URL
// atomically (spec §9 "the vpn-api client is cloneable and internally
// synchronized; mutating its DNS overrides replaces the inner client
// atomically").
type Client struct {
	mu         sync.RWMutex
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger

	accountJWT string
	deviceJWT  string

	// resyncClock is called when an endpoint returns a JWT-related
	// failure, to re-sync the local clock against /health before the
	// single retry (spec §6, §9 "per-endpoint, not shared mutable
	// state").
	resyncClock func(ctx context.Context) error
}

// Option configures a Client at construction time.
type Option func(*Client)

func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New builds a Client against baseURL (e.g. "https://nymvpn.com/api").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logging.Default().WithComponent("apiclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resyncClock = c.defaultResyncClock
	return c
}

// SetAccountJWT installs the bearer token used for account-scoped routes.
func (c *Client) SetAccountJWT(jwt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accountJWT = jwt
}

// SetDeviceJWT installs the token sent in the x-device-authorization header.
func (c *Client) SetDeviceJWT(jwt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceJWT = jwt
}

// SetStaticAddresses atomically swaps the client's resolved base URL,
// bypassing DNS for the vpn-api host (spec §9 "Static API address
// override" supplement).
func (c *Client) SetStaticAddresses(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) snapshot() (baseURL, accountJWT, deviceJWT string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL, c.accountJWT, c.deviceJWT
}

// ErrorResponse is the JSON error body returned by the vpn-api (spec §7
// "VpnApi(ErrorResponse{message,message_id,code_reference_id})").
type ErrorResponse struct {
	Message         string `json:"message"`
	MessageID       string `json:"message_id"`
	CodeReferenceID string `json:"code_reference_id"`
}

// VpnApiError wraps a non-2xx response body that parsed as ErrorResponse.
type VpnApiError struct {
	StatusCode int
	Body       ErrorResponse
}

func (e *VpnApiError) Error() string {
	return fmt.Sprintf("vpn-api error (status %d, id %s): %s", e.StatusCode, e.Body.MessageID, e.Body.Message)
}

// isJWTFailure reports whether the API rejected the request's auth, per
// spec §6 ("If an endpoint returns a JWT-related failure, re-sync local
// clock ... and retry once").
func isJWTFailure(status int, body ErrorResponse) bool {
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		return false
	}
	return true
}

// do executes a single HTTP round trip with transient-error retry and the
// one-shot JWT clock-resync retry. retryBudget is reset per call (spec §9:
// "a per-request retry budget of 1, reset per call, not shared mutable
// state"), so account-JWT and device-JWT endpoints each get their own
// independent shot at resyncing.
func (c *Client) do(ctx context.Context, method, path string, body any, out any, auth authMode) error {
	jwtRetryBudget := 1

	for {
		resp, respBody, err := c.attempt(ctx, method, path, body, auth)
		if err != nil {
			return err
		}
		defer func() {}()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out != nil && len(respBody) > 0 {
				if jerr := json.Unmarshal(respBody, out); jerr != nil {
					return nymerrors.Wrap(jerr, nymerrors.KindInternal, "decode vpn-api response")
				}
			}
			return nil
		}

		var errBody ErrorResponse
		_ = json.Unmarshal(respBody, &errBody)

		if isJWTFailure(resp.StatusCode, errBody) && jwtRetryBudget > 0 {
			jwtRetryBudget--
			if rerr := c.resyncClock(ctx); rerr != nil {
				c.logger.Warn("clock resync before retry failed", "error", rerr)
			}
			continue
		}

		if isTransientStatus(resp.StatusCode) {
			return &VpnApiError{StatusCode: resp.StatusCode, Body: errBody}
		}

		return &VpnApiError{StatusCode: resp.StatusCode, Body: errBody}
	}
}

type authMode int

const (
	authNone authMode = iota
	authAccount
	authDevice
)

func (c *Client) attempt(ctx context.Context, method, path string, body any, auth authMode) (*http.Response, []byte, error) {
	baseURL, accountJWT, deviceJWT := c.snapshot()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, nil, nymerrors.Wrap(err, nymerrors.KindValidation, "encode vpn-api request")
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reqBody)
	if err != nil {
		return nil, nil, nymerrors.Wrap(err, nymerrors.KindInternal, "build vpn-api request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch auth {
	case authAccount:
		req.Header.Set("Authorization", "Bearer "+accountJWT)
	case authDevice:
		req.Header.Set(deviceAuthorHdr, deviceJWT)
	}

	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(retryBackoff):
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		respBody, rerr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if rerr != nil {
			lastErr = rerr
			continue
		}
		if isTransientStatus(resp.StatusCode) && attempt < retryAttempts-1 {
			lastErr = fmt.Errorf("transient status %d", resp.StatusCode)
			continue
		}
		return resp, respBody, nil
	}
	return nil, nil, nymerrors.Wrapf(lastErr, nymerrors.KindUnavailable, "vpn-api request to %s failed after retries", path)
}

func isTransientStatus(status int) bool {
	return status >= 500 && status < 600
}

// defaultResyncClock fetches /public/v1/health and logs the skew between
// the local clock and the server's timestamp_utc; it does not adjust the
// local clock.
func (c *Client) defaultResyncClock(ctx context.Context) error {
	var h HealthResponse
	if err := c.do(ctx, http.MethodGet, "/public/v1/health", nil, &h, authNone); err != nil {
		return err
	}
	c.logger.Info("vpn-api clock skew", "skew", time.Since(h.TimestampUTC).String())
	return nil
}
