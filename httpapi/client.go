package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrBaseURL is an exported constant or variable used by the wire client.
var ErrBaseURL = errors.New("invalid API base URL")

// ErrTransport wraps network-level failures: DNS, refused connections,
// timeouts. The server was never reached or never answered.
var ErrTransport = errors.New("auth API unreachable")

// ErrServerPayload is returned when the server answered with a body the
// API contract does not allow.
var ErrServerPayload = errors.New("auth API returned an invalid payload")

// ErrServerStatus is returned for status codes outside the contract
// (anything that is neither a success nor an expected rejection).
var ErrServerStatus = errors.New("auth API returned an unexpected status")

const defaultTimeout = 15 * time.Second

const (
	pathMe                    = "/api/auth/me"
	pathRefresh               = "/api/auth/refresh"
	pathSignIn                = "/api/auth/signin"
	pathSignOut               = "/api/auth/signout"
	pathSignOutAll            = "/api/auth/signout-all"
	pathVerifyTwoFactor       = "/api/auth/2fa/verify"
	pathRequestCode           = "/api/auth/2fa/request-code"
	pathRequestAdditionalCode = "/api/auth/2fa/request-additional-code"
	pathDeviceTrust           = "/api/auth/device-trust"
)

// maxResponseBytes bounds how much of a response body is ever read.
const maxResponseBytes = 1 << 20

// Client speaks the authentication API. Client instances are intended
// to be configured during initialization and then treated as immutable
// unless documented otherwise.
//
//	Docs: docs/resolution.md
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
}

// Option customizes a [Client] during construction.
type Option func(*Client)

// WithHTTPClient swaps the underlying [http.Client]. The caller keeps
// ownership of cookie jar and transport configuration.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient builds a [Client] rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrBaseURL, baseURL)
	}

	c := &Client{
		base: parsed,
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// authResponse is the common success envelope for identity-bearing
// endpoints. requiresTwoFactor switches the envelope into challenge
// mode, in which user is absent.
type authResponse struct {
	User               *Identity `json:"user"`
	AccessToken        string    `json:"accessToken"`
	ExpiresIn          int64     `json:"expiresIn"`
	RequiresTwoFactor  bool      `json:"requiresTwoFactor"`
	TwoFactorSessionID string    `json:"sessionId"`
	Methods            []string  `json:"methods"`
	AdditionalMethods  []string  `json:"additionalMethods"`
}

// verifyResponse covers both the 200 acceptance body and the 401
// rejection body of the verification endpoint.
type verifyResponse struct {
	User              *Identity `json:"user"`
	AccessToken       string    `json:"accessToken"`
	ExpiresIn         int64     `json:"expiresIn"`
	FailedAttempts    int       `json:"failedAttempts"`
	AdditionalMethods []string  `json:"additionalMethods"`
	Message           string    `json:"message"`
}

// Me fetches the current identity using ambient credentials (cookies).
//
// Me may return an error when input validation, dependency calls, or
// security checks fail; a clean 401 is reported as
// [OutcomeUnauthorized], not as an error.
func (c *Client) Me(ctx context.Context) (*AuthOutcome, error) {
	resp, err := c.do(ctx, http.MethodGet, pathMe, nil)
	if err != nil {
		return nil, err
	}
	return c.decodeAuthOutcome(resp)
}

// Refresh asks the server to renew the session. The device fingerprint
// rides along so the server can spot renewals from an unexpected device.
func (c *Client) Refresh(ctx context.Context, deviceFingerprint string) (*AuthOutcome, error) {
	body := map[string]string{"deviceFingerprint": deviceFingerprint}
	resp, err := c.do(ctx, http.MethodPost, pathRefresh, body)
	if err != nil {
		return nil, err
	}
	return c.decodeAuthOutcome(resp)
}

// SignIn exchanges credentials for a session or a two-factor challenge.
func (c *Client) SignIn(ctx context.Context, req SignInRequest) (*AuthOutcome, error) {
	resp, err := c.do(ctx, http.MethodPost, pathSignIn, req)
	if err != nil {
		return nil, err
	}
	return c.decodeAuthOutcome(resp)
}

// VerifyTwoFactor submits one verification attempt. Rejection comes
// back as a [VerifyOutcome] with OK=false, including the server's
// attempt counter and any newly unlocked recovery methods.
func (c *Client) VerifyTwoFactor(ctx context.Context, req VerifyRequest) (*VerifyOutcome, error) {
	resp, err := c.do(ctx, http.MethodPost, pathVerifyTwoFactor, req)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		var decoded verifyResponse
		if err := decodeBody(resp, &decoded); err != nil {
			return nil, err
		}
		if decoded.User == nil || decoded.User.UserID == "" {
			return nil, fmt.Errorf("%w: verification accepted without a user", ErrServerPayload)
		}
		return &VerifyOutcome{
			OK:          true,
			Identity:    decoded.User,
			AccessToken: decoded.AccessToken,
			ExpiresIn:   decoded.ExpiresIn,
		}, nil
	case http.StatusUnauthorized, http.StatusBadRequest:
		var decoded verifyResponse
		// A bare rejection body is allowed; decode errors here collapse
		// to an empty rejection rather than failing the attempt.
		_ = decodeBody(resp, &decoded)
		return &VerifyOutcome{
			OK:                false,
			FailedAttempts:    decoded.FailedAttempts,
			AdditionalMethods: decoded.AdditionalMethods,
			Message:           decoded.Message,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrServerStatus, resp.StatusCode)
	}
}

// RequestCode asks the server to dispatch a verification code for one
// of the challenge's primary methods.
func (c *Client) RequestCode(ctx context.Context, sessionID, method string) (*ChallengeReceipt, error) {
	return c.requestCode(ctx, pathRequestCode, sessionID, method)
}

// RequestAdditionalCode dispatches a code for a recovery-tier method.
// Recovery methods use their own endpoint so the server can apply
// stricter rate limits to them.
func (c *Client) RequestAdditionalCode(ctx context.Context, sessionID, method string) (*ChallengeReceipt, error) {
	return c.requestCode(ctx, pathRequestAdditionalCode, sessionID, method)
}

func (c *Client) requestCode(ctx context.Context, endpoint, sessionID, method string) (*ChallengeReceipt, error) {
	body := map[string]string{"sessionId": sessionID, "method": method}
	resp, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrServerStatus, resp.StatusCode)
	}

	receipt := &ChallengeReceipt{}
	if err := decodeBody(resp, receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// SignOut ends the current session on the server.
func (c *Client) SignOut(ctx context.Context) error {
	return c.postAndDiscard(ctx, pathSignOut, nil)
}

// SignOutAll ends every session belonging to the current user.
func (c *Client) SignOutAll(ctx context.Context) error {
	return c.postAndDiscard(ctx, pathSignOutAll, nil)
}

// SetDeviceTrust marks or unmarks the calling device as trusted.
func (c *Client) SetDeviceTrust(ctx context.Context, trusted bool, deviceFingerprint string, device DeviceInfo) error {
	body := struct {
		Trusted           bool       `json:"trusted"`
		DeviceFingerprint string     `json:"deviceFingerprint"`
		Device            DeviceInfo `json:"deviceInfo"`
	}{trusted, deviceFingerprint, device}
	return c.postAndDiscard(ctx, pathDeviceTrust, body)
}

func (c *Client) postAndDiscard(ctx context.Context, endpoint string, body any) error {
	resp, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: %d", ErrServerStatus, resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	target := c.base.JoinPath(endpoint)

	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return resp, nil
}

func (c *Client) decodeAuthOutcome(resp *http.Response) (*AuthOutcome, error) {
	defer drainAndClose(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return &AuthOutcome{Kind: OutcomeUnauthorized}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrServerStatus, resp.StatusCode)
	}

	var decoded authResponse
	if err := decodeBody(resp, &decoded); err != nil {
		return nil, err
	}

	if decoded.RequiresTwoFactor {
		if decoded.TwoFactorSessionID == "" || len(decoded.Methods) == 0 {
			return nil, fmt.Errorf("%w: two-factor challenge missing session or methods", ErrServerPayload)
		}
		return &AuthOutcome{
			Kind: OutcomeTwoFactorRequired,
			TwoFactor: &TwoFactorChallenge{
				SessionID:         decoded.TwoFactorSessionID,
				Methods:           decoded.Methods,
				AdditionalMethods: decoded.AdditionalMethods,
			},
		}, nil
	}

	if decoded.User == nil || decoded.User.UserID == "" {
		return nil, fmt.Errorf("%w: success without a user", ErrServerPayload)
	}

	return &AuthOutcome{
		Kind:        OutcomeAuthenticated,
		Identity:    decoded.User,
		AccessToken: decoded.AccessToken,
		ExpiresIn:   decoded.ExpiresIn,
	}, nil
}

func decodeBody(resp *http.Response, v any) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty body", ErrServerPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrServerPayload, err)
	}
	return nil
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
}
