package nvr

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultPort = 20443

	// Renew the token this long before the device-reported expiry.
	tokenRenewMargin = 10 * time.Minute

	defaultTokenLifetime = time.Hour
	defaultTimeout       = 60 * time.Second
)

// ConnectionParams identify one NVR and how to authenticate to it.
// Immutable once constructed.
type ConnectionParams struct {
	Host      string
	Port      int
	Username  string
	Password  string
	VerifyTLS bool
	Timeout   time.Duration
}

func (p ConnectionParams) baseURL() string {
	port := p.Port
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("https://%s:%d", p.Host, port)
}

// Token is a bearer token issued by the device at login.
type Token struct {
	Value     string
	Type      string
	ExpiresAt time.Time
}

// Expired reports whether the token needs renewal, including a margin so a
// long download does not start on a token about to lapse.
func (t *Token) Expired() bool {
	if t == nil || t.Value == "" {
		return true
	}
	return time.Now().After(t.ExpiresAt.Add(-tokenRenewMargin))
}

// Authenticator performs the vendor login handshake. It is pluggable so
// firmware variants with a different handshake only swap this out.
type Authenticator interface {
	Login(ctx context.Context, httpClient *http.Client, baseURL string) (*Token, error)
}

// Session is an authenticated context against one NVR. It is owned by one
// run at a time; methods must not be called concurrently.
type Session struct {
	params ConnectionParams
	http   *http.Client
	auth   Authenticator
	token  *Token
	log    zerolog.Logger
	closed bool
}

// SessionOption adjusts Open behavior.
type SessionOption func(*Session)

// WithAuthenticator replaces the default OpenAPI token handshake.
func WithAuthenticator(a Authenticator) SessionOption {
	return func(s *Session) { s.auth = a }
}

// WithLogger attaches a logger for request/response debug output.
func WithLogger(log zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// WithHTTPClient replaces the transport, used by tests to point the session
// at a stub device.
func WithHTTPClient(c *http.Client) SessionOption {
	return func(s *Session) { s.http = c }
}

// Open logs in to the NVR and returns an authenticated session.
func Open(ctx context.Context, params ConnectionParams, opts ...SessionOption) (*Session, error) {
	if params.Host == "" {
		return nil, validationErrorf("open session", "host is required")
	}
	if params.Username == "" {
		return nil, validationErrorf("open session", "username is required")
	}
	timeout := params.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	s := &Session{
		params: params,
		auth:   &openAPIAuthenticator{username: params.Username, password: params.Password},
		log:    zerolog.Nop(),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: !params.VerifyTLS},
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.login(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) login(ctx context.Context) error {
	s.log.Debug().Str("host", s.params.Host).Msg("logging in")
	token, err := s.auth.Login(ctx, s.http, s.params.baseURL())
	if err != nil {
		return err
	}
	s.token = token
	s.log.Debug().Time("expires_at", token.ExpiresAt).Msg("login succeeded")
	return nil
}

// EnsureValid re-authenticates if the token is expired, about to expire, or
// was invalidated by a prior authorization failure. One attempt; a failed
// re-login surfaces as an auth-classified error.
func (s *Session) EnsureValid(ctx context.Context) error {
	if !s.token.Expired() {
		return nil
	}
	return s.login(ctx)
}

// Invalidate drops the token so the next EnsureValid logs in again. Called
// after the device signals an authorization failure.
func (s *Session) Invalidate() {
	s.token = nil
}

// Host returns the device host this session is bound to.
func (s *Session) Host() string { return s.params.Host }

// Close releases the underlying transport. Idempotent.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.token = nil
	s.http.CloseIdleConnections()
}

// apiEnvelope is the JSON wrapper around every OpenAPI response.
type apiEnvelope struct {
	ErrorCode int             `json:"error_code"`
	ErrorMsg  string          `json:"error_msg"`
	Result    json.RawMessage `json:"result"`
}

// do issues one authenticated JSON API call and decodes result into out.
// On an authorization failure it re-authenticates once and retries.
func (s *Session) do(ctx context.Context, method, path string, body, out any) error {
	err := s.doOnce(ctx, method, path, body, out)
	if KindOf(err) != KindAuth {
		return err
	}
	s.log.Debug().Str("path", path).Msg("authorization rejected, re-authenticating")
	s.Invalidate()
	if lerr := s.EnsureValid(ctx); lerr != nil {
		return lerr
	}
	return s.doOnce(ctx, method, path, body, out)
}

func (s *Session) doOnce(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + path
	host := s.params.Host

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return newError(KindProtocol, op, host, fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.params.baseURL()+path, reader)
	if err != nil {
		return newError(KindProtocol, op, host, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != nil {
		req.Header.Set("Authorization", s.token.Type+" "+s.token.Value)
	}

	s.log.Debug().Str("method", method).Str("path", path).Msg("api request")
	resp, err := s.http.Do(req)
	if err != nil {
		return classifyTransport(op, host, err)
	}
	defer resp.Body.Close()
	s.log.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("api response")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return newError(KindAuth, op, host, fmt.Errorf("device rejected authorization (status %d)", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return newError(KindProtocol, op, host, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(op, host, err)
	}
	if len(raw) == 0 {
		return nil
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return newError(KindProtocol, op, host, fmt.Errorf("unparsable response: %w", err))
	}
	if envelope.ErrorCode != 0 {
		msg := envelope.ErrorMsg
		if msg == "" {
			msg = "unknown device error"
		}
		if isAuthErrorCode(envelope.ErrorCode) {
			return newError(KindAuth, op, host, fmt.Errorf("device error %d: %s", envelope.ErrorCode, msg))
		}
		return newError(KindProtocol, op, host, fmt.Errorf("device error %d: %s", envelope.ErrorCode, msg))
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return newError(KindProtocol, op, host, fmt.Errorf("unparsable result: %w", err))
		}
	}
	return nil
}

// stream issues an authenticated GET expected to return a byte stream. The
// caller owns the response body. A JSON or HTML body on a stream URL is a
// device error, not video data.
func (s *Session) stream(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	op := "GET " + path
	host := s.params.Host

	u := s.params.baseURL() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, newError(KindProtocol, op, host, err)
	}
	if s.token != nil {
		req.Header.Set("Authorization", s.token.Type+" "+s.token.Value)
	}

	s.log.Debug().Str("path", path).Msg("stream request")
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, classifyTransport(op, host, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, newError(KindAuth, op, host, fmt.Errorf("device rejected authorization (status %d)", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, newError(KindProtocol, op, host, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "json") || strings.Contains(ct, "html") {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var envelope apiEnvelope
		if err := json.Unmarshal(raw, &envelope); err == nil && envelope.ErrorCode != 0 {
			if isAuthErrorCode(envelope.ErrorCode) {
				return nil, newError(KindAuth, op, host, fmt.Errorf("device error %d: %s", envelope.ErrorCode, envelope.ErrorMsg))
			}
			return nil, newError(KindProtocol, op, host, fmt.Errorf("device error %d: %s", envelope.ErrorCode, envelope.ErrorMsg))
		}
		return nil, newError(KindProtocol, op, host, fmt.Errorf("expected stream, got %s", ct))
	}
	return resp, nil
}

// Device error codes that mean the token is no longer accepted.
func isAuthErrorCode(code int) bool {
	switch code {
	case -40401, -40407, 40401, 40407:
		return true
	}
	return false
}

// openAPIAuthenticator implements the Vigi OpenAPI token handshake:
// POST /openapi/token with credentials, bearer token in the result.
type openAPIAuthenticator struct {
	username string
	password string
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResult struct {
	AccessToken    string `json:"access_token"`
	Stok           string `json:"stok"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (a *openAPIAuthenticator) Login(ctx context.Context, httpClient *http.Client, baseURL string) (*Token, error) {
	const op = "login"
	host := baseURL

	raw, err := json.Marshal(loginRequest{Username: a.username, Password: a.password})
	if err != nil {
		return nil, newError(KindProtocol, op, host, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/openapi/token", bytes.NewReader(raw))
	if err != nil {
		return nil, newError(KindProtocol, op, host, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(op, host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, newError(KindAuth, op, host, fmt.Errorf("invalid credentials (status %d)", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newError(KindProtocol, op, host, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, newError(KindProtocol, op, host, fmt.Errorf("unparsable login response: %w", err))
	}
	if envelope.ErrorCode != 0 {
		return nil, newError(KindAuth, op, host, fmt.Errorf("login failed: device error %d: %s", envelope.ErrorCode, envelope.ErrorMsg))
	}

	var result loginResult
	if err := json.Unmarshal(envelope.Result, &result); err != nil {
		return nil, newError(KindProtocol, op, host, fmt.Errorf("unparsable login result: %w", err))
	}
	value := result.AccessToken
	if value == "" {
		value = result.Stok
	}
	if value == "" {
		return nil, newError(KindProtocol, op, host, fmt.Errorf("no access token in login response"))
	}
	lifetime := defaultTokenLifetime
	if result.TimeoutSeconds > 0 {
		lifetime = time.Duration(result.TimeoutSeconds) * time.Second
	}
	return &Token{Value: value, Type: "Bearer", ExpiresAt: time.Now().Add(lifetime)}, nil
}
