package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/willbank/go-session-client/profiles"
)

const defaultTimeout = 10 * time.Second

// LoginResponse is the payload returned by the login, register and refresh
// endpoints. Older gateway builds emitted the access token under "token";
// Token() handles both.
type LoginResponse struct {
	AccessToken  string           `json:"accessToken,omitempty"`
	LegacyToken  string           `json:"token,omitempty"`
	RefreshToken string           `json:"refreshToken,omitempty"`
	Client       profiles.Profile `json:"client"`
}

// Token returns the access token regardless of which wire field carried it.
func (r *LoginResponse) Token() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.LegacyToken
}

// RegisterRequest holds the fields required by the registration endpoint.
type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	CIN       string `json:"cin"`
	FCMToken  string `json:"fcmToken,omitempty"`
}

// RefreshResponse is returned by the token refresh endpoint.
type RefreshResponse struct {
	AccessToken string `json:"accessToken,omitempty"`
	LegacyToken string `json:"token,omitempty"`
}

// Token returns the refreshed access token regardless of wire field.
func (r *RefreshResponse) Token() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.LegacyToken
}

// Client is the auth API consumed by the session manager. Implementations
// fail with the sentinel errors declared in this package so callers can
// classify failures without knowing the transport.
type Client interface {
	Login(ctx context.Context, email, password string) (*LoginResponse, error)
	Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*profiles.Profile, error)
	GetProfile(ctx context.Context, clientID int64) (*profiles.Profile, error)
	RefreshToken(ctx context.Context, refreshToken string) (*RefreshResponse, error)
}

// TokenProvider supplies the current bearer token for authenticated requests.
// Returning "" sends the request unauthenticated.
type TokenProvider func() string

// HTTPClient talks to the backend auth API over HTTP/JSON.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	token   TokenProvider
	log     zerolog.Logger
}

var _ Client = (*HTTPClient)(nil)

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPTimeout overrides the default per-request timeout.
func WithHTTPTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		c.client = hc
	}
}

// WithTokenProvider sets the source of the bearer token attached to
// authenticated requests.
func WithTokenProvider(tp TokenProvider) HTTPOption {
	return func(c *HTTPClient) {
		c.token = tp
	}
}

// WithHTTPLogger sets the logger. Defaults to a no-op logger.
func WithHTTPLogger(log zerolog.Logger) HTTPOption {
	return func(c *HTTPClient) {
		c.log = log
	}
}

// NewHTTPClient creates a client for the auth API rooted at baseURL.
func NewHTTPClient(baseURL string, options ...HTTPOption) (*HTTPClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[NewHTTPClient] baseURL is required")
	}
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		token:   func() string { return "" },
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Login authenticates with email and password.
func (c *HTTPClient) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var out LoginResponse
	status, msg, err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &out)
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPClient.Login]")
	}
	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		return &out, nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, errors.Wrap(ErrInvalidCredentials, msg)
	case status == http.StatusBadRequest:
		return nil, errors.Wrap(ErrValidation, msg)
	case status >= 500:
		return nil, errors.Wrap(ErrServer, msg)
	}
	return nil, errors.Errorf("[HTTPClient.Login] unexpected status %d: %s", status, msg)
}

// Register creates a new client account. A successful registration returns a
// fresh session, identical in shape to a login.
func (c *HTTPClient) Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error) {
	var out LoginResponse
	status, msg, err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &out)
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPClient.Register]")
	}
	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		return &out, nil
	case status == http.StatusConflict:
		return nil, errors.Wrap(ErrConflict, msg)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return nil, errors.Wrap(ErrValidation, msg)
	case status >= 500:
		return nil, errors.Wrap(ErrServer, msg)
	}
	return nil, errors.Errorf("[HTTPClient.Register] unexpected status %d: %s", status, msg)
}

// Logout invalidates the session on the backend. Best-effort: callers are
// expected to clear local state regardless of the outcome.
func (c *HTTPClient) Logout(ctx context.Context) error {
	status, msg, err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	if err != nil {
		return errors.Wrap(err, "[HTTPClient.Logout]")
	}
	if status >= 400 && status != http.StatusUnauthorized {
		return errors.Errorf("[HTTPClient.Logout] status %d: %s", status, msg)
	}
	return nil
}

// Me returns the profile of the currently authenticated client.
func (c *HTTPClient) Me(ctx context.Context) (*profiles.Profile, error) {
	var out profiles.Profile
	status, msg, err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out)
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPClient.Me]")
	}
	switch {
	case status == http.StatusOK:
		return &out, nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, errors.Wrap(ErrUnauthorized, msg)
	case status >= 500:
		return nil, errors.Wrap(ErrServer, msg)
	}
	return nil, errors.Errorf("[HTTPClient.Me] unexpected status %d: %s", status, msg)
}

// GetProfile fetches a client profile by ID.
func (c *HTTPClient) GetProfile(ctx context.Context, clientID int64) (*profiles.Profile, error) {
	var out profiles.Profile
	path := fmt.Sprintf("/api/clients/%d", clientID)
	status, msg, err := c.do(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPClient.GetProfile]")
	}
	switch {
	case status == http.StatusOK:
		return &out, nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, errors.Wrap(ErrUnauthorized, msg)
	case status == http.StatusNotFound:
		return nil, errors.Wrap(ErrUnauthorized, "client not found")
	case status >= 500:
		return nil, errors.Wrap(ErrServer, msg)
	}
	return nil, errors.Errorf("[HTTPClient.GetProfile] unexpected status %d: %s", status, msg)
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *HTTPClient) RefreshToken(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	body := map[string]string{"refreshToken": refreshToken}
	var out RefreshResponse
	status, msg, err := c.do(ctx, http.MethodPost, "/api/auth/refresh", body, &out)
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPClient.RefreshToken]")
	}
	switch {
	case status == http.StatusOK:
		return &out, nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusBadRequest:
		return nil, errors.Wrap(ErrUnauthorized, msg)
	case status >= 500:
		return nil, errors.Wrap(ErrServer, msg)
	}
	return nil, errors.Errorf("[HTTPClient.RefreshToken] unexpected status %d: %s", status, msg)
}

// apiError is the error envelope returned by the backend.
type apiError struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (e apiError) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// do performs a single request and decodes the response. It returns the HTTP
// status, the backend's error message for non-2xx responses, and a transport
// error classified as ErrTimeout/ErrNetwork when no response was received.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) (int, string, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, "", errors.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, "", errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		kind := classifyTransport(err)
		c.log.Debug().Err(err).Str("path", path).Msg("auth api transport failure")
		return 0, "", errors.Wrap(kind, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return resp.StatusCode, apiErr.text(), nil
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, "", errors.Wrap(err, "decode response")
		}
	}
	return resp.StatusCode, "", nil
}
