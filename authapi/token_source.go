package authapi

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const defaultRefreshLeeway = 30 * time.Second

// TokenExpiry extracts the "exp" claim from an access token without
// verifying the signature. Validation is the backend's job; the client only
// needs the expiry to decide when to refresh. Returns the zero time when the
// token carries no expiry.
func TokenExpiry(raw string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, errors.Wrap(err, "[TokenExpiry] parse token")
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// Refresher is the slice of the session manager the token source depends on.
type Refresher interface {
	AccessToken() string
	RefreshAccessToken(ctx context.Context) error
}

// TokenSource exposes the managed session as an oauth2.TokenSource so other
// backend service clients (account, transaction, notification) can reuse the
// session's credentials with standard oauth2 transports.
type TokenSource struct {
	ctx     context.Context
	session Refresher
	leeway  time.Duration
	nowTime func() time.Time
}

var _ oauth2.TokenSource = (*TokenSource)(nil)

// TokenSourceOption configures a TokenSource.
type TokenSourceOption func(*TokenSource)

// WithRefreshLeeway sets how long before expiry a refresh is triggered.
func WithRefreshLeeway(d time.Duration) TokenSourceOption {
	return func(ts *TokenSource) {
		ts.leeway = d
	}
}

// WithTokenSourceNowTime sets the now time function (primarily for testing).
func WithTokenSourceNowTime(nowFunc func() time.Time) TokenSourceOption {
	return func(ts *TokenSource) {
		ts.nowTime = nowFunc
	}
}

// NewTokenSource creates a TokenSource bound to the given session. The
// context is used for refresh calls triggered from Token().
func NewTokenSource(ctx context.Context, session Refresher, options ...TokenSourceOption) (*TokenSource, error) {
	if session == nil {
		return nil, errors.New("[NewTokenSource] session is required")
	}
	ts := &TokenSource{
		ctx:     ctx,
		session: session,
		leeway:  defaultRefreshLeeway,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(ts)
	}
	return ts, nil
}

// Token returns the current access token, refreshing it through the session
// manager when it is within the leeway window of its expiry.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	raw := ts.session.AccessToken()
	if raw == "" {
		return nil, errors.Wrap(ErrUnauthorized, "[TokenSource.Token] no active session")
	}

	exp, err := TokenExpiry(raw)
	if err == nil && !exp.IsZero() && exp.Sub(ts.nowTime()) < ts.leeway {
		if err := ts.session.RefreshAccessToken(ts.ctx); err != nil {
			return nil, errors.Wrap(err, "[TokenSource.Token] refresh")
		}
		raw = ts.session.AccessToken()
		exp, _ = TokenExpiry(raw)
	}

	return &oauth2.Token{AccessToken: raw, TokenType: "Bearer", Expiry: exp}, nil
}
