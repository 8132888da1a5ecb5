package authapi_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/willbank/go-session-client/authapi"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

// fakeRefresher stands in for the session manager.
type fakeRefresher struct {
	token     string
	next      string
	refreshed int
	fail      error
}

func (f *fakeRefresher) AccessToken() string { return f.token }

func (f *fakeRefresher) RefreshAccessToken(ctx context.Context) error {
	f.refreshed++
	if f.fail != nil {
		return f.fail
	}
	f.token = f.next
	return nil
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	parsed, err := authapi.TokenExpiry(signedToken(t, exp))
	require.NoError(t, err)
	require.True(t, parsed.Equal(exp))

	_, err = authapi.TokenExpiry("not-a-jwt")
	require.Error(t, err)
}

func TestTokenSourceReturnsFreshToken(t *testing.T) {
	now := time.Now()
	refresher := &fakeRefresher{token: signedToken(t, now.Add(time.Hour))}
	source, err := authapi.NewTokenSource(context.Background(), refresher,
		authapi.WithTokenSourceNowTime(func() time.Time { return now }))
	require.NoError(t, err)

	token, err := source.Token()
	require.NoError(t, err)
	require.Equal(t, refresher.token, token.AccessToken)
	require.Equal(t, "Bearer", token.TokenType)
	require.Zero(t, refresher.refreshed)
}

func TestTokenSourceRefreshesWithinLeeway(t *testing.T) {
	now := time.Now()
	fresh := signedToken(t, now.Add(time.Hour))
	refresher := &fakeRefresher{token: signedToken(t, now.Add(10*time.Second)), next: fresh}
	source, err := authapi.NewTokenSource(context.Background(), refresher,
		authapi.WithRefreshLeeway(30*time.Second),
		authapi.WithTokenSourceNowTime(func() time.Time { return now }))
	require.NoError(t, err)

	token, err := source.Token()
	require.NoError(t, err)
	require.Equal(t, fresh, token.AccessToken)
	require.Equal(t, 1, refresher.refreshed)
}

func TestTokenSourceSurfacesRefreshFailure(t *testing.T) {
	now := time.Now()
	refresher := &fakeRefresher{
		token: signedToken(t, now.Add(time.Second)),
		fail:  errors.Wrap(authapi.ErrUnauthorized, "refresh token rejected"),
	}
	source, err := authapi.NewTokenSource(context.Background(), refresher,
		authapi.WithTokenSourceNowTime(func() time.Time { return now }))
	require.NoError(t, err)

	_, err = source.Token()
	require.ErrorIs(t, err, authapi.ErrUnauthorized)
}

func TestTokenSourceWithoutSession(t *testing.T) {
	source, err := authapi.NewTokenSource(context.Background(), &fakeRefresher{})
	require.NoError(t, err)

	_, err = source.Token()
	require.ErrorIs(t, err, authapi.ErrUnauthorized)
}
