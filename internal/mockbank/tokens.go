package mockbank

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const refreshTokenLength = 32 // bytes of entropy, hex encoded

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// TokenService issues and validates the mock backend's tokens: HS256 access
// tokens and opaque refresh tokens, one per user.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowTime    func() time.Time

	lock     sync.Mutex
	refresh  map[string]*refreshRecord
	byUserID map[int64]string
}

type refreshRecord struct {
	userID   int64
	issuedAt time.Time
}

// TokenServiceOption configures a TokenService.
type TokenServiceOption func(*TokenService)

// WithTokenNowTime sets the now time function (primarily for testing).
func WithTokenNowTime(nowFunc func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		ts.nowTime = nowFunc
	}
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration, options ...TokenServiceOption) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("[NewTokenService] secret is required")
	}
	ts := &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		nowTime:    time.Now,
		refresh:    make(map[string]*refreshRecord),
		byUserID:   make(map[int64]string),
	}
	for _, opt := range options {
		opt(ts)
	}
	return ts, nil
}

type accessClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// IssueAccessToken creates a signed access token for the user.
func (ts *TokenService) IssueAccessToken(userID int64, email string) (string, error) {
	now := ts.nowTime()
	claims := accessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "willbank-mockbank",
			Subject:   strconv.FormatInt(userID, 10),
			Audience:  jwt.ClaimStrings{"willbank-client"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.secret)
	if err != nil {
		return "", errors.Wrap(err, "[TokenService.IssueAccessToken] sign")
	}
	return signed, nil
}

// ParseAccessToken verifies a token and returns the user ID it identifies.
func (ts *TokenService) ParseAccessToken(raw string) (int64, error) {
	var claims accessClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return ts.secret, nil
	}, jwt.WithTimeFunc(ts.nowTime))
	if err != nil || !token.Valid {
		return 0, ErrTokenInvalid
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrTokenInvalid
	}
	return userID, nil
}

// IssueRefreshToken creates a refresh token, replacing any existing token
// for the user.
func (ts *TokenService) IssueRefreshToken(userID int64) (string, error) {
	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "[TokenService.IssueRefreshToken] generate random bytes")
	}
	token := hex.EncodeToString(tokenBytes)

	ts.lock.Lock()
	defer ts.lock.Unlock()

	if existing, ok := ts.byUserID[userID]; ok {
		delete(ts.refresh, existing)
	}
	ts.refresh[token] = &refreshRecord{userID: userID, issuedAt: ts.nowTime()}
	ts.byUserID[userID] = token
	return token, nil
}

// RedeemRefreshToken validates a refresh token and returns its user. The
// token stays valid until it expires or is revoked.
func (ts *TokenService) RedeemRefreshToken(token string) (int64, error) {
	ts.lock.Lock()
	defer ts.lock.Unlock()

	record, ok := ts.refresh[token]
	if !ok {
		return 0, ErrTokenInvalid
	}
	if ts.nowTime().Sub(record.issuedAt) > ts.refreshTTL {
		delete(ts.refresh, token)
		delete(ts.byUserID, record.userID)
		return 0, ErrTokenExpired
	}
	return record.userID, nil
}

// RevokeUser drops the user's refresh token.
func (ts *TokenService) RevokeUser(userID int64) {
	ts.lock.Lock()
	defer ts.lock.Unlock()

	if token, ok := ts.byUserID[userID]; ok {
		delete(ts.refresh, token)
		delete(ts.byUserID, userID)
	}
}

// PurgeExpired removes expired refresh tokens. Returns how many were
// dropped.
func (ts *TokenService) PurgeExpired() int {
	ts.lock.Lock()
	defer ts.lock.Unlock()

	now := ts.nowTime()
	purged := 0
	for token, record := range ts.refresh {
		if now.Sub(record.issuedAt) > ts.refreshTTL {
			delete(ts.refresh, token)
			delete(ts.byUserID, record.userID)
			purged++
		}
	}
	return purged
}
