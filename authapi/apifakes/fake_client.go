package apifakes

import (
	"context"
	"sync"

	"github.com/willbank/go-session-client/authapi"
	"github.com/willbank/go-session-client/profiles"
)

var _ authapi.Client = (*FakeClient)(nil)

// FakeClient is a scriptable auth API client for tests. Assign the *Fn
// fields to script behaviour; unset operations succeed with zero values.
type FakeClient struct {
	lock sync.Mutex

	LoginFn        func(ctx context.Context, email, password string) (*authapi.LoginResponse, error)
	RegisterFn     func(ctx context.Context, req authapi.RegisterRequest) (*authapi.LoginResponse, error)
	LogoutFn       func(ctx context.Context) error
	MeFn           func(ctx context.Context) (*profiles.Profile, error)
	GetProfileFn   func(ctx context.Context, clientID int64) (*profiles.Profile, error)
	RefreshTokenFn func(ctx context.Context, refreshToken string) (*authapi.RefreshResponse, error)

	LoginCalls        int
	RegisterCalls     int
	LogoutCalls       int
	MeCalls           int
	GetProfileCalls   int
	RefreshTokenCalls int
}

func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

func (f *FakeClient) Login(ctx context.Context, email, password string) (*authapi.LoginResponse, error) {
	f.lock.Lock()
	f.LoginCalls++
	fn := f.LoginFn
	f.lock.Unlock()
	if fn == nil {
		return &authapi.LoginResponse{}, nil
	}
	return fn(ctx, email, password)
}

func (f *FakeClient) Register(ctx context.Context, req authapi.RegisterRequest) (*authapi.LoginResponse, error) {
	f.lock.Lock()
	f.RegisterCalls++
	fn := f.RegisterFn
	f.lock.Unlock()
	if fn == nil {
		return &authapi.LoginResponse{}, nil
	}
	return fn(ctx, req)
}

func (f *FakeClient) Logout(ctx context.Context) error {
	f.lock.Lock()
	f.LogoutCalls++
	fn := f.LogoutFn
	f.lock.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (f *FakeClient) Me(ctx context.Context) (*profiles.Profile, error) {
	f.lock.Lock()
	f.MeCalls++
	fn := f.MeFn
	f.lock.Unlock()
	if fn == nil {
		return &profiles.Profile{}, nil
	}
	return fn(ctx)
}

func (f *FakeClient) GetProfile(ctx context.Context, clientID int64) (*profiles.Profile, error) {
	f.lock.Lock()
	f.GetProfileCalls++
	fn := f.GetProfileFn
	f.lock.Unlock()
	if fn == nil {
		return &profiles.Profile{ID: clientID}, nil
	}
	return fn(ctx, clientID)
}

func (f *FakeClient) RefreshToken(ctx context.Context, refreshToken string) (*authapi.RefreshResponse, error) {
	f.lock.Lock()
	f.RefreshTokenCalls++
	fn := f.RefreshTokenFn
	f.lock.Unlock()
	if fn == nil {
		return &authapi.RefreshResponse{}, nil
	}
	return fn(ctx, refreshToken)
}
