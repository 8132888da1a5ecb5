package guard_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/willbank/go-session-client/authapi"
	"github.com/willbank/go-session-client/authapi/apifakes"
	"github.com/willbank/go-session-client/guard"
	"github.com/willbank/go-session-client/profiles"
	"github.com/willbank/go-session-client/session"
	"github.com/willbank/go-session-client/store/storefakes"
)

const (
	loginPath = "/login"
	homePath  = "/home"
)

// fakeRouter records redirects and plays back the current route.
type fakeRouter struct {
	lock      sync.Mutex
	route     guard.Route
	redirects []string
}

func (r *fakeRouter) CurrentRoute() guard.Route {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.route
}

func (r *fakeRouter) Redirect(path string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.redirects = append(r.redirects, path)
	r.route.Path = path
	switch path {
	case loginPath:
		r.route.Class = guard.ClassPublicAuth
	case homePath:
		r.route.Class = guard.ClassProtected
	}
}

func (r *fakeRouter) redirectLog() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.redirects...)
}

type guardFixture struct {
	router  *fakeRouter
	api     *apifakes.FakeClient
	manager *session.Manager
	guard   *guard.Guard
}

func setupGuardFixture(t *testing.T, route guard.Route) *guardFixture {
	t.Helper()

	router := &fakeRouter{route: route}
	api := apifakes.NewFakeClient()
	manager, err := session.New(session.Deps{API: api, Store: storefakes.NewFakeStore()})
	require.NoError(t, err)
	g, err := guard.New(router, manager, loginPath, homePath)
	require.NoError(t, err)

	return &guardFixture{router: router, api: api, manager: manager, guard: g}
}

func TestEvaluatePolicy(t *testing.T) {
	tests := []struct {
		name     string
		status   session.Status
		class    guard.RouteClass
		expected guard.Decision
	}{
		{"unauthenticated on protected", session.StatusUnauthenticated, guard.ClassProtected, guard.DecisionRedirectToLogin},
		{"unknown on protected", session.StatusUnknown, guard.ClassProtected, guard.DecisionRedirectToLogin},
		{"authenticating on protected", session.StatusAuthenticating, guard.ClassProtected, guard.DecisionRedirectToLogin},
		{"authenticated on protected", session.StatusAuthenticated, guard.ClassProtected, guard.DecisionAllow},
		{"authenticated on public-auth", session.StatusAuthenticated, guard.ClassPublicAuth, guard.DecisionRedirectToHome},
		{"unauthenticated on public-auth", session.StatusUnauthenticated, guard.ClassPublicAuth, guard.DecisionAllow},
		{"authenticated on public", session.StatusAuthenticated, guard.ClassPublic, guard.DecisionAllow},
		{"unauthenticated on public", session.StatusUnauthenticated, guard.ClassPublic, guard.DecisionAllow},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, guard.Evaluate(tc.status, tc.class))
		})
	}
}

func TestNewValidatesArguments(t *testing.T) {
	api := apifakes.NewFakeClient()
	manager, err := session.New(session.Deps{API: api, Store: storefakes.NewFakeStore()})
	require.NoError(t, err)
	router := &fakeRouter{}

	_, err = guard.New(nil, manager, loginPath, homePath)
	require.Error(t, err)
	_, err = guard.New(router, nil, loginPath, homePath)
	require.Error(t, err)
	_, err = guard.New(router, manager, "", homePath)
	require.Error(t, err)
	_, err = guard.New(router, manager, loginPath, loginPath)
	require.Error(t, err)
}

func TestApplyRedirectsUnauthenticatedFromProtected(t *testing.T) {
	f := setupGuardFixture(t, guard.Route{Path: "/accounts", Class: guard.ClassProtected})
	require.NoError(t, f.manager.Initialize(context.Background()))

	decision := f.guard.Apply()

	require.Equal(t, guard.DecisionRedirectToLogin, decision)
	require.Equal(t, []string{loginPath}, f.router.redirectLog())
}

func TestApplyIsIdempotent(t *testing.T) {
	f := setupGuardFixture(t, guard.Route{Path: "/accounts", Class: guard.ClassProtected})
	require.NoError(t, f.manager.Initialize(context.Background()))

	require.Equal(t, guard.DecisionRedirectToLogin, f.guard.Apply())
	require.Equal(t, guard.DecisionAllow, f.guard.Apply())
	require.Len(t, f.router.redirectLog(), 1, "re-applying after the redirect must not redirect again")
}

func TestApplyNeverRedirectsToCurrentRoute(t *testing.T) {
	// A misclassified login route must not cause a redirect loop.
	f := setupGuardFixture(t, guard.Route{Path: loginPath, Class: guard.ClassProtected})
	require.NoError(t, f.manager.Initialize(context.Background()))

	require.Equal(t, guard.DecisionRedirectToLogin, f.guard.Apply())
	require.Empty(t, f.router.redirectLog(), "already on the login route")
}

func TestApplyAllowsPublicRoutes(t *testing.T) {
	f := setupGuardFixture(t, guard.Route{Path: "/about", Class: guard.ClassPublic})
	require.NoError(t, f.manager.Initialize(context.Background()))

	require.Equal(t, guard.DecisionAllow, f.guard.Apply())
	require.Empty(t, f.router.redirectLog())
}

func TestBindFollowsSessionChanges(t *testing.T) {
	f := setupGuardFixture(t, guard.Route{Path: loginPath, Class: guard.ClassPublicAuth})
	require.NoError(t, f.manager.Initialize(context.Background()))

	f.guard.Bind()
	defer f.guard.Close()
	require.Empty(t, f.router.redirectLog(), "unauthenticated user may stay on login")

	f.api.LoginFn = func(ctx context.Context, email, password string) (*authapi.LoginResponse, error) {
		return &authapi.LoginResponse{
			AccessToken:  "t1",
			RefreshToken: "r1",
			Client:       profiles.Profile{ID: 42},
		}, nil
	}
	require.NoError(t, f.manager.Login(context.Background(), "john.doe@example.com", "password123"))

	log := f.router.redirectLog()
	require.NotEmpty(t, log)
	require.Equal(t, homePath, log[len(log)-1])

	require.NoError(t, f.manager.Logout(context.Background()))
	log = f.router.redirectLog()
	require.Equal(t, loginPath, log[len(log)-1])
}

func TestCloseDetachesGuard(t *testing.T) {
	f := setupGuardFixture(t, guard.Route{Path: loginPath, Class: guard.ClassPublicAuth})
	require.NoError(t, f.manager.Initialize(context.Background()))
	f.guard.Bind()
	f.guard.Close()

	f.api.LoginFn = func(ctx context.Context, email, password string) (*authapi.LoginResponse, error) {
		return &authapi.LoginResponse{
			AccessToken:  "t1",
			RefreshToken: "r1",
			Client:       profiles.Profile{ID: 42},
		}, nil
	}
	require.NoError(t, f.manager.Login(context.Background(), "john.doe@example.com", "password123"))
	require.Empty(t, f.router.redirectLog())
}
