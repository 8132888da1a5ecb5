// Package guard decides whether the current screen may render based on
// session state, and drives the router to the login or home screen when it
// may not.
package guard

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/willbank/go-session-client/session"
)

// RouteClass is the static classification of a navigable screen.
type RouteClass string

const (
	// ClassProtected screens require an authenticated session.
	ClassProtected RouteClass = "protected"
	// ClassPublicAuth screens are the login/register flow; an authenticated
	// user is redirected away from them.
	ClassPublicAuth RouteClass = "public-auth"
	// ClassPublic screens render for everyone.
	ClassPublic RouteClass = "public"
)

// Decision is the outcome of a guard evaluation.
type Decision string

const (
	DecisionAllow           Decision = "allow"
	DecisionRedirectToLogin Decision = "redirect-to-login"
	DecisionRedirectToHome  Decision = "redirect-to-home"
)

// Evaluate applies the route-guard policy. It is pure: the same status and
// classification always produce the same decision.
func Evaluate(status session.Status, class RouteClass) Decision {
	switch {
	case status == session.StatusAuthenticated && class == ClassPublicAuth:
		return DecisionRedirectToHome
	case status != session.StatusAuthenticated && class == ClassProtected:
		return DecisionRedirectToLogin
	default:
		return DecisionAllow
	}
}

// Route is the router's view of the current screen.
type Route struct {
	Path  string
	Class RouteClass
}

// Router is the navigation facility the guard drives.
type Router interface {
	CurrentRoute() Route
	Redirect(path string)
}

// Guard binds the policy to a router and a session manager. It re-evaluates
// on every session change and on demand, and never redirects to the route
// it is already on, so repeated evaluation cannot loop.
type Guard struct {
	router      Router
	manager     *session.Manager
	loginPath   string
	homePath    string
	log         zerolog.Logger
	unsubscribe func()
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithGuardLogger sets the logger. Defaults to a no-op logger.
func WithGuardLogger(log zerolog.Logger) GuardOption {
	return func(g *Guard) {
		g.log = log
	}
}

// New creates a Guard redirecting to loginPath and homePath. loginPath must
// be a public-auth route and homePath a protected route, so each redirect
// target satisfies the policy for its own classification.
func New(router Router, manager *session.Manager, loginPath, homePath string, options ...GuardOption) (*Guard, error) {
	if router == nil {
		return nil, errors.New("[guard.New] router is required")
	}
	if manager == nil {
		return nil, errors.New("[guard.New] manager is required")
	}
	if loginPath == "" || homePath == "" {
		return nil, errors.New("[guard.New] loginPath and homePath are required")
	}
	if loginPath == homePath {
		return nil, errors.New("[guard.New] loginPath and homePath must differ")
	}

	g := &Guard{
		router:    router,
		manager:   manager,
		loginPath: loginPath,
		homePath:  homePath,
		log:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

// Apply evaluates the policy for the current route and redirects when the
// decision requires it. Idempotent: applying twice without a state change
// yields the same decision and at most one redirect.
func (g *Guard) Apply() Decision {
	route := g.router.CurrentRoute()
	status := g.manager.Current().Status
	decision := Evaluate(status, route.Class)

	switch decision {
	case DecisionRedirectToLogin:
		if route.Path != g.loginPath {
			g.log.Debug().Str("from", route.Path).Msg("redirecting to login")
			g.router.Redirect(g.loginPath)
		}
	case DecisionRedirectToHome:
		if route.Path != g.homePath {
			g.log.Debug().Str("from", route.Path).Msg("redirecting to home")
			g.router.Redirect(g.homePath)
		}
	}
	return decision
}

// Bind applies the guard once and re-applies it on every session change.
func (g *Guard) Bind() {
	g.unsubscribe = g.manager.OnChange(func(session.Session) {
		g.Apply()
	})
	g.Apply()
}

// Close detaches the guard from the session manager.
func (g *Guard) Close() {
	if g.unsubscribe != nil {
		g.unsubscribe()
		g.unsubscribe = nil
	}
}
