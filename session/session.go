package session

import "github.com/willbank/go-session-client/profiles"

// Status is the authentication state of the running client.
type Status string

const (
	// StatusUnknown is the state before Initialize has run.
	StatusUnknown Status = "unknown"
	// StatusAuthenticating is the state while the persisted store is being
	// read or a login/register call is in flight.
	StatusAuthenticating Status = "authenticating"
	// StatusAuthenticated means a complete credential set is held.
	StatusAuthenticated Status = "authenticated"
	// StatusUnauthenticated means no credentials are held.
	StatusUnauthenticated Status = "unauthenticated"
)

// Session is the authenticated-identity state of the client. Exactly one
// Session exists per Manager; callers receive immutable snapshots.
//
// Invariant: AccessToken, RefreshToken and ClientID are all present or all
// absent, and Status is StatusAuthenticated exactly when all three are
// present.
type Session struct {
	Status       Status
	AccessToken  string
	RefreshToken string
	ClientID     int64
	Profile      *profiles.Profile // Cached profile snapshot; may lag the backend
}

// Authenticated reports whether the session holds valid credentials.
func (s Session) Authenticated() bool {
	return s.Status == StatusAuthenticated
}

// credentialsComplete reports whether all three credential fields are set.
func (s Session) credentialsComplete() bool {
	return s.AccessToken != "" && s.RefreshToken != "" && s.ClientID != 0
}

// consistent reports whether the all-or-nothing credential invariant holds.
func (s Session) consistent() bool {
	if s.Status == StatusAuthenticated {
		return s.credentialsComplete()
	}
	return s.AccessToken == "" && s.RefreshToken == "" && s.ClientID == 0
}

// clone returns a snapshot with its own profile copy, so callers can never
// mutate the manager's state through the pointer.
func (s Session) clone() Session {
	if s.Profile != nil {
		profile := *s.Profile
		s.Profile = &profile
	}
	return s
}
