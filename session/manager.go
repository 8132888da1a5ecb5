package session

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/willbank/go-session-client/authapi"
	"github.com/willbank/go-session-client/profiles"
	"github.com/willbank/go-session-client/store"
)

// Deps holds the collaborators a Manager needs.
type Deps struct {
	API   authapi.Client // Backend auth API
	Store store.Store    // Durable device-local storage
}

// Manager owns the session state machine for the running client. It is the
// single source of truth for authentication state: it loads and persists
// credentials, exposes login/register/logout/refresh operations, and
// notifies observers on every state change.
//
// Mutating operations (Initialize, Login, Register, Logout,
// RefreshAccessToken, Reload) are serialized: a second call issued while one
// is in flight queues behind it. Snapshot reads run concurrently and always
// observe a fully committed session.
type Manager struct {
	api     authapi.Client
	store   store.Store
	log     zerolog.Logger
	nowTime func() time.Time

	// opLock serializes mutating operations end to end, including their
	// network calls.
	opLock sync.Mutex

	// lock guards current and epoch. epoch increments whenever credentials
	// are cleared, so an operation that captured state before a logout
	// cannot commit a stale session afterwards.
	lock        sync.RWMutex
	current     Session
	epoch       uint64
	lastChanged time.Time

	listenerLock sync.Mutex
	listeners    map[int]func(Session)
	nextListener int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// New creates a Manager in StatusUnknown. Call Initialize before consulting
// the session.
func New(deps Deps, options ...Option) (*Manager, error) {
	if deps.API == nil {
		return nil, errors.New("[session.New] API client is required")
	}
	if deps.Store == nil {
		return nil, errors.New("[session.New] Store is required")
	}

	m := &Manager{
		api:       deps.API,
		store:     deps.Store,
		log:       zerolog.Nop(),
		nowTime:   time.Now,
		current:   Session{Status: StatusUnknown},
		listeners: make(map[int]func(Session)),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Current returns a snapshot of the session.
func (m *Manager) Current() Session {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.current.clone()
}

// LastChanged returns when the session last changed state.
func (m *Manager) LastChanged() time.Time {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.lastChanged
}

// AccessToken returns the current access token, or "" when unauthenticated.
func (m *Manager) AccessToken() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.current.AccessToken
}

// OnChange registers a listener called with a session snapshot after every
// committed state change. The returned function unsubscribes it.
func (m *Manager) OnChange(listener func(Session)) func() {
	m.listenerLock.Lock()
	defer m.listenerLock.Unlock()

	id := m.nextListener
	m.nextListener++
	m.listeners[id] = listener
	return func() {
		m.listenerLock.Lock()
		defer m.listenerLock.Unlock()
		delete(m.listeners, id)
	}
}

// Dispose drops all listeners. The manager itself holds no other resources.
func (m *Manager) Dispose() {
	m.listenerLock.Lock()
	defer m.listenerLock.Unlock()
	m.listeners = make(map[int]func(Session))
}

// Initialize loads the persisted session. With a complete credential set it
// authenticates optimistically from the cache, then confirms against the
// backend: an auth rejection (after one refresh attempt) clears the session,
// a transient failure keeps the cached credentials. When Initialize returns,
// the status is StatusAuthenticated or StatusUnauthenticated, never
// StatusUnknown or StatusAuthenticating. Confirmation failures are logged,
// not returned.
func (m *Manager) Initialize(ctx context.Context) error {
	m.opLock.Lock()
	defer m.opLock.Unlock()

	m.commit(Session{Status: StatusAuthenticating})

	loaded, err := m.loadFromStore()
	if err != nil {
		m.log.Warn().Err(err).Msg("session store unreadable, starting unauthenticated")
		m.clearStore()
		m.bumpAndCommit(Session{Status: StatusUnauthenticated})
		return nil
	}
	if !loaded.credentialsComplete() {
		// A partial credential set is never honoured.
		m.clearStore()
		m.bumpAndCommit(Session{Status: StatusUnauthenticated})
		return nil
	}

	loaded.Status = StatusAuthenticated
	m.commit(loaded)
	m.confirm(ctx, loaded)
	return nil
}

// Reload re-runs the store load path. Used when the persisted store was
// rewritten by another process on the device.
func (m *Manager) Reload(ctx context.Context) error {
	return m.Initialize(ctx)
}

// confirm validates optimistically restored credentials against the backend.
// Caller holds opLock.
func (m *Manager) confirm(ctx context.Context, current Session) {
	epoch := m.currentEpoch()

	profile, err := m.api.Me(ctx)
	if err == nil {
		m.persistProfile(profile)
		current.Profile = profile
		m.commitIf(epoch, current)
		return
	}
	if !authapi.IsAuthError(err) {
		m.log.Warn().Err(err).Msg("profile confirmation failed, keeping cached session")
		return
	}

	// Access token rejected; try the refresh token once before giving up.
	refreshed, refreshErr := m.api.RefreshToken(ctx, current.RefreshToken)
	if refreshErr != nil {
		if !authapi.IsAuthError(refreshErr) {
			m.log.Warn().Err(refreshErr).Msg("token refresh failed transiently, keeping cached session")
			return
		}
		m.forceLogout("refresh token rejected")
		return
	}

	current.AccessToken = refreshed.Token()
	if current.AccessToken == "" {
		m.forceLogout("refresh returned no token")
		return
	}
	if err := m.store.Set(store.KeyAuthToken, current.AccessToken); err != nil {
		m.log.Warn().Err(err).Msg("persisting refreshed token failed")
	}
	if !m.commitIf(epoch, current) {
		return
	}

	profile, err = m.api.Me(ctx)
	switch {
	case err == nil:
		m.persistProfile(profile)
		current.Profile = profile
		m.commitIf(epoch, current)
	case authapi.IsAuthError(err):
		m.forceLogout("session rejected after refresh")
	default:
		m.log.Warn().Err(err).Msg("profile confirmation failed after refresh, keeping cached session")
	}
}

// Login authenticates with the backend. On success the full credential set
// and profile are persisted and committed atomically; on failure the session
// reverts to StatusUnauthenticated and the classified error is returned so
// the caller can retry immediately.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return errors.Wrap(authapi.ErrValidation, "[Manager.Login] email and password are required")
	}

	m.opLock.Lock()
	defer m.opLock.Unlock()

	m.commit(Session{Status: StatusAuthenticating})
	epoch := m.currentEpoch()

	resp, err := m.api.Login(ctx, email, password)
	if err != nil {
		m.commit(Session{Status: StatusUnauthenticated})
		return errors.Wrap(err, "[Manager.Login] api.Login")
	}
	return m.commitCredentials(ctx, epoch, resp, "[Manager.Login]")
}

// Register creates an account. A successful registration is treated exactly
// as a fresh login.
func (m *Manager) Register(ctx context.Context, req authapi.RegisterRequest) error {
	if req.Email == "" || req.Password == "" {
		return errors.Wrap(authapi.ErrValidation, "[Manager.Register] email and password are required")
	}

	m.opLock.Lock()
	defer m.opLock.Unlock()

	m.commit(Session{Status: StatusAuthenticating})
	epoch := m.currentEpoch()

	resp, err := m.api.Register(ctx, req)
	if err != nil {
		m.commit(Session{Status: StatusUnauthenticated})
		return errors.Wrap(err, "[Manager.Register] api.Register")
	}
	return m.commitCredentials(ctx, epoch, resp, "[Manager.Register]")
}

// commitCredentials persists and commits a login/register response. Caller
// holds opLock.
func (m *Manager) commitCredentials(ctx context.Context, epoch uint64, resp *authapi.LoginResponse, opTag string) error {
	profile := resp.Client
	next := Session{
		Status:       StatusAuthenticated,
		AccessToken:  resp.Token(),
		RefreshToken: resp.RefreshToken,
		ClientID:     resp.Client.ID,
		Profile:      &profile,
	}
	if !next.credentialsComplete() {
		m.commit(Session{Status: StatusUnauthenticated})
		return errors.Errorf("%s backend returned an incomplete credential set", opTag)
	}

	if err := m.persistSession(next); err != nil {
		m.clearStore()
		m.commit(Session{Status: StatusUnauthenticated})
		return errors.Wrap(err, opTag+" persist session")
	}

	if !m.commitIf(epoch, next) {
		// Logged out while the call was in flight; the result is discarded.
		m.clearStore()
		return nil
	}

	// Replace the embedded profile with the full record, best-effort.
	if full, err := m.api.GetProfile(ctx, next.ClientID); err == nil {
		m.persistProfile(full)
		m.replaceProfile(next.ClientID, full)
	} else {
		m.log.Debug().Err(err).Msg("full profile fetch after login failed")
	}
	return nil
}

// Logout clears the session. The remote invalidation call is best-effort: a
// network failure is logged and the local clear proceeds regardless. Logout
// never fails.
func (m *Manager) Logout(ctx context.Context) error {
	m.opLock.Lock()
	defer m.opLock.Unlock()

	if err := m.api.Logout(ctx); err != nil {
		m.log.Warn().Err(err).Msg("remote logout failed, clearing local session anyway")
	}
	m.clearStore()
	m.bumpAndCommit(Session{Status: StatusUnauthenticated})
	return nil
}

// RefreshProfile replaces the cached profile with a fresh copy from the
// backend. It is a no-op when unauthenticated. On failure the previous
// cached profile is kept and the error is returned; the status never
// changes.
func (m *Manager) RefreshProfile(ctx context.Context) error {
	current := m.Current()
	if current.ClientID == 0 {
		return nil
	}

	profile, err := m.api.GetProfile(ctx, current.ClientID)
	if err != nil {
		return errors.Wrap(err, "[Manager.RefreshProfile] api.GetProfile")
	}
	m.persistProfile(profile)
	m.replaceProfile(current.ClientID, profile)
	return nil
}

// RefreshAccessToken exchanges the stored refresh token for a new access
// token and commits it.
func (m *Manager) RefreshAccessToken(ctx context.Context) error {
	m.opLock.Lock()
	defer m.opLock.Unlock()

	current := m.Current()
	if current.RefreshToken == "" {
		return errors.Wrap(authapi.ErrUnauthorized, "[Manager.RefreshAccessToken] no refresh token held")
	}
	epoch := m.currentEpoch()

	resp, err := m.api.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		return errors.Wrap(err, "[Manager.RefreshAccessToken] api.RefreshToken")
	}
	if resp.Token() == "" {
		return errors.New("[Manager.RefreshAccessToken] backend returned no token")
	}

	current.AccessToken = resp.Token()
	if err := m.store.Set(store.KeyAuthToken, current.AccessToken); err != nil {
		return errors.Wrap(err, "[Manager.RefreshAccessToken] persist token")
	}
	m.commitIf(epoch, current)
	return nil
}

// forceLogout clears the session locally after the backend rejected the
// stored credentials. No remote call: the credentials are already invalid.
func (m *Manager) forceLogout(reason string) {
	m.log.Warn().Str("reason", reason).Msg("forcing logout")
	m.clearStore()
	m.bumpAndCommit(Session{Status: StatusUnauthenticated})
}

// loadFromStore assembles a session from persisted values. Missing keys
// leave fields empty; a corrupt clientId or profile blob is reported.
func (m *Manager) loadFromStore() (Session, error) {
	s := Session{}

	token, err := m.store.Get(store.KeyAuthToken)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return s, errors.Wrap(err, "read access token")
	}
	s.AccessToken = token

	refresh, err := m.store.Get(store.KeyRefreshToken)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return s, errors.Wrap(err, "read refresh token")
	}
	s.RefreshToken = refresh

	rawID, err := m.store.Get(store.KeyClientID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return s, errors.Wrap(err, "read client id")
	}
	if rawID != "" {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			return s, errors.Wrap(err, "parse client id")
		}
		s.ClientID = id
	}

	if blob, err := m.store.Get(store.KeyProfile); err == nil && blob != "" {
		var profile profiles.Profile
		if err := json.Unmarshal([]byte(blob), &profile); err == nil {
			s.Profile = &profile
		} else {
			m.log.Debug().Err(err).Msg("cached profile blob unreadable, ignoring")
		}
	}
	return s, nil
}

// persistSession writes the full credential set. Any write failure removes
// everything again so the store never holds a partial session.
func (m *Manager) persistSession(s Session) error {
	writes := []struct{ key, value string }{
		{store.KeyAuthToken, s.AccessToken},
		{store.KeyRefreshToken, s.RefreshToken},
		{store.KeyClientID, strconv.FormatInt(s.ClientID, 10)},
	}
	for _, w := range writes {
		if err := m.store.Set(w.key, w.value); err != nil {
			return errors.Wrapf(err, "write %s", w.key)
		}
	}
	if s.Profile != nil {
		m.persistProfile(s.Profile)
	}
	return nil
}

// persistProfile caches the profile blob, best-effort.
func (m *Manager) persistProfile(profile *profiles.Profile) {
	blob, err := json.Marshal(profile)
	if err != nil {
		m.log.Debug().Err(err).Msg("encode profile blob failed")
		return
	}
	if err := m.store.Set(store.KeyProfile, string(blob)); err != nil {
		m.log.Debug().Err(err).Msg("persist profile blob failed")
	}
}

func (m *Manager) clearStore() {
	for _, key := range []string{store.KeyAuthToken, store.KeyRefreshToken, store.KeyClientID, store.KeyProfile} {
		if err := m.store.Remove(key); err != nil {
			m.log.Warn().Err(err).Str("key", key).Msg("removing store entry failed")
		}
	}
}

func (m *Manager) currentEpoch() uint64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.epoch
}

// commit replaces the session unconditionally and notifies listeners.
func (m *Manager) commit(s Session) {
	m.lock.Lock()
	m.setLocked(s)
	m.lock.Unlock()
	m.notify(s)
}

// bumpAndCommit clears credentials and invalidates any in-flight operation's
// epoch before committing.
func (m *Manager) bumpAndCommit(s Session) {
	m.lock.Lock()
	m.epoch++
	m.setLocked(s)
	m.lock.Unlock()
	m.notify(s)
}

// commitIf replaces the session only when no credential clear happened since
// epoch was captured. Returns whether the commit was applied.
func (m *Manager) commitIf(epoch uint64, s Session) bool {
	m.lock.Lock()
	if m.epoch != epoch {
		m.lock.Unlock()
		return false
	}
	m.setLocked(s)
	m.lock.Unlock()
	m.notify(s)
	return true
}

// replaceProfile swaps the cached profile when the session still belongs to
// the same client. A logout or re-login between fetch and commit discards
// the stale profile.
func (m *Manager) replaceProfile(clientID int64, profile *profiles.Profile) {
	m.lock.Lock()
	if m.current.Status != StatusAuthenticated || m.current.ClientID != clientID {
		m.lock.Unlock()
		return
	}
	m.current.Profile = profile
	s := m.current
	m.lock.Unlock()
	m.notify(s)
}

func (m *Manager) setLocked(s Session) {
	if !s.consistent() {
		m.log.Error().Str("status", string(s.Status)).Msg("inconsistent session rejected, downgrading to unauthenticated")
		s = Session{Status: StatusUnauthenticated}
	}
	m.current = s
	m.lastChanged = m.nowTime()
}

func (m *Manager) notify(s Session) {
	m.listenerLock.Lock()
	listeners := make([]func(Session), 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.listenerLock.Unlock()

	snapshot := s.clone()
	for _, l := range listeners {
		l(snapshot)
	}
}
