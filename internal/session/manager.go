package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meridianhq/meridian-go/internal/api"
	"github.com/meridianhq/meridian-go/internal/model"
)

// State is the session lifecycle position.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateRefreshing      State = "refreshing"
)

// ErrNotReady is returned when the session is consulted before Bootstrap has
// settled the initial state.
var ErrNotReady = errors.New("session: bootstrap has not completed")

// ErrSessionExpired is returned when the access token is gone and the
// refresh token could not produce a replacement. The caller must start a new
// login.
var ErrSessionExpired = errors.New("session: expired, sign in again")

// defaultRefreshLeeway is how close to expiry an access token may get before
// a refresh is started.
const defaultRefreshLeeway = 5 * time.Minute

// Refresher exchanges a refresh token for a new session. The admin API
// client satisfies this directly.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (api.AuthResult, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, refreshToken string) (api.AuthResult, error)

// RefreshToken implements Refresher.
func (f RefresherFunc) RefreshToken(ctx context.Context, refreshToken string) (api.AuthResult, error) {
	return f(ctx, refreshToken)
}

// ManagerOptions tunes a session manager.
type ManagerOptions struct {
	Logger *slog.Logger
	// RefreshLeeway is the remaining-lifetime threshold below which the
	// access token is refreshed ahead of use.
	RefreshLeeway time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Manager owns the token lifecycle for one actor kind. It restores a
// persisted session on bootstrap, hands out the access token per call, and
// refreshes proactively when the token nears expiry. A refresh that fails
// tears the session down rather than leaving half-valid credentials behind.
type Manager struct {
	kind      string
	store     *CredentialStore
	refresher Refresher
	log       *slog.Logger
	leeway    time.Duration
	now       func() time.Time

	mu          sync.Mutex
	state       State
	creds       Credentials
	initialized bool
	refreshing  bool
	wg          sync.WaitGroup
}

// NewManager builds a manager for the given actor kind over the shared
// credential store.
func NewManager(kind string, store *CredentialStore, refresher Refresher, opts ManagerOptions) *Manager {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	leeway := opts.RefreshLeeway
	if leeway <= 0 {
		leeway = defaultRefreshLeeway
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		kind:      kind,
		store:     store,
		refresher: refresher,
		log:       log.With(slog.String("actor", kind)),
		leeway:    leeway,
		now:       now,
		state:     StateUnauthenticated,
	}
}

// Bootstrap restores a persisted session. A stored token that is still
// comfortably valid is used as-is; one at or past its refresh threshold is
// refreshed before the session is declared live. No stored credentials, or a
// failed refresh, leaves the session unauthenticated. Until Bootstrap runs,
// Token and Actor report ErrNotReady.
func (m *Manager) Bootstrap(ctx context.Context) error {
	creds, ok, err := m.store.Load(m.kind)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.initialized = true
	if !ok {
		m.state = StateUnauthenticated
		m.mu.Unlock()
		return nil
	}
	m.creds = creds
	m.mu.Unlock()

	expiry, err := tokenExpiry(creds.AccessToken)
	if err == nil && expiry.Sub(m.now()) > m.leeway {
		m.mu.Lock()
		m.state = StateAuthenticated
		m.mu.Unlock()
		m.log.Debug("session restored from store")
		return nil
	}

	if err := m.refreshNow(ctx); err != nil {
		m.log.Info("stored session could not be refreshed", slog.Any("error", err))
		return nil
	}
	m.log.Debug("session restored via refresh")
	return nil
}

// Establish installs a freshly won session, for example after a login. The
// dark-mode preference of any previous session for the same actor kind is
// preserved.
func (m *Manager) Establish(result api.AuthResult) error {
	m.mu.Lock()
	darkMode := m.creds.DarkMode
	m.creds = Credentials{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		Profile:      result.Profile,
		DarkMode:     darkMode,
	}
	m.state = StateAuthenticated
	m.initialized = true
	creds := m.creds
	m.mu.Unlock()

	return m.store.Save(m.kind, creds)
}

// Token resolves the access token for one outbound call. An unauthenticated
// session yields an empty token, which sends the call without credentials.
// A token inside the refresh leeway is returned immediately while a
// background refresh runs; an already expired token forces a synchronous
// refresh, and if that fails the session is torn down.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return "", ErrNotReady
	}
	if m.state == StateUnauthenticated {
		m.mu.Unlock()
		return "", nil
	}
	token := m.creds.AccessToken
	m.mu.Unlock()

	expiry, err := tokenExpiry(token)
	if err != nil {
		// Opaque token, nothing to schedule on. Let the server judge it.
		return token, nil
	}

	remaining := expiry.Sub(m.now())
	switch {
	case remaining <= 0:
		if err := m.refreshNow(ctx); err != nil {
			return "", err
		}
		m.mu.Lock()
		token = m.creds.AccessToken
		m.mu.Unlock()
		return token, nil
	case remaining <= m.leeway:
		m.refreshAsync()
	}
	return token, nil
}

// Actor returns the authenticated profile, if any.
func (m *Manager) Actor() (model.Actor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized || m.state == StateUnauthenticated {
		return model.Actor{}, false
	}
	return m.creds.Profile, true
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Logout discards the session locally and removes the stored credentials.
// Server-side revocation is a separate API call made by the caller first,
// while the token is still at hand.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.creds = Credentials{}
	m.state = StateUnauthenticated
	m.mu.Unlock()
	return m.store.Clear(m.kind)
}

// SetDarkMode persists the actor's display preference.
func (m *Manager) SetDarkMode(enabled bool) error {
	m.mu.Lock()
	m.creds.DarkMode = enabled
	creds := m.creds
	authed := m.state != StateUnauthenticated
	m.mu.Unlock()
	if !authed {
		return nil
	}
	return m.store.Save(m.kind, creds)
}

// DarkMode returns the persisted display preference.
func (m *Manager) DarkMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.DarkMode
}

// WaitIdle blocks until background refreshes settle. Test hook.
func (m *Manager) WaitIdle() {
	m.wg.Wait()
}

// refreshAsync starts a background refresh unless one is already running.
func (m *Manager) refreshAsync() {
	m.mu.Lock()
	if m.refreshing {
		m.mu.Unlock()
		return
	}
	m.refreshing = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.refreshNow(ctx); err != nil {
			m.log.Warn("background token refresh failed", slog.Any("error", err))
		}
		m.mu.Lock()
		m.refreshing = false
		m.mu.Unlock()
	}()
}

// refreshNow exchanges the refresh token synchronously. Failure tears the
// session down: a session that can neither prove nor renew itself is over.
func (m *Manager) refreshNow(ctx context.Context) error {
	m.mu.Lock()
	refreshToken := m.creds.RefreshToken
	m.state = StateRefreshing
	m.mu.Unlock()

	if refreshToken == "" {
		m.teardown()
		return ErrSessionExpired
	}

	result, err := m.refresher.RefreshToken(ctx, refreshToken)
	if err != nil {
		m.teardown()
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	m.mu.Lock()
	m.creds.AccessToken = result.AccessToken
	if result.RefreshToken != "" {
		m.creds.RefreshToken = result.RefreshToken
	}
	if result.Profile.ID != "" {
		m.creds.Profile = result.Profile
	}
	m.state = StateAuthenticated
	creds := m.creds
	m.mu.Unlock()

	if err := m.store.Save(m.kind, creds); err != nil {
		m.log.Warn("refreshed session could not be persisted", slog.Any("error", err))
	}
	return nil
}

func (m *Manager) teardown() {
	m.mu.Lock()
	m.creds = Credentials{}
	m.state = StateUnauthenticated
	m.mu.Unlock()
	if err := m.store.Clear(m.kind); err != nil {
		m.log.Warn("credential cleanup failed", slog.Any("error", err))
	}
}

// tokenExpiry extracts the exp claim without verifying the signature. The
// client never trusts the token contents for authorization, only for
// scheduling the refresh.
func tokenExpiry(token string) (time.Time, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("session: parse token: %w", err)
	}
	expiry, err := parsed.Claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return time.Time{}, fmt.Errorf("session: token has no expiry")
	}
	return expiry.Time, nil
}
