package oauth

import (
	"context"
	"time"

	"github.com/barndoor/barndoor-cli/pkg/logging"

	"golang.org/x/sync/singleflight"
)

// Authorizer obtains and refreshes credentials. *Authenticator implements it.
type Authorizer interface {
	Run(ctx context.Context) (*Credential, error)
	Refresh(ctx context.Context, cred *Credential) (*Credential, error)
}

var _ Authorizer = (*Authenticator)(nil)

// Manager decides whether the cached credential can be used as is, must be
// refreshed or requires a new interactive login.
//
// Concurrent calls within one process share a single login. Across
// processes the last write to the store wins unless WithLoginLock is set.
type Manager struct {
	store  Store
	auth   Authorizer
	margin time.Duration
	now    func() time.Time

	lockPath    string
	lockTimeout time.Duration

	group singleflight.Group
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithExpiryMargin overrides DefaultExpiryMargin.
func WithExpiryMargin(d time.Duration) ManagerOption {
	return func(m *Manager) { m.margin = d }
}

// WithManagerClock overrides time.Now, for tests.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithLoginLock serializes interactive logins across processes with an
// exclusive lock on path. A process that waited for the lock reuses the
// credential the holder stored instead of starting another login.
func WithLoginLock(path string, timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.lockPath = path
		m.lockTimeout = timeout
	}
}

// NewManager creates a Manager.
func NewManager(store Store, auth Authorizer, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		auth:   auth,
		margin: DefaultExpiryMargin,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.lockPath != "" && m.lockTimeout <= 0 {
		m.lockTimeout = defaultLockTimeout
	}
	return m
}

// EnsureValid returns a usable credential, in order of preference: the
// cached one if it is not about to expire, a refreshed one, or one from a
// new interactive login. A failure to persist the result is logged and
// does not fail the call.
func (m *Manager) EnsureValid(ctx context.Context) (*Credential, error) {
	v, err, _ := m.group.Do("ensure", func() (interface{}, error) {
		return m.ensureValid(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Credential), nil
}

func (m *Manager) ensureValid(ctx context.Context) (*Credential, error) {
	cred, ok := m.store.Load()
	if ok && !cred.IsExpired(m.now(), m.margin) {
		logging.Debug("TokenManager", "Using cached credential (expires %s)", cred.ExpiresAt.Format(time.RFC3339))
		return cred, nil
	}

	if ok && cred.HasRefreshToken() {
		refreshed, err := m.auth.Refresh(ctx, cred)
		if err == nil {
			m.save(refreshed)
			return refreshed, nil
		}
		logging.Warn("TokenManager", "Refresh failed, falling back to interactive login: %v", err)
	} else if ok {
		logging.Info("TokenManager", "Cached credential expired and has no refresh token")
	}

	return m.interactive(ctx, true)
}

// Login always runs a new interactive login, replacing any cached credential.
func (m *Manager) Login(ctx context.Context) (*Credential, error) {
	v, err, _ := m.group.Do("login", func() (interface{}, error) {
		return m.interactive(ctx, false)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Credential), nil
}

// Refresh forces a refresh of the cached credential.
func (m *Manager) Refresh(ctx context.Context) (*Credential, error) {
	cred, ok := m.store.Load()
	if !ok {
		return nil, newAuthErrorf(KindRefreshFailed, "refresh", "no cached credential")
	}
	refreshed, err := m.auth.Refresh(ctx, cred)
	if err != nil {
		return nil, err
	}
	m.save(refreshed)
	return refreshed, nil
}

// Logout removes the cached credential.
func (m *Manager) Logout() error {
	return m.store.Clear()
}

// Current returns the cached credential without any network call, even
// if it is expired.
func (m *Manager) Current() (*Credential, bool) {
	return m.store.Load()
}

// Status summarizes the cached credential.
type Status struct {
	Authenticated   bool      `json:"authenticated" yaml:"authenticated"`
	Expired         bool      `json:"expired" yaml:"expired"`
	ExpiresAt       time.Time `json:"expires_at,omitempty" yaml:"expiresAt,omitempty"`
	HasRefreshToken bool      `json:"has_refresh_token" yaml:"hasRefreshToken"`
	Issuer          string    `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	Organization    string    `json:"organization,omitempty" yaml:"organization,omitempty"`
	Subject         string    `json:"subject,omitempty" yaml:"subject,omitempty"`
}

// Status reports on the cached credential without any network call.
func (m *Manager) Status() Status {
	cred, ok := m.store.Load()
	if !ok {
		return Status{}
	}
	return Status{
		Authenticated:   true,
		Expired:         cred.IsExpired(m.now(), m.margin),
		ExpiresAt:       cred.ExpiresAt,
		HasRefreshToken: cred.HasRefreshToken(),
		Issuer:          cred.Issuer,
		Organization:    cred.Organization,
		Subject:         cred.Subject,
	}
}

// interactive runs a login. With reuseFresh set, a valid credential stored
// by another process while waiting for the login lock is returned instead.
func (m *Manager) interactive(ctx context.Context, reuseFresh bool) (*Credential, error) {
	if m.lockPath != "" {
		unlock, err := acquireLoginLock(ctx, m.lockPath, m.lockTimeout)
		if err != nil {
			return nil, err
		}
		defer unlock()

		if reuseFresh {
			if cred, ok := m.store.Load(); ok && !cred.IsExpired(m.now(), m.margin) {
				logging.Debug("TokenManager", "Credential stored by another process while waiting for login lock")
				return cred, nil
			}
		}
	}

	cred, err := m.auth.Run(ctx)
	if err != nil {
		return nil, err
	}
	m.save(cred)
	return cred, nil
}

func (m *Manager) save(cred *Credential) {
	if err := m.store.Save(cred); err != nil {
		logging.Error("TokenManager", err, "Failed to persist credential, continuing with the in-memory credential")
	}
}
