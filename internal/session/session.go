package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/angelmondragon/storefront/internal/gateway"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/storage"
)

const (
	KeyToken = "authToken"
	KeyUser  = "user"
)

// Authenticator is the slice of the API gateway the session depends on.
type Authenticator interface {
	Login(ctx context.Context, creds gateway.Credentials) (gateway.AuthResult, error)
	ClientLogin(ctx context.Context, creds gateway.Credentials) (gateway.AuthResult, error)
	Register(ctx context.Context, reg gateway.Registration) (gateway.AuthResult, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (gateway.User, error)
}

// Listener observes identity transitions. Listeners run synchronously and
// in registration order; a transition is complete once every listener returned.
type Listener func(ctx context.Context, identity Identity)

// Snapshot is a consistent copy of the session at one instant.
type Snapshot struct {
	Identity Identity
	Token    string
	User     *gateway.User
}

// Manager owns the token and user record of one device.
type Manager struct {
	store storage.Store
	auth  Authenticator
	logg  *logger.Logger

	// transitions serializes identity changes together with their notifications.
	transitions sync.Mutex

	mu        sync.RWMutex
	token     string
	user      *gateway.User
	identity  Identity
	listeners []Listener
}

func New(store storage.Store, auth Authenticator, logg *logger.Logger) *Manager {
	return &Manager{store: store, auth: auth, logg: logg}
}

// Subscribe registers l for future identity transitions.
func (m *Manager) Subscribe(l Listener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

func (m *Manager) Identity() Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *Manager) IsAdmin() bool {
	return m.Identity().IsAdmin()
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{Identity: m.identity, Token: m.token}
	if m.user != nil {
		u := *m.user
		snap.User = &u
	}
	return snap
}

// Restore validates a persisted token against the API. Any failure, from
// transport to a 401 to an unusable body, leaves the device as Guest with
// the persisted token and user erased. The returned error only reports
// storage failures.
func (m *Manager) Restore(ctx context.Context) (Identity, error) {
	m.transitions.Lock()
	defer m.transitions.Unlock()

	token, found, err := m.store.Get(ctx, KeyToken)
	if err != nil {
		return Guest, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read session token")
	}
	token = strings.TrimSpace(token)
	if !found || token == "" {
		if err := m.clearLocked(ctx); err != nil {
			return Guest, err
		}
		return Guest, nil
	}

	user, err := m.auth.CurrentUser(ctx, token)
	if err != nil {
		logCtx := m.logg.WithField(ctx, "error_code", string(pkgerrors.As(err).Code()))
		m.logg.Warn(logCtx, "session.restore.rejected")
		if clearErr := m.clearLocked(ctx); clearErr != nil {
			return Guest, clearErr
		}
		return Guest, nil
	}

	if err := m.establishLocked(ctx, token, user); err != nil {
		return Guest, err
	}
	return identityFrom(user), nil
}

// Login authenticates a shop customer. A failed login leaves the session untouched.
func (m *Manager) Login(ctx context.Context, creds gateway.Credentials) (Identity, error) {
	m.transitions.Lock()
	defer m.transitions.Unlock()

	res, err := m.auth.ClientLogin(ctx, creds)
	if err != nil {
		return m.Identity(), err
	}
	if err := m.establishLocked(ctx, res.Token, res.User); err != nil {
		return m.Identity(), err
	}
	return identityFrom(res.User), nil
}

// LoginAdmin authenticates against the back-office endpoint and only
// accepts staff or superuser accounts.
func (m *Manager) LoginAdmin(ctx context.Context, creds gateway.Credentials) (Identity, error) {
	m.transitions.Lock()
	defer m.transitions.Unlock()

	res, err := m.auth.Login(ctx, creds)
	if err != nil {
		return m.Identity(), err
	}
	if !identityFrom(res.User).IsAdmin() {
		if err := m.auth.Logout(ctx, res.Token); err != nil {
			m.logg.Warn(m.logg.WithUserID(ctx, res.User.ID), "session.admin_login.revoke_failed")
		}
		return m.Identity(), pkgerrors.New(pkgerrors.CodeForbidden, "administrator access required")
	}
	if err := m.establishLocked(ctx, res.Token, res.User); err != nil {
		return m.Identity(), err
	}
	return identityFrom(res.User), nil
}

// Register creates an account and signs it in.
func (m *Manager) Register(ctx context.Context, reg gateway.Registration) (Identity, error) {
	m.transitions.Lock()
	defer m.transitions.Unlock()

	res, err := m.auth.Register(ctx, reg)
	if err != nil {
		return m.Identity(), err
	}
	if err := m.establishLocked(ctx, res.Token, res.User); err != nil {
		return m.Identity(), err
	}
	return identityFrom(res.User), nil
}

// Logout revokes the token upstream on a best-effort basis and always
// returns the device to Guest. Calling it without a session is a no-op
// apart from the Guest notification.
func (m *Manager) Logout(ctx context.Context) error {
	m.transitions.Lock()
	defer m.transitions.Unlock()

	if token := m.Token(); token != "" {
		if err := m.auth.Logout(ctx, token); err != nil {
			m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "session.logout.upstream_failed")
		}
	}
	return m.clearLocked(ctx)
}

// Expire drops the session after the API rejected token. It only acts when
// token is still the current one, so a stale in-flight call cannot end a
// session that was replaced in the meantime.
func (m *Manager) Expire(ctx context.Context, token string) (bool, error) {
	m.transitions.Lock()
	defer m.transitions.Unlock()

	if token == "" || m.Token() != token {
		return false, nil
	}
	m.logg.Info(ctx, "session.expired")
	return true, m.clearLocked(ctx)
}

// Refresh replaces the stored user record after a profile change.
func (m *Manager) Refresh(ctx context.Context, user gateway.User) error {
	m.transitions.Lock()
	defer m.transitions.Unlock()

	current := m.Identity()
	if !current.Authenticated() || current.UserID != user.ID {
		return nil
	}
	return m.establishLocked(ctx, m.Token(), user)
}

func (m *Manager) establishLocked(ctx context.Context, token string, user gateway.User) error {
	encoded, err := json.Marshal(user)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode session user")
	}
	if err := m.store.Set(ctx, KeyToken, token); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist session token")
	}
	if err := m.store.Set(ctx, KeyUser, string(encoded)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist session user")
	}

	next := identityFrom(user)
	m.mu.Lock()
	previous := m.identity
	m.token = token
	m.user = &user
	m.identity = next
	m.mu.Unlock()

	if previous != next {
		m.notify(m.logg.WithUserID(ctx, user.ID), next)
	}
	return nil
}

func (m *Manager) clearLocked(ctx context.Context) error {
	err := m.store.Delete(ctx, KeyToken, KeyUser)

	m.mu.Lock()
	previous := m.identity
	m.token = ""
	m.user = nil
	m.identity = Guest
	m.mu.Unlock()

	if previous != Guest {
		m.notify(ctx, Guest)
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "erase session")
	}
	return nil
}

func (m *Manager) notify(ctx context.Context, identity Identity) {
	m.mu.RLock()
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.RUnlock()
	for _, l := range listeners {
		l(ctx, identity)
	}
}
