package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/internal/gateway"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/storage"
)

type fakeAuth struct {
	mu          sync.Mutex
	loginResult gateway.AuthResult
	loginErr    error
	currentUser gateway.User
	currentErr  error
	logoutErr   error
	logoutCalls []string
}

func (f *fakeAuth) Login(context.Context, gateway.Credentials) (gateway.AuthResult, error) {
	return f.loginResult, f.loginErr
}

func (f *fakeAuth) ClientLogin(context.Context, gateway.Credentials) (gateway.AuthResult, error) {
	return f.loginResult, f.loginErr
}

func (f *fakeAuth) Register(context.Context, gateway.Registration) (gateway.AuthResult, error) {
	return f.loginResult, f.loginErr
}

func (f *fakeAuth) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls = append(f.logoutCalls, token)
	return f.logoutErr
}

func (f *fakeAuth) CurrentUser(context.Context, string) (gateway.User, error) {
	return f.currentUser, f.currentErr
}

func customer(id int64) gateway.User {
	return gateway.User{ID: id, Username: "ana", Email: "ana@example.com"}
}

func TestRestoreWithRejectedTokenFallsBackToGuest(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, KeyToken, "stale"))
	require.NoError(t, store.Set(ctx, KeyUser, `{"id":42,"username":"ana"}`))

	auth := &fakeAuth{currentErr: pkgerrors.Wrap(pkgerrors.CodeUnauthorized, gateway.ErrSessionExpired, "session expired")}
	mgr := New(store, auth, logger.Nop())

	identity, err := mgr.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, Guest, identity)
	assert.Equal(t, Guest, mgr.Identity())
	assert.Empty(t, mgr.Token())

	_, found, err := store.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = store.Get(ctx, KeyUser)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRestoreFailsClosedOnTransportError(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, KeyToken, "tok"))

	mgr := New(store, &fakeAuth{currentErr: errors.New("dial tcp: connection refused")}, logger.Nop())
	identity, err := mgr.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, identity.Authenticated())
	_, found, _ := store.Get(ctx, KeyToken)
	assert.False(t, found)
}

func TestRestoreWithValidTokenAuthenticatesAndNotifies(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, KeyToken, "tok"))

	mgr := New(store, &fakeAuth{currentUser: customer(42)}, logger.Nop())
	var seen []Identity
	mgr.Subscribe(func(_ context.Context, id Identity) { seen = append(seen, id) })

	identity, err := mgr.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), identity.UserID)
	assert.Equal(t, "tok", mgr.Token())
	require.Len(t, seen, 1)
	assert.Equal(t, "42", seen[0].Scope())

	raw, found, err := store.Get(ctx, KeyUser)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Contains(t, raw, `"id":42`)
}

func TestRestoreWithoutTokenErasesOrphanUser(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, KeyUser, `{"id":42}`))

	mgr := New(store, &fakeAuth{}, logger.Nop())
	identity, err := mgr.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, Guest, identity)
	_, found, _ := store.Get(ctx, KeyUser)
	assert.False(t, found)
}

func TestLoginPersistsAndFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	auth := &fakeAuth{loginErr: pkgerrors.New(pkgerrors.CodeValidation, "Error en las credenciales")}
	mgr := New(store, auth, logger.Nop())

	_, err := mgr.Login(ctx, gateway.Credentials{Identifier: "ana", Password: "bad"})
	require.Error(t, err)
	assert.Equal(t, Guest, mgr.Identity())
	_, found, _ := store.Get(ctx, KeyToken)
	assert.False(t, found)

	auth.loginErr = nil
	auth.loginResult = gateway.AuthResult{Token: "tok-42", User: customer(42)}
	identity, err := mgr.Login(ctx, gateway.Credentials{Identifier: "ana", Password: "good1234"})
	require.NoError(t, err)
	assert.True(t, identity.Authenticated())
	token, found, _ := store.Get(ctx, KeyToken)
	assert.True(t, found)
	assert.Equal(t, "tok-42", token)
	assert.False(t, mgr.IsAdmin())
}

func TestLoginAdminRequiresStaff(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuth{loginResult: gateway.AuthResult{Token: "tok", User: customer(5)}}
	mgr := New(storage.NewMemoryStore(), auth, logger.Nop())

	_, err := mgr.LoginAdmin(ctx, gateway.Credentials{Identifier: "ana", Password: "x"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.Equal(t, Guest, mgr.Identity())
	assert.Equal(t, []string{"tok"}, auth.logoutCalls)

	staff := customer(6)
	staff.IsStaff = true
	auth.loginResult = gateway.AuthResult{Token: "tok-admin", User: staff}
	identity, err := mgr.LoginAdmin(ctx, gateway.Credentials{Identifier: "boss", Password: "x"})
	require.NoError(t, err)
	assert.True(t, identity.IsAdmin())
	assert.True(t, mgr.IsAdmin())
}

func TestLogoutIsIdempotentWithoutToken(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuth{}
	mgr := New(storage.NewMemoryStore(), auth, logger.Nop())

	require.NoError(t, mgr.Logout(ctx))
	require.NoError(t, mgr.Logout(ctx))
	assert.Equal(t, Guest, mgr.Identity())
	assert.Empty(t, auth.logoutCalls)
}

func TestLogoutClearsEvenWhenUpstreamFails(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	auth := &fakeAuth{
		loginResult: gateway.AuthResult{Token: "tok", User: customer(42)},
		logoutErr:   errors.New("network down"),
	}
	mgr := New(store, auth, logger.Nop())
	_, err := mgr.Login(ctx, gateway.Credentials{Identifier: "ana", Password: "x"})
	require.NoError(t, err)

	var seen []Identity
	mgr.Subscribe(func(_ context.Context, id Identity) { seen = append(seen, id) })

	require.NoError(t, mgr.Logout(ctx))
	assert.Equal(t, Guest, mgr.Identity())
	assert.Equal(t, []string{"tok"}, auth.logoutCalls)
	_, found, _ := store.Get(ctx, KeyToken)
	assert.False(t, found)
	assert.Equal(t, []Identity{Guest}, seen)
}

func TestExpireOnlyDropsCurrentToken(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuth{loginResult: gateway.AuthResult{Token: "new", User: customer(42)}}
	mgr := New(storage.NewMemoryStore(), auth, logger.Nop())
	_, err := mgr.Login(ctx, gateway.Credentials{Identifier: "ana", Password: "x"})
	require.NoError(t, err)

	expired, err := mgr.Expire(ctx, "old")
	require.NoError(t, err)
	assert.False(t, expired)
	assert.True(t, mgr.Identity().Authenticated())

	expired, err = mgr.Expire(ctx, "new")
	require.NoError(t, err)
	assert.True(t, expired)
	assert.Equal(t, Guest, mgr.Identity())
}

func TestSnapshotCopiesUser(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuth{loginResult: gateway.AuthResult{Token: "tok", User: customer(42)}}
	mgr := New(storage.NewMemoryStore(), auth, logger.Nop())
	_, err := mgr.Login(ctx, gateway.Credentials{Identifier: "ana", Password: "x"})
	require.NoError(t, err)

	snap := mgr.Snapshot()
	require.NotNil(t, snap.User)
	snap.User.Email = "changed@example.com"
	assert.Equal(t, "ana@example.com", mgr.Snapshot().User.Email)
	assert.Equal(t, "tok", snap.Token)
}

func TestIdentityScope(t *testing.T) {
	assert.Equal(t, "guest", Guest.Scope())
	assert.Equal(t, "42", Identity{UserID: 42}.Scope())
	assert.False(t, Identity{IsStaff: true}.IsAdmin())
	assert.True(t, Identity{UserID: 1, IsSuperuser: true}.IsAdmin())
}
