package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/MarcoPoloResearchLab/roster/internal/apiclient"
	"github.com/MarcoPoloResearchLab/roster/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeAuth struct {
	mu         sync.Mutex
	clock      *manualClock
	refreshErr error
	logouts    int
}

func (f *fakeAuth) token(t time.Time) string {
	claims := tokenClaims{
		UserID: "acc-1",
		Name:   "Jane",
		Email:  "jane@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(t),
			ExpiresAt: jwt.NewNumericDate(t.Add(time.Hour)),
		},
	}
	signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	return signed
}

func (f *fakeAuth) Login(context.Context, string, string) (apiclient.AuthResult, error) {
	return apiclient.AuthResult{Token: f.token(f.clock.Now())}, nil
}

func (f *fakeAuth) Register(context.Context, apiclient.Registration) (string, error) {
	return "Account created", nil
}

func (f *fakeAuth) Logout(context.Context) error {
	f.mu.Lock()
	f.logouts++
	f.mu.Unlock()
	return nil
}

func (f *fakeAuth) Refresh(context.Context) (apiclient.AuthResult, error) {
	if f.refreshErr != nil {
		return apiclient.AuthResult{}, f.refreshErr
	}
	return apiclient.AuthResult{Token: f.token(f.clock.Now())}, nil
}

func newManager(t *testing.T, auth *fakeAuth, store storage.Storage, onExpired func(error)) *Manager {
	t.Helper()
	manager, err := NewManager(Config{
		Client:        auth,
		Storage:       store,
		Clock:         auth.clock.Now,
		CheckInterval: 5 * time.Millisecond,
		OnExpired:     onExpired,
	})
	require.NoError(t, err)
	return manager
}

func TestLoginCachesIdentity(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)}
	auth := &fakeAuth{clock: clock}
	store := storage.NewMemory()
	manager := newManager(t, auth, store, nil)
	ctx := context.Background()

	identity, err := manager.Login(ctx, "jane@example.com", "secret1")
	require.NoError(t, err)
	require.Equal(t, "acc-1", identity.UserID)
	require.True(t, clock.Now().Add(time.Hour).Equal(identity.ExpiresAt))
	require.True(t, manager.IsAuthenticated())

	restored := newManager(t, &fakeAuth{clock: clock, refreshErr: errors.New("must not be called")}, store, nil)
	cached, ok, err := restored.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Jane", cached.Name)

	require.NoError(t, manager.Logout(ctx))
	require.False(t, manager.IsAuthenticated())
	_, ok, _ = store.Get(ctx, IdentityKey)
	require.False(t, ok)
}

func TestRestoreSwallowsSignedOut(t *testing.T) {
	clock := &manualClock{now: time.Now()}
	auth := &fakeAuth{clock: clock, refreshErr: &apiclient.StatusError{Status: 401, Message: "Refresh token required"}}
	manager := newManager(t, auth, storage.NewMemory(), nil)

	_, ok, err := manager.Restore(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	auth.refreshErr = &apiclient.NetworkError{Op: "apiclient.refresh", Err: errors.New("dial tcp: refused")}
	_, _, err = manager.Restore(context.Background())
	var networkErr *apiclient.NetworkError
	require.ErrorAs(t, err, &networkErr)
}

func TestWatcherForcesLogoutOnExpiry(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)}
	auth := &fakeAuth{clock: clock}
	expired := make(chan error, 1)
	manager := newManager(t, auth, storage.NewMemory(), func(err error) { expired <- err })
	ctx := context.Background()

	_, err := manager.Login(ctx, "jane@example.com", "secret1")
	require.NoError(t, err)
	manager.Watch(ctx)
	manager.Watch(ctx)

	clock.Advance(2 * time.Hour)
	manager.NotifyFocus()

	select {
	case err := <-expired:
		var authErr *apiclient.AuthExpiredError
		require.ErrorAs(t, err, &authErr)
	case <-time.After(2 * time.Second):
		t.Fatal("expected expiry callback")
	}
	require.False(t, manager.IsAuthenticated())
	_, ok := manager.Identity()
	require.False(t, ok)
	manager.Stop()

	auth.mu.Lock()
	defer auth.mu.Unlock()
	require.Equal(t, 1, auth.logouts)
}

func TestStopEndsWatcher(t *testing.T) {
	clock := &manualClock{now: time.Now()}
	manager := newManager(t, &fakeAuth{clock: clock}, storage.NewMemory(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager.Watch(ctx)
	manager.Stop()
	manager.Stop()

	manager.Watch(ctx)
	require.NoError(t, manager.Logout(context.Background()))
}
