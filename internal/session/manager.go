// Package session tracks the signed-in identity on the client and logs the
// user out when the token expires.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roster/internal/apiclient"
	"github.com/MarcoPoloResearchLab/roster/internal/storage"
)

const (
	// IdentityKey is the storage key of the cached identity.
	IdentityKey = "roster.identity"
	// DefaultCheckInterval is how often Watch looks for expiry.
	DefaultCheckInterval = 30 * time.Second
)

var (
	errMissingClient  = errors.New("session: api client is required")
	errMissingStorage = errors.New("session: storage is required")
	errMissingToken   = errors.New("session: login response carried no token")
)

// Authenticator is the subset of the API client the manager needs.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (apiclient.AuthResult, error)
	Register(ctx context.Context, registration apiclient.Registration) (string, error)
	Logout(ctx context.Context) error
	Refresh(ctx context.Context) (apiclient.AuthResult, error)
}

// Identity is the decoded content of a session token.
type Identity struct {
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

type tokenClaims struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Config configures a Manager.
type Config struct {
	Client        Authenticator
	Storage       storage.Storage
	Clock         func() time.Time
	CheckInterval time.Duration
	Logger        *zap.Logger
	OnExpired     func(error)
}

// Manager owns the identity and the expiry watcher.
type Manager struct {
	client    Authenticator
	storage   storage.Storage
	clock     func() time.Time
	interval  time.Duration
	logger    *zap.Logger
	onExpired func(error)
	focus     chan struct{}

	mu       sync.RWMutex
	identity *Identity
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewManager validates cfg and builds a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Client == nil {
		return nil, errMissingClient
	}
	if cfg.Storage == nil {
		return nil, errMissingStorage
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	onExpired := cfg.OnExpired
	if onExpired == nil {
		onExpired = func(error) {}
	}
	return &Manager{
		client:    cfg.Client,
		storage:   cfg.Storage,
		clock:     clock,
		interval:  interval,
		logger:    logger,
		onExpired: onExpired,
		focus:     make(chan struct{}, 1),
	}, nil
}

// Login signs in and caches the identity decoded from the returned token.
func (m *Manager) Login(ctx context.Context, email, password string) (Identity, error) {
	result, err := m.client.Login(ctx, email, password)
	if err != nil {
		return Identity{}, err
	}
	return m.adopt(ctx, result.Token)
}

// Register creates an account. It does not sign in.
func (m *Manager) Register(ctx context.Context, registration apiclient.Registration) (string, error) {
	return m.client.Register(ctx, registration)
}

// Logout stops the watcher, clears the identity and tells the server.
func (m *Manager) Logout(ctx context.Context) error {
	m.Stop()
	m.clear(ctx)
	if err := m.client.Logout(ctx); err != nil {
		var networkErr *apiclient.NetworkError
		if errors.As(err, &networkErr) {
			return err
		}
		m.logger.Debug("logout rejected by server", zap.Error(err))
	}
	return nil
}

// Restore rebuilds the identity at startup, first from storage and then by
// probing the server with the session cookie. Being signed out is not an error.
func (m *Manager) Restore(ctx context.Context) (Identity, bool, error) {
	payload, ok, err := m.storage.Get(ctx, IdentityKey)
	if err != nil {
		return Identity{}, false, fmt.Errorf("session: load identity: %w", err)
	}
	if ok {
		var cached Identity
		if err := json.Unmarshal(payload, &cached); err == nil && m.clock().Before(cached.ExpiresAt) {
			m.mu.Lock()
			m.identity = &cached
			m.mu.Unlock()
			return cached, true, nil
		}
		m.clear(ctx)
	}

	result, err := m.client.Refresh(ctx)
	if err != nil {
		var expired *apiclient.AuthExpiredError
		if errors.Is(err, apiclient.ErrUnauthorized) || errors.As(err, &expired) {
			return Identity{}, false, nil
		}
		return Identity{}, false, err
	}
	identity, err := m.adopt(ctx, result.Token)
	if err != nil {
		return Identity{}, false, err
	}
	return identity, true, nil
}

// Identity returns the cached identity.
func (m *Manager) Identity() (Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.identity == nil {
		return Identity{}, false
	}
	return *m.identity, true
}

// IsAuthenticated reports whether an unexpired identity is cached.
func (m *Manager) IsAuthenticated() bool {
	identity, ok := m.Identity()
	return ok && m.clock().Before(identity.ExpiresAt)
}

// Watch starts the periodic expiry check. A second call while running is a no-op.
func (m *Manager) Watch(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.run(watchCtx, done)
}

// NotifyFocus asks the watcher for an immediate expiry check.
func (m *Manager) NotifyFocus() {
	select {
	case m.focus <- struct{}{}:
	default:
	}
}

// Stop ends the watcher and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-m.focus:
		}
		if m.expired() {
			m.forceLogout(ctx)
			return
		}
	}
}

func (m *Manager) expired() bool {
	identity, ok := m.Identity()
	return ok && !m.clock().Before(identity.ExpiresAt)
}

// forceLogout runs on the watcher goroutine. It detaches the watcher first so
// an OnExpired callback may call Logout or Stop.
func (m *Manager) forceLogout(ctx context.Context) {
	m.mu.Lock()
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	cleanupCtx := context.WithoutCancel(ctx)
	m.clear(cleanupCtx)
	if err := m.client.Logout(cleanupCtx); err != nil {
		m.logger.Debug("server logout after expiry failed", zap.Error(err))
	}
	m.logger.Info("session expired")
	m.onExpired(&apiclient.AuthExpiredError{})
}

func (m *Manager) adopt(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, errMissingToken
	}
	identity, err := decode(token)
	if err != nil {
		return Identity{}, err
	}
	payload, err := json.Marshal(identity)
	if err != nil {
		return Identity{}, fmt.Errorf("session: encode identity: %w", err)
	}
	if err := m.storage.Set(ctx, IdentityKey, payload); err != nil {
		return Identity{}, fmt.Errorf("session: store identity: %w", err)
	}
	m.mu.Lock()
	m.identity = &identity
	m.mu.Unlock()
	return identity, nil
}

func (m *Manager) clear(ctx context.Context) {
	m.mu.Lock()
	m.identity = nil
	m.mu.Unlock()
	if err := m.storage.Delete(ctx, IdentityKey); err != nil {
		m.logger.Warn("failed to clear cached identity", zap.Error(err))
	}
}

// decode reads the claims without verifying the signature; only the server
// holds the signing secret.
func decode(token string) (Identity, error) {
	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("session: decode token: %w", err)
	}
	identity := Identity{UserID: claims.UserID, Name: claims.Name, Email: claims.Email}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}
