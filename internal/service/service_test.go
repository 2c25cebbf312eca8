package service

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/events"
	"admin-auth-service/internal/hashing"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/notify"
	"admin-auth-service/internal/repository/memory"
	"admin-auth-service/internal/throttle"
)

const (
	adminEmail    = "a@x.com"
	adminPassword = "Correct-Horse-9"
	managerEmail  = "m@x.com"
	managerPass   = "Battery-Staple-7"
)

var start = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type captureNotifier struct {
	sent chan notify.ResetMessage
}

func (c *captureNotifier) SendPasswordReset(_ context.Context, msg notify.ResetMessage) error {
	c.sent <- msg
	return nil
}

// next waits for the next reset mail and returns its token.
func (c *captureNotifier) next(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-c.sent:
		u, err := url.Parse(msg.Link())
		require.NoError(t, err)
		return u.Query().Get("token")
	case <-time.After(2 * time.Second):
		t.Fatal("no reset mail was sent")
		return ""
	}
}

func (c *captureNotifier) none(t *testing.T) {
	t.Helper()
	select {
	case msg := <-c.sent:
		t.Fatalf("unexpected reset mail to %s", msg.Email)
	case <-time.After(50 * time.Millisecond):
	}
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *capturePublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	clock    *clock.Mock
	store    *memory.Store
	factory  *ServiceFactory
	notifier *captureNotifier
	events   *capturePublisher
	admin    *models.AdminAccount
}

func testConfig() *config.Config {
	return &config.Config{
		Session: config.SessionConfig{
			TTL:           24 * time.Hour,
			RefreshWindow: 12 * time.Hour,
			MaxLifetime:   7 * 24 * time.Hour,
		},
		Reset: config.ResetConfig{
			TokenTTL:        time.Hour,
			Cooldown:        2 * time.Minute,
			ResetURL:        "https://bistro.example/admin/reset-password",
			DispatchTimeout: time.Second,
		},
	}
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	mock := clock.NewMock()
	mock.Set(start)

	hasher, err := hashing.NewHasherWithParams(
		hashing.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		4, hashing.Pepper{Value: "test-pepper", Version: 1})
	require.NoError(t, err)

	store := memory.NewStore()
	th := throttle.NewWithPolicy(throttle.NewMemoryStore(), throttle.Policy{MaxFailures: 5, LockoutDuration: 5 * time.Minute}, mock)
	notifier := &captureNotifier{sent: make(chan notify.ResetMessage, 8)}
	pub := &capturePublisher{}

	f := &fixture{
		clock:    mock,
		store:    store,
		notifier: notifier,
		events:   pub,
		factory: NewServiceFactory(cfg, store, hasher, th, throttle.NewMemoryCooldown(mock),
			notifier, pub, mock, zap.NewNop()),
	}

	ctx := context.Background()
	created, err := f.factory.AccountService().Bootstrap(ctx, adminEmail, adminPassword)
	require.NoError(t, err)
	require.True(t, created)
	f.admin, err = store.Accounts().GetByEmail(ctx, adminEmail)
	require.NoError(t, err)
	return f
}

func (f *fixture) login(email, password, ip string) (*LoginResult, error) {
	return f.factory.AuthService().Login(context.Background(), LoginRequest{
		Email:     email,
		Password:  password,
		IPAddress: ip,
		UserAgent: "test-agent",
	})
}

func (f *fixture) mustLogin(t *testing.T, email, password, ip string) *LoginResult {
	t.Helper()
	res, err := f.login(email, password, ip)
	require.NoError(t, err)
	return res
}

func (f *fixture) authContext(t *testing.T, token string) *AuthContext {
	t.Helper()
	auth, err := f.factory.AuthService().Authenticate(context.Background(), token)
	require.NoError(t, err)
	return auth
}

func (f *fixture) createManager(t *testing.T) *models.AdminAccount {
	t.Helper()
	admin := f.authContext(t, f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1").Token)
	acct, err := f.factory.AccountService().Create(context.Background(), admin, CreateAccountRequest{
		Email:    managerEmail,
		Password: managerPass,
	})
	require.NoError(t, err)
	return acct
}
