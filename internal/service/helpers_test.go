package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"opsdesk/internal/cache"
	"opsdesk/internal/config"
	"opsdesk/internal/models"
	"opsdesk/internal/ratelimit"
	"opsdesk/internal/security"
	"opsdesk/internal/testutil"
)

// stepStart sits on a 30 second TOTP boundary.
var stepStart = time.Unix(1_700_000_010, 0).UTC()

var testClient = models.ClientInfo{IPAddress: "10.0.0.1", Location: "DE", UserAgent: "go-test"}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Security: config.SecurityConfig{
			AccessSecret:    "0123456789abcdef0123456789abcdef",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
			SetupKey:        "K1",
			TOTPIssuer:      "OpsDesk",
		},
		RateLimit: config.RateLimitConfig{
			Window:      5 * time.Minute,
			MaxAttempts: 10,
		},
		Share: config.ShareConfig{
			PublicBaseURL:     "https://ops.example.com/",
			DefaultExpiryDays: 7,
		},
	}
}

type authFixture struct {
	svc      *AuthService
	users    *testutil.UserStore
	sessions *testutil.SessionStore
	audit    *testutil.AuditRecorder
	admin    models.User
	clock    *time.Time
}

func newAuthFixture(t *testing.T, cfg *config.AppConfig) *authFixture {
	t.Helper()
	_, rdb := testutil.NewRedis(t)

	hash, err := security.HashPassword("correct")
	require.NoError(t, err)
	secret, err := security.GenerateTOTPSecret()
	require.NoError(t, err)

	admin := models.User{
		ID:           "admin-1",
		Email:        "a@x.com",
		PasswordHash: hash,
		TOTPSecret:   secret,
		DisplayName:  "Alex",
		CreatedAt:    stepStart,
		UpdatedAt:    stepStart,
	}

	f := &authFixture{
		users:    testutil.NewUserStore(admin),
		sessions: testutil.NewSessionStore(),
		audit:    testutil.NewAuditRecorder(),
		admin:    admin,
	}
	clock := stepStart
	f.clock = &clock
	f.svc = NewAuthService(
		f.users,
		f.sessions,
		cache.NewChallengeStore(rdb),
		ratelimit.NewLimiter(rdb, cfg.RateLimit.Window, cfg.RateLimit.MaxAttempts),
		f.audit,
		cfg,
		zerolog.Nop(),
	)
	f.svc.now = func() time.Time { return *f.clock }
	return f
}

func (f *authFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func (f *authFixture) code(t *testing.T) string {
	t.Helper()
	code, err := security.TOTPCode(f.admin.TOTPSecret, *f.clock)
	require.NoError(t, err)
	return code
}

func (f *authFixture) signIn(t *testing.T, client models.ClientInfo) SessionResult {
	t.Helper()
	login, err := f.svc.Login(context.Background(), LoginInput{Email: "a@x.com", Password: "correct", Client: client})
	require.NoError(t, err)
	result, err := f.svc.VerifyTwoFactor(context.Background(), VerifyInput{
		ChallengeID: login.ChallengeID,
		Code:        f.code(t),
		Client:      client,
	})
	require.NoError(t, err)
	return result
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis: connection refused")
}
