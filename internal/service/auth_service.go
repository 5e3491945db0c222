package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"opsdesk/internal/audit"
	"opsdesk/internal/cache"
	"opsdesk/internal/config"
	"opsdesk/internal/ids"
	"opsdesk/internal/models"
	"opsdesk/internal/ratelimit"
	"opsdesk/internal/repository"
	"opsdesk/internal/security"
)

const (
	refreshSecretBytes = 32
	challengeIDBytes   = 32
	totpWindow         = 1
	minPasswordLength  = 8
)

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	Exists(ctx context.Context) (bool, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	FindActiveByRefreshHash(ctx context.Context, refreshHash string) (models.Session, error)
	LatestActiveByUser(ctx context.Context, userID string) (models.Session, error)
	RevokeByRefreshHash(ctx context.Context, refreshHash string) (string, error)
	RevokeByID(ctx context.Context, id string) (bool, error)
}

type ChallengeStore interface {
	Save(ctx context.Context, challenge models.Challenge) error
	Get(ctx context.Context, id string) (models.Challenge, error)
	Consume(ctx context.Context, id string) (bool, error)
	TTL() time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, clientIP, endpoint string) (ratelimit.Decision, error)
}

type AuthService struct {
	users      UserStore
	sessions   SessionStore
	challenges ChallengeStore
	limiter    Limiter
	audit      audit.Recorder
	cfg        *config.AppConfig
	log        zerolog.Logger
	now        func() time.Time
}

func NewAuthService(
	users UserStore,
	sessions SessionStore,
	challenges ChallengeStore,
	limiter Limiter,
	recorder audit.Recorder,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		sessions:   sessions,
		challenges: challenges,
		limiter:    limiter,
		audit:      recorder,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

type LoginInput struct {
	Email    string
	Password string
	Client   models.ClientInfo
}

type LoginResult struct {
	ChallengeID string
	ExpiresIn   int
}

type VerifyInput struct {
	ChallengeID       string
	Code              string
	DeviceFingerprint string
	Client            models.ClientInfo
}

// SessionResult is returned by verify-2fa and refresh. RefreshToken is only
// set when a new refresh secret was minted.
type SessionResult struct {
	AccessToken      string
	ExpiresIn        int
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             models.User
	Anomaly          bool
}

type SetupInput struct {
	SetupKey    string
	Email       string
	Password    string
	DisplayName string
	Client      models.ClientInfo
}

type SetupResult struct {
	User            models.User
	TOTPSecret      string
	ProvisioningURL string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	if err := s.throttle(ctx, input.Client, ratelimit.EndpointLogin); err != nil {
		return LoginResult{}, err
	}

	email := normalizeEmail(input.Email)
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return LoginResult{}, fmt.Errorf("find user: %w", err)
		}
		security.VerifyPasswordDecoy(input.Password)
		s.record(ctx, audit.EventLoginFailed, "", input.Client, map[string]any{"email": email, "reason": "unknown_email"})
		return LoginResult{}, ErrInvalidCredentials
	}

	if !security.VerifyPassword(input.Password, user.PasswordHash) {
		s.record(ctx, audit.EventLoginFailed, user.ID, input.Client, map[string]any{"reason": "wrong_password"})
		return LoginResult{}, ErrInvalidCredentials
	}

	challengeID, err := security.SecureToken(challengeIDBytes)
	if err != nil {
		return LoginResult{}, err
	}

	challenge := models.Challenge{
		ID:          challengeID,
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		ClientIP:    input.Client.IPAddress,
		Location:    input.Client.Location,
		UserAgent:   input.Client.UserAgent,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.challenges.Save(ctx, challenge); err != nil {
		return LoginResult{}, fmt.Errorf("save challenge: %w", err)
	}

	s.record(ctx, audit.EventLoginChallengeIssued, user.ID, input.Client, nil)
	return LoginResult{
		ChallengeID: challengeID,
		ExpiresIn:   int(s.challenges.TTL() / time.Second),
	}, nil
}

func (s *AuthService) VerifyTwoFactor(ctx context.Context, input VerifyInput) (SessionResult, error) {
	if err := s.throttle(ctx, input.Client, ratelimit.EndpointVerify2FA); err != nil {
		return SessionResult{}, err
	}

	challenge, err := s.challenges.Get(ctx, input.ChallengeID)
	if err != nil {
		if errors.Is(err, cache.ErrChallengeNotFound) {
			return SessionResult{}, ErrChallengeExpiredOrInvalid
		}
		return SessionResult{}, fmt.Errorf("load challenge: %w", err)
	}

	user, err := s.users.GetByID(ctx, challenge.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return SessionResult{}, ErrChallengeExpiredOrInvalid
		}
		return SessionResult{}, fmt.Errorf("load user: %w", err)
	}

	if outcome := security.CheckTOTP(user.TOTPSecret, input.Code, s.now(), totpWindow); outcome != security.TOTPValid {
		s.log.Debug().Str("user_id", user.ID).Str("outcome", outcome.String()).Msg("second factor rejected")
		s.record(ctx, audit.EventTwoFactorFailed, user.ID, input.Client, map[string]any{"reason": outcome.String()})
		return SessionResult{}, ErrInvalidTwoFactorCode
	}

	consumed, err := s.challenges.Consume(ctx, challenge.ID)
	if err != nil {
		return SessionResult{}, err
	}
	if !consumed {
		return SessionResult{}, ErrChallengeExpiredOrInvalid
	}

	anomaly := s.detectAnomaly(ctx, user.ID, input.Client.Location)

	var device *string
	if fp := strings.TrimSpace(input.DeviceFingerprint); fp != "" {
		device = &fp
	}

	result, session, err := s.openSession(ctx, user, device, input.Client)
	if err != nil {
		return SessionResult{}, err
	}
	result.Anomaly = anomaly

	if anomaly {
		s.log.Warn().Str("user_id", user.ID).Str("client_ip", input.Client.IPAddress).
			Str("location", input.Client.Location).Msg("login from new location")
	}
	s.record(ctx, audit.EventLoginSuccess, user.ID, input.Client, map[string]any{
		"anomaly":    anomaly,
		"session_id": session.ID,
	})
	return result, nil
}

// Refresh mints a new access token for a live session. With rotation on, the
// presented secret is retired and a new session row takes its place.
func (s *AuthService) Refresh(ctx context.Context, refreshSecret string, client models.ClientInfo) (SessionResult, error) {
	if refreshSecret == "" {
		return SessionResult{}, ErrInvalidRefreshToken
	}

	session, err := s.sessions.FindActiveByRefreshHash(ctx, security.Digest(refreshSecret))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return SessionResult{}, ErrInvalidRefreshToken
		}
		return SessionResult{}, fmt.Errorf("find session: %w", err)
	}
	if !s.now().Before(session.ExpiresAt) {
		return SessionResult{}, ErrRefreshTokenExpired
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return SessionResult{}, ErrInvalidRefreshToken
		}
		return SessionResult{}, fmt.Errorf("load user: %w", err)
	}

	if s.cfg.Security.RotateRefresh {
		return s.rotate(ctx, user, session, client)
	}

	accessToken, err := s.issueAccessToken(user, session.ID)
	if err != nil {
		return SessionResult{}, err
	}

	s.record(ctx, audit.EventTokenRefreshed, user.ID, client, map[string]any{"session_id": session.ID, "rotated": false})
	return SessionResult{
		AccessToken:      accessToken,
		ExpiresIn:        s.accessTTLSeconds(),
		RefreshExpiresAt: session.ExpiresAt,
		User:             user,
	}, nil
}

func (s *AuthService) rotate(ctx context.Context, user models.User, old models.Session, client models.ClientInfo) (SessionResult, error) {
	revoked, err := s.sessions.RevokeByID(ctx, old.ID)
	if err != nil {
		return SessionResult{}, err
	}
	if !revoked {
		return SessionResult{}, ErrInvalidRefreshToken
	}

	result, session, err := s.openSession(ctx, user, old.DeviceFingerprint, client)
	if err != nil {
		return SessionResult{}, err
	}

	s.record(ctx, audit.EventTokenRefreshed, user.ID, client, map[string]any{
		"session_id":          session.ID,
		"previous_session_id": old.ID,
		"rotated":             true,
	})
	return result, nil
}

// Logout always succeeds; an unknown or already revoked secret is recorded
// as found=false.
func (s *AuthService) Logout(ctx context.Context, refreshSecret string, client models.ClientInfo) error {
	var (
		userID string
		found  bool
	)
	if refreshSecret != "" {
		id, err := s.sessions.RevokeByRefreshHash(ctx, security.Digest(refreshSecret))
		switch {
		case err == nil:
			userID, found = id, true
		case !errors.Is(err, repository.ErrSessionNotFound):
			s.log.Warn().Err(err).Msg("revoke session on logout failed")
		}
	}

	s.record(ctx, audit.EventLogout, userID, client, map[string]any{"found": found})
	return nil
}

// Setup creates the sole administrator. It is gated by the configured setup
// key and refuses to run once any admin row exists.
func (s *AuthService) Setup(ctx context.Context, input SetupInput) (SetupResult, error) {
	if err := s.throttle(ctx, input.Client, ratelimit.EndpointSetup); err != nil {
		return SetupResult{}, err
	}

	configured := s.cfg.Security.SetupKey
	if configured == "" || !security.ConstantTimeEqual(input.SetupKey, configured) {
		s.log.Warn().Str("client_ip", input.Client.IPAddress).Msg("setup attempted with invalid key")
		return SetupResult{}, ErrForbidden
	}

	email := normalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return SetupResult{}, InvalidRequest("A valid email is required")
	}
	if len(input.Password) < minPasswordLength {
		return SetupResult{}, InvalidRequest(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}

	exists, err := s.users.Exists(ctx)
	if err != nil {
		return SetupResult{}, err
	}
	if exists {
		return SetupResult{}, ErrAlreadyInitialized
	}

	key, err := security.NewTOTPKey(s.cfg.Security.TOTPIssuer, email)
	if err != nil {
		return SetupResult{}, err
	}
	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return SetupResult{}, err
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}

	now := s.now().UTC()
	user := models.User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: passwordHash,
		TOTPSecret:   key.Secret(),
		DisplayName:  displayName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return SetupResult{}, ErrAlreadyInitialized
		}
		return SetupResult{}, err
	}

	s.log.Info().Str("user_id", user.ID).Msg("administrator created")
	s.record(ctx, audit.EventAdminSetup, user.ID, input.Client, nil)
	return SetupResult{
		User:            user,
		TOTPSecret:      key.Secret(),
		ProvisioningURL: key.URL(),
	}, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID string) (models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrUnauthorized
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *AuthService) openSession(ctx context.Context, user models.User, device *string, client models.ClientInfo) (SessionResult, models.Session, error) {
	refreshSecret, err := security.SecureToken(refreshSecretBytes)
	if err != nil {
		return SessionResult{}, models.Session{}, err
	}

	now := s.now().UTC()
	session := models.Session{
		ID:                ids.New(),
		UserID:            user.ID,
		RefreshTokenHash:  security.Digest(refreshSecret),
		DeviceFingerprint: device,
		IPAddress:         client.IPAddress,
		Location:          client.Location,
		UserAgent:         client.UserAgent,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.cfg.Security.RefreshTokenTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return SessionResult{}, models.Session{}, fmt.Errorf("create session: %w", err)
	}

	accessToken, err := s.issueAccessToken(user, session.ID)
	if err != nil {
		return SessionResult{}, models.Session{}, err
	}

	return SessionResult{
		AccessToken:      accessToken,
		ExpiresIn:        s.accessTTLSeconds(),
		RefreshToken:     refreshSecret,
		RefreshExpiresAt: session.ExpiresAt,
		User:             user,
	}, session, nil
}

func (s *AuthService) issueAccessToken(user models.User, sessionID string) (string, error) {
	return security.SignToken(security.Claims{
		Email:     user.Email,
		Name:      user.DisplayName,
		Role:      models.AdminRole,
		Type:      security.TokenTypeAccess,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: user.ID,
		},
	}, s.cfg.Security.AccessSecret, s.cfg.Security.AccessTokenTTL)
}

func (s *AuthService) accessTTLSeconds() int {
	return int(s.cfg.Security.AccessTokenTTL / time.Second)
}

// detectAnomaly flags a login whose coarse location differs from the one
// recorded on the user's newest live session. It never blocks the login.
func (s *AuthService) detectAnomaly(ctx context.Context, userID, location string) bool {
	if location == "" {
		return false
	}
	latest, err := s.sessions.LatestActiveByUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrSessionNotFound) {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("anomaly lookup failed")
		}
		return false
	}
	return latest.Location != "" && !strings.EqualFold(latest.Location, location)
}

// throttle fails open: an unreachable limiter is logged, not enforced.
func (s *AuthService) throttle(ctx context.Context, client models.ClientInfo, endpoint string) error {
	decision, err := s.limiter.Allow(ctx, client.IPAddress, endpoint)
	if err != nil {
		s.log.Warn().Err(err).Str("endpoint", endpoint).Msg("rate limiter unavailable")
		return nil
	}
	if decision.Allowed {
		return nil
	}

	s.record(ctx, audit.EventRateLimited, "", client, map[string]any{
		"endpoint":    endpoint,
		"retry_after": int(decision.RetryAfter / time.Second),
	})
	return RateLimited(decision.RetryAfter)
}

func (s *AuthService) record(ctx context.Context, eventType, actorID string, client models.ClientInfo, details map[string]any) {
	s.audit.Record(ctx, audit.NewEvent(eventType, actorID, client, details))
}
