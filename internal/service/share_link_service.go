package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"opsdesk/internal/audit"
	"opsdesk/internal/config"
	"opsdesk/internal/ids"
	"opsdesk/internal/models"
	"opsdesk/internal/repository"
	"opsdesk/internal/security"
)

const (
	shareTokenBytes = 32
	// consumeAttempts bounds re-reads after a conditional use loses a race
	// that leaves the link still admissible.
	consumeAttempts = 3
)

type ShareLinkStore interface {
	Create(ctx context.Context, link models.ShareLink) error
	FindActiveByTokenHash(ctx context.Context, tokenHash string) (models.ShareLink, error)
	GetByID(ctx context.Context, id string) (models.ShareLink, error)
	ConsumeUse(ctx context.Context, id, device string, at time.Time) (models.ShareLink, error)
	Revoke(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.ShareLink, error)
}

type ShareLinkService struct {
	links ShareLinkStore
	audit audit.Recorder
	cfg   *config.AppConfig
	log   zerolog.Logger
	now   func() time.Time
}

func NewShareLinkService(links ShareLinkStore, recorder audit.Recorder, cfg *config.AppConfig, log zerolog.Logger) *ShareLinkService {
	return &ShareLinkService{
		links: links,
		audit: recorder,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

type CreateShareLinkInput struct {
	Label          string
	Role           models.ShareRole
	AllowedAreas   []string
	AllowedModules []string
	Scope          json.RawMessage
	ReadOnly       *bool
	DeviceBinding  bool
	MaxUses        *int
	ExpiresInDays  *int
	Client         models.ClientInfo
}

// CreatedShareLink carries the plaintext token. It is never retrievable again.
type CreatedShareLink struct {
	Link  models.ShareLink
	Token string
	URL   string
}

// ShareAccess is the full authorization context granted by a valid link.
type ShareAccess struct {
	LinkID         string
	Role           models.ShareRole
	AllowedAreas   []string
	AllowedModules []string
	Scope          json.RawMessage
	ReadOnly       bool
	Label          string
	ExpiresAt      time.Time
}

type ShareLinkView struct {
	Link   models.ShareLink
	Status models.ShareLinkStatus
}

func (s *ShareLinkService) Create(ctx context.Context, actorID string, input CreateShareLinkInput) (CreatedShareLink, error) {
	if !input.Role.Valid() {
		return CreatedShareLink{}, ErrInvalidRole
	}

	days := s.cfg.Share.DefaultExpiryDays
	if input.ExpiresInDays != nil {
		days = *input.ExpiresInDays
	}
	if days < 0 {
		return CreatedShareLink{}, InvalidRequest("expiresInDays must not be negative")
	}
	if input.MaxUses != nil && *input.MaxUses < 1 {
		return CreatedShareLink{}, InvalidRequest("maxUses must be at least 1")
	}

	scope := input.Scope
	if len(scope) == 0 || string(scope) == "null" {
		scope = json.RawMessage(`{}`)
	}
	if !json.Valid(scope) {
		return CreatedShareLink{}, InvalidRequest("scope must be valid JSON")
	}

	readOnly := true
	if input.ReadOnly != nil {
		readOnly = *input.ReadOnly
	}

	token, err := security.SecureToken(shareTokenBytes)
	if err != nil {
		return CreatedShareLink{}, err
	}

	now := s.now().UTC()
	link := models.ShareLink{
		ID:             ids.New(),
		TokenHash:      security.Digest(token),
		Label:          strings.TrimSpace(input.Label),
		Role:           input.Role,
		AllowedAreas:   nonNil(input.AllowedAreas),
		AllowedModules: nonNil(input.AllowedModules),
		Scope:          scope,
		ReadOnly:       readOnly,
		DeviceBinding:  input.DeviceBinding,
		MaxUses:        input.MaxUses,
		ExpiresAt:      now.Add(time.Duration(days) * 24 * time.Hour),
		CreatedBy:      actorID,
		CreatedAt:      now,
	}
	if err := s.links.Create(ctx, link); err != nil {
		return CreatedShareLink{}, fmt.Errorf("create share link: %w", err)
	}

	s.record(ctx, audit.EventShareLinkCreated, actorID, input.Client, map[string]any{
		"link_id":        link.ID,
		"role":           string(link.Role),
		"expires_at":     link.ExpiresAt,
		"device_binding": link.DeviceBinding,
	})
	return CreatedShareLink{
		Link:  link,
		Token: token,
		URL:   s.shareURL(token),
	}, nil
}

func (s *ShareLinkService) shareURL(token string) string {
	base := strings.TrimRight(s.cfg.Share.PublicBaseURL, "/")
	return base + "/share?token=" + url.QueryEscape(token)
}

// Validate admits one use of the link behind token. The checks run against
// a read first for precise errors, then again inside the conditional update.
func (s *ShareLinkService) Validate(ctx context.Context, token, device string, client models.ClientInfo) (ShareAccess, error) {
	if token == "" {
		return ShareAccess{}, ErrInvalidOrRevokedLink
	}
	device = strings.TrimSpace(device)

	link, err := s.links.FindActiveByTokenHash(ctx, security.Digest(token))
	if err != nil {
		if errors.Is(err, repository.ErrShareLinkNotFound) {
			s.record(ctx, audit.EventShareLinkRejected, "", client, map[string]any{"reason": "unknown_or_revoked"})
			return ShareAccess{}, ErrInvalidOrRevokedLink
		}
		return ShareAccess{}, fmt.Errorf("find share link: %w", err)
	}

	for attempt := 0; attempt < consumeAttempts; attempt++ {
		now := s.now().UTC()
		if err := s.admit(ctx, link, device, client, now); err != nil {
			return ShareAccess{}, err
		}

		used, err := s.links.ConsumeUse(ctx, link.ID, device, now)
		if err == nil {
			s.record(ctx, audit.EventShareLinkUsed, "", client, map[string]any{
				"link_id":   used.ID,
				"use_count": used.UseCount,
			})
			return accessFor(used), nil
		}
		if !errors.Is(err, repository.ErrShareLinkUnavailable) {
			return ShareAccess{}, fmt.Errorf("consume share link: %w", err)
		}

		link, err = s.links.GetByID(ctx, link.ID)
		if err != nil {
			if errors.Is(err, repository.ErrShareLinkNotFound) {
				return ShareAccess{}, ErrInvalidOrRevokedLink
			}
			return ShareAccess{}, fmt.Errorf("reload share link: %w", err)
		}
	}

	s.log.Warn().Str("link_id", link.ID).Msg("share link use kept losing races")
	return ShareAccess{}, ErrUsageLimitReached
}

func (s *ShareLinkService) admit(ctx context.Context, link models.ShareLink, device string, client models.ClientInfo, now time.Time) error {
	reject := func(reason string, err error) error {
		s.record(ctx, audit.EventShareLinkRejected, "", client, map[string]any{"link_id": link.ID, "reason": reason})
		return err
	}

	switch {
	case link.Revoked:
		return reject("revoked", ErrInvalidOrRevokedLink)
	case link.Expired(now):
		return reject("expired", ErrLinkExpired)
	case link.UsageExhausted():
		return reject("usage_limit", ErrUsageLimitReached)
	case !link.DeviceAllowed(device):
		s.record(ctx, audit.EventShareLinkDeviceMismatch, "", client, map[string]any{"link_id": link.ID})
		return ErrDeviceMismatch
	}
	return nil
}

func accessFor(link models.ShareLink) ShareAccess {
	return ShareAccess{
		LinkID:         link.ID,
		Role:           link.Role,
		AllowedAreas:   link.AllowedAreas,
		AllowedModules: link.AllowedModules,
		Scope:          link.Scope,
		ReadOnly:       link.ReadOnly,
		Label:          link.Label,
		ExpiresAt:      link.ExpiresAt,
	}
}

// Revoke is idempotent; revoking a revoked link succeeds.
func (s *ShareLinkService) Revoke(ctx context.Context, actorID, id string, client models.ClientInfo) error {
	if err := s.links.Revoke(ctx, id); err != nil {
		if errors.Is(err, repository.ErrShareLinkNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("revoke share link: %w", err)
	}

	s.record(ctx, audit.EventShareLinkRevoked, actorID, client, map[string]any{"link_id": id})
	return nil
}

func (s *ShareLinkService) List(ctx context.Context) ([]ShareLinkView, error) {
	links, err := s.links.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}

	now := s.now()
	views := make([]ShareLinkView, 0, len(links))
	for _, link := range links {
		views = append(views, ShareLinkView{Link: link, Status: link.Status(now)})
	}
	return views, nil
}

func (s *ShareLinkService) record(ctx context.Context, eventType, actorID string, client models.ClientInfo, details map[string]any) {
	s.audit.Record(ctx, audit.NewEvent(eventType, actorID, client, details))
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
