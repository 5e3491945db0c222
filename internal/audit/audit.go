package audit

import (
	"context"
	"time"

	"opsdesk/internal/models"
)

const (
	EventLoginFailed             = "login_failed"
	EventLoginChallengeIssued    = "login_challenge_issued"
	EventTwoFactorFailed         = "two_factor_failed"
	EventLoginSuccess            = "login_success"
	EventTokenRefreshed          = "token_refreshed"
	EventLogout                  = "logout"
	EventAdminSetup              = "admin_setup"
	EventShareLinkCreated        = "share_link_created"
	EventShareLinkUsed           = "share_link_used"
	EventShareLinkDeviceMismatch = "share_link_device_mismatch"
	EventShareLinkRejected       = "share_link_rejected"
	EventShareLinkRevoked        = "share_link_revoked"
	EventRateLimited             = "rate_limited"
)

type Event = models.AuditEvent

// Recorder is fire-and-forget. Implementations log write failures and
// never report them to the caller.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// NewEvent stamps an event with client metadata and the current time.
func NewEvent(eventType string, actorID string, client models.ClientInfo, details map[string]any) Event {
	var actor *string
	if actorID != "" {
		actor = &actorID
	}
	return Event{
		Type:      eventType,
		ActorID:   actor,
		ClientIP:  client.IPAddress,
		Location:  client.Location,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
}

// detach keeps a write alive after the request that triggered it returns.
func detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
