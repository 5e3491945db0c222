package models

import "time"

// AuditEvent is an append-only security record. Details is stored as JSONB.
type AuditEvent struct {
	ID        int64          `json:"id,omitempty"`
	Type      string         `json:"type"`
	ActorID   *string        `json:"actorId,omitempty"`
	ClientIP  string         `json:"clientIp"`
	Location  string         `json:"location"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
