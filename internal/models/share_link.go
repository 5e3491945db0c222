package models

import (
	"encoding/json"
	"time"
)

type ShareRole string

const (
	ShareRoleOperations        ShareRole = "operations"
	ShareRoleController        ShareRole = "controller"
	ShareRoleMarketingDirector ShareRole = "marketing_director"
	ShareRoleMarketingManager  ShareRole = "marketing_manager"
	ShareRoleGraphicDesigner   ShareRole = "graphic_designer"
	ShareRoleSocialMediaIntern ShareRole = "social_media_intern"
	ShareRolePhotographer      ShareRole = "photographer"
	ShareRoleSustainability    ShareRole = "sustainability"
	ShareRoleDietitian         ShareRole = "dietitian"
	ShareRoleViewer            ShareRole = "viewer"
)

var shareRoles = map[ShareRole]struct{}{
	ShareRoleOperations:        {},
	ShareRoleController:        {},
	ShareRoleMarketingDirector: {},
	ShareRoleMarketingManager:  {},
	ShareRoleGraphicDesigner:   {},
	ShareRoleSocialMediaIntern: {},
	ShareRolePhotographer:      {},
	ShareRoleSustainability:    {},
	ShareRoleDietitian:         {},
	ShareRoleViewer:            {},
}

func (r ShareRole) Valid() bool {
	_, ok := shareRoles[r]
	return ok
}

type ShareLinkStatus string

const (
	ShareLinkStatusActive  ShareLinkStatus = "active"
	ShareLinkStatusExpired ShareLinkStatus = "expired"
	ShareLinkStatusRevoked ShareLinkStatus = "revoked"
)

type ShareLink struct {
	ID                string
	TokenHash         string
	Label             string
	Role              ShareRole
	AllowedAreas      []string
	AllowedModules    []string
	Scope             json.RawMessage
	ReadOnly          bool
	DeviceBinding     bool
	DeviceFingerprint *string
	MaxUses           *int
	UseCount          int
	ExpiresAt         time.Time
	Revoked           bool
	CreatedBy         string
	CreatedAt         time.Time
	LastUsedAt        *time.Time
}

// Status is derived from the stored flags; revocation wins over expiry.
func (l ShareLink) Status(now time.Time) ShareLinkStatus {
	switch {
	case l.Revoked:
		return ShareLinkStatusRevoked
	case l.Expired(now):
		return ShareLinkStatusExpired
	default:
		return ShareLinkStatusActive
	}
}

func (l ShareLink) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

func (l ShareLink) UsageExhausted() bool {
	return l.MaxUses != nil && l.UseCount >= *l.MaxUses
}

// DeviceAllowed reports whether device may use the link. An unbound link
// accepts any device; the first one gets pinned on successful use.
func (l ShareLink) DeviceAllowed(device string) bool {
	if !l.DeviceBinding || l.DeviceFingerprint == nil {
		return true
	}
	return *l.DeviceFingerprint == device
}
