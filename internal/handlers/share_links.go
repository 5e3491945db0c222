package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"opsdesk/internal/middleware"
	"opsdesk/internal/models"
	"opsdesk/internal/service"
)

type createShareLinkRequest struct {
	Label          string          `json:"label"`
	Role           string          `json:"role"`
	AllowedAreas   []string        `json:"allowedAreas"`
	AllowedModules []string        `json:"allowedModules"`
	Scope          json.RawMessage `json:"scope"`
	ReadOnly       *bool           `json:"readOnly"`
	DeviceBinding  bool            `json:"deviceBinding"`
	MaxUses        *int            `json:"maxUses"`
	ExpiresInDays  *int            `json:"expiresInDays"`
}

type shareLinkResponse struct {
	ID             string          `json:"id"`
	Label          string          `json:"label"`
	Role           string          `json:"role"`
	AllowedAreas   []string        `json:"allowedAreas"`
	AllowedModules []string        `json:"allowedModules"`
	Scope          json.RawMessage `json:"scope"`
	ReadOnly       bool            `json:"readOnly"`
	DeviceBinding  bool            `json:"deviceBinding"`
	DeviceBound    bool            `json:"deviceBound"`
	MaxUses        *int            `json:"maxUses"`
	UseCount       int             `json:"useCount"`
	ExpiresAt      time.Time       `json:"expiresAt"`
	Status         string          `json:"status"`
	CreatedBy      string          `json:"createdBy"`
	CreatedAt      time.Time       `json:"createdAt"`
	LastUsedAt     *time.Time      `json:"lastUsedAt"`
}

type shareAccessResponse struct {
	Valid          bool            `json:"valid"`
	Role           string          `json:"role"`
	AllowedAreas   []string        `json:"allowedAreas"`
	AllowedModules []string        `json:"allowedModules"`
	Scope          json.RawMessage `json:"scope"`
	ReadOnly       bool            `json:"readOnly"`
	Label          string          `json:"label"`
	ExpiresAt      time.Time       `json:"expiresAt"`
}

// toShareLinkResponse never exposes the token hash or the pinned fingerprint.
func toShareLinkResponse(link models.ShareLink, status models.ShareLinkStatus) shareLinkResponse {
	return shareLinkResponse{
		ID:             link.ID,
		Label:          link.Label,
		Role:           string(link.Role),
		AllowedAreas:   link.AllowedAreas,
		AllowedModules: link.AllowedModules,
		Scope:          link.Scope,
		ReadOnly:       link.ReadOnly,
		DeviceBinding:  link.DeviceBinding,
		DeviceBound:    link.DeviceFingerprint != nil,
		MaxUses:        link.MaxUses,
		UseCount:       link.UseCount,
		ExpiresAt:      link.ExpiresAt,
		Status:         string(status),
		CreatedBy:      link.CreatedBy,
		CreatedAt:      link.CreatedAt,
		LastUsedAt:     link.LastUsedAt,
	}
}

func (h HandlerSet) CreateShareLink(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		h.writeError(c, service.ErrUnauthorized)
		return
	}

	var req createShareLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	created, err := h.shareService.Create(c.Request.Context(), claims.Subject, service.CreateShareLinkInput{
		Label:          req.Label,
		Role:           models.ShareRole(req.Role),
		AllowedAreas:   req.AllowedAreas,
		AllowedModules: req.AllowedModules,
		Scope:          req.Scope,
		ReadOnly:       req.ReadOnly,
		DeviceBinding:  req.DeviceBinding,
		MaxUses:        req.MaxUses,
		ExpiresInDays:  req.ExpiresInDays,
		Client:         h.clientInfo(c),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":        created.Link.ID,
		"token":     created.Token,
		"url":       created.URL,
		"expiresAt": created.Link.ExpiresAt,
		"link":      toShareLinkResponse(created.Link, models.ShareLinkStatusActive),
	})
}

func (h HandlerSet) ListShareLinks(c *gin.Context) {
	views, err := h.shareService.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	links := make([]shareLinkResponse, 0, len(views))
	for _, view := range views {
		links = append(links, toShareLinkResponse(view.Link, view.Status))
	}

	c.JSON(http.StatusOK, gin.H{
		"links": links,
	})
}

func (h HandlerSet) ValidateShareLink(c *gin.Context) {
	access, err := h.shareService.Validate(
		c.Request.Context(),
		c.Query("token"),
		c.Query("device"),
		h.clientInfo(c),
	)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, shareAccessResponse{
		Valid:          true,
		Role:           string(access.Role),
		AllowedAreas:   access.AllowedAreas,
		AllowedModules: access.AllowedModules,
		Scope:          access.Scope,
		ReadOnly:       access.ReadOnly,
		Label:          access.Label,
		ExpiresAt:      access.ExpiresAt,
	})
}

func (h HandlerSet) RevokeShareLink(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		h.writeError(c, service.ErrUnauthorized)
		return
	}

	id := c.Param("id")
	if err := h.shareService.Revoke(c.Request.Context(), claims.Subject, id, h.clientInfo(c)); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      id,
		"revoked": true,
	})
}
