package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"opsdesk/internal/config"
	"opsdesk/internal/middleware"
	"opsdesk/internal/models"
	"opsdesk/internal/service"
)

// HealthCheck pings one backing store for /healthz.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

type HandlerSet struct {
	log          zerolog.Logger
	cfg          *config.AppConfig
	authService  *service.AuthService
	shareService *service.ShareLinkService
	checks       []HealthCheck
}

func NewHandlerSet(
	log zerolog.Logger,
	cfg *config.AppConfig,
	authService *service.AuthService,
	shareService *service.ShareLinkService,
	checks ...HealthCheck,
) HandlerSet {
	return HandlerSet{
		log:          log,
		cfg:          cfg,
		authService:  authService,
		shareService: shareService,
		checks:       checks,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	requireAuth := middleware.Auth(h.cfg.Security.AccessSecret, h.log)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/login", h.Login)
		auth.POST("/verify-2fa", h.VerifyTwoFactor)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)
		auth.POST("/setup", h.Setup)
		auth.GET("/me", requireAuth, h.Me)
	}

	share := v1.Group("/share")
	share.GET("/validate", h.ValidateShareLink)

	shareAdmin := share.Group("")
	shareAdmin.Use(
		requireAuth,
		middleware.RequireRoles(models.AdminRole),
	)
	shareAdmin.POST("/create", h.CreateShareLink)
	shareAdmin.GET("/list", h.ListShareLinks)
	shareAdmin.POST("/revoke/:id", h.RevokeShareLink)
}

func (h HandlerSet) clientInfo(c *gin.Context) models.ClientInfo {
	return models.ClientInfo{
		IPAddress: c.ClientIP(),
		Location:  c.GetHeader(h.cfg.HTTP.LocationHeader),
		UserAgent: c.GetHeader("User-Agent"),
	}
}
