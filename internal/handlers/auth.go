package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"opsdesk/internal/middleware"
	"opsdesk/internal/models"
	"opsdesk/internal/service"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/v1/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	ChallengeID       string `json:"challengeId"`
	ExpiresIn         int    `json:"expiresIn"`
	RequiresTwoFactor bool   `json:"requiresTwoFactor"`
}

type verifyRequest struct {
	ChallengeID       string `json:"challengeId"`
	Code              string `json:"code"`
	DeviceFingerprint string `json:"deviceFingerprint"`
}

type sessionResponse struct {
	AccessToken string       `json:"accessToken"`
	TokenType   string       `json:"tokenType"`
	ExpiresIn   int          `json:"expiresIn"`
	User        userResponse `json:"user"`
	Anomaly     bool         `json:"anomaly"`
}

type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

type setupRequest struct {
	SetupKey    string `json:"setupKey"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type setupResponse struct {
	User       userResponse `json:"user"`
	TOTPSecret string       `json:"totpSecret"`
	OTPAuthURL string       `json:"otpauthUrl"`
}

func toUserResponse(user models.User) userResponse {
	return userResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        models.AdminRole,
	}
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Client:   h.clientInfo(c),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		ChallengeID:       result.ChallengeID,
		ExpiresIn:         result.ExpiresIn,
		RequiresTwoFactor: true,
	})
}

func (h HandlerSet) VerifyTwoFactor(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.authService.VerifyTwoFactor(c.Request.Context(), service.VerifyInput{
		ChallengeID:       req.ChallengeID,
		Code:              req.Code,
		DeviceFingerprint: req.DeviceFingerprint,
		Client:            h.clientInfo(c),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.sendSession(c, result)
}

// Refresh reads the refresh secret from its cookie only; it never travels
// in a body the frontend script can see.
func (h HandlerSet) Refresh(c *gin.Context) {
	secret, _ := c.Cookie(refreshCookieName)

	result, err := h.authService.Refresh(c.Request.Context(), secret, h.clientInfo(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.sendSession(c, result)
}

func (h HandlerSet) Logout(c *gin.Context) {
	secret, _ := c.Cookie(refreshCookieName)

	if err := h.authService.Logout(c.Request.Context(), secret, h.clientInfo(c)); err != nil {
		h.writeError(c, err)
		return
	}

	h.setRefreshCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) Setup(c *gin.Context) {
	var req setupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.authService.Setup(c.Request.Context(), service.SetupInput{
		SetupKey:    req.SetupKey,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Client:      h.clientInfo(c),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, setupResponse{
		User:       toUserResponse(result.User),
		TOTPSecret: result.TOTPSecret,
		OTPAuthURL: result.ProvisioningURL,
	})
}

func (h HandlerSet) Me(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		h.writeError(c, service.ErrUnauthorized)
		return
	}

	user, err := h.authService.CurrentUser(c.Request.Context(), claims.Subject)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": toUserResponse(user),
	})
}

func (h HandlerSet) sendSession(c *gin.Context, result service.SessionResult) {
	if result.RefreshToken != "" {
		maxAge := int(time.Until(result.RefreshExpiresAt) / time.Second)
		if maxAge <= 0 {
			maxAge = int(h.cfg.Security.RefreshTokenTTL / time.Second)
		}
		h.setRefreshCookie(c, result.RefreshToken, maxAge)
	}

	c.JSON(http.StatusOK, sessionResponse{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   result.ExpiresIn,
		User:        toUserResponse(result.User),
		Anomaly:     result.Anomaly,
	})
}

func (h HandlerSet) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, value, maxAge, refreshCookiePath, "", h.cfg.Security.CookieSecure, true)
}
