package service

import (
	"fmt"
	"net/http"
	"time"
)

type Kind string

const (
	KindInvalidCredentials        Kind = "invalid_credentials"
	KindRateLimited               Kind = "rate_limited"
	KindChallengeExpiredOrInvalid Kind = "challenge_expired_or_invalid"
	KindInvalidTwoFactorCode      Kind = "invalid_two_factor_code"
	KindInvalidRefreshToken       Kind = "invalid_refresh_token"
	KindRefreshTokenExpired       Kind = "refresh_token_expired"
	KindInvalidOrRevokedLink      Kind = "invalid_or_revoked_link"
	KindLinkExpired               Kind = "link_expired"
	KindUsageLimitReached         Kind = "usage_limit_reached"
	KindDeviceMismatch            Kind = "device_mismatch"
	KindInvalidRole               Kind = "invalid_role"
	KindForbidden                 Kind = "forbidden"
	KindNotFound                  Kind = "not_found"
	KindInternal                  Kind = "internal_error"
	KindInvalidRequest            Kind = "invalid_request"
	KindAlreadyInitialized        Kind = "already_initialized"
	KindUnauthorized              Kind = "unauthorized"
)

// Error is the only error shape that crosses the HTTP boundary. Anything else
// is reported to the caller as ErrInternal.
type Error struct {
	Kind       Kind
	Message    string
	Status     int
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches on Kind so a RateLimited error with any retry-after still
// satisfies errors.Is(err, ErrRateLimited).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidCredentials        = &Error{Kind: KindInvalidCredentials, Message: "Invalid credentials", Status: http.StatusUnauthorized}
	ErrRateLimited               = &Error{Kind: KindRateLimited, Message: "Too many attempts, try again later", Status: http.StatusTooManyRequests}
	ErrChallengeExpiredOrInvalid = &Error{Kind: KindChallengeExpiredOrInvalid, Message: "Login challenge expired or invalid", Status: http.StatusUnauthorized}
	ErrInvalidTwoFactorCode      = &Error{Kind: KindInvalidTwoFactorCode, Message: "Invalid verification code", Status: http.StatusUnauthorized}
	ErrInvalidRefreshToken       = &Error{Kind: KindInvalidRefreshToken, Message: "Invalid refresh token", Status: http.StatusUnauthorized}
	ErrRefreshTokenExpired       = &Error{Kind: KindRefreshTokenExpired, Message: "Refresh token expired", Status: http.StatusUnauthorized}
	ErrInvalidOrRevokedLink      = &Error{Kind: KindInvalidOrRevokedLink, Message: "This link is invalid or has been revoked", Status: http.StatusNotFound}
	ErrLinkExpired               = &Error{Kind: KindLinkExpired, Message: "This link has expired", Status: http.StatusGone}
	ErrUsageLimitReached         = &Error{Kind: KindUsageLimitReached, Message: "This link has reached its usage limit", Status: http.StatusForbidden}
	ErrDeviceMismatch            = &Error{Kind: KindDeviceMismatch, Message: "This link is bound to another device", Status: http.StatusForbidden}
	ErrInvalidRole               = &Error{Kind: KindInvalidRole, Message: "Unknown share role", Status: http.StatusBadRequest}
	ErrForbidden                 = &Error{Kind: KindForbidden, Message: "Forbidden", Status: http.StatusForbidden}
	ErrNotFound                  = &Error{Kind: KindNotFound, Message: "Not found", Status: http.StatusNotFound}
	ErrInternal                  = &Error{Kind: KindInternal, Message: "Internal server error", Status: http.StatusInternalServerError}
	ErrAlreadyInitialized        = &Error{Kind: KindAlreadyInitialized, Message: "An administrator already exists", Status: http.StatusConflict}
	ErrUnauthorized              = &Error{Kind: KindUnauthorized, Message: "Authentication required", Status: http.StatusUnauthorized}
)

func RateLimited(retryAfter time.Duration) *Error {
	err := *ErrRateLimited
	err.RetryAfter = retryAfter
	return &err
}

func InvalidRequest(message string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: message, Status: http.StatusBadRequest}
}
