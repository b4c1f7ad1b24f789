package handler

import (
	"errors"
	"net/http"

	"github.com/examlock/examlock-backend/internal/middleware"
	"github.com/examlock/examlock-backend/internal/model"
	"github.com/examlock/examlock-backend/internal/response"
	"github.com/examlock/examlock-backend/internal/service"
	"github.com/examlock/examlock-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AuthHandler exposes the session lifecycle endpoints.
type AuthHandler struct {
	auth     *service.AuthService
	recorder *service.AuditRecorder
	log      zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth *service.AuthService, recorder *service.AuditRecorder, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		recorder: recorder,
		log:      log.With().Str("component", "auth_handler").Logger(),
	}
}

// Login godoc
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.auth.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.recorder.Record(c.Request.Context(), auditEvent(c, model.ActionAuthLoginFailed, "user", "",
			map[string]any{"email": req.Email}))
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	if result.Challenge != nil {
		// No access rights granted yet; the login audit happens on redeem.
		response.Success(c, http.StatusOK, result.Challenge)
		return
	}

	h.recorder.Record(c.Request.Context(), auditEvent(c, model.ActionAuthLogin, "user", result.User.ID.String(),
		map[string]any{"email": result.User.Email, "two_factor": false}))
	payload := userPayload(result.User)
	payload["tokens"] = result.Pair
	response.Success(c, http.StatusOK, payload)
}

// VerifyTwoFactor godoc
// POST /api/v1/auth/2fa/verify
func (h *AuthHandler) VerifyTwoFactor(c *gin.Context) {
	var req model.VerifyTwoFactorRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	pair, user, err := h.auth.VerifyTwoFactor(c.Request.Context(), req.ChallengeToken, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrChallengeExpired):
			response.Fail(c, http.StatusUnauthorized, response.ErrChallengeExpired)
		case errors.Is(err, service.ErrInvalidCode):
			actorID := ""
			if user != nil {
				actorID = user.ID.String()
			}
			event := auditEvent(c, model.ActionAuthLoginFailed, "user", actorID,
				map[string]any{"stage": "two_factor"})
			event.ActorID = actorID
			h.recorder.Record(c.Request.Context(), event)
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCode)
		default:
			h.log.Error().Err(err).Msg("Two-factor verification failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	event := auditEvent(c, model.ActionAuthLogin, "user", user.ID.String(),
		map[string]any{"email": user.Email, "two_factor": true})
	event.ActorID = user.ID.String()
	h.recorder.Record(c.Request.Context(), event)
	payload := userPayload(user)
	payload["tokens"] = pair
	response.Success(c, http.StatusOK, payload)
}

// Refresh godoc
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req model.RefreshRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	pair, user, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRevokedToken):
			h.recorder.Record(c.Request.Context(), auditEvent(c, model.ActionAuthTokenRefresh, "user", "",
				map[string]any{"outcome": "reuse_revoked"}))
			response.Fail(c, http.StatusUnauthorized, response.ErrTokenRevoked)
		case errors.Is(err, service.ErrExpiredToken):
			response.Fail(c, http.StatusUnauthorized, response.ErrTokenExpired)
		default:
			h.log.Error().Err(err).Msg("Token refresh failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	event := auditEvent(c, model.ActionAuthTokenRefresh, "user", user.ID.String(),
		map[string]any{"outcome": "rotated"})
	event.ActorID = user.ID.String()
	h.recorder.Record(c.Request.Context(), event)
	response.Success(c, http.StatusOK, pair)
}

// Logout godoc
// POST /api/v1/auth/logout
// Revokes the refresh-token family. Idempotent: a repeated call with the same
// token succeeds without effect.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req model.LogoutRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.log.Error().Err(err).Msg("Logout failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	h.recorder.Record(c.Request.Context(), auditEvent(c, model.ActionAuthLogout, "user", "", nil))
	response.Success(c, http.StatusOK, nil)
}

// Me godoc
// GET /api/v1/auth/me
// Returns the identity with its live role set, not the token snapshot.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	user, err := h.auth.GetUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, userPayload(user))
}
