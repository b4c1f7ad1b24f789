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

// TwoFactorHandler manages TOTP enrollment for the authenticated user.
type TwoFactorHandler struct {
	auth     *service.AuthService
	recorder *service.AuditRecorder
	log      zerolog.Logger
}

// NewTwoFactorHandler creates a new TwoFactorHandler.
func NewTwoFactorHandler(auth *service.AuthService, recorder *service.AuditRecorder, log zerolog.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{
		auth:     auth,
		recorder: recorder,
		log:      log.With().Str("component", "twofactor_handler").Logger(),
	}
}

// StartSetup godoc
// POST /api/v1/auth/2fa/setup
// Generates a pending secret. Two-factor stays disabled until Enable
// verifies one code against it.
func (h *TwoFactorHandler) StartSetup(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	setup, err := h.auth.StartTwoFactorSetup(c.Request.Context(), claims.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("Two-factor setup failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, setup)
}

// Enable godoc
// POST /api/v1/auth/2fa/enable
func (h *TwoFactorHandler) Enable(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.TwoFactorCodeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.auth.EnableTwoFactor(c.Request.Context(), claims.UserID, req.Code); err != nil {
		h.failCode(c, err, "Two-factor enable failed")
		return
	}

	h.recorder.Record(c.Request.Context(), auditEvent(c, model.ActionAuthTwoFactorEnable, "user", claims.UserID.String(), nil))
	response.Success(c, http.StatusOK, nil)
}

// Disable godoc
// POST /api/v1/auth/2fa/disable
// Requires a valid current code, so a hijacked session cannot silently strip
// the second factor.
func (h *TwoFactorHandler) Disable(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.TwoFactorCodeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.auth.DisableTwoFactor(c.Request.Context(), claims.UserID, req.Code); err != nil {
		h.failCode(c, err, "Two-factor disable failed")
		return
	}

	h.recorder.Record(c.Request.Context(), auditEvent(c, model.ActionAuthTwoFactorDisable, "user", claims.UserID.String(), nil))
	response.Success(c, http.StatusOK, nil)
}

func (h *TwoFactorHandler) failCode(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrTwoFactorNotSetup):
		response.Fail(c, http.StatusConflict, response.ErrTwoFactorNotSetup)
	case errors.Is(err, service.ErrInvalidCode):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidCode)
	default:
		h.log.Error().Err(err).Msg(msg)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
