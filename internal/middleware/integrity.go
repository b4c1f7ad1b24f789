package middleware

import (
	"errors"
	"net/http"

	"github.com/examlock/examlock-backend/internal/integrity"
	"github.com/examlock/examlock-backend/internal/model"
	"github.com/examlock/examlock-backend/internal/response"
	"github.com/examlock/examlock-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKeyAttempt carries the attempt loaded by RequireAttemptIntegrity so
// handlers do not fetch it twice.
const ContextKeyAttempt = "attempt"

// IntegrityGuard enforces the locked-down-browser binding on attempt routes.
// The received prefix is validated against the exact request URI, so any
// proxy that rewrites paths upstream of this handler breaks validation.
type IntegrityGuard struct {
	attempts *service.AttemptService
	recorder *service.AuditRecorder
	log      zerolog.Logger
}

// NewIntegrityGuard creates a new IntegrityGuard.
func NewIntegrityGuard(attempts *service.AttemptService, recorder *service.AuditRecorder, log zerolog.Logger) *IntegrityGuard {
	return &IntegrityGuard{
		attempts: attempts,
		recorder: recorder,
		log:      log.With().Str("component", "integrity_guard").Logger(),
	}
}

// RequireExamIntegrity validates the integrity header on exam-scoped routes
// (:exam_id), used before an attempt row exists. A failure here rejects the
// request but voids nothing.
func (g *IntegrityGuard) RequireExamIntegrity() gin.HandlerFunc {
	return func(c *gin.Context) {
		examID, err := uuid.Parse(c.Param("exam_id"))
		if err != nil {
			response.AbortFail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}

		cfg, err := g.attempts.ExamIntegrity(c.Request.Context(), examID)
		if err != nil {
			response.AbortFail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}

		if code, ok := g.check(c, cfg); !ok {
			g.rejectWithAudit(c, examID, nil, code)
			return
		}
		c.Next()
	}
}

// RequireAttemptIntegrity validates the integrity header on attempt-scoped
// routes (:attempt_id). A failed check against an in-progress attempt voids
// the attempt before rejecting: the session is considered compromised, not
// merely the request.
func (g *IntegrityGuard) RequireAttemptIntegrity() gin.HandlerFunc {
	return func(c *gin.Context) {
		attemptID, err := uuid.Parse(c.Param("attempt_id"))
		if err != nil {
			response.AbortFail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}

		attempt, cfg, err := g.attempts.AttemptIntegrity(c.Request.Context(), attemptID)
		if err != nil {
			response.AbortFail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}

		if code, ok := g.check(c, cfg); !ok {
			if code == response.ErrIntegrityViolation && attempt.Status == model.AttemptStatusInProgress {
				if err := g.attempts.Void(c.Request.Context(), attempt.ID, service.IntegrityVoidReason); err != nil {
					g.log.Error().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Failed to void attempt after integrity violation")
				}
			}
			g.rejectWithAudit(c, attempt.ExamID, attempt, code)
			return
		}

		c.Set(ContextKeyAttempt, attempt)
		c.Next()
	}
}

// check validates the request against the exam's integrity configuration.
// Returns the error code to respond with when validation fails.
func (g *IntegrityGuard) check(c *gin.Context, cfg model.IntegrityConfig) (response.ErrCode, bool) {
	if !cfg.LockdownRequired {
		return "", true
	}

	key, err := integrity.ConfigKey(cfg)
	if err != nil {
		if errors.Is(err, integrity.ErrConfigMissing) {
			// Fail closed. Serving a lockdown exam without key material
			// would silently disable the whole mechanism.
			return response.ErrIntegrityConfigMissing, false
		}
		return response.ErrInternal, false
	}

	received := c.GetHeader(integrity.HeaderName)
	if received == "" {
		return response.ErrIntegrityHeaderRequired, false
	}

	if !integrity.Validate(received, c.Request.URL.RequestURI(), key) {
		return response.ErrIntegrityViolation, false
	}
	return "", true
}

func (g *IntegrityGuard) rejectWithAudit(c *gin.Context, examID uuid.UUID, attempt *model.Attempt, code response.ErrCode) {
	event := model.AuditEvent{
		Action:       model.ActionExamIntegrityViolation,
		ResourceType: "exam",
		Detail: map[string]any{
			"reason":      string(code),
			"request_uri": c.Request.URL.RequestURI(),
		},
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if claims := GetClaims(c); claims != nil {
		event.ActorID = claims.UserID.String()
	}
	if attempt != nil {
		event.ResourceType = "attempt"
		id := attempt.ID.String()
		event.ResourceID = &id
		event.Detail["exam_id"] = attempt.ExamID.String()
	} else {
		id := examID.String()
		event.ResourceID = &id
	}
	g.recorder.RecordForExam(c.Request.Context(), examID, event)

	status := http.StatusForbidden
	if code == response.ErrIntegrityConfigMissing {
		status = http.StatusConflict
	}
	response.AbortFail(c, status, code)
}
