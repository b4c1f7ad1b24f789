package handler

import (
	"errors"
	"net/http"

	"github.com/examlock/examlock-backend/internal/model"
	"github.com/examlock/examlock-backend/internal/repository"
	"github.com/examlock/examlock-backend/internal/response"
	"github.com/examlock/examlock-backend/internal/service"
	"github.com/examlock/examlock-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// AdminHandler exposes role management, grading overrides, attempt voiding,
// integrity configuration, and audit log listing.
type AdminHandler struct {
	auth     *service.AuthService
	attempts *service.AttemptService
	audits   *repository.AuditRepository
	recorder *service.AuditRecorder
	log      zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	auth *service.AuthService,
	attempts *service.AttemptService,
	audits *repository.AuditRepository,
	recorder *service.AuditRecorder,
	log zerolog.Logger,
) *AdminHandler {
	return &AdminHandler{
		auth:     auth,
		attempts: attempts,
		audits:   audits,
		recorder: recorder,
		log:      log.With().Str("component", "admin_handler").Logger(),
	}
}

// ChangeRoles godoc
// PUT /api/v1/admin/users/:user_id/roles
func (h *AdminHandler) ChangeRoles(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ChangeRolesRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	before, err := h.auth.GetUser(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	oldRoles := before.Roles

	user, err := h.auth.ChangeRoles(c.Request.Context(), userID, req.Roles)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRole) {
			response.Fail(c, http.StatusBadRequest, response.ErrValidation)
			return
		}
		h.log.Error().Err(err).Msg("Failed to change roles")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	h.recorder.Record(c.Request.Context(), auditEvent(c, model.ActionAdminRoleChange, "user", userID.String(),
		map[string]any{"old_roles": oldRoles, "new_roles": user.Roles}))
	response.Success(c, http.StatusOK, user)
}

// VoidAttempt godoc
// POST /api/v1/admin/attempts/:attempt_id/void
func (h *AdminHandler) VoidAttempt(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.VoidAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attempts.Get(c.Request.Context(), attemptID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	if err := h.attempts.Void(c.Request.Context(), attemptID, req.Reason); err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyVoid), errors.Is(err, service.ErrStateConflict):
			response.Fail(c, http.StatusConflict, response.ErrStateConflict)
		default:
			h.log.Error().Err(err).Msg("Failed to void attempt")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	h.recorder.RecordForExam(c.Request.Context(), attempt.ExamID,
		auditEvent(c, model.ActionExamAttemptVoid, "attempt", attemptID.String(), map[string]any{
			"exam_id": attempt.ExamID.String(),
			"reason":  req.Reason,
		}))
	response.Success(c, http.StatusOK, nil)
}

// AssignGrade godoc
// POST /api/v1/admin/attempts/:attempt_id/grade
// Grading a previously graded attempt is an override and is audited as such.
func (h *AdminHandler) AssignGrade(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.AssignGradeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	before, err := h.attempts.Get(c.Request.Context(), attemptID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	attempt, err := h.attempts.AssignGrade(c.Request.Context(), attemptID, req.Grade)
	if err != nil {
		if errors.Is(err, service.ErrStateConflict) {
			response.Fail(c, http.StatusConflict, response.ErrStateConflict)
			return
		}
		h.log.Error().Err(err).Msg("Failed to assign grade")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	action := model.ActionGradeAssigned
	detail := map[string]any{"exam_id": attempt.ExamID.String(), "grade": req.Grade}
	if before.Status == model.AttemptStatusGraded {
		action = model.ActionGradeOverridden
		if before.Grade != nil {
			detail["previous_grade"] = *before.Grade
		}
	}
	h.recorder.Record(c.Request.Context(), auditEvent(c, action, "attempt", attemptID.String(), detail))
	response.Success(c, http.StatusOK, attempt)
}

// ListAttempts godoc
// GET /api/v1/admin/exams/:exam_id/attempts
func (h *AdminHandler) ListAttempts(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	page, perPage := parsePagination(c)
	attempts, total, err := h.attempts.ListByExam(c.Request.Context(), examID, page, perPage)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list attempts")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, attempts, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: totalPages(total, perPage),
	})
}

// ListAudit godoc
// GET /api/v1/admin/audit?action=exam.attempt_void
func (h *AdminHandler) ListAudit(c *gin.Context) {
	page, perPage := parsePagination(c)
	events, total, err := h.audits.List(c.Request.Context(), c.Query("action"), page, perPage)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list audit log")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, events, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: totalPages(total, perPage),
	})
}

// GetIntegrityConfig godoc
// GET /api/v1/admin/exams/:exam_id/integrity
// Key material never leaves the server; only its presence is reported.
func (h *AdminHandler) GetIntegrityConfig(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	cfg, err := h.attempts.ExamIntegrity(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"lockdown_required": cfg.LockdownRequired,
		"has_config_key":    cfg.ConfigKey != "",
		"has_quit_password": cfg.QuitPasswordHash != "",
		"allow_urls":        cfg.AllowURLs,
		"block_urls":        cfg.BlockURLs,
	})
}

// UpdateIntegrityConfig godoc
// PUT /api/v1/admin/exams/:exam_id/integrity
func (h *AdminHandler) UpdateIntegrityConfig(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.UpdateIntegrityConfigRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.attempts.UpdateIntegrityConfig(c.Request.Context(), examID, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrConfigLocked):
			response.Fail(c, http.StatusConflict, response.ErrConfigLocked)
		case errors.Is(err, pgx.ErrNoRows):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		default:
			h.log.Error().Err(err).Msg("Failed to update integrity config")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}
	response.Success(c, http.StatusOK, exam)
}
