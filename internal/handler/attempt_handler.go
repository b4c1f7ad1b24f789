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
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// AttemptHandler exposes the student-facing attempt lifecycle. Integrity
// enforcement happens in middleware before these run; handlers only own the
// state transition and its audit record.
type AttemptHandler struct {
	attempts *service.AttemptService
	recorder *service.AuditRecorder
	log      zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts *service.AttemptService, recorder *service.AuditRecorder, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		recorder: recorder,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

// Start godoc
// POST /api/v1/exams/:exam_id/attempts
func (h *AttemptHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attempts.Start(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptAlreadyActive):
			response.Fail(c, http.StatusConflict, response.ErrAttemptAlreadyActive)
		case errors.Is(err, pgx.ErrNoRows):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		default:
			h.log.Error().Err(err).Msg("Failed to start attempt")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	h.recorder.RecordForExam(c.Request.Context(), examID,
		auditEvent(c, model.ActionExamAttemptStart, "attempt", attempt.ID.String(), map[string]any{
			"exam_id":        examID.String(),
			"desktop_client": middleware.IsDesktopClient(c),
		}))
	response.Success(c, http.StatusCreated, attempt)
}

// Get godoc
// GET /api/v1/attempts/:attempt_id
func (h *AttemptHandler) Get(c *gin.Context) {
	attempt, ok := h.ownAttempt(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, attempt)
}

// SaveAnswer godoc
// PUT /api/v1/attempts/:attempt_id/answers
// Saving the same question id again overwrites the previous response.
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	attempt, ok := h.ownAttempt(c)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	err := h.attempts.RecordAnswer(c.Request.Context(), attempt.ID, req.QuestionID, req.Response)
	if err != nil {
		if errors.Is(err, service.ErrAttemptNotActive) {
			response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)
			return
		}
		h.log.Error().Err(err).Msg("Failed to save answer")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, nil)
}

// Submit godoc
// POST /api/v1/attempts/:attempt_id/submit
func (h *AttemptHandler) Submit(c *gin.Context) {
	attempt, ok := h.ownAttempt(c)
	if !ok {
		return
	}

	submitted, err := h.attempts.Submit(c.Request.Context(), attempt.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadySubmitted):
			response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
		case errors.Is(err, service.ErrStateConflict), errors.Is(err, service.ErrAttemptNotActive):
			response.Fail(c, http.StatusConflict, response.ErrStateConflict)
		default:
			h.log.Error().Err(err).Msg("Failed to submit attempt")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	detail := map[string]any{
		"exam_id": submitted.ExamID.String(),
		"status":  string(submitted.Status),
	}
	if submitted.Grade != nil {
		detail["grade"] = *submitted.Grade
	}
	h.recorder.RecordForExam(c.Request.Context(), submitted.ExamID,
		auditEvent(c, model.ActionExamAttemptSubmit, "attempt", submitted.ID.String(), detail))
	response.Success(c, http.StatusOK, submitted)
}

// ownAttempt resolves the attempt loaded by the integrity middleware and
// enforces that the caller is its student.
func (h *AttemptHandler) ownAttempt(c *gin.Context) (*model.Attempt, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	attempt := attemptFromContext(c)
	if attempt == nil {
		attemptID, err := uuid.Parse(c.Param("attempt_id"))
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return nil, false
		}
		attempt, err = h.attempts.Get(c.Request.Context(), attemptID)
		if err != nil {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return nil, false
		}
	}

	if attempt.StudentID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return nil, false
	}
	return attempt, true
}

func attemptFromContext(c *gin.Context) *model.Attempt {
	val, exists := c.Get(middleware.ContextKeyAttempt)
	if !exists {
		return nil
	}
	attempt, ok := val.(*model.Attempt)
	if !ok {
		return nil
	}
	return attempt
}
