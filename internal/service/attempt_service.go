package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/examlock/examlock-backend/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Attempt state-machine errors. Callers can distinguish "already in this
// exact state" (ErrAlreadySubmitted, ErrAlreadyVoid) from "in an
// incompatible state" (ErrStateConflict), which usually indicates a client
// bug or tampering.
var (
	ErrAttemptAlreadyActive = errors.New("an attempt for this exam is already in progress")
	ErrAttemptNotActive     = errors.New("attempt is not in progress")
	ErrAlreadySubmitted     = errors.New("attempt already submitted")
	ErrAlreadyVoid          = errors.New("attempt already void")
	ErrStateConflict        = errors.New("attempt is in an incompatible state")
	ErrConfigLocked         = errors.New("integrity config is locked once an attempt has started")
)

// IntegrityVoidReason is recorded when an attempt is voided because its
// browser-integrity binding failed mid-exam.
const IntegrityVoidReason = "integrity check failed"

// AttemptStore persists attempts with conditional state transitions.
type AttemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	Create(ctx context.Context, a *model.Attempt) (bool, error)
	SaveAnswer(ctx context.Context, attemptID uuid.UUID, questionID, responseText string) (bool, error)
	MarkSubmitted(ctx context.Context, attemptID uuid.UUID, at time.Time) (bool, error)
	MarkGraded(ctx context.Context, attemptID uuid.UUID, grade float64) (bool, error)
	MarkVoid(ctx context.Context, attemptID uuid.UUID, reason string) (bool, error)
	ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.Attempt, int64, error)
}

// ExamStore reads exam definitions and answer keys.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	AnswerKey(ctx context.Context, examID uuid.UUID) (map[string]string, int, error)
	HasAttempts(ctx context.Context, examID uuid.UUID) (bool, error)
	UpdateIntegrityConfig(ctx context.Context, examID uuid.UUID, cfg model.IntegrityConfig) error
}

// AttemptService owns the attempt lifecycle. Transitions are serialized by
// conditional updates in the store, so two racing calls resolve to exactly
// one winner without in-process locking. Integrity validation happens
// upstream in middleware; this service trusts that check.
type AttemptService struct {
	attempts AttemptStore
	exams    ExamStore
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(attempts AttemptStore, exams ExamStore, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		exams:    exams,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// Start opens a new in-progress attempt. Exactly one concurrent Start per
// (student, exam) pair succeeds; the rest fail with ErrAttemptAlreadyActive
// and create no row.
func (s *AttemptService) Start(ctx context.Context, studentID, examID uuid.UUID) (*model.Attempt, error) {
	if _, err := s.exams.GetByID(ctx, examID); err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	attempt := &model.Attempt{ExamID: examID, StudentID: studentID}
	created, err := s.attempts.Create(ctx, attempt)
	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	if !created {
		return nil, ErrAttemptAlreadyActive
	}
	return attempt, nil
}

// Get retrieves an attempt.
func (s *AttemptService) Get(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	return s.attempts.GetByID(ctx, attemptID)
}

// RecordAnswer overwrites the response for one question while the attempt is
// in progress. Idempotent per question id.
func (s *AttemptService) RecordAnswer(ctx context.Context, attemptID uuid.UUID, questionID, responseText string) error {
	ok, err := s.attempts.SaveAnswer(ctx, attemptID, questionID, responseText)
	if err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	if !ok {
		return ErrAttemptNotActive
	}
	return nil
}

// Submit transitions the attempt to submitted and grades it when every
// question is auto-gradable. Two concurrent submits yield one success and
// one ErrAlreadySubmitted, never two grade computations.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	ok, err := s.attempts.MarkSubmitted(ctx, attemptID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("mark submitted: %w", err)
	}
	if !ok {
		return nil, s.submitConflict(ctx, attemptID)
	}

	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("reload attempt: %w", err)
	}

	graded, err := s.autoGrade(ctx, attempt)
	if err != nil {
		// The submit already happened; an instructor can grade manually.
		s.log.Error().Err(err).
			Str("attempt_id", attempt.ID.String()).
			Msg("Auto-grade failed after submit, attempt left SUBMITTED")
		return attempt, nil
	}
	if graded != nil {
		return graded, nil
	}
	return attempt, nil
}

// submitConflict inspects the current status to return a precise error.
func (s *AttemptService) submitConflict(ctx context.Context, attemptID uuid.UUID) error {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("get attempt: %w", err)
	}
	switch attempt.Status {
	case model.AttemptStatusSubmitted, model.AttemptStatusGraded:
		return ErrAlreadySubmitted
	case model.AttemptStatusVoid:
		return ErrStateConflict
	default:
		return ErrAttemptNotActive
	}
}

// autoGrade computes and stores the grade when the exam has no manual-grade
// questions. Returns nil attempt (and nil error) when grading must wait for
// an instructor.
func (s *AttemptService) autoGrade(ctx context.Context, attempt *model.Attempt) (*model.Attempt, error) {
	key, manual, err := s.exams.AnswerKey(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("answer key: %w", err)
	}
	if manual > 0 || len(key) == 0 {
		return nil, nil
	}

	correct := 0
	for qID, want := range key {
		if got, ok := attempt.Answers[qID]; ok && got == want {
			correct++
		}
	}
	grade := float64(correct) / float64(len(key)) * 100

	if _, err := s.attempts.MarkGraded(ctx, attempt.ID, grade); err != nil {
		return nil, fmt.Errorf("mark graded: %w", err)
	}
	return s.attempts.GetByID(ctx, attempt.ID)
}

// Void administratively terminates an in-progress attempt, freezing it with
// no grade. Submitted attempts cannot be voided; grading must proceed or be
// overridden explicitly.
func (s *AttemptService) Void(ctx context.Context, attemptID uuid.UUID, reason string) error {
	ok, err := s.attempts.MarkVoid(ctx, attemptID, reason)
	if err != nil {
		return fmt.Errorf("mark void: %w", err)
	}
	if ok {
		return nil
	}

	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("get attempt: %w", err)
	}
	switch attempt.Status {
	case model.AttemptStatusVoid:
		return ErrAlreadyVoid
	default:
		return ErrStateConflict
	}
}

// AssignGrade records an instructor-produced grade for a submitted attempt
// with manual-grade questions.
func (s *AttemptService) AssignGrade(ctx context.Context, attemptID uuid.UUID, grade float64) (*model.Attempt, error) {
	ok, err := s.attempts.MarkGraded(ctx, attemptID, grade)
	if err != nil {
		return nil, fmt.Errorf("mark graded: %w", err)
	}
	if !ok {
		return nil, ErrStateConflict
	}
	return s.attempts.GetByID(ctx, attemptID)
}

// ListByExam retrieves attempts for an exam, paginated.
func (s *AttemptService) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.Attempt, int64, error) {
	return s.attempts.ListByExam(ctx, examID, page, perPage)
}

// Exam retrieves an exam definition.
func (s *AttemptService) Exam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	return s.exams.GetByID(ctx, examID)
}

// ExamIntegrity returns the exam's integrity configuration for upstream
// validation.
func (s *AttemptService) ExamIntegrity(ctx context.Context, examID uuid.UUID) (model.IntegrityConfig, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return model.IntegrityConfig{}, fmt.Errorf("get exam: %w", err)
	}
	return exam.Integrity, nil
}

// AttemptIntegrity resolves an attempt together with its exam's integrity
// configuration, for attempt-scoped validation.
func (s *AttemptService) AttemptIntegrity(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, model.IntegrityConfig, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, model.IntegrityConfig{}, fmt.Errorf("get attempt: %w", err)
	}
	cfg, err := s.ExamIntegrity(ctx, attempt.ExamID)
	if err != nil {
		return nil, model.IntegrityConfig{}, err
	}
	return attempt, cfg, nil
}

// UpdateIntegrityConfig changes an exam's lockdown settings. The config is
// immutable once any attempt has started against the exam.
func (s *AttemptService) UpdateIntegrityConfig(ctx context.Context, examID uuid.UUID, req model.UpdateIntegrityConfigRequest) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	locked, err := s.exams.HasAttempts(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("check attempts: %w", err)
	}
	if locked {
		return nil, ErrConfigLocked
	}

	cfg := exam.Integrity
	if req.LockdownRequired != nil {
		cfg.LockdownRequired = *req.LockdownRequired
	}
	if req.ConfigKey != "" {
		cfg.ConfigKey = req.ConfigKey
	}
	if req.QuitPassword != "" {
		// Deterministic hash: the locked-down client derives the same
		// value, so a salted hash would break interoperability.
		sum := sha256.Sum256([]byte(req.QuitPassword))
		cfg.QuitPasswordHash = hex.EncodeToString(sum[:])
	}
	if req.AllowURLs != nil {
		cfg.AllowURLs = req.AllowURLs
	}
	if req.BlockURLs != nil {
		cfg.BlockURLs = req.BlockURLs
	}

	if err := s.exams.UpdateIntegrityConfig(ctx, examID, cfg); err != nil {
		return nil, fmt.Errorf("update config: %w", err)
	}
	exam.Integrity = cfg
	return exam, nil
}
