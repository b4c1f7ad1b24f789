package repository

import (
	"context"
	"time"

	"github.com/examlock/examlock-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptRepository handles attempt data access. State transitions are
// conditional updates on the current status so that concurrent transitions
// on the same attempt are serialized by the database, not an in-process
// mutex — multiple server processes may run at once.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, exam_id, student_id, status, answers, grade, void_reason, started_at, submitted_at, updated_at`

func scanAttempt(row interface{ Scan(...any) error }) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Status, &a.Answers,
		&a.Grade, &a.VoidReason, &a.StartedAt, &a.SubmittedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if a.Answers == nil {
		a.Answers = map[string]string{}
	}
	return a, nil
}

// GetByID retrieves an attempt.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// Create starts a new attempt. A partial unique index on
// (student_id, exam_id) WHERE status = 'IN_PROGRESS' guarantees at most one
// active attempt per pair; a racing insert hits the conflict, inserts no
// row, and returns created = false.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) (bool, error) {
	rows, err := r.pool.Query(ctx,
		`INSERT INTO attempts (exam_id, student_id, status, answers)
		 VALUES ($1, $2, $3, '{}'::jsonb)
		 ON CONFLICT (student_id, exam_id) WHERE status = 'IN_PROGRESS' DO NOTHING
		 RETURNING id, started_at, updated_at`,
		a.ExamID, a.StudentID, model.AttemptStatusInProgress)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return false, rows.Err()
	}
	if err := rows.Scan(&a.ID, &a.StartedAt, &a.UpdatedAt); err != nil {
		return false, err
	}
	a.Status = model.AttemptStatusInProgress
	a.Answers = map[string]string{}
	return true, rows.Err()
}

// SaveAnswer overwrites the response for one question. Only valid while the
// attempt is in progress; returns false when the conditional update matched
// no row.
func (r *AttemptRepository) SaveAnswer(ctx context.Context, attemptID uuid.UUID, questionID, responseText string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET answers = jsonb_set(answers, ARRAY[$2], to_jsonb($3::text), true),
		     updated_at = NOW()
		 WHERE id = $1 AND status = $4`,
		attemptID, questionID, responseText, model.AttemptStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkSubmitted transitions IN_PROGRESS → SUBMITTED. Exactly one of two
// concurrent submits wins the conditional update.
func (r *AttemptRepository) MarkSubmitted(ctx context.Context, attemptID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, submitted_at = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		model.AttemptStatusSubmitted, at, attemptID, model.AttemptStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkGraded transitions SUBMITTED → GRADED with the computed grade.
func (r *AttemptRepository) MarkGraded(ctx context.Context, attemptID uuid.UUID, grade float64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, grade = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		model.AttemptStatusGraded, grade, attemptID, model.AttemptStatusSubmitted)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkVoid transitions IN_PROGRESS → VOID, freezing the attempt with no
// grade. Submitted attempts cannot be voided.
func (r *AttemptRepository) MarkVoid(ctx context.Context, attemptID uuid.UUID, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, void_reason = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		model.AttemptStatusVoid, reason, attemptID, model.AttemptStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListByExam retrieves attempts for an exam, newest first, paginated.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.Attempt, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE exam_id = $1`, examID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE exam_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2 OFFSET $3`,
		examID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, total, rows.Err()
}
