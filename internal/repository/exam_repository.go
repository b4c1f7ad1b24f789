package repository

import (
	"context"
	"fmt"

	"github.com/examlock/examlock-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExamRepository handles exam and answer-key data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam with its integrity configuration.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, lockdown_required, config_key, quit_password_hash,
		        allow_urls, block_urls, created_at, updated_at
		 FROM exams
		 WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Integrity.LockdownRequired, &e.Integrity.ConfigKey,
		&e.Integrity.QuitPasswordHash, &e.Integrity.AllowURLs, &e.Integrity.BlockURLs,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// HasAttempts reports whether any attempt has started against the exam. The
// integrity configuration freezes once this is true.
func (r *ExamRepository) HasAttempts(ctx context.Context, examID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM attempts WHERE exam_id = $1)`, examID,
	).Scan(&exists)
	return exists, err
}

// UpdateIntegrityConfig replaces the exam's lockdown settings.
func (r *ExamRepository) UpdateIntegrityConfig(ctx context.Context, examID uuid.UUID, cfg model.IntegrityConfig) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET lockdown_required = $1, config_key = $2, quit_password_hash = $3,
		     allow_urls = $4, block_urls = $5, updated_at = NOW()
		 WHERE id = $6`,
		cfg.LockdownRequired, cfg.ConfigKey, cfg.QuitPasswordHash,
		cfg.AllowURLs, cfg.BlockURLs, examID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("exam %s not found", examID)
	}
	return nil
}

// AnswerKey returns the exam's auto-gradable answer key (question id →
// correct answer) and the number of manual-grade questions. Manual questions
// have no stored correct answer.
func (r *ExamRepository) AnswerKey(ctx context.Context, examID uuid.UUID) (map[string]string, int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, correct_answer FROM questions WHERE exam_id = $1`, examID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	key := make(map[string]string)
	manual := 0
	for rows.Next() {
		var id uuid.UUID
		var answer *string
		if err := rows.Scan(&id, &answer); err != nil {
			return nil, 0, err
		}
		if answer == nil {
			manual++
			continue
		}
		key[id.String()] = *answer
	}
	return key, manual, rows.Err()
}
