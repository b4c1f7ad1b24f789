package repository

import (
	"context"
	"encoding/json"

	"github.com/examlock/examlock-backend/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository reads the append-only audit log. Writes go through the
// audit worker; this subsystem never updates or deletes records.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// List retrieves audit records, newest first, optionally filtered by action
// code, paginated.
func (r *AuditRepository) List(ctx context.Context, action string, page, perPage int) ([]model.AuditEvent, int64, error) {
	where := ``
	args := []any{}
	if action != "" {
		where = ` WHERE action = $1`
		args = append(args, action)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT actor_id, action, resource_type, resource_id, detail, client_ip, user_agent, recorded_at
	          FROM audit_logs` + where + `
	          ORDER BY recorded_at DESC`
	if action != "" {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var e model.AuditEvent
		var detail []byte
		if err := rows.Scan(&e.ActorID, &e.Action, &e.ResourceType, &e.ResourceID,
			&detail, &e.ClientIP, &e.UserAgent, &e.RecordedAt); err != nil {
			return nil, 0, err
		}
		if len(detail) > 0 {
			_ = json.Unmarshal(detail, &e.Detail)
		}
		events = append(events, e)
	}
	return events, total, rows.Err()
}
