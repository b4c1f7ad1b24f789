package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/examlock/examlock-backend/internal/config"
	"github.com/examlock/examlock-backend/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AuditRecorder appends audit events. It never returns an error to the
// caller: an audit outage must not become an availability outage, so
// failures are logged and swallowed here at the boundary. Events go onto a
// Redis queue drained by the audit worker after the primary action's
// outcome is known.
type AuditRecorder struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewAuditRecorder creates a new AuditRecorder.
func NewAuditRecorder(rdb *redis.Client, log zerolog.Logger) *AuditRecorder {
	return &AuditRecorder{
		rdb: rdb,
		log: log.With().Str("component", "audit_recorder").Logger(),
	}
}

// Record appends one immutable audit event. An empty actor id is recorded as
// "anonymous". Credential fields are stripped from the detail payload before
// it leaves this process.
func (r *AuditRecorder) Record(ctx context.Context, e model.AuditEvent) {
	r.enqueue(ctx, normalizeEvent(e))
}

// RecordForExam appends the event and additionally publishes it on the
// exam's monitor channel so connected proctors see it live. Publish is
// best-effort; the durable record is the queue.
func (r *AuditRecorder) RecordForExam(ctx context.Context, examID uuid.UUID, e model.AuditEvent) {
	e = normalizeEvent(e)
	r.enqueue(ctx, e)

	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	channel := config.CacheKey.ExamMonitorChannel(examID.String())
	if err := r.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		r.log.Debug().Err(err).Str("channel", channel).Msg("Monitor publish failed")
	}
}

func (r *AuditRecorder) enqueue(ctx context.Context, e model.AuditEvent) {
	payload, err := json.Marshal(e)
	if err != nil {
		r.log.Error().Err(err).Str("action", string(e.Action)).Msg("Failed to marshal audit event")
		return
	}

	if err := r.rdb.RPush(ctx, config.WorkerKey.PersistAuditQueue, payload).Err(); err != nil {
		r.log.Error().Err(err).Str("action", string(e.Action)).Msg("Failed to enqueue audit event")
	}
}

// normalizeEvent fills defaults and strips credentials, exactly once, so the
// queued row and the live monitor frame carry the same payload.
func normalizeEvent(e model.AuditEvent) model.AuditEvent {
	if e.ActorID == "" {
		e.ActorID = model.ActorAnonymous
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	e.Detail = redactDetail(e.Detail)
	return e
}

// redactDetail strips any field named like a credential, at every nesting
// level, regardless of action type.
func redactDetail(detail map[string]any) map[string]any {
	if detail == nil {
		return nil
	}
	clean := make(map[string]any, len(detail))
	for k, v := range detail {
		if isCredentialField(k) {
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			clean[k] = redactDetail(nested)
			continue
		}
		clean[k] = v
	}
	return clean
}

func isCredentialField(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "password") ||
		lower == "secret" || lower == "token" || lower == "refresh_token" ||
		lower == "access_token" || lower == "passphrase"
}
