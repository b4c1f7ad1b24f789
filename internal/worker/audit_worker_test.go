package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/examlock/examlock-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type fakeStore struct {
	copyErr error
	execErr error
	batches [][][]any
	rows    [][]any
}

func (s *fakeStore) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	if s.copyErr != nil {
		return 0, s.copyErr
	}
	var batch [][]any
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return 0, err
		}
		batch = append(batch, vals)
	}
	s.batches = append(s.batches, batch)
	return int64(len(batch)), nil
}

func (s *fakeStore) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	if s.execErr != nil {
		return pgconn.CommandTag{}, s.execErr
	}
	s.rows = append(s.rows, args)
	return pgconn.CommandTag{}, nil
}

func newTestWorker(store *fakeStore) *AuditWorker {
	// The redis client is only touched on the requeue path, which these
	// tests never reach.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	return NewAuditWorker(store, rdb, zerolog.Nop())
}

func bufferedEvents(n int) []*model.AuditEvent {
	events := make([]*model.AuditEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, &model.AuditEvent{
			ActorID:      "actor",
			Action:       model.ActionAuthLogin,
			ResourceType: "user",
			Detail:       map[string]any{"two_factor": false},
			RecordedAt:   time.Now(),
		})
	}
	return events
}

// Events already popped off the queue exist only in the worker's buffer.
// Cancellation must flush them, and the flush must not depend on the
// worker context, which is already dead at that point.
func TestShutdownFlushesBufferedEvents(t *testing.T) {
	store := &fakeStore{}
	w := newTestWorker(store)

	w.shutdown(bufferedEvents(3))

	if len(store.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(store.batches))
	}
	if got := len(store.batches[0]); got != 3 {
		t.Fatalf("flushed rows = %d, want 3", got)
	}
	if store.batches[0][0][1] != string(model.ActionAuthLogin) {
		t.Errorf("action column = %v, want %s", store.batches[0][0][1], model.ActionAuthLogin)
	}
}

func TestShutdownWithEmptyBufferWritesNothing(t *testing.T) {
	store := &fakeStore{}
	w := newTestWorker(store)

	w.shutdown(nil)

	if len(store.batches) != 0 || len(store.rows) != 0 {
		t.Fatal("empty buffer must not produce writes")
	}
}

func TestFlushFallsBackToRowInserts(t *testing.T) {
	store := &fakeStore{copyErr: errors.New("copy failed")}
	w := newTestWorker(store)

	w.flushSafe(context.Background(), bufferedEvents(2))

	if len(store.rows) != 2 {
		t.Fatalf("row inserts = %d, want 2", len(store.rows))
	}
	if got := len(store.rows[0]); got != 8 {
		t.Errorf("insert args = %d, want 8 columns", got)
	}
}
