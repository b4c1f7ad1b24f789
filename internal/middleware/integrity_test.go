package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/examlock/examlock-backend/internal/integrity"
	"github.com/examlock/examlock-backend/internal/model"
	"github.com/examlock/examlock-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type guardAttemptStore struct {
	attempts map[uuid.UUID]*model.Attempt
}

func (s *guardAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, ok := s.attempts[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	copied := *a
	return &copied, nil
}

func (s *guardAttemptStore) Create(_ context.Context, a *model.Attempt) (bool, error) {
	return false, errors.New("not used")
}

func (s *guardAttemptStore) SaveAnswer(context.Context, uuid.UUID, string, string) (bool, error) {
	return false, errors.New("not used")
}

func (s *guardAttemptStore) MarkSubmitted(context.Context, uuid.UUID, time.Time) (bool, error) {
	return false, errors.New("not used")
}

func (s *guardAttemptStore) MarkGraded(context.Context, uuid.UUID, float64) (bool, error) {
	return false, errors.New("not used")
}

func (s *guardAttemptStore) MarkVoid(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	a, ok := s.attempts[id]
	if !ok || a.Status != model.AttemptStatusInProgress {
		return false, nil
	}
	a.Status = model.AttemptStatusVoid
	a.VoidReason = &reason
	return true, nil
}

func (s *guardAttemptStore) ListByExam(context.Context, uuid.UUID, int, int) ([]model.Attempt, int64, error) {
	return nil, 0, nil
}

type guardExamStore struct {
	exams map[uuid.UUID]*model.Exam
}

func (s *guardExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	e, ok := s.exams[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	return e, nil
}

func (s *guardExamStore) AnswerKey(context.Context, uuid.UUID) (map[string]string, int, error) {
	return nil, 0, nil
}

func (s *guardExamStore) HasAttempts(context.Context, uuid.UUID) (bool, error) {
	return false, nil
}

func (s *guardExamStore) UpdateIntegrityConfig(context.Context, uuid.UUID, model.IntegrityConfig) error {
	return nil
}

type guardFixture struct {
	router   *gin.Engine
	attempts *guardAttemptStore
	exams    *guardExamStore
}

// newGuardFixture wires a guard over fakes. The recorder points at an
// unreachable Redis; its failures are swallowed by design, which is exactly
// the never-block behavior the guard depends on.
func newGuardFixture(t *testing.T, cfg model.IntegrityConfig) (*guardFixture, uuid.UUID, uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	examID := uuid.New()
	attemptID := uuid.New()

	attempts := &guardAttemptStore{attempts: map[uuid.UUID]*model.Attempt{
		attemptID: {
			ID:        attemptID,
			ExamID:    examID,
			StudentID: uuid.New(),
			Status:    model.AttemptStatusInProgress,
			Answers:   map[string]string{},
		},
	}}
	exams := &guardExamStore{exams: map[uuid.UUID]*model.Exam{
		examID: {ID: examID, Title: "Midterm", Integrity: cfg},
	}}

	svc := service.NewAttemptService(attempts, exams, zerolog.Nop())
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	recorder := service.NewAuditRecorder(rdb, zerolog.Nop())
	guard := NewIntegrityGuard(svc, recorder, zerolog.Nop())

	router := gin.New()
	router.GET("/attempts/:attempt_id", guard.RequireAttemptIntegrity(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.POST("/exams/:exam_id/attempts", guard.RequireExamIntegrity(), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	return &guardFixture{router: router, attempts: attempts, exams: exams}, examID, attemptID
}

func (f *guardFixture) do(method, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if header != "" {
		req.Header.Set(integrity.HeaderName, header)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestGuardPassesWhenLockdownNotRequired(t *testing.T) {
	f, _, attemptID := newGuardFixture(t, model.IntegrityConfig{LockdownRequired: false})

	w := f.do(http.MethodGet, "/attempts/"+attemptID.String(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestGuardRejectsMissingHeader(t *testing.T) {
	f, _, attemptID := newGuardFixture(t, model.IntegrityConfig{
		LockdownRequired: true,
		ConfigKey:        "exam-key",
	})

	w := f.do(http.MethodGet, "/attempts/"+attemptID.String(), "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INTEGRITY_HEADER_REQUIRED") {
		t.Errorf("body = %s", w.Body.String())
	}
	// A missing header rejects the request but proves nothing about the
	// session; the attempt survives.
	if f.attempts.attempts[attemptID].Status != model.AttemptStatusInProgress {
		t.Error("attempt must not be voided for a missing header")
	}
}

func TestGuardAcceptsValidPrefix(t *testing.T) {
	f, _, attemptID := newGuardFixture(t, model.IntegrityConfig{
		LockdownRequired: true,
		ConfigKey:        "exam-key",
	})

	path := "/attempts/" + attemptID.String()
	w := f.do(http.MethodGet, path, integrity.HeaderValue(path, "exam-key"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestGuardVoidsInProgressAttemptOnViolation(t *testing.T) {
	f, _, attemptID := newGuardFixture(t, model.IntegrityConfig{
		LockdownRequired: true,
		ConfigKey:        "exam-key",
	})

	path := "/attempts/" + attemptID.String()
	w := f.do(http.MethodGet, path, integrity.HeaderValue(path, "wrong-key"))
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INTEGRITY_VIOLATION") {
		t.Errorf("body = %s", w.Body.String())
	}

	voided := f.attempts.attempts[attemptID]
	if voided.Status != model.AttemptStatusVoid {
		t.Fatalf("attempt status = %s, want VOID", voided.Status)
	}
	if voided.VoidReason == nil || *voided.VoidReason != service.IntegrityVoidReason {
		t.Errorf("void reason = %v", voided.VoidReason)
	}
}

func TestGuardFailsClosedWithoutKeyMaterial(t *testing.T) {
	f, _, attemptID := newGuardFixture(t, model.IntegrityConfig{
		LockdownRequired: true,
	})

	path := "/attempts/" + attemptID.String()
	w := f.do(http.MethodGet, path, integrity.HeaderValue(path, "anything"))
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INTEGRITY_CONFIG_MISSING") {
		t.Errorf("body = %s", w.Body.String())
	}
	// Missing configuration is an operator problem, not evidence against
	// the student.
	if f.attempts.attempts[attemptID].Status != model.AttemptStatusInProgress {
		t.Error("attempt must not be voided when key material is missing")
	}
}

func TestGuardValidatesAgainstQuitPasswordFallback(t *testing.T) {
	cfg := model.IntegrityConfig{
		LockdownRequired: true,
		QuitPasswordHash: "ab12cd34",
	}
	f, _, attemptID := newGuardFixture(t, cfg)

	key, err := integrity.ConfigKey(cfg)
	if err != nil {
		t.Fatalf("ConfigKey: %v", err)
	}

	path := "/attempts/" + attemptID.String()
	w := f.do(http.MethodGet, path, integrity.HeaderValue(path, key))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestGuardExamScopedCheck(t *testing.T) {
	f, examID, _ := newGuardFixture(t, model.IntegrityConfig{
		LockdownRequired: true,
		ConfigKey:        "exam-key",
	})

	path := "/exams/" + examID.String() + "/attempts"
	w := f.do(http.MethodPost, path, integrity.HeaderValue(path, "exam-key"))
	if w.Code != http.StatusCreated {
		t.Fatalf("valid header: status = %d, want 201", w.Code)
	}

	w = f.do(http.MethodPost, path, integrity.HeaderValue(path, "stolen-key"))
	if w.Code != http.StatusForbidden {
		t.Fatalf("invalid header: status = %d, want 403", w.Code)
	}
}
