package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/examlock/examlock-backend/internal/config"
	"github.com/examlock/examlock-backend/internal/model"
	"github.com/examlock/examlock-backend/internal/monitor"
	"github.com/examlock/examlock-backend/internal/response"
	"github.com/examlock/examlock-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const monitorPingInterval = 30 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// MonitorHandler streams an exam's live audit events to proctors over
// WebSocket. Events arrive via the Redis monitor channel that the recorder
// publishes to; the durable log is unaffected by connected listeners.
type MonitorHandler struct {
	rdb      *redis.Client
	attempts *service.AttemptService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, attempts *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *MonitorHandler {
	return &MonitorHandler{
		rdb:      rdb,
		attempts: attempts,
		log:      log.With().Str("component", "monitor_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// MonitorExam godoc
// WS /ws/v1/exams/:exam_id/monitor?token=...
func (h *MonitorHandler) MonitorExam(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.attempts.Exam(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("exam_id", examID.String()).Logger()
	wsLog.Info().Msg("Proctor attached to monitor stream")

	if err := h.sendSnapshot(c, conn, exam); err != nil {
		wsLog.Warn().Err(err).Msg("Failed to send snapshot")
		return
	}

	channel := config.CacheKey.ExamMonitorChannel(examID.String())
	pubsub := h.rdb.Subscribe(c.Request.Context(), channel)
	defer pubsub.Close()
	events := pubsub.Channel()

	// Read pump: the client sends nothing meaningful, but reading is what
	// surfaces close frames and dead connections.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(monitorPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			wsLog.Info().Msg("Proctor detached from monitor stream")
			return

		case <-done:
			wsLog.Info().Msg("Proctor connection closed")
			return

		case msg, ok := <-events:
			if !ok {
				return
			}
			frame := monitor.EventFrame{
				Type:    monitor.FrameEvent,
				Payload: json.RawMessage(msg.Payload),
			}
			if err := monitor.WriteTyped(conn, frame); err != nil {
				wsLog.Debug().Err(err).Msg("Write failed, closing stream")
				return
			}

		case <-pingTicker.C:
			if err := monitor.WriteTyped(conn, monitor.PingFrame{Type: monitor.FramePing, At: time.Now()}); err != nil {
				return
			}
		}
	}
}

// sendSnapshot writes the initial attempt population for the exam.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, conn *websocket.Conn, exam *model.Exam) error {
	attempts, _, err := h.attempts.ListByExam(c.Request.Context(), exam.ID, 1, 1000)
	if err != nil {
		monitor.WriteError(conn, "failed to load attempts")
		return err
	}

	var counts monitor.AttemptCounts
	for _, a := range attempts {
		switch a.Status {
		case model.AttemptStatusInProgress:
			counts.InProgress++
		case model.AttemptStatusSubmitted:
			counts.Submitted++
		case model.AttemptStatusGraded:
			counts.Graded++
		case model.AttemptStatusVoid:
			counts.Void++
		}
	}

	return monitor.WriteTyped(conn, monitor.SnapshotFrame{
		Type: monitor.FrameSnapshot,
		Exam: monitor.ExamSummary{
			ID:               exam.ID.String(),
			Title:            exam.Title,
			LockdownRequired: exam.Integrity.LockdownRequired,
		},
		Stats: counts,
	})
}
