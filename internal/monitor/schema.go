package monitor

import (
	"encoding/json"
	"time"
)

// FrameType labels a server-to-proctor frame on the monitor stream.
type FrameType string

const (
	FrameSnapshot FrameType = "snapshot"
	FrameEvent    FrameType = "event"
	FramePing     FrameType = "ping"
	FrameError    FrameType = "error"
)

// SnapshotFrame is sent once on connect with the exam's current attempt
// population.
type SnapshotFrame struct {
	Type  FrameType     `json:"type"`
	Exam  ExamSummary   `json:"exam"`
	Stats AttemptCounts `json:"stats"`
}

// ExamSummary identifies the monitored exam.
type ExamSummary struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	LockdownRequired bool   `json:"lockdown_required"`
}

// AttemptCounts aggregates attempt states for the snapshot.
type AttemptCounts struct {
	InProgress int `json:"in_progress"`
	Submitted  int `json:"submitted"`
	Graded     int `json:"graded"`
	Void       int `json:"void"`
}

// EventFrame forwards one audit event published on the exam's monitor
// channel. Payload is the raw audit JSON; it is already redacted before it
// reaches the channel.
type EventFrame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PingFrame keeps idle connections alive through intermediaries.
type PingFrame struct {
	Type FrameType `json:"type"`
	At   time.Time `json:"at"`
}

// ErrorFrame reports a stream-level failure before the server closes.
type ErrorFrame struct {
	Type  FrameType `json:"type"`
	Error string    `json:"error"`
}
