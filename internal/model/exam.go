package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam represents the exam definition as seen by this subsystem: enough to
// gate attempts and grade them. Question/content authoring lives elsewhere.
type Exam struct {
	ID        uuid.UUID       `json:"id"`
	Title     string          `json:"title"`
	Integrity IntegrityConfig `json:"integrity"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IntegrityConfig holds the per-exam lockdown settings. Immutable once an
// attempt using it has started.
type IntegrityConfig struct {
	LockdownRequired bool     `json:"lockdown_required"`
	ConfigKey        string   `json:"-"`
	QuitPasswordHash string   `json:"-"`
	AllowURLs        []string `json:"allow_urls,omitempty"`
	BlockURLs        []string `json:"block_urls,omitempty"`
}

// UpdateIntegrityConfigRequest is the admin payload for changing an exam's
// lockdown settings before any attempt has started.
type UpdateIntegrityConfigRequest struct {
	LockdownRequired *bool    `json:"lockdown_required" binding:"omitempty"`
	ConfigKey        string   `json:"config_key" binding:"omitempty,min=4,max=128"`
	QuitPassword     string   `json:"quit_password" binding:"omitempty,min=4,max=128"`
	AllowURLs        []string `json:"allow_urls" binding:"omitempty,dive,max=2048"`
	BlockURLs        []string `json:"block_urls" binding:"omitempty,dive,max=2048"`
}
