package model

import "time"

// ActionCode identifies one auditable action. Codes are a fixed vocabulary
// consumed by external reporting; extend the set but never repurpose a code.
type ActionCode string

const (
	// Auth domain.
	ActionAuthLogin            ActionCode = "auth.login"
	ActionAuthLoginFailed      ActionCode = "auth.login_failed"
	ActionAuthLogout           ActionCode = "auth.logout"
	ActionAuthTokenRefresh     ActionCode = "auth.token_refresh"
	ActionAuthTwoFactorEnable  ActionCode = "auth.2fa_enabled"
	ActionAuthTwoFactorDisable ActionCode = "auth.2fa_disabled"

	// Exam domain.
	ActionExamAttemptStart       ActionCode = "exam.attempt_start"
	ActionExamAttemptSubmit      ActionCode = "exam.attempt_submit"
	ActionExamAttemptVoid        ActionCode = "exam.attempt_void"
	ActionExamIntegrityViolation ActionCode = "exam.integrity_violation"

	// Grade domain.
	ActionGradeAssigned   ActionCode = "grade.assigned"
	ActionGradeOverridden ActionCode = "grade.overridden"

	// Admin domain.
	ActionAdminRoleChange ActionCode = "admin.role_change"

	// Course domain (recorded by the external CRUD layer through the same
	// recorder; listed so the vocabulary stays in one place).
	ActionCourseCreate ActionCode = "course.create"
	ActionCourseUpdate ActionCode = "course.update"
	ActionCourseDelete ActionCode = "course.delete"
)

// ActorAnonymous is the actor id recorded when no authenticated identity
// exists, e.g. failed login attempts.
const ActorAnonymous = "anonymous"

// AuditEvent is one immutable record of a state-changing action. Field names
// match what the external reporting tooling expects; do not rename.
type AuditEvent struct {
	ActorID      string         `json:"actor_id"`
	Action       ActionCode     `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   *string        `json:"resource_id"`
	Detail       map[string]any `json:"detail"`
	ClientIP     string         `json:"client_ip"`
	UserAgent    string         `json:"user_agent"`
	RecordedAt   time.Time      `json:"recorded_at"`
}
