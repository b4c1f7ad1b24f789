package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"
	ErrTokenRevoked       ErrCode = "TOKEN_REVOKED"
	ErrChallengeExpired   ErrCode = "CHALLENGE_EXPIRED"
	ErrInvalidCode        ErrCode = "INVALID_CODE"
	ErrTwoFactorNotSetup  ErrCode = "TWO_FACTOR_NOT_SETUP"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden    ErrCode = "FORBIDDEN"
	ErrRoleRequired ErrCode = "ROLE_REQUIRED"

	// ─── Integrity ─────────────────────────────────────────────────────
	ErrIntegrityHeaderRequired ErrCode = "INTEGRITY_HEADER_REQUIRED"
	ErrIntegrityViolation      ErrCode = "INTEGRITY_VIOLATION"
	ErrIntegrityConfigMissing  ErrCode = "INTEGRITY_CONFIG_MISSING"

	// ─── Attempt state ─────────────────────────────────────────────────
	ErrAttemptAlreadyActive ErrCode = "ATTEMPT_ALREADY_ACTIVE"
	ErrAttemptNotActive     ErrCode = "ATTEMPT_NOT_ACTIVE"
	ErrAlreadySubmitted     ErrCode = "ALREADY_SUBMITTED"
	ErrStateConflict        ErrCode = "STATE_CONFLICT"
	ErrConfigLocked         ErrCode = "INTEGRITY_CONFIG_LOCKED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."
	case ErrTokenRevoked:
		return "The refresh token has been revoked."
	case ErrChallengeExpired:
		return "The two-factor challenge has expired. Please sign in again."
	case ErrInvalidCode:
		return "The verification code is incorrect."
	case ErrTwoFactorNotSetup:
		return "Two-factor authentication has not been set up."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrRoleRequired:
		return "Your account does not hold the required role."

	// ─── Integrity ─────────────────────────────────────────────────────
	case ErrIntegrityHeaderRequired:
		return "This exam requires a locked-down browser."
	case ErrIntegrityViolation:
		return "The browser integrity check failed."
	case ErrIntegrityConfigMissing:
		return "The exam's integrity configuration is incomplete."

	// ─── Attempt state ─────────────────────────────────────────────────
	case ErrAttemptAlreadyActive:
		return "An attempt for this exam is already in progress."
	case ErrAttemptNotActive:
		return "The attempt is not in progress."
	case ErrAlreadySubmitted:
		return "The attempt has already been submitted."
	case ErrStateConflict:
		return "The attempt is in an incompatible state for this action."
	case ErrConfigLocked:
		return "The integrity configuration cannot change once an attempt has started."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
