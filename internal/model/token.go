package model

import (
	"time"

	"github.com/google/uuid"
)

// TokenPair is a signed access token plus its opaque refresh token.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RefreshToken is the stored form of a refresh token. Only the SHA-256 hash
// of the opaque token is persisted. Tokens in one family share FamilyID;
// reuse of a used token revokes the whole family.
type RefreshToken struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	FamilyID  uuid.UUID  `json:"family_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// RefreshRequest carries the opaque refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest carries the refresh token whose family should be revoked.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}
