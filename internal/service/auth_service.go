package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/examlock/examlock-backend/internal/config"
	"github.com/examlock/examlock-backend/internal/model"
	"github.com/examlock/examlock-backend/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidRole        = errors.New("unknown role")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrChallengeExpired   = errors.New("two-factor challenge expired")
	ErrInvalidCode        = errors.New("invalid two-factor code")
	ErrTwoFactorNotSetup  = errors.New("two-factor not set up")
	ErrRevokedToken       = errors.New("refresh token revoked")
	ErrExpiredToken       = errors.New("refresh token expired")
)

// dummyHash is compared against when the email is unknown so that unknown
// email and wrong password take the same path and return the same error.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("examlock-dummy-password"), bcrypt.MinCost)

// Claims extends JWT standard claims with the identity's roles snapshot.
// The snapshot may be stale relative to the durable store; role-sensitive
// operations re-check current roles instead of trusting it.
type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID    `json:"user_id"`
	Email  string       `json:"email"`
	Roles  []model.Role `json:"roles"`
}

// UserStore is the identity persistence the authority needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateRoles(ctx context.Context, id uuid.UUID, roles []model.Role) error
	SetTwoFactorSecret(ctx context.Context, id uuid.UUID, secret string) error
	SetTwoFactorEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
}

// RefreshTokenStore persists refresh-token families.
type RefreshTokenStore interface {
	Create(ctx context.Context, t *model.RefreshToken) error
	Rotate(ctx context.Context, tokenHash string, next *model.RefreshToken) error
	RevokeFamily(ctx context.Context, tokenHash string) error
}

// ChallengeStore keeps single-use two-factor challenge tokens.
type ChallengeStore interface {
	Put(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error
	Redeem(ctx context.Context, token string) (uuid.UUID, error)
}

// LoginResult is either a full token pair or a two-factor challenge, never
// both. When Challenge is set, no access rights have been granted yet.
type LoginResult struct {
	User      *model.User
	Pair      *model.TokenPair
	Challenge *model.TwoFactorChallenge
}

// AuthService is the credential and token authority. It performs no audit
// writes itself; handlers forward auditable outcomes to the recorder.
type AuthService struct {
	cfg        *config.Config
	users      UserStore
	refresh    RefreshTokenStore
	challenges ChallengeStore
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, users UserStore, refresh RefreshTokenStore, challenges ChallengeStore) *AuthService {
	return &AuthService{
		cfg:        cfg,
		users:      users,
		refresh:    refresh,
		challenges: challenges,
	}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Authenticate verifies the password and returns either a token pair or,
// when two-factor is enabled, a single-use challenge with no access rights.
// Unknown email and wrong password return the same error.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		// Burn a comparison so the unknown-email path costs the same.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}

	if err := s.CheckPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	if user.TwoFactorEnabled {
		token := uuid.New().String()
		if err := s.challenges.Put(ctx, token, user.ID, s.cfg.ChallengeTTL); err != nil {
			return nil, fmt.Errorf("create challenge: %w", err)
		}
		return &LoginResult{
			User: user,
			Challenge: &model.TwoFactorChallenge{
				TwoFactorRequired: true,
				ChallengeToken:    token,
			},
		}, nil
	}

	pair, err := s.issuePair(ctx, user, uuid.New())
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Pair: pair}, nil
}

// VerifyTwoFactor redeems a challenge exactly once. The challenge is
// consumed whether or not the code matches, so a leaked token cannot be
// brute-forced by replay.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, challengeToken, code string) (*model.TokenPair, *model.User, error) {
	userID, err := s.challenges.Redeem(ctx, challengeToken)
	if err != nil {
		return nil, nil, ErrChallengeExpired
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}

	if user.TwoFactorSecret == "" || !totp.Validate(code, user.TwoFactorSecret) {
		return nil, user, ErrInvalidCode
	}

	pair, err := s.issuePair(ctx, user, uuid.New())
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// Refresh rotates the refresh token and issues a fresh access token. Refresh
// tokens are single-use within a family: reuse revokes the family.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, *model.User, error) {
	opaque, err := generateOpaqueToken()
	if err != nil {
		return nil, nil, err
	}
	next := &model.RefreshToken{
		TokenHash: hashToken(opaque),
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenTTL),
	}

	err = s.refresh.Rotate(ctx, hashToken(refreshToken), next)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRefreshTokenRevoked),
			errors.Is(err, repository.ErrRefreshTokenNotFound):
			return nil, nil, ErrRevokedToken
		case errors.Is(err, repository.ErrRefreshTokenExpired):
			return nil, nil, ErrExpiredToken
		}
		return nil, nil, fmt.Errorf("rotate token: %w", err)
	}

	user, err := s.users.GetByID(ctx, next.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}

	access, expiresAt, err := s.signAccessToken(user)
	if err != nil {
		return nil, nil, err
	}
	return &model.TokenPair{
		AccessToken:  access,
		RefreshToken: opaque,
		ExpiresAt:    expiresAt,
	}, user, nil
}

// Logout revokes the refresh-token family immediately. Idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.refresh.RevokeFamily(ctx, hashToken(refreshToken))
}

// StartTwoFactorSetup generates a pending secret and provisioning URI
// without enabling two-factor. Enable requires one valid code first, which
// prevents lockout from a mistyped or lost secret.
func (s *AuthService) StartTwoFactorSetup(ctx context.Context, userID uuid.UUID) (*model.TwoFactorSetup, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.TwoFactorIssuer,
		AccountName: user.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	if err := s.users.SetTwoFactorSecret(ctx, userID, key.Secret()); err != nil {
		return nil, fmt.Errorf("store secret: %w", err)
	}

	return &model.TwoFactorSetup{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
	}, nil
}

// EnableTwoFactor verifies one code against the pending secret and flips the
// enabled flag.
func (s *AuthService) EnableTwoFactor(ctx context.Context, userID uuid.UUID, code string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user.TwoFactorSecret == "" {
		return ErrTwoFactorNotSetup
	}
	if !totp.Validate(code, user.TwoFactorSecret) {
		return ErrInvalidCode
	}
	return s.users.SetTwoFactorEnabled(ctx, userID, true)
}

// DisableTwoFactor requires a valid current code, not just the stale
// enabled flag.
func (s *AuthService) DisableTwoFactor(ctx context.Context, userID uuid.UUID, code string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user.TwoFactorSecret == "" {
		return ErrTwoFactorNotSetup
	}
	if !totp.Validate(code, user.TwoFactorSecret) {
		return ErrInvalidCode
	}
	return s.users.SetTwoFactorEnabled(ctx, userID, false)
}

// GetUser reads the current identity from the durable store, including the
// live role set.
func (s *AuthService) GetUser(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

// ChangeRoles replaces a user's role set. Roles outside the closed enum are
// rejected; existing tokens keep their stale snapshot until expiry, which is
// why role-sensitive routes re-read the store.
func (s *AuthService) ChangeRoles(ctx context.Context, userID uuid.UUID, roles []model.Role) (*model.User, error) {
	for _, r := range roles {
		if !model.ValidRole(r) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRole, r)
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := s.users.UpdateRoles(ctx, userID, roles); err != nil {
		return nil, fmt.Errorf("update roles: %w", err)
	}
	user.Roles = roles
	return user, nil
}

// ValidateToken parses and validates an access token, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// issuePair signs an access token and opens a new refresh-token family.
func (s *AuthService) issuePair(ctx context.Context, user *model.User, familyID uuid.UUID) (*model.TokenPair, error) {
	access, expiresAt, err := s.signAccessToken(user)
	if err != nil {
		return nil, err
	}

	opaque, err := generateOpaqueToken()
	if err != nil {
		return nil, err
	}

	rt := &model.RefreshToken{
		UserID:    user.ID,
		FamilyID:  familyID,
		TokenHash: hashToken(opaque),
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenTTL),
	}
	if err := s.refresh.Create(ctx, rt); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &model.TokenPair{
		AccessToken:  access,
		RefreshToken: opaque,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *AuthService) signAccessToken(user *model.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: user.ID,
		Email:  user.Email,
		Roles:  user.Roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// generateOpaqueToken returns 32 random bytes hex-encoded. Only the SHA-256
// hash is ever persisted.
func generateOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
