package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/examlock/examlock-backend/internal/config"
	"github.com/examlock/examlock-backend/internal/model"
	"github.com/examlock/examlock-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// ─── In-memory fakes ────────────────────────────────────────────────

type fakeUserStore struct {
	users map[uuid.UUID]*model.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]*model.User)}
}

func (s *fakeUserStore) add(u *model.User) *model.User {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	s.users[u.ID] = u
	return u
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, errors.New("no rows")
}

func (s *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	return u, nil
}

func (s *fakeUserStore) UpdateRoles(_ context.Context, id uuid.UUID, roles []model.Role) error {
	s.users[id].Roles = roles
	return nil
}

func (s *fakeUserStore) SetTwoFactorSecret(_ context.Context, id uuid.UUID, secret string) error {
	s.users[id].TwoFactorSecret = secret
	s.users[id].TwoFactorEnabled = false
	return nil
}

func (s *fakeUserStore) SetTwoFactorEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	s.users[id].TwoFactorEnabled = enabled
	if !enabled {
		s.users[id].TwoFactorSecret = ""
	}
	return nil
}

type fakeRefreshStore struct {
	tokens map[string]*model.RefreshToken
}

func newFakeRefreshStore() *fakeRefreshStore {
	return &fakeRefreshStore{tokens: make(map[string]*model.RefreshToken)}
}

func (s *fakeRefreshStore) Create(_ context.Context, t *model.RefreshToken) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	s.tokens[t.TokenHash] = t
	return nil
}

func (s *fakeRefreshStore) Rotate(_ context.Context, tokenHash string, next *model.RefreshToken) error {
	current, ok := s.tokens[tokenHash]
	if !ok {
		return repository.ErrRefreshTokenNotFound
	}
	if current.RevokedAt != nil || current.UsedAt != nil {
		now := time.Now()
		for _, t := range s.tokens {
			if t.FamilyID == current.FamilyID && t.RevokedAt == nil {
				t.RevokedAt = &now
			}
		}
		return repository.ErrRefreshTokenRevoked
	}
	if time.Now().After(current.ExpiresAt) {
		return repository.ErrRefreshTokenExpired
	}
	now := time.Now()
	current.UsedAt = &now
	next.ID = uuid.New()
	next.UserID = current.UserID
	next.FamilyID = current.FamilyID
	next.CreatedAt = now
	s.tokens[next.TokenHash] = next
	return nil
}

func (s *fakeRefreshStore) RevokeFamily(_ context.Context, tokenHash string) error {
	current, ok := s.tokens[tokenHash]
	if !ok {
		return nil
	}
	now := time.Now()
	for _, t := range s.tokens {
		if t.FamilyID == current.FamilyID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

type fakeChallengeStore struct {
	challenges map[string]uuid.UUID
}

func newFakeChallengeStore() *fakeChallengeStore {
	return &fakeChallengeStore{challenges: make(map[string]uuid.UUID)}
}

func (s *fakeChallengeStore) Put(_ context.Context, token string, userID uuid.UUID, _ time.Duration) error {
	s.challenges[token] = userID
	return nil
}

func (s *fakeChallengeStore) Redeem(_ context.Context, token string) (uuid.UUID, error) {
	userID, ok := s.challenges[token]
	if !ok {
		return uuid.Nil, repository.ErrChallengeNotFound
	}
	delete(s.challenges, token)
	return userID, nil
}

// ─── Test helpers ───────────────────────────────────────────────────

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
		ChallengeTTL:    5 * time.Minute,
		BcryptCost:      bcrypt.MinCost,
		TwoFactorIssuer: "ExamLock",
	}
}

func newTestAuth(t *testing.T) (*AuthService, *fakeUserStore, *fakeRefreshStore, *fakeChallengeStore) {
	t.Helper()
	users := newFakeUserStore()
	refresh := newFakeRefreshStore()
	challenges := newFakeChallengeStore()
	return NewAuthService(testConfig(), users, refresh, challenges), users, refresh, challenges
}

func seedUser(t *testing.T, svc *AuthService, users *fakeUserStore, email, password string) *model.User {
	t.Helper()
	hash, err := svc.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return users.add(&model.User{
		Email:        email,
		Name:         "Test User",
		PasswordHash: hash,
		Roles:        []model.Role{model.RoleStudent},
	})
}

// ─── Tests ──────────────────────────────────────────────────────────

func TestAuthenticateIssuesPair(t *testing.T) {
	svc, users, _, _ := newTestAuth(t)
	seedUser(t, svc, users, "student@example.com", "correct horse")

	result, err := svc.Authenticate(context.Background(), "student@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if result.Pair == nil {
		t.Fatal("expected a token pair")
	}
	if result.Challenge != nil {
		t.Fatal("did not expect a two-factor challenge")
	}

	claims, err := svc.ValidateToken(result.Pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Email != "student@example.com" {
		t.Errorf("claims email = %s", claims.Email)
	}
	if !model.HasRole(claims.Roles, model.RoleStudent) {
		t.Error("claims should carry the role snapshot")
	}
}

func TestAuthenticateFailureIsIndistinguishable(t *testing.T) {
	svc, users, _, _ := newTestAuth(t)
	seedUser(t, svc, users, "student@example.com", "correct horse")

	_, errWrongPass := svc.Authenticate(context.Background(), "student@example.com", "wrong")
	_, errUnknown := svc.Authenticate(context.Background(), "nobody@example.com", "whatever")

	if !errors.Is(errWrongPass, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v, want ErrInvalidCredentials", errWrongPass)
	}
	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Errorf("unknown email: got %v, want ErrInvalidCredentials", errUnknown)
	}
	if errWrongPass.Error() != errUnknown.Error() {
		t.Error("unknown email and wrong password must return identical errors")
	}
}

func TestAuthenticateTwoFactorReturnsChallengeOnly(t *testing.T) {
	svc, users, _, challenges := newTestAuth(t)
	user := seedUser(t, svc, users, "2fa@example.com", "pw123456")
	user.TwoFactorSecret = "JBSWY3DPEHPK3PXP"
	user.TwoFactorEnabled = true

	result, err := svc.Authenticate(context.Background(), "2fa@example.com", "pw123456")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if result.Pair != nil {
		t.Fatal("no token pair may be issued before the second factor")
	}
	if result.Challenge == nil || !result.Challenge.TwoFactorRequired {
		t.Fatal("expected a two-factor challenge")
	}
	if _, ok := challenges.challenges[result.Challenge.ChallengeToken]; !ok {
		t.Fatal("challenge token should be stored")
	}
}

func TestVerifyTwoFactorChallengeIsSingleUse(t *testing.T) {
	svc, users, _, _ := newTestAuth(t)
	user := seedUser(t, svc, users, "2fa@example.com", "pw123456")

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "ExamLock", AccountName: user.Email})
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	user.TwoFactorSecret = key.Secret()
	user.TwoFactorEnabled = true

	result, err := svc.Authenticate(context.Background(), "2fa@example.com", "pw123456")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}

	pair, _, err := svc.VerifyTwoFactor(context.Background(), result.Challenge.ChallengeToken, code)
	if err != nil {
		t.Fatalf("VerifyTwoFactor: %v", err)
	}
	if pair == nil {
		t.Fatal("expected a token pair after valid code")
	}

	// Replay with the same challenge token must fail.
	_, _, err = svc.VerifyTwoFactor(context.Background(), result.Challenge.ChallengeToken, code)
	if !errors.Is(err, ErrChallengeExpired) {
		t.Errorf("replayed challenge: got %v, want ErrChallengeExpired", err)
	}
}

func TestVerifyTwoFactorWrongCodeConsumesChallenge(t *testing.T) {
	svc, users, _, _ := newTestAuth(t)
	user := seedUser(t, svc, users, "2fa@example.com", "pw123456")

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "ExamLock", AccountName: user.Email})
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	user.TwoFactorSecret = key.Secret()
	user.TwoFactorEnabled = true

	result, err := svc.Authenticate(context.Background(), "2fa@example.com", "pw123456")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	_, _, err = svc.VerifyTwoFactor(context.Background(), result.Challenge.ChallengeToken, "000000")
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("wrong code: got %v, want ErrInvalidCode", err)
	}

	// The challenge was consumed by the failed try; a correct code can no
	// longer redeem it.
	code, _ := totp.GenerateCode(key.Secret(), time.Now())
	_, _, err = svc.VerifyTwoFactor(context.Background(), result.Challenge.ChallengeToken, code)
	if !errors.Is(err, ErrChallengeExpired) {
		t.Errorf("consumed challenge: got %v, want ErrChallengeExpired", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, users, _, _ := newTestAuth(t)
	seedUser(t, svc, users, "student@example.com", "correct horse")

	result, err := svc.Authenticate(context.Background(), "student@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	pair, user, err := svc.Refresh(context.Background(), result.Pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if user.Email != "student@example.com" {
		t.Errorf("refreshed user = %s", user.Email)
	}
	if pair.RefreshToken == result.Pair.RefreshToken {
		t.Error("refresh must rotate the opaque token")
	}
}

func TestRefreshReuseRevokesWholeFamily(t *testing.T) {
	svc, users, _, _ := newTestAuth(t)
	seedUser(t, svc, users, "student@example.com", "correct horse")

	result, err := svc.Authenticate(context.Background(), "student@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	second, _, err := svc.Refresh(context.Background(), result.Pair.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	// Reusing the original (already rotated) token is treated as theft.
	_, _, err = svc.Refresh(context.Background(), result.Pair.RefreshToken)
	if !errors.Is(err, ErrRevokedToken) {
		t.Fatalf("reused token: got %v, want ErrRevokedToken", err)
	}

	// The successor belongs to the same family and must now be dead too.
	_, _, err = svc.Refresh(context.Background(), second.RefreshToken)
	if !errors.Is(err, ErrRevokedToken) {
		t.Errorf("family member after reuse: got %v, want ErrRevokedToken", err)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	svc, _, _, _ := newTestAuth(t)
	_, _, err := svc.Refresh(context.Background(), "deadbeef")
	if !errors.Is(err, ErrRevokedToken) {
		t.Errorf("unknown token: got %v, want ErrRevokedToken", err)
	}
}

func TestLogoutRevokesFamilyIdempotently(t *testing.T) {
	svc, users, _, _ := newTestAuth(t)
	seedUser(t, svc, users, "student@example.com", "correct horse")

	result, err := svc.Authenticate(context.Background(), "student@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if err := svc.Logout(context.Background(), result.Pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	// Second logout with the same token is a no-op, not an error.
	if err := svc.Logout(context.Background(), result.Pair.RefreshToken); err != nil {
		t.Fatalf("repeated Logout: %v", err)
	}

	_, _, err = svc.Refresh(context.Background(), result.Pair.RefreshToken)
	if !errors.Is(err, ErrRevokedToken) {
		t.Errorf("refresh after logout: got %v, want ErrRevokedToken", err)
	}
}

func TestEnableTwoFactorRequiresSetup(t *testing.T) {
	svc, users, _, _ := newTestAuth(t)
	user := seedUser(t, svc, users, "plain@example.com", "pw123456")

	err := svc.EnableTwoFactor(context.Background(), user.ID, "123456")
	if !errors.Is(err, ErrTwoFactorNotSetup) {
		t.Errorf("enable without setup: got %v, want ErrTwoFactorNotSetup", err)
	}
}

func TestTwoFactorSetupEnableDisable(t *testing.T) {
	svc, users, _, _ := newTestAuth(t)
	user := seedUser(t, svc, users, "2fa@example.com", "pw123456")

	setup, err := svc.StartTwoFactorSetup(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("StartTwoFactorSetup: %v", err)
	}
	if user.TwoFactorEnabled {
		t.Fatal("setup alone must not enable two-factor")
	}

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}

	if err := svc.EnableTwoFactor(context.Background(), user.ID, "999999"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("enable with bad code: got %v, want ErrInvalidCode", err)
	}
	if err := svc.EnableTwoFactor(context.Background(), user.ID, code); err != nil {
		t.Fatalf("EnableTwoFactor: %v", err)
	}
	if !user.TwoFactorEnabled {
		t.Fatal("expected two-factor enabled")
	}

	code, _ = totp.GenerateCode(setup.Secret, time.Now())
	if err := svc.DisableTwoFactor(context.Background(), user.ID, code); err != nil {
		t.Fatalf("DisableTwoFactor: %v", err)
	}
	if user.TwoFactorEnabled || user.TwoFactorSecret != "" {
		t.Error("disable must clear the flag and the secret")
	}
}

func TestChangeRolesRejectsUnknownRole(t *testing.T) {
	svc, users, _, _ := newTestAuth(t)
	user := seedUser(t, svc, users, "student@example.com", "pw123456")

	_, err := svc.ChangeRoles(context.Background(), user.ID, []model.Role{"superuser"})
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("unknown role: got %v, want ErrInvalidRole", err)
	}

	updated, err := svc.ChangeRoles(context.Background(), user.ID, []model.Role{model.RoleInstructor})
	if err != nil {
		t.Fatalf("ChangeRoles: %v", err)
	}
	if !model.HasRole(updated.Roles, model.RoleInstructor) {
		t.Error("expected instructor role after change")
	}
}
