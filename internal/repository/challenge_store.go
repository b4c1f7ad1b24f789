package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/examlock/examlock-backend/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrChallengeNotFound means the challenge token does not exist: it expired,
// was never issued, or was already redeemed.
var ErrChallengeNotFound = errors.New("challenge not found")

// ChallengeStore keeps pending two-factor challenge tokens in Redis. The TTL
// is the absolute expiry; expired tokens simply fail redemption, nothing
// sweeps them proactively.
type ChallengeStore struct {
	rdb *redis.Client
}

// NewChallengeStore creates a new ChallengeStore.
func NewChallengeStore(rdb *redis.Client) *ChallengeStore {
	return &ChallengeStore{rdb: rdb}
}

// Put stores a challenge token mapped to the user it authenticates.
func (s *ChallengeStore) Put(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error {
	key := config.CacheKey.TwoFactorChallengeKey(token)
	if err := s.rdb.Set(ctx, key, userID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

// Redeem atomically fetches and deletes the challenge so it can never be
// redeemed twice, even by concurrent requests racing on the same token.
func (s *ChallengeStore) Redeem(ctx context.Context, token string) (uuid.UUID, error) {
	key := config.CacheKey.TwoFactorChallengeKey(token)
	val, err := s.rdb.GetDel(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrChallengeNotFound
		}
		return uuid.Nil, fmt.Errorf("redeem challenge: %w", err)
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid challenge payload: %w", err)
	}
	return id, nil
}
