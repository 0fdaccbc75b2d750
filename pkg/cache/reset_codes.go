package cache

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

const resetCodePrefix = "pwreset:"

// ResetCodeStore keeps short-lived password reset codes in Redis. A code can
// be consumed at most once; Take removes it atomically with GETDEL.
type ResetCodeStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResetCodeStore constructs a store with the given code lifetime.
func NewResetCodeStore(client *redis.Client, ttl time.Duration) *ResetCodeStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ResetCodeStore{client: client, ttl: ttl}
}

// Issue generates a fresh 6-digit code for the email and stores it, replacing
// any outstanding code.
func (s *ResetCodeStore) Issue(ctx context.Context, email string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate reset code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())

	if err := s.client.Set(ctx, resetCodePrefix+email, code, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store reset code: %w", err)
	}
	return code, nil
}

// Take returns the outstanding code for the email and deletes it in the same
// operation. An empty string means no code is outstanding.
func (s *ResetCodeStore) Take(ctx context.Context, email string) (string, error) {
	code, err := s.client.GetDel(ctx, resetCodePrefix+email).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("take reset code: %w", err)
	}
	return code, nil
}
