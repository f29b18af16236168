package auth

import (
	"context"
	"time"
)

// ChallengeStore records pending second-factor challenges.
// Consume is single-use: a challenge can be consumed at most once, and never after its ttl.
type ChallengeStore interface {
	Put(ctx context.Context, id, userID string, ttl time.Duration) error
	Consume(ctx context.Context, id string) (userID string, ok bool, err error)
}
