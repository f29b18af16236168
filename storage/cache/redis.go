// Package cache holds the short-lived key stores backing second-factor challenges.
package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/auth"
)

const challengePrefix = "accademia:2fa:"

type RedisChallengeStore struct {
	client *redis.Client
}

var _ auth.ChallengeStore = (*RedisChallengeStore)(nil)

// OpenRedis connects to the configured redis server and pings it.
func OpenRedis(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return client, nil
}

func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

func (s *RedisChallengeStore) Put(ctx context.Context, id, userID string, ttl time.Duration) error {
	return errors.Wrap(s.client.Set(ctx, challengePrefix+id, userID, ttl).Err(), "RedisChallengeStore.Put")
}

func (s *RedisChallengeStore) Consume(ctx context.Context, id string) (string, bool, error) {
	userID, err := s.client.GetDel(ctx, challengePrefix+id).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "RedisChallengeStore.Consume")
	}
	return userID, true, nil
}

func (s *RedisChallengeStore) Close() error {
	return s.client.Close()
}
