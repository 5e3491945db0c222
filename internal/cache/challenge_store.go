package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"opsdesk/internal/models"
)

// ChallengeTTL bounds how long a password-verified login may wait for its
// second factor.
const ChallengeTTL = 5 * time.Minute

var ErrChallengeNotFound = errors.New("challenge not found")

type ChallengeStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewChallengeStore(client *redis.Client) *ChallengeStore {
	return &ChallengeStore{client: client, ttl: ChallengeTTL}
}

func challengeKey(id string) string {
	return "challenge:" + id
}

func (s *ChallengeStore) TTL() time.Duration {
	return s.ttl
}

func (s *ChallengeStore) Save(ctx context.Context, challenge models.Challenge) error {
	raw, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	if err := s.client.Set(ctx, challengeKey(challenge.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save challenge: %w", err)
	}
	return nil
}

func (s *ChallengeStore) Get(ctx context.Context, id string) (models.Challenge, error) {
	if id == "" {
		return models.Challenge{}, ErrChallengeNotFound
	}

	raw, err := s.client.Get(ctx, challengeKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Challenge{}, ErrChallengeNotFound
		}
		return models.Challenge{}, fmt.Errorf("load challenge: %w", err)
	}

	var challenge models.Challenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return models.Challenge{}, fmt.Errorf("decode challenge: %w", err)
	}
	return challenge, nil
}

// Consume deletes the challenge and reports whether this call was the one
// that removed it. Concurrent verifications of one challenge see exactly
// one true.
func (s *ChallengeStore) Consume(ctx context.Context, id string) (bool, error) {
	deleted, err := s.client.Del(ctx, challengeKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("consume challenge: %w", err)
	}
	return deleted == 1, nil
}
