// Package cache holds the redis-backed coordination state of the dispatcher:
// the cycle lock and the record of provider ids for messages the gateway has
// already accepted.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	cycleLockKey  = "dispatch:cycle:lock"
	sentKeyPrefix = "dispatch:sent:"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// AcquireCycleLock takes the cluster-wide dispatch lock for ttl. ok is false
// when another holder has it. The returned release is safe to call once the
// lock has already expired.
func (s *Store) AcquireCycleLock(ctx context.Context, ttl time.Duration) (release func(context.Context) error, ok bool, err error) {
	token := uuid.NewString()

	ok, err = s.client.SetNX(ctx, cycleLockKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, s.client, []string{cycleLockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to release cycle lock: %w", err)
		}
		return nil
	}
	return release, true, nil
}

// RememberSent records that the gateway accepted messageID.
func (s *Store) RememberSent(ctx context.Context, messageID, providerMessageID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, sentKeyPrefix+messageID, providerMessageID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to remember sent message %s: %w", messageID, err)
	}
	return nil
}

// LookupSent returns the provider id cached for messageID, if any.
func (s *Store) LookupSent(ctx context.Context, messageID string) (string, bool, error) {
	providerID, err := s.client.Get(ctx, sentKeyPrefix+messageID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up sent message %s: %w", messageID, err)
	}
	return providerID, true, nil
}

// ForgetSent drops the marker once the outcome is durable.
func (s *Store) ForgetSent(ctx context.Context, messageID string) error {
	if err := s.client.Del(ctx, sentKeyPrefix+messageID).Err(); err != nil {
		return fmt.Errorf("failed to forget sent message %s: %w", messageID, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
