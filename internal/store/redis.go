package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "resume-match-engine:user:"

// Redis stores session documents under one key per user.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis wraps client. A zero ttl keeps documents forever.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, userID string) (json.RawMessage, bool, error) {
	if err := checkUser(userID); err != nil {
		return nil, false, err
	}

	data, err := r.client.Get(ctx, redisKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

func (r *Redis) Put(ctx context.Context, userID string, value json.RawMessage) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	if !json.Valid(value) {
		return errors.New("value is not valid json")
	}

	if err := r.client.Set(ctx, redisKeyPrefix+userID, []byte(value), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
