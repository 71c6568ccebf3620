// Package store persists per-user session documents as JSON.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
)

var ErrInvalidUser = errors.New("user id is required")

var validate = validator.New()

// Store keeps one JSON document per user id.
type Store interface {
	Get(ctx context.Context, userID string) (json.RawMessage, bool, error)
	Put(ctx context.Context, userID string, value json.RawMessage) error
}

// Config selects a backend.
type Config struct {
	Backend     string        `mapstructure:"backend" validate:"oneof=memory postgres redis"`
	PostgresURL string        `mapstructure:"postgres-url" validate:"required_if=Backend postgres"`
	RedisAddr   string        `mapstructure:"redis-addr" validate:"required_if=Backend redis"`
	RedisDB     int           `mapstructure:"redis-db" validate:"min=0"`
	RedisTTL    time.Duration `mapstructure:"redis-ttl" validate:"gte=0"`
}

// Open builds the configured backend. The returned func releases its resources.
func Open(ctx context.Context, cfg Config) (Store, func(), error) {
	if cfg.Backend == "" {
		cfg.Backend = "memory"
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid store config: %w", err)
	}

	switch cfg.Backend {
	case "postgres":
		pg, err := NewPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedis(client, cfg.RedisTTL), func() { _ = client.Close() }, nil
	default:
		return NewMemory(), func() {}, nil
	}
}

func checkUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUser
	}
	return nil
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]json.RawMessage)}
}

func (m *Memory) Get(_ context.Context, userID string) (json.RawMessage, bool, error) {
	if err := checkUser(userID); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[userID]
	if !ok {
		return nil, false, nil
	}
	return append(json.RawMessage(nil), v...), true, nil
}

func (m *Memory) Put(_ context.Context, userID string, value json.RawMessage) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	if !json.Valid(value) {
		return errors.New("value is not valid json")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[userID] = append(json.RawMessage(nil), value...)
	return nil
}
