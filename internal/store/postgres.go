package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createUserData = `CREATE TABLE IF NOT EXISTS user_data (
	user_id    TEXT PRIMARY KEY,
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Postgres stores session documents in the user_data table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, pings and makes sure the table exists.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createUserData); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create user_data table: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *Postgres) Get(ctx context.Context, userID string) (json.RawMessage, bool, error) {
	if err := checkUser(userID); err != nil {
		return nil, false, err
	}

	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT data FROM user_data WHERE user_id = $1`, userID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select user data: %w", err)
	}
	return data, true, nil
}

func (p *Postgres) Put(ctx context.Context, userID string, value json.RawMessage) error {
	if err := checkUser(userID); err != nil {
		return err
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO user_data (user_id, data)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		userID, []byte(value),
	)
	if err != nil {
		return fmt.Errorf("upsert user data: %w", err)
	}
	return nil
}
