package store

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, found, err := s.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Put(ctx, "u-1", json.RawMessage(`{"a":1}`)))
	require.NoError(t, s.Put(ctx, "u-1", json.RawMessage(`{"a":2}`)))

	got, found, err := s.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"a":2}`, string(got))

	_, _, err = s.Get(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidUser)
	assert.ErrorIs(t, s.Put(ctx, "", json.RawMessage(`{}`)), ErrInvalidUser)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())

	err := NewMemory().Put(context.Background(), "u", json.RawMessage(`{`))
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exerciseStore(t, NewRedis(client, time.Hour))

	assert.True(t, mr.Exists(redisKeyPrefix+"u-1"))
	assert.Equal(t, time.Hour, mr.TTL(redisKeyPrefix+"u-1"))

	mr.FastForward(2 * time.Hour)
	_, found, err := NewRedis(client, 0).Get(context.Background(), "u-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStoreReportsConnectionErrors(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, _, err = NewRedis(client, 0).Get(context.Background(), "u-1")
	assert.ErrorContains(t, err, "redis get")
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("RME_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("RME_TEST_POSTGRES_URL is not set")
	}
	pg, err := NewPostgres(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pg.Close)

	exerciseStore(t, pg)
}

func TestOpen(t *testing.T) {
	s, closeFn, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &Memory{}, s)

	mr := miniredis.RunT(t)
	s, closeFn, err = Open(context.Background(), Config{Backend: "redis", RedisAddr: mr.Addr()})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &Redis{}, s)

	_, _, err = Open(context.Background(), Config{Backend: "postgres"})
	assert.ErrorContains(t, err, "invalid store config")

	_, _, err = Open(context.Background(), Config{Backend: "sqlite"})
	assert.ErrorContains(t, err, "invalid store config")
}

func TestHistoryAppendAndLoad(t *testing.T) {
	mem := NewMemory()
	h := NewHistory(mem)
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }
	ctx := context.Background()

	_, found, err := h.Load(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, found)

	first := Analysis{
		ID:          "a-1",
		RunID:       "r-1",
		ResumeFile:  "alice.pdf",
		ProcessedAt: fixed,
		Outcome:     ai.Success(&ai.ScoreResult{CandidateName: "Alice", OverallFitScore: 81}),
	}
	second := Analysis{
		ID:          "a-2",
		RunID:       "r-1",
		ResumeFile:  "bob.pdf",
		ProcessedAt: fixed,
		Outcome:     ai.Fail(ai.KindInput, "unreadable", false),
	}
	require.NoError(t, h.Append(ctx, "u-1", []Analysis{first}, nil))
	require.NoError(t, h.Append(ctx, "u-1", []Analysis{second}, &BatchJob{JobName: "batches/1", State: "SUCCEEDED", Requests: 2}))

	session, found, err := h.Load(ctx, "u-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, session.AnalysisResults, 2)
	assert.Equal(t, "a-1", session.AnalysisResults[0].ID)
	assert.True(t, session.AnalysisResults[0].Outcome.OK())
	assert.Equal(t, "Alice", session.AnalysisResults[0].Outcome.Result.CandidateName)
	assert.Equal(t, ai.KindInput, session.AnalysisResults[1].Outcome.Kind())
	assert.True(t, session.AnalysisResults[1].ProcessedAt.Equal(fixed))
	require.Len(t, session.BatchJobs, 1)
	assert.Equal(t, 2, session.BatchJobs[0].Requests)
	assert.True(t, session.UpdatedAt.Equal(fixed))
}

func TestHistoryKeepsUnknownKeys(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Put(ctx, "u-1", json.RawMessage(`{"preferences":{"theme":"dark"},"analysis_results":[]}`)))

	h := NewHistory(mem)
	require.NoError(t, h.Append(ctx, "u-1", []Analysis{{ID: "a-1", Outcome: ai.Fail(ai.KindTimeout, "slow", false)}}, nil))

	raw, _, err := mem.Get(ctx, "u-1")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, map[string]any{"theme": "dark"}, doc["preferences"])
	assert.Len(t, doc["analysis_results"], 1)
}

func TestDecodeSessionRejectsNonObjects(t *testing.T) {
	_, err := DecodeSession(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}
