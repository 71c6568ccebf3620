// Package contextcache keeps one provider-side job context per job description.
package contextcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
	"github.com/VarshithPawarHR/resume-match-engine/internal/logger"
	"github.com/VarshithPawarHR/resume-match-engine/internal/metrics"
	"github.com/VarshithPawarHR/resume-match-engine/internal/retry"
)

const defaultBuildTimeout = 5 * time.Minute

// Builder creates a fresh context for one identity.
type Builder func(ctx context.Context) (*ai.JobContext, error)

// EvictFunc is notified about entries leaving the cache. It runs outside the cache lock.
type EvictFunc func(jc ai.JobContext)

// Cache guarantees at most one concurrent build per identity. Unrelated
// identities build concurrently.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*ai.JobContext
	group   singleflight.Group

	policy       retry.Policy
	capacity     int
	buildTimeout time.Duration
	now          func() time.Time
	onEvict      EvictFunc
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

type Option func(*Cache)

func WithPolicy(p retry.Policy) Option { return func(c *Cache) { c.policy = p } }

// WithCapacity bounds the number of live contexts; the oldest entry is evicted first.
func WithCapacity(n int) Option { return func(c *Cache) { c.capacity = n } }

// WithBuildTimeout bounds a shared build, which outlives the caller that started it.
func WithBuildTimeout(d time.Duration) Option { return func(c *Cache) { c.buildTimeout = d } }

func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

func WithEvictHook(fn EvictFunc) Option { return func(c *Cache) { c.onEvict = fn } }

func WithLogger(l *zap.Logger) Option { return func(c *Cache) { c.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Cache) { c.metrics = m } }

func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*ai.JobContext),
		policy:  retry.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.buildTimeout <= 0 {
		c.buildTimeout = defaultBuildTimeout
	}
	c.logger = logger.WithFields(c.logger, zap.String("component", "context_cache"))
	return c
}

// GetOrCreate returns the live context for identity, building it when missing
// or expired. A failed build stores nothing and every waiting caller gets the error.
// The build is detached from ctx: a caller that gives up only stops waiting,
// the other callers still receive the shared result.
func (c *Cache) GetOrCreate(ctx context.Context, identity string, build Builder) (*ai.JobContext, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("context identity is required")
	}
	if build == nil {
		return nil, errors.New("context builder is required")
	}

	if jc, ok := c.lookup(identity); ok {
		c.metrics.Cache("hit")
		return &jc, nil
	}
	c.metrics.Cache("miss")

	flight := c.group.DoChan(identity, func() (any, error) {
		// a flight that finished just before this one started may have stored it
		if jc, ok := c.lookup(identity); ok {
			return jc, nil
		}

		policy := c.policy
		policy.OnRetry = func(a retry.Attempt) {
			c.metrics.Retry("create_context", string(a.Kind))
			c.logger.Warn("creating job context failed, retrying",
				zap.String(logger.FieldJobDescription, identity),
				zap.Int("attempt", a.Number),
				zap.Duration("delay", a.Delay),
				zap.Error(a.Err),
			)
		}

		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.buildTimeout)
		defer cancel()

		built, err := retry.Do(buildCtx, policy, func(ctx context.Context) (*ai.JobContext, error) {
			return build(ctx)
		})
		if err != nil {
			return nil, err
		}
		if built == nil || strings.TrimSpace(built.ProviderHandle) == "" {
			return nil, ai.NewError(ai.KindProvider, "builder returned an empty context handle", nil)
		}

		stored := *built
		stored.SourceIdentity = identity
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = c.now()
		}
		c.store(identity, &stored)
		c.metrics.Cache("build")
		c.logger.Info("job context created",
			zap.String(logger.FieldJobDescription, identity),
			zap.String("handle", stored.ProviderHandle),
			zap.Time("expires_at", stored.ExpiresAt),
		)

		return stored, nil
	})

	var res singleflight.Result
	select {
	case res = <-flight:
	case <-ctx.Done():
		return nil, fmt.Errorf("create job context: %w", ctx.Err())
	}
	if res.Err != nil {
		return nil, fmt.Errorf("create job context: %w", res.Err)
	}

	if res.Shared {
		c.metrics.Cache("shared")
	}

	jc := res.Val.(ai.JobContext)
	return &jc, nil
}

// Invalidate drops the entry for identity.
func (c *Cache) Invalidate(identity string) bool {
	c.mu.Lock()
	jc, ok := c.entries[identity]
	if ok {
		delete(c.entries, identity)
	}
	c.mu.Unlock()

	if ok {
		c.evicted(*jc, "invalidated")
	}
	return ok
}

// InvalidateHandle drops the entry only while it still carries handle, so a
// stale report never evicts a context rebuilt in the meantime.
func (c *Cache) InvalidateHandle(identity, handle string) bool {
	c.mu.Lock()
	jc, ok := c.entries[identity]
	if ok && jc.ProviderHandle == handle {
		delete(c.entries, identity)
	} else {
		ok = false
	}
	c.mu.Unlock()

	if ok {
		c.evicted(*jc, "invalidated")
	}
	return ok
}

// Clear evicts every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	old := c.entries
	c.entries = make(map[string]*ai.JobContext)
	c.mu.Unlock()

	for _, jc := range old {
		c.evicted(*jc, "cleared")
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) lookup(identity string) (ai.JobContext, bool) {
	c.mu.Lock()
	jc, ok := c.entries[identity]
	if ok && jc.Expired(c.now()) {
		delete(c.entries, identity)
		c.mu.Unlock()
		c.evicted(*jc, "expired")
		return ai.JobContext{}, false
	}
	c.mu.Unlock()

	if !ok {
		return ai.JobContext{}, false
	}
	return *jc, true
}

func (c *Cache) store(identity string, jc *ai.JobContext) {
	var dropped []ai.JobContext

	c.mu.Lock()
	if old, ok := c.entries[identity]; ok && old.ProviderHandle != jc.ProviderHandle {
		dropped = append(dropped, *old)
	}
	c.entries[identity] = jc

	for c.capacity > 0 && len(c.entries) > c.capacity {
		oldestID := ""
		for id, entry := range c.entries {
			if id == identity {
				continue
			}
			if oldestID == "" || entry.CreatedAt.Before(c.entries[oldestID].CreatedAt) {
				oldestID = id
			}
		}
		if oldestID == "" {
			break
		}
		dropped = append(dropped, *c.entries[oldestID])
		delete(c.entries, oldestID)
	}
	c.mu.Unlock()

	for _, jc := range dropped {
		c.evicted(jc, "superseded")
	}
}

func (c *Cache) evicted(jc ai.JobContext, reason string) {
	c.metrics.Cache(reason)
	c.logger.Debug("job context evicted",
		zap.String(logger.FieldJobDescription, jc.SourceIdentity),
		zap.String("handle", jc.ProviderHandle),
		zap.String("reason", reason),
	)
	if c.onEvict != nil {
		c.onEvict(jc)
	}
}
