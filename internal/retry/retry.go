// Package retry wraps remote calls with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
	"github.com/VarshithPawarHR/resume-match-engine/internal/utils"
)

// ErrExhausted is matched by errors.Is on every exhausted retry error.
var ErrExhausted = errors.New("retry attempts exhausted")

// wait is swapped in tests.
var wait = utils.WaitFor

var validate = validator.New()

// Policy configures retries.
type Policy struct {
	MaxAttempts int           `mapstructure:"max-attempts" validate:"min=1"`
	BaseDelay   time.Duration `mapstructure:"base-delay" validate:"gte=0"`
	Multiplier  float64       `mapstructure:"multiplier" validate:"gte=1"`
	MaxDelay    time.Duration `mapstructure:"max-delay" validate:"gte=0"`
	// Retriable lists the error kinds worth another attempt.
	Retriable []ai.Kind `mapstructure:"retriable"`

	// OnRetry is called before every backoff sleep.
	OnRetry func(Attempt) `mapstructure:"-" json:"-" validate:"-"`
}

// Attempt describes a failed try that is about to be retried.
type Attempt struct {
	Number int
	Kind   ai.Kind
	Delay  time.Duration
	Err    error
}

// Default mirrors the upload retry settings: three attempts, 4s doubling up to 10s.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   4 * time.Second,
		Multiplier:  2,
		MaxDelay:    10 * time.Second,
		Retriable:   DefaultRetriable(),
	}
}

// DefaultRetriable returns the kinds retried when a policy does not list any.
func DefaultRetriable() []ai.Kind {
	return []ai.Kind{ai.KindTransientNetwork, ai.KindProviderRateLimit}
}

func (p Policy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}
	return nil
}

// WithDefaults fills zero fields from Default.
func (p Policy) WithDefaults() Policy {
	def := Default()
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Multiplier == 0 {
		p.Multiplier = def.Multiplier
	}
	if p.BaseDelay == 0 && p.MaxDelay == 0 {
		p.BaseDelay = def.BaseDelay
		p.MaxDelay = def.MaxDelay
	}
	if len(p.Retriable) == 0 {
		p.Retriable = def.Retriable
	}
	return p
}

// IsRetriable reports whether errors of kind are retried.
func (p Policy) IsRetriable(kind ai.Kind) bool {
	return slices.Contains(p.Retriable, kind)
}

// Backoff returns the delay slept after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Do runs op until it succeeds, fails with a non-retriable error or the attempt
// budget is spent. Non-retriable errors are returned unchanged. Exhaustion is
// reported as ai.KindRetryExhausted wrapping the last error.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.Validate(); err != nil {
		return zero, err
	}

	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		last = err

		kind := ai.KindOf(err)
		if !p.IsRetriable(kind) {
			return zero, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(Attempt{Number: attempt, Kind: kind, Delay: delay, Err: err})
		}

		if werr := wait(ctx, delay); werr != nil {
			return zero, ai.NewError(ai.KindTimeout,
				fmt.Sprintf("retry interrupted after %d attempts", attempt),
				errors.Join(werr, last))
		}
	}

	return zero, ai.NewError(ai.KindRetryExhausted,
		fmt.Sprintf("gave up after %d attempts", p.MaxAttempts),
		&exhausted{last: last})
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, op func(context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

type exhausted struct {
	last error
}

func (e *exhausted) Error() string { return e.last.Error() }

func (e *exhausted) Unwrap() []error { return []error{ErrExhausted, e.last} }
