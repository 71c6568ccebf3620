// Package scoring turns raw model responses into validated score results.
package scoring

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
	"github.com/VarshithPawarHR/resume-match-engine/internal/logger"
	"github.com/VarshithPawarHR/resume-match-engine/internal/utils"
)

const defaultMaxLogLength = 200

// Invoker performs one scoring call and normalizes the response.
type Invoker struct {
	scorer    ai.Scorer
	logger    *zap.Logger
	maxLogLen int
	clock     *stampClock
}

func NewInvoker(scorer ai.Scorer, log *zap.Logger, maxLogLength int) *Invoker {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Invoker{
		scorer:    scorer,
		logger:    logger.WithFields(log),
		maxLogLen: maxLogLength,
		clock:     &stampClock{now: time.Now},
	}
}

// Evaluate scores resume against jc. Transport and provider errors are returned
// so the caller can retry them. Malformed responses come back as a
// SchemaValidation failure outcome.
func (i *Invoker) Evaluate(ctx context.Context, jc *ai.JobContext, resume ai.Document) (ai.Outcome, error) {
	if jc == nil || strings.TrimSpace(jc.ProviderHandle) == "" {
		return ai.Outcome{}, ai.NewError(ai.KindContextInvalid, "job context is required", nil)
	}

	raw, err := i.scorer.Score(ctx, jc.ProviderHandle, resume)
	if err != nil {
		return ai.Outcome{}, err
	}

	i.logger.Debug("model response received",
		zap.String(logger.FieldResume, resume.Identity),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, i.maxLogLen)),
	)

	return i.Accept(raw), nil
}

// Accept validates a raw response and stamps the evaluation time.
func (i *Invoker) Accept(raw string) ai.Outcome {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return ai.Fail(ai.KindSchemaValidation, "model returned an empty response", false)
	}

	if err := Validate([]byte(cleaned)); err != nil {
		return ai.Fail(ai.KindSchemaValidation, err.Error(), false)
	}

	result, err := decodeResult(cleaned)
	if err != nil {
		return ai.Fail(ai.KindSchemaValidation, err.Error(), false)
	}

	result.EvaluationTimestamp = i.clock.Stamp()
	return ai.Success(result)
}

// decodeResult goes through a generic value first so whole-number floats such
// as 85.0 still decode into integer fields.
func decodeResult(doc string) (*ai.ScoreResult, error) {
	var generic map[string]any
	if err := json.Unmarshal([]byte(doc), &generic); err != nil {
		return nil, err
	}
	delete(generic, "evaluation_timestamp")

	normalized, err := json.Marshal(generic)
	if err != nil {
		return nil, err
	}

	var result ai.ScoreResult
	if err := json.Unmarshal(normalized, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)

	if raw != "" && !strings.HasPrefix(raw, "{") {
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start != -1 && end > start {
			raw = raw[start : end+1]
		}
	}
	return raw
}

// stampClock hands out strictly increasing timestamps.
type stampClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func (c *stampClock) Stamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
