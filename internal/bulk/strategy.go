package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
)

const (
	StrategySequential = "sequential"
	StrategyParallel   = "parallel"
	StrategyBatch      = "batch"
)

var validate = validator.New()

// ItemScorer scores one request. It always returns an outcome; errors are
// reported as failure outcomes.
type ItemScorer func(ctx context.Context, req ai.ScoreRequest) ai.Outcome

// Strategy dispatches score requests and records every outcome into run.
type Strategy interface {
	Name() string
	Run(ctx context.Context, jc *ai.JobContext, reqs []ai.ScoreRequest, run *Run) error
}

// StrategyConfig selects and tunes the execution strategy.
type StrategyConfig struct {
	Name    string      `mapstructure:"name" json:"name" validate:"oneof=sequential parallel batch"`
	Workers int         `mapstructure:"workers" json:"workers" validate:"min=1,max=64"`
	Batch   BatchConfig `mapstructure:"batch" json:"batch"`
}

// BatchConfig tunes provider batch submission.
type BatchConfig struct {
	// Mode is auto, inline or file. Auto switches to file above FileThreshold items.
	Mode          string        `mapstructure:"mode" json:"mode" validate:"oneof=auto inline file"`
	FileThreshold int           `mapstructure:"file-threshold" json:"file_threshold" validate:"min=1"`
	PollInterval  time.Duration `mapstructure:"poll-interval" json:"poll_interval" validate:"gt=0"`
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout" validate:"gt=0"`
}

func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		Name:    StrategyParallel,
		Workers: 5,
		Batch:   DefaultBatchConfig(),
	}
}

func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Mode:          "auto",
		FileThreshold: 50,
		PollInterval:  30 * time.Second,
		Timeout:       24 * time.Hour,
	}
}

// WithDefaults fills zero fields from DefaultStrategyConfig.
func (c StrategyConfig) WithDefaults() StrategyConfig {
	def := DefaultStrategyConfig()
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.Workers == 0 {
		c.Workers = def.Workers
	}
	if c.Batch.Mode == "" {
		c.Batch.Mode = def.Batch.Mode
	}
	if c.Batch.FileThreshold == 0 {
		c.Batch.FileThreshold = def.Batch.FileThreshold
	}
	if c.Batch.PollInterval == 0 {
		c.Batch.PollInterval = def.Batch.PollInterval
	}
	if c.Batch.Timeout == 0 {
		c.Batch.Timeout = def.Batch.Timeout
	}
	return c
}

func (c StrategyConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid strategy config: %w", err)
	}
	return nil
}

// ModeFor resolves the batch mode for n items.
func (c BatchConfig) ModeFor(n int) ai.BatchMode {
	switch c.Mode {
	case string(ai.BatchModeInline):
		return ai.BatchModeInline
	case string(ai.BatchModeFile):
		return ai.BatchModeFile
	}
	if n > c.FileThreshold {
		return ai.BatchModeFile
	}
	return ai.BatchModeInline
}
