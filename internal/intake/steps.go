package intake

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
	"github.com/VarshithPawarHR/resume-match-engine/internal/documents"
)

type duplicatesFilter struct{}

// NewDuplicates creates a step that collapses repeated resume paths into one request.
func NewDuplicates() Filter {
	return &duplicatesFilter{}
}

func (f *duplicatesFilter) Name() string { return "duplicates" }

func (f *duplicatesFilter) Apply(_ context.Context, deps Deps, set *Set) (Step, error) {
	initial := set.Len()
	seen := make(map[string]bool, initial)

	kept := set.Candidates[:0]
	var repeated []string
	for _, c := range set.Candidates {
		if seen[c.Identity] {
			repeated = append(repeated, c.Identity)
			continue
		}
		seen[c.Identity] = true
		kept = append(kept, c)
	}
	set.Candidates = kept

	if deps.Logger != nil && len(repeated) > 0 {
		deps.Logger.Info("collapsing repeated resumes", zap.Strings("resumes", repeated))
	}
	return Step{Initial: initial, Dropped: len(repeated), Left: set.Len()}, nil
}

type supportedFormatFilter struct{}

// NewSupportedFormat creates a step that rejects files the loader cannot read.
func NewSupportedFormat() Filter {
	return &supportedFormatFilter{}
}

func (f *supportedFormatFilter) Name() string { return "supported_format" }

func (f *supportedFormatFilter) Apply(_ context.Context, deps Deps, set *Set) (Step, error) {
	initial := set.Len()
	dropped := set.keep(func(c *Candidate) *ai.Failure {
		if documents.Supported(c.Identity) {
			return nil
		}
		return &ai.Failure{
			Kind:    ai.KindInput,
			Message: fmt.Sprintf("%s: %q", documents.ErrUnsupportedFormat, filepath.Ext(c.Identity)),
		}
	})

	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Warn("rejecting unsupported resumes", zap.Strings("resumes", dropped))
	}
	return Step{Initial: initial, Dropped: len(dropped), Left: set.Len()}, nil
}

type loaderFilter struct{}

// NewLoader creates a step that reads every remaining resume.
func NewLoader() Filter {
	return &loaderFilter{}
}

func (f *loaderFilter) Name() string { return "load" }

func (f *loaderFilter) Apply(ctx context.Context, deps Deps, set *Set) (Step, error) {
	load := deps.Load
	if load == nil {
		load = documents.Load
	}

	initial := set.Len()
	dropped := set.keep(func(c *Candidate) *ai.Failure {
		if err := ctx.Err(); err != nil {
			return &ai.Failure{Kind: ai.KindTimeout, Message: err.Error()}
		}

		doc, err := load(c.Identity)
		if err != nil {
			failure := ai.FailureFrom(err)
			var typed *ai.Error
			if !errors.As(err, &typed) {
				failure.Kind = ai.KindInput
				failure.Retriable = false
			}
			if deps.Logger != nil {
				deps.Logger.Warn("resume could not be loaded", zap.String("resume", c.Identity), zap.Error(err))
			}
			return failure
		}

		doc.Identity = c.Identity
		c.Document = doc
		return nil
	})

	return Step{Initial: initial, Dropped: len(dropped), Left: set.Len()}, nil
}
