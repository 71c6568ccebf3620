// Package intake validates resume paths before they are dispatched for scoring.
package intake

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
)

// Filter is one intake step. Rejected candidates are removed from the set and
// recorded with their failure.
type Filter interface {
	Name() string
	Apply(ctx context.Context, deps Deps, set *Set) (Step, error)
}

// Deps aggregates dependencies shared across all intake steps.
type Deps struct {
	Logger *zap.Logger
	Load   func(path string) (ai.Document, error)
}

// Step describes the result of executing an intake step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Candidate is a resume that is still eligible for scoring.
type Candidate struct {
	Identity string
	Document ai.Document
}

// Set tracks the candidates of one run.
type Set struct {
	// Order lists every distinct identity in input order.
	Order      []string
	Candidates []Candidate
	Rejected   map[string]ai.Outcome
}

// NewSet builds a candidate set from raw paths. Repeated paths are kept in
// Candidates until the duplicates step drops them.
func NewSet(paths []string) *Set {
	s := &Set{Rejected: make(map[string]ai.Outcome)}
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			s.Order = append(s.Order, p)
		}
		s.Candidates = append(s.Candidates, Candidate{Identity: p})
	}
	return s
}

// Len returns the number of remaining candidates.
func (s *Set) Len() int { return len(s.Candidates) }

// keep retains candidates for which fn returns a nil failure and rejects the rest.
func (s *Set) keep(fn func(*Candidate) *ai.Failure) []string {
	var dropped []string
	kept := s.Candidates[:0]
	for i := range s.Candidates {
		c := s.Candidates[i]
		if failure := fn(&c); failure != nil {
			if _, ok := s.Rejected[c.Identity]; !ok {
				s.Rejected[c.Identity] = ai.Outcome{Failure: failure}
			}
			dropped = append(dropped, c.Identity)
			continue
		}
		kept = append(kept, c)
	}
	s.Candidates = kept
	return dropped
}

// Requests turns the remaining candidates into score requests bound to jc.
func (s *Set) Requests(jc *ai.JobContext) []ai.ScoreRequest {
	reqs := make([]ai.ScoreRequest, 0, len(s.Candidates))
	for _, c := range s.Candidates {
		reqs = append(reqs, ai.ScoreRequest{ResumeIdentity: c.Identity, Resume: c.Document, JobContext: jc})
	}
	return reqs
}

// Default returns the standard intake pipeline.
func Default() []Filter {
	return []Filter{NewDuplicates(), NewSupportedFormat(), NewLoader()}
}

// Run executes the steps sequentially over paths.
func Run(ctx context.Context, deps Deps, steps []Filter, paths []string) (*Set, error) {
	set := NewSet(paths)
	for _, step := range steps {
		info, err := step.Apply(ctx, deps, set)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		if deps.Logger != nil {
			deps.Logger.Info("intake step",
				zap.String("name", step.Name()),
				zap.Int("initial", info.Initial),
				zap.Int("dropped", info.Dropped),
				zap.Int("left", info.Left),
			)
		}
	}
	return set, nil
}
