package bulk

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
)

// Parallel scores requests on a fixed pool of workers sharing one queue.
// A failing item never stops its siblings.
type Parallel struct {
	Workers int
	Score   ItemScorer
}

func (p *Parallel) Name() string { return StrategyParallel }

func (p *Parallel) Run(ctx context.Context, _ *ai.JobContext, reqs []ai.ScoreRequest, run *Run) error {
	if p.Workers < 1 {
		return fmt.Errorf("parallel strategy needs at least one worker, got %d", p.Workers)
	}

	workers := min(p.Workers, len(reqs))
	queue := make(chan ai.ScoreRequest)

	// plain group: one worker's failure must not cancel the others
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for req := range queue {
				run.Record(req.ResumeIdentity, scoreSafely(ctx, p.Score, req))
			}
			return nil
		})
	}

	for _, req := range reqs {
		queue <- req
	}
	close(queue)

	return g.Wait()
}

// scoreSafely turns a panicking scorer into a failure for that item only.
func scoreSafely(ctx context.Context, score ItemScorer, req ai.ScoreRequest) (out ai.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = ai.Fail(ai.KindProvider, fmt.Sprintf("scoring panicked: %v", r), false)
		}
	}()

	if score == nil {
		return ai.Fail(ai.KindProvider, "no scorer configured", false)
	}
	out = score(ctx, req)
	if out.Result == nil && out.Failure == nil {
		return ai.Fail(ai.KindMissingResult, "scorer returned no outcome", false)
	}
	return out
}
