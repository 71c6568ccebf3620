package bulk

import (
	"context"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
)

// Sequential scores requests one at a time in input order.
type Sequential struct {
	Score ItemScorer
}

func (s *Sequential) Name() string { return StrategySequential }

func (s *Sequential) Run(ctx context.Context, _ *ai.JobContext, reqs []ai.ScoreRequest, run *Run) error {
	for _, req := range reqs {
		run.Record(req.ResumeIdentity, scoreSafely(ctx, s.Score, req))
	}
	return nil
}
