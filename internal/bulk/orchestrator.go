package bulk

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
	"github.com/VarshithPawarHR/resume-match-engine/internal/contextcache"
	"github.com/VarshithPawarHR/resume-match-engine/internal/documents"
	"github.com/VarshithPawarHR/resume-match-engine/internal/intake"
	"github.com/VarshithPawarHR/resume-match-engine/internal/logger"
	"github.com/VarshithPawarHR/resume-match-engine/internal/metrics"
	"github.com/VarshithPawarHR/resume-match-engine/internal/retry"
	"github.com/VarshithPawarHR/resume-match-engine/internal/scoring"
	"github.com/VarshithPawarHR/resume-match-engine/internal/store"
)

const defaultMaxLogLength = 300

// contextDeleter is implemented by providers that can drop a context before it expires.
type contextDeleter interface {
	DeleteContext(ctx context.Context, handle string) error
}

// Deps aggregates the collaborators of an Orchestrator.
type Deps struct {
	Provider ai.Provider
	// Cache is created from Policy when nil.
	Cache   *contextcache.Cache
	Policy  retry.Policy
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Load reads one document from disk; documents.Load when nil.
	Load         func(path string) (ai.Document, error)
	Steps        []intake.Filter
	MaxLogLength int
}

// Orchestrator scores a set of resumes against one job description.
type Orchestrator struct {
	provider ai.Provider
	cache    *contextcache.Cache
	invoker  *scoring.Invoker
	policy   retry.Policy
	log      *zap.Logger
	metrics  *metrics.Metrics
	load     func(path string) (ai.Document, error)
	steps    []intake.Filter
}

func New(deps Deps) (*Orchestrator, error) {
	if deps.Provider == nil {
		return nil, errors.New("provider is required")
	}

	policy := deps.Policy.WithDefaults()
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	log := logger.WithCommonFields(deps.Logger, deps.Provider.Name(), deps.Provider.Model())

	cache := deps.Cache
	if cache == nil {
		cache = contextcache.New(
			contextcache.WithPolicy(policy),
			contextcache.WithLogger(log),
			contextcache.WithMetrics(deps.Metrics),
			contextcache.WithEvictHook(deleteHook(deps.Provider, log)),
		)
	}

	load := deps.Load
	if load == nil {
		load = documents.Load
	}
	steps := deps.Steps
	if len(steps) == 0 {
		steps = intake.Default()
	}
	maxLog := deps.MaxLogLength
	if maxLog <= 0 {
		maxLog = defaultMaxLogLength
	}

	return &Orchestrator{
		provider: deps.Provider,
		cache:    cache,
		invoker:  scoring.NewInvoker(deps.Provider, log, maxLog),
		policy:   policy,
		log:      log,
		metrics:  deps.Metrics,
		load:     load,
		steps:    steps,
	}, nil
}

func deleteHook(provider ai.Provider, log *zap.Logger) contextcache.EvictFunc {
	deleter, ok := provider.(contextDeleter)
	if !ok {
		return nil
	}
	return func(jc ai.JobContext) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := deleter.DeleteContext(ctx, jc.ProviderHandle); err != nil {
			log.Warn("deleting job context failed", zap.String("handle", jc.ProviderHandle), zap.Error(err))
		}
	}
}

// Close releases every cached job context.
func (o *Orchestrator) Close() {
	o.cache.Clear()
}

// Report is the result of one bulk run.
type Report struct {
	RunID          string       `json:"run_id"`
	Strategy       string       `json:"strategy"`
	JobDescription string       `json:"job_description"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     time.Time    `json:"finished_at"`
	Batch          *BatchHandle `json:"batch,omitempty"`
	Results        []Entry      `json:"results"`

	Outcomes map[string]ai.Outcome `json:"-"`
}

func (r *Report) Succeeded() int {
	n := 0
	for _, e := range r.Results {
		if e.Outcome.OK() {
			n++
		}
	}
	return n
}

func (r *Report) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// Analyses converts the report into session records.
func (r *Report) Analyses() []store.Analysis {
	out := make([]store.Analysis, 0, len(r.Results))
	for _, e := range r.Results {
		processed := r.FinishedAt
		if e.Outcome.OK() && !e.Outcome.Result.EvaluationTimestamp.IsZero() {
			processed = e.Outcome.Result.EvaluationTimestamp
		}
		out = append(out, store.Analysis{
			ID:          uuid.NewString(),
			RunID:       r.RunID,
			ResumeFile:  filepath.Base(e.Resume),
			ProcessedAt: processed,
			Outcome:     e.Outcome,
		})
	}
	return out
}

// BatchJob returns the session record of the batch job, if one was submitted.
func (r *Report) BatchJob() *store.BatchJob {
	if r.Batch == nil || r.Batch.ProviderJobID == "" {
		return nil
	}
	return &store.BatchJob{
		JobName:     r.Batch.ProviderJobID,
		State:       string(r.Batch.State),
		Requests:    r.Batch.Items,
		SubmittedAt: r.Batch.SubmittedAt,
		CompletedAt: r.Batch.CompletedAt,
	}
}

// Run scores resumePaths against the job description at jobDescriptionPath.
// Every input identity gets exactly one outcome. Only a failure to load the job
// description or to create its context fails the whole run.
func (o *Orchestrator) Run(ctx context.Context, jobDescriptionPath string, resumePaths []string, cfg StrategyConfig) (*Report, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	started := time.Now()

	jd, err := o.load(jobDescriptionPath)
	if err != nil {
		return nil, fmt.Errorf("load job description: %w", err)
	}

	build := o.builder(jd)
	jc, err := o.cache.GetOrCreate(ctx, jd.ContentIdentity(), build)
	if err != nil {
		return nil, err
	}

	set, err := intake.Run(ctx, intake.Deps{Logger: o.log, Load: o.load}, o.steps, resumePaths)
	if err != nil {
		return nil, fmt.Errorf("intake: %w", err)
	}

	run := NewRun(jc, set.Order)
	log := logger.WithRun(o.log, run.ID, cfg.Name, jobDescriptionPath)
	for id, outcome := range set.Rejected {
		run.Record(id, outcome)
		log.Warn("resume rejected", zap.String(logger.FieldResume, id), zap.String("reason", outcome.Failure.Message))
	}

	reqs := set.Requests(jc)
	log.Info("bulk run started", zap.Int("resumes", len(set.Order)), zap.Int("accepted", len(reqs)))

	strategy := o.strategy(cfg, jd, log)
	if err := strategy.Run(ctx, jc, reqs, run); err != nil {
		return nil, fmt.Errorf("%s strategy: %w", strategy.Name(), err)
	}

	for _, id := range run.Pending() {
		run.Record(id, ai.Fail(ai.KindMissingResult, "no outcome was produced for this resume", false))
	}

	report := &Report{
		RunID:          run.ID,
		Strategy:       cfg.Name,
		JobDescription: jobDescriptionPath,
		StartedAt:      started,
		FinishedAt:     time.Now(),
		Results:        run.Entries(),
		Outcomes:       run.Outcomes(),
	}
	if b, ok := strategy.(*Batch); ok {
		report.Batch = b.Handle()
	}

	for _, e := range report.Results {
		kind := string(e.Outcome.Kind())
		if kind == "" {
			kind = "ok"
		}
		o.metrics.Outcome(cfg.Name, kind)
	}
	o.metrics.ObserveRun(cfg.Name, report.FinishedAt.Sub(started))

	log.Info("bulk run finished",
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", report.Failed()),
		zap.Duration("elapsed", report.FinishedAt.Sub(started)),
	)
	return report, nil
}

func (o *Orchestrator) builder(jd ai.Document) contextcache.Builder {
	return func(ctx context.Context) (*ai.JobContext, error) {
		handle, err := o.provider.CreateContext(ctx, jd)
		if err != nil {
			return nil, err
		}
		return &ai.JobContext{ProviderHandle: handle.Name, ExpiresAt: handle.ExpiresAt}, nil
	}
}

func (o *Orchestrator) strategy(cfg StrategyConfig, jd ai.Document, log *zap.Logger) Strategy {
	switch cfg.Name {
	case StrategySequential:
		return &Sequential{Score: o.itemScorer(jd, log)}
	case StrategyBatch:
		return &Batch{
			Provider: o.provider,
			Accept:   o.invoker.Accept,
			Config:   cfg.Batch,
			Policy:   o.policy,
			Logger:   log,
			Metrics:  o.metrics,
		}
	default:
		return &Parallel{Workers: cfg.Workers, Score: o.itemScorer(jd, log)}
	}
}

// itemScorer evaluates one resume with retries. A context the provider no
// longer knows is invalidated and rebuilt once before giving up.
func (o *Orchestrator) itemScorer(jd ai.Document, log *zap.Logger) ItemScorer {
	return func(ctx context.Context, req ai.ScoreRequest) ai.Outcome {
		defer o.metrics.TrackScore()()

		policy := o.policy
		policy.OnRetry = func(a retry.Attempt) {
			o.metrics.Retry("score", string(a.Kind))
			log.Warn("scoring failed, retrying",
				zap.String(logger.FieldResume, req.ResumeIdentity),
				zap.Int("attempt", a.Number),
				zap.Duration("delay", a.Delay),
				zap.Error(a.Err),
			)
		}

		jc := req.JobContext
		rebuilt := false
		for {
			current := jc
			outcome, err := retry.Do(ctx, policy, func(ctx context.Context) (ai.Outcome, error) {
				return o.invoker.Evaluate(ctx, current, req.Resume)
			})
			if err == nil {
				return outcome
			}

			if ai.KindOf(err) != ai.KindContextInvalid || rebuilt {
				log.Warn("scoring failed", zap.String(logger.FieldResume, req.ResumeIdentity), zap.Error(err))
				return ai.FailWith(err)
			}
			rebuilt = true

			identity := jd.ContentIdentity()
			if current != nil {
				o.cache.InvalidateHandle(identity, current.ProviderHandle)
			}
			log.Info("job context rejected by provider, rebuilding", zap.String(logger.FieldResume, req.ResumeIdentity))

			fresh, berr := o.cache.GetOrCreate(ctx, identity, o.builder(jd))
			if berr != nil {
				return ai.FailWith(berr)
			}
			jc = fresh
		}
	}
}
