package bulk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
	"github.com/VarshithPawarHR/resume-match-engine/internal/logger"
	"github.com/VarshithPawarHR/resume-match-engine/internal/metrics"
	"github.com/VarshithPawarHR/resume-match-engine/internal/retry"
	"github.com/VarshithPawarHR/resume-match-engine/internal/utils"
)

// HandleState is the lifecycle state of a submitted batch job.
type HandleState string

const (
	HandlePending   HandleState = "PENDING"
	HandleRunning   HandleState = "RUNNING"
	HandleSucceeded HandleState = "SUCCEEDED"
	HandleFailed    HandleState = "FAILED"
	HandleExpired   HandleState = "EXPIRED"
)

var transitions = map[HandleState][]HandleState{
	HandlePending: {HandleRunning, HandleFailed},
	HandleRunning: {HandleSucceeded, HandleFailed, HandleExpired},
}

// Terminal reports whether no further transition is allowed.
func (s HandleState) Terminal() bool {
	return s == HandleSucceeded || s == HandleFailed || s == HandleExpired
}

// BatchHandle tracks one provider batch job. Locator maps each resume identity
// to the slot its result is reported under.
type BatchHandle struct {
	ProviderJobID string            `json:"provider_job_id"`
	Mode          ai.BatchMode      `json:"mode"`
	SubmittedAt   time.Time         `json:"submitted_at"`
	CompletedAt   time.Time         `json:"completed_at"`
	State         HandleState       `json:"state"`
	PollInterval  time.Duration     `json:"poll_interval"`
	Locator       map[string]string `json:"-"`
	Items         int               `json:"items"`
}

func NewBatchHandle(pollInterval time.Duration) *BatchHandle {
	return &BatchHandle{State: HandlePending, PollInterval: pollInterval}
}

// Transition moves the handle to next or reports an illegal move.
func (h *BatchHandle) Transition(next HandleState) error {
	for _, allowed := range transitions[h.State] {
		if allowed == next {
			h.State = next
			return nil
		}
	}
	return fmt.Errorf("illegal batch transition %s -> %s", h.State, next)
}

// batchCanceller is implemented by providers that can stop a job we gave up on.
type batchCanceller interface {
	CancelBatch(ctx context.Context, jobID string) error
}

// Batch submits every request as one provider batch job and polls it.
type Batch struct {
	Provider ai.BatchProvider
	// Accept turns a raw model response into an outcome.
	Accept  func(raw string) ai.Outcome
	Config  BatchConfig
	Policy  retry.Policy
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	handle *BatchHandle
}

func (b *Batch) Name() string { return StrategyBatch }

// Handle returns a snapshot of the last submitted job.
func (b *Batch) Handle() *BatchHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handle == nil {
		return nil
	}
	cp := *b.handle
	return &cp
}

func (b *Batch) Run(ctx context.Context, jc *ai.JobContext, reqs []ai.ScoreRequest, run *Run) error {
	if len(reqs) == 0 {
		return nil
	}
	if b.Provider == nil || b.Accept == nil {
		return fmt.Errorf("batch strategy is not configured")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	wait := b.wait
	if wait == nil {
		wait = utils.WaitFor
	}
	log := logger.WithFields(b.Logger, zap.String(logger.FieldStrategy, StrategyBatch))

	handle := NewBatchHandle(b.Config.PollInterval)
	handle.Mode = b.Config.ModeFor(len(reqs))
	handle.Items = len(reqs)
	b.mu.Lock()
	b.handle = handle
	b.mu.Unlock()

	submission := ai.BatchSubmission{
		Mode:        handle.Mode,
		DisplayName: "resume-match-" + run.ID,
		Items:       make([]ai.BatchItem, 0, len(reqs)),
	}
	if jc != nil {
		submission.ContextHandle = jc.ProviderHandle
	}
	for _, req := range reqs {
		submission.Items = append(submission.Items, ai.BatchItem{Key: req.ResumeIdentity, Document: req.Resume})
	}

	policy := b.Policy
	policy.OnRetry = func(a retry.Attempt) {
		b.Metrics.Retry("submit_batch", string(a.Kind))
		log.Warn("batch submission failed, retrying", zap.Int("attempt", a.Number), zap.Duration("delay", a.Delay), zap.Error(a.Err))
	}

	receipt, err := retry.Do(ctx, policy, func(ctx context.Context) (ai.BatchReceipt, error) {
		return b.Provider.SubmitBatch(ctx, submission)
	})
	if err != nil {
		b.finish(handle, HandleFailed, now)
		log.Error("batch submission failed", zap.Error(err))
		b.failAll(run, reqs, ai.KindBatchJobFailed, "batch submission failed: "+err.Error())
		return nil
	}

	b.mu.Lock()
	handle.ProviderJobID = receipt.JobID
	handle.SubmittedAt = now()
	handle.Locator = receipt.Slots
	_ = handle.Transition(HandleRunning)
	b.mu.Unlock()

	log.Info("batch job submitted",
		zap.String("job", receipt.JobID),
		zap.String("mode", string(handle.Mode)),
		zap.Int("items", len(reqs)),
	)

	deadline := handle.SubmittedAt.Add(b.Config.Timeout)
	pollPolicy := b.Policy
	pollPolicy.OnRetry = func(a retry.Attempt) {
		b.Metrics.Retry("poll_batch", string(a.Kind))
	}

	for {
		if err := wait(ctx, handle.PollInterval); err != nil {
			b.expire(ctx, handle, run, reqs, now, log, "run cancelled while waiting for batch job: "+err.Error())
			return nil
		}
		if !now().Before(deadline) {
			b.expire(ctx, handle, run, reqs, now, log, fmt.Sprintf("batch job did not finish within %s", b.Config.Timeout))
			return nil
		}

		status, err := retry.Do(ctx, pollPolicy, func(ctx context.Context) (ai.BatchStatus, error) {
			return b.Provider.PollBatch(ctx, receipt.JobID)
		})
		if err != nil {
			kind := ai.KindOf(err)
			if kind == ai.KindRetryExhausted || policy.IsRetriable(kind) {
				log.Warn("polling batch job failed, will poll again", zap.String("job", receipt.JobID), zap.Error(err))
				continue
			}
			if kind == ai.KindTimeout {
				b.expire(ctx, handle, run, reqs, now, log, "run cancelled while polling batch job: "+err.Error())
				return nil
			}
			b.finish(handle, HandleFailed, now)
			log.Error("polling batch job failed", zap.String("job", receipt.JobID), zap.Error(err))
			b.failAll(run, reqs, ai.KindBatchJobFailed, "polling batch job failed: "+err.Error())
			return nil
		}

		b.Metrics.BatchPoll(string(status.State))
		log.Debug("batch job polled", zap.String("job", receipt.JobID), zap.String("state", string(status.State)))

		switch status.State {
		case ai.BatchStateSucceeded:
			b.finish(handle, HandleSucceeded, now)
			b.demultiplex(handle, status, run, reqs)
			log.Info("batch job succeeded", zap.String("job", receipt.JobID), zap.Int("results", len(status.Results)))
			return nil
		case ai.BatchStateFailed:
			b.finish(handle, HandleFailed, now)
			detail := status.Detail
			if detail == "" {
				detail = "provider reported the batch job as failed"
			}
			log.Error("batch job failed", zap.String("job", receipt.JobID), zap.String("detail", detail))
			b.failAll(run, reqs, ai.KindBatchJobFailed, detail)
			return nil
		case ai.BatchStateExpired:
			b.finish(handle, HandleExpired, now)
			log.Error("provider expired the batch job", zap.String("job", receipt.JobID))
			b.failAll(run, reqs, ai.KindTimeout, "provider expired the batch job")
			return nil
		}
	}
}

// demultiplex maps results back by correlation key, never by position.
func (b *Batch) demultiplex(handle *BatchHandle, status ai.BatchStatus, run *Run, reqs []ai.ScoreRequest) {
	for _, req := range reqs {
		slot, located := handle.Locator[req.ResumeIdentity]
		res, found := status.Results[slot]
		if !located || !found {
			run.Record(req.ResumeIdentity, ai.Fail(ai.KindMissingResult, "batch results hold no entry for this resume", false))
			continue
		}
		if res.Err != nil {
			run.Record(req.ResumeIdentity, ai.FailWith(res.Err))
			continue
		}
		run.Record(req.ResumeIdentity, b.Accept(res.Text))
	}
}

func (b *Batch) expire(ctx context.Context, handle *BatchHandle, run *Run, reqs []ai.ScoreRequest, now func() time.Time, log *zap.Logger, reason string) {
	b.finish(handle, HandleExpired, now)
	log.Warn("batch job expired", zap.String("job", handle.ProviderJobID), zap.String("reason", reason))
	b.failAll(run, reqs, ai.KindTimeout, reason)

	if c, ok := b.Provider.(batchCanceller); ok {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := c.CancelBatch(cctx, handle.ProviderJobID); err != nil {
			log.Warn("cancelling expired batch job failed", zap.String("job", handle.ProviderJobID), zap.Error(err))
		}
	}
}

func (b *Batch) finish(handle *BatchHandle, state HandleState, now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := handle.Transition(state); err != nil {
		logger.WithFields(b.Logger).Warn("ignoring batch state change", zap.Error(err))
		return
	}
	handle.CompletedAt = now()
}

// failAll records the same failure for every request that has no outcome yet.
func (b *Batch) failAll(run *Run, reqs []ai.ScoreRequest, kind ai.Kind, message string) {
	for _, req := range reqs {
		run.Record(req.ResumeIdentity, ai.Fail(kind, message, false))
	}
}
