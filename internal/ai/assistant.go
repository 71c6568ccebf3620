package ai

import (
	"context"
	"time"
)

// ContextHandle is what a provider returns after caching a job description.
type ContextHandle struct {
	Name      string
	ExpiresAt time.Time
}

// ContextProvider uploads a job description so later calls can reference it.
type ContextProvider interface {
	CreateContext(ctx context.Context, jobDescription Document) (ContextHandle, error)
}

// Scorer performs one scoring call and returns the raw model response.
type Scorer interface {
	Score(ctx context.Context, handle string, resume Document) (string, error)
}

// BatchMode selects how batch requests are delivered to the provider.
type BatchMode string

const (
	BatchModeInline BatchMode = "inline"
	BatchModeFile   BatchMode = "file"
)

// BatchItem is one request of a batch. Key is the correlation key.
type BatchItem struct {
	Key      string
	Document Document
}

type BatchSubmission struct {
	Mode          BatchMode
	ContextHandle string
	DisplayName   string
	Items         []BatchItem
}

// BatchReceipt identifies an accepted batch job. Slots maps each correlation key
// to the slot the provider will report its result under.
type BatchReceipt struct {
	JobID string
	Slots map[string]string
}

// BatchState is the provider-reported job state reduced to what callers act on.
type BatchState string

const (
	BatchStateRunning   BatchState = "RUNNING"
	BatchStateSucceeded BatchState = "SUCCEEDED"
	BatchStateFailed    BatchState = "FAILED"
	BatchStateExpired   BatchState = "EXPIRED"
)

type BatchResult struct {
	Text string
	Err  error
}

type BatchStatus struct {
	State   BatchState
	Detail  string
	Results map[string]BatchResult
}

// BatchProvider submits and polls provider-level batch jobs.
type BatchProvider interface {
	SubmitBatch(ctx context.Context, submission BatchSubmission) (BatchReceipt, error)
	PollBatch(ctx context.Context, jobID string) (BatchStatus, error)
}

// Provider is the full capability set of a model backend.
type Provider interface {
	ContextProvider
	Scorer
	BatchProvider
	Name() string
	Model() string
}
