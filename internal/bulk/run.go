// Package bulk scores many resumes against one job description.
package bulk

import (
	"sync"

	"github.com/google/uuid"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
)

// Entry pairs a resume identity with its outcome.
type Entry struct {
	Resume  string     `json:"resume"`
	Outcome ai.Outcome `json:"outcome"`
}

// Run collects the outcomes of one bulk run. Each identity is recorded at most
// once; later writes for the same identity are ignored.
type Run struct {
	ID         string
	JobContext *ai.JobContext

	order []string
	known map[string]struct{}

	mu       sync.Mutex
	outcomes map[string]ai.Outcome
	onRecord func(Entry)
}

// NewRun creates a run over identities in input order. Repeated identities are collapsed.
func NewRun(jc *ai.JobContext, identities []string) *Run {
	r := &Run{
		ID:         uuid.NewString(),
		JobContext: jc,
		known:      make(map[string]struct{}, len(identities)),
		outcomes:   make(map[string]ai.Outcome, len(identities)),
	}
	for _, id := range identities {
		if _, ok := r.known[id]; ok {
			continue
		}
		r.known[id] = struct{}{}
		r.order = append(r.order, id)
	}
	return r
}

// Record stores outcome for id. It reports false when id is unknown or already recorded.
func (r *Run) Record(id string, outcome ai.Outcome) bool {
	if _, ok := r.known[id]; !ok {
		return false
	}

	r.mu.Lock()
	if _, done := r.outcomes[id]; done {
		r.mu.Unlock()
		return false
	}
	r.outcomes[id] = outcome
	hook := r.onRecord
	r.mu.Unlock()

	if hook != nil {
		hook(Entry{Resume: id, Outcome: outcome})
	}
	return true
}

func (r *Run) Outcome(id string) (ai.Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.outcomes[id]
	return o, ok
}

// Pending returns the identities without an outcome, in input order.
func (r *Run) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []string
	for _, id := range r.order {
		if _, ok := r.outcomes[id]; !ok {
			pending = append(pending, id)
		}
	}
	return pending
}

// Len returns the number of recorded outcomes.
func (r *Run) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes)
}

// Identities returns the input identities in order.
func (r *Run) Identities() []string {
	return append([]string(nil), r.order...)
}

// Entries returns the recorded outcomes in input order.
func (r *Run) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.outcomes))
	for _, id := range r.order {
		if o, ok := r.outcomes[id]; ok {
			entries = append(entries, Entry{Resume: id, Outcome: o})
		}
	}
	return entries
}

// Outcomes returns a copy of the identity to outcome mapping.
func (r *Run) Outcomes() map[string]ai.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]ai.Outcome, len(r.outcomes))
	for id, o := range r.outcomes {
		out[id] = o
	}
	return out
}
