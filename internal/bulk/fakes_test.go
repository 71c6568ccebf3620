package bulk

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
	"github.com/VarshithPawarHR/resume-match-engine/internal/retry"
)

const responseTemplate = `{
  "candidate_name": %q,
  "position_applied": "Backend Engineer",
  "company": "Acme",
  "overall_fit_score": 74,
  "recommendation": "APPROVED",
  "fit_level": "MEDIUM_FIT",
  "key_strengths": ["Go"],
  "major_concerns": ["No Kubernetes"],
  "skills_assessment": {
    "required_skills_match": 70,
    "preferred_skills_match": 50,
    "critical_skills_missing": ["Kubernetes"],
    "skill_gaps_impact": "Medium"
  },
  "experience_fit": {
    "years_required": 3,
    "years_candidate_has": 4,
    "experience_relevance": "High",
    "project_quality": "Good"
  },
  "hiring_decision_factors": {
    "technical_competency": 75,
    "experience_level": 70,
    "cultural_fit_indicators": 65,
    "growth_potential": 80,
    "immediate_productivity": 60
  }
}`

func responseFor(name string) string {
	return fmt.Sprintf(responseTemplate, name)
}

// fakeProvider answers every call from memory. The score hook defaults to a
// valid response naming the resume's text.
type fakeProvider struct {
	mu sync.Mutex

	created   int
	createErr error
	scoreFn   func(ctx context.Context, handle string, resume ai.Document) (string, error)
	submitFn  func(ai.BatchSubmission) (ai.BatchReceipt, error)
	pollFn    func(n int) (ai.BatchStatus, error)

	scores      int
	polls       int
	submissions []ai.BatchSubmission
	cancelled   []string
	deleted     []string
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-model" }

func (p *fakeProvider) CreateContext(_ context.Context, _ ai.Document) (ai.ContextHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return ai.ContextHandle{}, p.createErr
	}
	p.created++
	return ai.ContextHandle{
		Name:      "cachedContents/" + strconv.Itoa(p.created),
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (p *fakeProvider) Score(ctx context.Context, handle string, resume ai.Document) (string, error) {
	p.mu.Lock()
	p.scores++
	fn := p.scoreFn
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, handle, resume)
	}
	return responseFor(resume.Text), nil
}

func (p *fakeProvider) SubmitBatch(_ context.Context, s ai.BatchSubmission) (ai.BatchReceipt, error) {
	p.mu.Lock()
	p.submissions = append(p.submissions, s)
	fn := p.submitFn
	p.mu.Unlock()

	if fn != nil {
		return fn(s)
	}
	slots := make(map[string]string, len(s.Items))
	for i, item := range s.Items {
		slots[item.Key] = strconv.Itoa(i)
	}
	return ai.BatchReceipt{JobID: "batches/1", Slots: slots}, nil
}

func (p *fakeProvider) PollBatch(_ context.Context, _ string) (ai.BatchStatus, error) {
	p.mu.Lock()
	p.polls++
	n := p.polls
	fn := p.pollFn
	p.mu.Unlock()

	if fn == nil {
		return ai.BatchStatus{State: ai.BatchStateRunning}, nil
	}
	return fn(n)
}

func (p *fakeProvider) CancelBatch(_ context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, jobID)
	return nil
}

func (p *fakeProvider) DeleteContext(_ context.Context, handle string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, handle)
	return nil
}

// fakeLoader serves documents whose text is the candidate name.
func fakeLoader(docs map[string]string) func(string) (ai.Document, error) {
	return func(path string) (ai.Document, error) {
		text, ok := docs[path]
		if !ok {
			return ai.Document{}, errors.New("open " + path + ": no such file or directory")
		}
		return ai.Document{Name: filepath.Base(path), MIMEType: "text/plain", Text: text}, nil
	}
}

// fastPolicy retries transient errors without noticeable sleeps.
func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Multiplier:  2,
		MaxDelay:    2 * time.Millisecond,
		Retriable:   retry.DefaultRetriable(),
	}
}

// fakeClock advances only when the batch strategy waits.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}
