package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
)

const validResponse = `{
  "candidate_name": "Jane Doe",
  "position_applied": "Backend Engineer",
  "company": "Acme",
  "overall_fit_score": 82.5,
  "recommendation": "APPROVED",
  "fit_level": "HIGH_FIT",
  "key_strengths": ["Go", "distributed systems"],
  "major_concerns": [],
  "skills_assessment": {
    "required_skills_match": 90,
    "preferred_skills_match": 70.0,
    "critical_skills_missing": [],
    "skill_gaps_impact": "Low"
  },
  "experience_fit": {
    "years_required": 5,
    "years_candidate_has": 6.5,
    "experience_relevance": "High",
    "project_quality": "Good"
  },
  "hiring_decision_factors": {
    "technical_competency": 88,
    "experience_level": 80,
    "cultural_fit_indicators": 75,
    "growth_potential": 85,
    "immediate_productivity": 78
  }
}`

type stubScorer struct {
	mu      sync.Mutex
	handles []string
	resp    string
	err     error
}

func (s *stubScorer) Score(_ context.Context, handle string, _ ai.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = append(s.handles, handle)
	return s.resp, s.err
}

func TestEvaluateAcceptsValidResponse(t *testing.T) {
	scorer := &stubScorer{resp: "```json\n" + validResponse + "\n```"}
	inv := NewInvoker(scorer, zap.NewNop(), 0)

	out, err := inv.Evaluate(context.Background(), &ai.JobContext{ProviderHandle: "cachedContents/1"}, ai.Document{Identity: "jane.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.OK() {
		t.Fatalf("expected success, got %+v", out.Failure)
	}

	res := out.Result
	if res.CandidateName != "Jane Doe" || res.FitLevel != "HIGH_FIT" || res.SkillsAssessment.PreferredSkillsMatch != 70 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.EvaluationTimestamp.IsZero() {
		t.Fatalf("expected evaluation timestamp to be stamped")
	}
	if len(scorer.handles) != 1 || scorer.handles[0] != "cachedContents/1" {
		t.Fatalf("expected the context handle to be passed, got %v", scorer.handles)
	}
}

func TestEvaluatePropagatesProviderErrors(t *testing.T) {
	cause := ai.NewError(ai.KindTransientNetwork, "503 unavailable", nil)
	inv := NewInvoker(&stubScorer{err: cause}, nil, 0)

	_, err := inv.Evaluate(context.Background(), &ai.JobContext{ProviderHandle: "h"}, ai.Document{})
	if !errors.Is(err, cause) {
		t.Fatalf("expected provider error to propagate, got %v", err)
	}
}

func TestEvaluateRequiresContext(t *testing.T) {
	inv := NewInvoker(&stubScorer{resp: validResponse}, nil, 0)

	_, err := inv.Evaluate(context.Background(), nil, ai.Document{})
	if ai.KindOf(err) != ai.KindContextInvalid {
		t.Fatalf("expected context invalid error, got %v", err)
	}
}

func TestAcceptRejectsMalformedResponses(t *testing.T) {
	inv := NewInvoker(nil, nil, 0)

	var missingField map[string]any
	if err := json.Unmarshal([]byte(validResponse), &missingField); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	delete(missingField, "fit_level")
	withoutFitLevel, _ := json.Marshal(missingField)

	tests := []struct {
		name     string
		raw      string
		contains string
	}{
		{name: "empty", raw: "   ", contains: "empty"},
		{name: "not json", raw: "I think the candidate is great", contains: "json"},
		{name: "missing field", raw: string(withoutFitLevel), contains: "fit_level"},
		{name: "bad enum", raw: strings.Replace(validResponse, `"APPROVED"`, `"MAYBE"`, 1), contains: "recommendation"},
		{name: "score out of range", raw: strings.Replace(validResponse, "82.5", "182.5", 1), contains: "overall_fit_score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := inv.Accept(tt.raw)
			if out.Kind() != ai.KindSchemaValidation {
				t.Fatalf("expected schema validation failure, got %+v", out)
			}
			if out.Failure.Retriable {
				t.Fatalf("schema failures must not be retriable")
			}
			if !strings.Contains(out.Failure.Message, tt.contains) {
				t.Fatalf("expected message to mention %q, got %q", tt.contains, out.Failure.Message)
			}
		})
	}
}

func TestAcceptIgnoresModelTimestamp(t *testing.T) {
	inv := NewInvoker(nil, nil, 0)
	fixed := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	inv.clock.now = func() time.Time { return fixed }

	raw := strings.Replace(validResponse, `"company": "Acme",`, `"company": "Acme", "evaluation_timestamp": "1999-01-01T00:00:00Z",`, 1)
	out := inv.Accept(raw)
	if !out.OK() {
		t.Fatalf("expected success, got %+v", out.Failure)
	}
	if !out.Result.EvaluationTimestamp.Equal(fixed) {
		t.Fatalf("expected stamp %s, got %s", fixed, out.Result.EvaluationTimestamp)
	}
}

func TestStampClockIsStrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := &stampClock{now: func() time.Time { return fixed }}

	seen := make(map[time.Time]bool)
	var prev time.Time
	for i := 0; i < 100; i++ {
		ts := clock.Stamp()
		if !ts.After(prev) {
			t.Fatalf("stamp %d not after previous: %s <= %s", i, ts, prev)
		}
		if seen[ts] {
			t.Fatalf("duplicate stamp %s", ts)
		}
		seen[ts] = true
		prev = ts
	}
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "prose around", in: "Here you go: {\"a\":1} hope it helps", want: `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := extractJSON(tt.in); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
