package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
)

// Analysis is one stored scoring outcome.
type Analysis struct {
	ID          string     `json:"analysis_id" mapstructure:"analysis_id"`
	RunID       string     `json:"run_id" mapstructure:"run_id"`
	ResumeFile  string     `json:"resume_file" mapstructure:"resume_file"`
	ProcessedAt time.Time  `json:"processed_at" mapstructure:"processed_at"`
	Outcome     ai.Outcome `json:"analysis" mapstructure:"analysis"`
}

// BatchJob records a provider batch job started on behalf of a user.
type BatchJob struct {
	JobName     string    `json:"job_name" mapstructure:"job_name"`
	State       string    `json:"state" mapstructure:"state"`
	Requests    int       `json:"num_requests" mapstructure:"num_requests"`
	SubmittedAt time.Time `json:"submitted_at" mapstructure:"submitted_at"`
	CompletedAt time.Time `json:"completed_at" mapstructure:"completed_at"`
}

// Session is the per-user document. Unknown top-level keys survive a
// load/save round trip through Extra.
type Session struct {
	AnalysisResults []Analysis     `json:"analysis_results" mapstructure:"analysis_results"`
	BatchJobs       []BatchJob     `json:"batch_jobs,omitempty" mapstructure:"batch_jobs"`
	UpdatedAt       time.Time      `json:"updated_at" mapstructure:"updated_at"`
	Extra           map[string]any `json:"-" mapstructure:",remain"`
}

func (s Session) MarshalJSON() ([]byte, error) {
	type plain Session
	base, err := json.Marshal(plain(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return base, nil
	}

	merged := make(map[string]json.RawMessage, len(s.Extra)+3)
	for k, v := range s.Extra {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", k, err)
		}
		merged[k] = raw
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(base, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		merged[k] = v
	}
	return json.Marshal(merged)
}

var outcomeType = reflect.TypeOf(ai.Outcome{})

// outcomeHook lets mapstructure fill ai.Outcome through its JSON codec.
func outcomeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != outcomeType {
		return data, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var out ai.Outcome
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeSession parses a stored document. Empty input yields an empty session.
func DecodeSession(raw json.RawMessage) (*Session, error) {
	session := &Session{}
	if len(raw) == 0 {
		return session, nil
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("session is not a json object: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			outcomeHook,
		),
		WeaklyTypedInput: true,
		Result:           session,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(generic); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

// History reads and appends session documents on top of a Store.
type History struct {
	store Store
	now   func() time.Time

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

func NewHistory(store Store) *History {
	return &History{store: store, now: time.Now, users: make(map[string]*sync.Mutex)}
}

func (h *History) lock(userID string) func() {
	h.mu.Lock()
	m, ok := h.users[userID]
	if !ok {
		m = &sync.Mutex{}
		h.users[userID] = m
	}
	h.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Load returns the user's session; found is false when nothing was stored.
func (h *History) Load(ctx context.Context, userID string) (*Session, bool, error) {
	raw, found, err := h.store.Get(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	session, err := DecodeSession(raw)
	if err != nil {
		return nil, false, err
	}
	return session, found, nil
}

// Append adds analyses and an optional batch job record to the user's session.
func (h *History) Append(ctx context.Context, userID string, analyses []Analysis, job *BatchJob) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	unlock := h.lock(userID)
	defer unlock()

	session, _, err := h.Load(ctx, userID)
	if err != nil {
		return err
	}

	session.AnalysisResults = append(session.AnalysisResults, analyses...)
	if job != nil {
		session.BatchJobs = append(session.BatchJobs, *job)
	}
	session.UpdatedAt = h.now().UTC()

	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return h.store.Put(ctx, userID, raw)
}
