package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
)

type fakeCaches struct {
	created []*genai.CreateCachedContentConfig
	deleted []string
	resp    *genai.CachedContent
	err     error
}

func (f *fakeCaches) Create(_ context.Context, _ string, cfg *genai.CreateCachedContentConfig) (*genai.CachedContent, error) {
	f.created = append(f.created, cfg)
	return f.resp, f.err
}

func (f *fakeCaches) Delete(_ context.Context, name string, _ *genai.DeleteCachedContentConfig) (*genai.DeleteCachedContentResponse, error) {
	f.deleted = append(f.deleted, name)
	return &genai.DeleteCachedContentResponse{}, nil
}

type fakeModels struct {
	configs []*genai.GenerateContentConfig
	resp    *genai.GenerateContentResponse
	err     error
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, _ []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.configs = append(f.configs, cfg)
	return f.resp, f.err
}

type fakeBatches struct {
	mu        sync.Mutex
	sources   []*genai.BatchJobSource
	jobs      []*genai.BatchJob
	createErr error
	cancelled []string
}

func (f *fakeBatches) Create(_ context.Context, _ string, src *genai.BatchJobSource, _ *genai.CreateBatchJobConfig) (*genai.BatchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, src)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &genai.BatchJob{Name: "batches/42", State: genai.JobStatePending}, nil
}

func (f *fakeBatches) Get(_ context.Context, _ string, _ *genai.GetBatchJobConfig) (*genai.BatchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		return nil, errors.New("unexpected poll")
	}
	job := f.jobs[0]
	if len(f.jobs) > 1 {
		f.jobs = f.jobs[1:]
	}
	return job, nil
}

func (f *fakeBatches) Cancel(_ context.Context, name string, _ *genai.CancelBatchJobConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, name)
	return nil
}

type fakeFiles struct {
	uploaded   [][]byte
	downloaded []string
	deleted    []string
	output     []byte
}

func (f *fakeFiles) Upload(_ context.Context, r io.Reader, _ *genai.UploadFileConfig) (*genai.File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.uploaded = append(f.uploaded, data)
	return &genai.File{Name: "files/input-1"}, nil
}

func (f *fakeFiles) Download(_ context.Context, uri genai.DownloadURI, _ *genai.DownloadFileConfig) ([]byte, error) {
	file, ok := uri.(*genai.File)
	if !ok {
		return nil, errors.New("unexpected download uri")
	}
	f.downloaded = append(f.downloaded, file.Name)
	return f.output, nil
}

func (f *fakeFiles) Delete(_ context.Context, name string, _ *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error) {
	f.deleted = append(f.deleted, name)
	return &genai.DeleteFileResponse{}, nil
}

type fakes struct {
	caches  *fakeCaches
	models  *fakeModels
	batches *fakeBatches
	files   *fakeFiles
}

func newTestClient() (*Client, *fakes) {
	f := &fakes{
		caches:  &fakeCaches{},
		models:  &fakeModels{},
		batches: &fakeBatches{},
		files:   &fakeFiles{},
	}
	c := newClient(f.caches, f.models, f.batches, f.files, Options{Model: "gemini-test", Logger: zap.NewNop()})
	return c, f
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func items(keys ...string) []ai.BatchItem {
	out := make([]ai.BatchItem, 0, len(keys))
	for _, k := range keys {
		out = append(out, ai.BatchItem{Key: k, Document: ai.Document{Identity: k, Text: "resume of " + k}})
	}
	return out
}

func TestCreateContextCachesPromptAndJobDescription(t *testing.T) {
	c, f := newTestClient()
	expires := time.Now().Add(30 * time.Minute).UTC()
	f.caches.resp = &genai.CachedContent{Name: "cachedContents/abc", ExpireTime: expires}

	handle, err := c.CreateContext(context.Background(), ai.Document{Name: "jd.pdf", MIMEType: "application/pdf", Data: []byte("%PDF-1.4")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle.Name != "cachedContents/abc" || !handle.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected handle: %+v", handle)
	}

	cfg := f.caches.created[0]
	if cfg.TTL != defaultContextTTL {
		t.Fatalf("unexpected ttl: %v", cfg.TTL)
	}
	if cfg.SystemInstruction == nil || !strings.Contains(cfg.SystemInstruction.Parts[0].Text, "job description") {
		t.Fatalf("expected system prompt to be cached")
	}
	parts := cfg.Contents[0].Parts
	if len(parts) != 2 || parts[1].InlineData == nil || parts[1].InlineData.MIMEType != "application/pdf" {
		t.Fatalf("expected pdf to be sent inline, got %+v", parts)
	}
}

func TestCreateContextRejectsEmptyDocument(t *testing.T) {
	c, f := newTestClient()
	_, err := c.CreateContext(context.Background(), ai.Document{Name: "jd.txt"})
	if ai.KindOf(err) != ai.KindInput {
		t.Fatalf("expected input error, got %v", err)
	}
	if len(f.caches.created) != 0 {
		t.Fatalf("expected no cache calls")
	}
}

func TestScoreUsesCachedContentAndSchema(t *testing.T) {
	c, f := newTestClient()
	f.models.resp = textResponse(`{"candidate_name":"Jane"}`)

	raw, err := c.Score(context.Background(), "cachedContents/abc", ai.Document{Identity: "jane.docx", Text: "Jane, Go developer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw != `{"candidate_name":"Jane"}` {
		t.Fatalf("unexpected response: %q", raw)
	}

	cfg := f.models.configs[0]
	if cfg.CachedContent != "cachedContents/abc" || cfg.ResponseMIMEType != "application/json" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.ResponseJsonSchema == nil {
		t.Fatalf("expected response schema")
	}
}

func TestScoreClassifiesProviderErrors(t *testing.T) {
	c, f := newTestClient()
	f.models.err = genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED"}

	_, err := c.Score(context.Background(), "cachedContents/abc", ai.Document{Text: "x"})
	if ai.KindOf(err) != ai.KindProviderRateLimit {
		t.Fatalf("expected rate limit, got %v", err)
	}

	f.models.err = nil
	f.models.resp = textResponse("  ")
	_, err = c.Score(context.Background(), "cachedContents/abc", ai.Document{Text: "x"})
	if ai.KindOf(err) != ai.KindProvider {
		t.Fatalf("expected provider error for empty response, got %v", err)
	}

	_, err = c.Score(context.Background(), "", ai.Document{Text: "x"})
	if ai.KindOf(err) != ai.KindContextInvalid {
		t.Fatalf("expected context invalid, got %v", err)
	}
}

func TestInlineBatchRoundTrip(t *testing.T) {
	c, f := newTestClient()

	receipt, err := c.SubmitBatch(context.Background(), ai.BatchSubmission{
		Mode:          ai.BatchModeInline,
		ContextHandle: "cachedContents/abc",
		DisplayName:   "run-1",
		Items:         items("a.pdf", "b.pdf"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.JobID != "batches/42" || receipt.Slots["a.pdf"] != "0" || receipt.Slots["b.pdf"] != "1" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if got := len(f.batches.sources[0].InlinedRequests); got != 2 {
		t.Fatalf("expected 2 inline requests, got %d", got)
	}
	if f.batches.sources[0].InlinedRequests[0].Config.CachedContent != "cachedContents/abc" {
		t.Fatalf("expected cached content on inline requests")
	}

	code := int32(400)
	f.batches.jobs = []*genai.BatchJob{
		{Name: "batches/42", State: genai.JobStateRunning},
		{Name: "batches/42", State: genai.JobStateSucceeded, Dest: &genai.BatchJobDestination{
			InlinedResponses: []*genai.InlinedResponse{
				{Response: textResponse(`{"candidate_name":"A"}`)},
				{Error: &genai.JobError{Code: &code, Message: "invalid argument"}},
			},
		}},
	}

	status, err := c.PollBatch(context.Background(), receipt.JobID)
	if err != nil || status.State != ai.BatchStateRunning {
		t.Fatalf("expected running, got %+v, %v", status, err)
	}

	status, err = c.PollBatch(context.Background(), receipt.JobID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.State != ai.BatchStateSucceeded {
		t.Fatalf("expected succeeded, got %s", status.State)
	}
	if status.Results["0"].Text != `{"candidate_name":"A"}` {
		t.Fatalf("unexpected first result: %+v", status.Results["0"])
	}
	if ai.KindOf(status.Results["1"].Err) != ai.KindProvider || !strings.Contains(status.Results["1"].Err.Error(), "code 400") {
		t.Fatalf("unexpected second result: %+v", status.Results["1"])
	}
}

func TestFileBatchRoundTrip(t *testing.T) {
	c, f := newTestClient()

	receipt, err := c.SubmitBatch(context.Background(), ai.BatchSubmission{
		Mode:          ai.BatchModeFile,
		ContextHandle: "cachedContents/abc",
		Items:         items("a.pdf", "b.pdf", "c.pdf"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.Slots["b.pdf"] != "b.pdf" {
		t.Fatalf("expected file slots to be keys, got %+v", receipt.Slots)
	}
	if f.batches.sources[0].FileName != "files/input-1" {
		t.Fatalf("expected job to read the uploaded file")
	}

	lines := bytes.Split(bytes.TrimSpace(f.files.uploaded[0]), []byte("\n"))
	if len(lines) != 3 {
		t.Fatalf("expected 3 request lines, got %d", len(lines))
	}
	var first fileRequest
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("request line is not json: %v", err)
	}
	if first.Key != "a.pdf" || first.Request.CachedContent != "cachedContents/abc" {
		t.Fatalf("unexpected request line: %s", lines[0])
	}

	// results arrive out of order and one line is garbage
	f.files.output = []byte(strings.Join([]string{
		`{"key":"c.pdf","response":{"candidates":[{"content":{"parts":[{"text":"{\"candidate_name\":\"C\"}"}]}}]}}`,
		`not json`,
		`{"key":"a.pdf","error":{"code":500,"message":"internal","status":"INTERNAL"}}`,
	}, "\n"))
	f.batches.jobs = []*genai.BatchJob{{
		Name:  "batches/42",
		State: genai.JobStateSucceeded,
		Dest:  &genai.BatchJobDestination{FileName: "files/output-1"},
	}}

	status, err := c.PollBatch(context.Background(), receipt.JobID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Results["c.pdf"].Text != `{"candidate_name":"C"}` {
		t.Fatalf("unexpected c result: %+v", status.Results["c.pdf"])
	}
	if status.Results["a.pdf"].Err == nil {
		t.Fatalf("expected a to carry its error")
	}
	if _, ok := status.Results["b.pdf"]; ok {
		t.Fatalf("b has no line and must be absent")
	}
	if len(f.files.downloaded) != 1 || f.files.downloaded[0] != "files/output-1" {
		t.Fatalf("unexpected downloads: %v", f.files.downloaded)
	}
	if len(f.files.deleted) != 1 || f.files.deleted[0] != "files/input-1" {
		t.Fatalf("expected uploaded input to be deleted, got %v", f.files.deleted)
	}
}

func TestSubmitBatchCleansUpAfterCreateFailure(t *testing.T) {
	c, f := newTestClient()
	f.batches.createErr = genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}

	_, err := c.SubmitBatch(context.Background(), ai.BatchSubmission{
		Mode:          ai.BatchModeFile,
		ContextHandle: "cachedContents/abc",
		Items:         items("a.pdf"),
	})
	if ai.KindOf(err) != ai.KindTransientNetwork {
		t.Fatalf("expected transient error, got %v", err)
	}
	if len(f.files.deleted) != 1 {
		t.Fatalf("expected orphaned upload to be deleted")
	}
}

func TestFailedBatchCarriesDetail(t *testing.T) {
	c, f := newTestClient()
	f.batches.jobs = []*genai.BatchJob{{
		Name:  "batches/42",
		State: genai.JobStateFailed,
		Error: &genai.JobError{Message: "quota exceeded", Details: []string{"daily limit"}},
	}}

	status, err := c.PollBatch(context.Background(), "batches/42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.State != ai.BatchStateFailed || status.Detail != "quota exceeded: daily limit" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestCancelBatch(t *testing.T) {
	c, f := newTestClient()
	if err := c.CancelBatch(context.Background(), "batches/42"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.batches.cancelled) != 1 {
		t.Fatalf("expected cancel call")
	}
}

func TestDeleteContext(t *testing.T) {
	c, f := newTestClient()
	if err := c.DeleteContext(context.Background(), "cachedContents/abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.DeleteContext(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.caches.deleted) != 1 {
		t.Fatalf("expected a single delete, got %v", f.caches.deleted)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), Options{APIKey: "  "}); err == nil {
		t.Fatal("expected error without api key")
	}
}
