package gemini

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
)

// SubmitBatch creates a batch job scoring every item against the cached job
// description. Inline jobs report results by position, file jobs by key.
func (c *Client) SubmitBatch(ctx context.Context, submission ai.BatchSubmission) (ai.BatchReceipt, error) {
	if len(submission.Items) == 0 {
		return ai.BatchReceipt{}, ai.NewError(ai.KindInput, "batch has no items", nil)
	}
	if strings.TrimSpace(submission.ContextHandle) == "" {
		return ai.BatchReceipt{}, ai.NewError(ai.KindContextInvalid, "cached content name is required", nil)
	}

	cfg := &genai.CreateBatchJobConfig{DisplayName: displayName("batch", submission.DisplayName)}
	slots := make(map[string]string, len(submission.Items))

	var (
		src      *genai.BatchJobSource
		uploaded string
	)
	switch submission.Mode {
	case ai.BatchModeFile:
		payload, err := encodeRequests(submission.ContextHandle, submission.Items)
		if err != nil {
			return ai.BatchReceipt{}, ai.NewError(ai.KindInput, "build batch input file", err)
		}

		file, err := c.files.Upload(ctx, bytes.NewReader(payload), &genai.UploadFileConfig{
			MIMEType:    "application/jsonl",
			DisplayName: displayName("batch-input", submission.DisplayName),
		})
		if err != nil {
			return ai.BatchReceipt{}, classify("upload batch input", err)
		}
		uploaded = file.Name
		src = &genai.BatchJobSource{FileName: file.Name}
		for _, item := range submission.Items {
			slots[item.Key] = item.Key
		}
	default:
		// inline responses carry no key; they come back in request order
		requests := make([]*genai.InlinedRequest, 0, len(submission.Items))
		for i, item := range submission.Items {
			requests = append(requests, &genai.InlinedRequest{
				Model:    c.model,
				Contents: scoreContents(item.Document),
				Config:   scoreConfig(submission.ContextHandle),
			})
			slots[item.Key] = strconv.Itoa(i)
		}
		src = &genai.BatchJobSource{InlinedRequests: requests}
	}

	job, err := c.batches.Create(ctx, c.model, src, cfg)
	if err != nil {
		if uploaded != "" {
			c.deleteFile(ctx, uploaded)
		}
		return ai.BatchReceipt{}, classify("create batch job", err)
	}
	if strings.TrimSpace(job.Name) == "" {
		return ai.BatchReceipt{}, ai.NewError(ai.KindProvider, "gemini api returned empty batch job name", nil)
	}

	if uploaded != "" {
		c.mu.Lock()
		c.uploads[job.Name] = uploaded
		c.mu.Unlock()
	}

	c.logger.Info("batch job created",
		zap.String("job", job.Name),
		zap.String("mode", string(submission.Mode)),
		zap.Int("requests", len(submission.Items)),
	)
	return ai.BatchReceipt{JobID: job.Name, Slots: slots}, nil
}

// PollBatch reports the job state and, once it succeeded, every result by slot.
func (c *Client) PollBatch(ctx context.Context, jobID string) (ai.BatchStatus, error) {
	job, err := c.batches.Get(ctx, jobID, nil)
	if err != nil {
		return ai.BatchStatus{}, classify("get batch job", err)
	}

	status := ai.BatchStatus{State: mapState(job.State)}
	switch status.State {
	case ai.BatchStateRunning:
		return status, nil
	case ai.BatchStateSucceeded:
		results, err := c.collect(ctx, job)
		if err != nil {
			return ai.BatchStatus{}, err
		}
		status.Results = results
	case ai.BatchStateFailed:
		status.Detail = jobErrorDetail(job)
	case ai.BatchStateExpired:
		status.Detail = "batch job expired"
	}

	c.cleanup(ctx, jobID)
	return status, nil
}

// CancelBatch asks the provider to stop a job and drops its input file.
func (c *Client) CancelBatch(ctx context.Context, jobID string) error {
	defer c.cleanup(ctx, jobID)
	if err := c.batches.Cancel(ctx, jobID, nil); err != nil {
		return classify("cancel batch job", err)
	}
	return nil
}

func (c *Client) collect(ctx context.Context, job *genai.BatchJob) (map[string]ai.BatchResult, error) {
	results := make(map[string]ai.BatchResult)
	if job.Dest == nil {
		return results, nil
	}

	if len(job.Dest.InlinedResponses) > 0 {
		for i, r := range job.Dest.InlinedResponses {
			slot := strconv.Itoa(i)
			switch {
			case r == nil:
				continue
			case r.Error != nil:
				results[slot] = ai.BatchResult{Err: ai.NewError(ai.KindProvider, describeJobError(r.Error), nil)}
			default:
				text := strings.TrimSpace(responseText(r.Response))
				if text == "" {
					results[slot] = ai.BatchResult{Err: ai.NewError(ai.KindProvider, "batch response has no text", nil)}
					continue
				}
				results[slot] = ai.BatchResult{Text: text}
			}
		}
		return results, nil
	}

	if job.Dest.FileName == "" {
		return results, nil
	}

	data, err := c.files.Download(ctx, genai.NewDownloadURIFromFile(&genai.File{Name: job.Dest.FileName, DownloadURI: job.Dest.FileName}), nil)
	if err != nil {
		return nil, classify("download batch results", err)
	}

	results, skipped := decodeResults(data)
	if skipped > 0 {
		c.logger.Warn("skipped malformed batch result lines", zap.String("job", job.Name), zap.Int("lines", skipped))
	}
	return results, nil
}

func (c *Client) cleanup(ctx context.Context, jobID string) {
	c.mu.Lock()
	name, ok := c.uploads[jobID]
	delete(c.uploads, jobID)
	c.mu.Unlock()

	if ok {
		c.deleteFile(ctx, name)
	}
}

func (c *Client) deleteFile(ctx context.Context, name string) {
	if _, err := c.files.Delete(ctx, name, nil); err != nil {
		c.logger.Warn("deleting uploaded batch file failed", zap.String("file", name), zap.Error(err))
	}
}

func mapState(state genai.JobState) ai.BatchState {
	switch state {
	case genai.JobStateSucceeded, genai.JobStatePartiallySucceeded:
		return ai.BatchStateSucceeded
	case genai.JobStateFailed, genai.JobStateCancelled:
		return ai.BatchStateFailed
	case genai.JobStateExpired:
		return ai.BatchStateExpired
	default:
		return ai.BatchStateRunning
	}
}

func jobErrorDetail(job *genai.BatchJob) string {
	if job.State == genai.JobStateCancelled {
		return "batch job was cancelled"
	}
	if job.Error == nil {
		return "batch job failed"
	}
	return describeJobError(job.Error)
}

func describeJobError(e *genai.JobError) string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "request failed"
	}
	if e.Code != nil {
		msg = fmt.Sprintf("%s (code %d)", msg, *e.Code)
	}
	if len(e.Details) > 0 {
		msg += ": " + strings.Join(e.Details, "; ")
	}
	return msg
}
