package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
	"github.com/VarshithPawarHR/resume-match-engine/internal/logger"
	"github.com/VarshithPawarHR/resume-match-engine/internal/utils"
)

const (
	providerName        = "gemini"
	defaultModel        = "gemini-2.5-flash"
	defaultContextTTL   = 30 * time.Minute
	defaultMaxLogLength = 200
)

type cacheService interface {
	Create(ctx context.Context, model string, config *genai.CreateCachedContentConfig) (*genai.CachedContent, error)
	Delete(ctx context.Context, name string, config *genai.DeleteCachedContentConfig) (*genai.DeleteCachedContentResponse, error)
}

type modelService interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type batchService interface {
	Create(ctx context.Context, model string, src *genai.BatchJobSource, config *genai.CreateBatchJobConfig) (*genai.BatchJob, error)
	Get(ctx context.Context, name string, config *genai.GetBatchJobConfig) (*genai.BatchJob, error)
	Cancel(ctx context.Context, name string, config *genai.CancelBatchJobConfig) error
}

type fileService interface {
	Upload(ctx context.Context, r io.Reader, config *genai.UploadFileConfig) (*genai.File, error)
	Download(ctx context.Context, uri genai.DownloadURI, config *genai.DownloadFileConfig) ([]byte, error)
	Delete(ctx context.Context, name string, config *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error)
}

// Options configures a Client.
type Options struct {
	APIKey       string
	Model        string
	ContextTTL   time.Duration
	Logger       *zap.Logger
	MaxLogLength int
}

// Client implements ai.Provider on top of the Gemini API: cached job
// descriptions, structured scoring calls and batch jobs.
type Client struct {
	caches  cacheService
	models  modelService
	batches batchService
	files   fileService

	model      string
	contextTTL time.Duration
	logger     *zap.Logger
	maxLogLen  int

	mu sync.Mutex
	// uploads remembers the input file of each file-mode job so it can be
	// removed once the job is done.
	uploads map[string]string
}

// New creates a Client for the Gemini Developer API.
func New(ctx context.Context, opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newClient(client.Caches, client.Models, client.Batches, client.Files, opts), nil
}

func newClient(caches cacheService, models modelService, batches batchService, files fileService, opts Options) *Client {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	ttl := opts.ContextTTL
	if ttl <= 0 {
		ttl = defaultContextTTL
	}
	maxLog := opts.MaxLogLength
	if maxLog <= 0 {
		maxLog = defaultMaxLogLength
	}

	return &Client{
		caches:     caches,
		models:     models,
		batches:    batches,
		files:      files,
		model:      model,
		contextTTL: ttl,
		logger:     logger.WithCommonFields(opts.Logger, providerName, model),
		maxLogLen:  maxLog,
		uploads:    make(map[string]string),
	}
}

func (c *Client) Name() string { return providerName }

func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// CreateContext caches the system prompt together with the job description.
func (c *Client) CreateContext(ctx context.Context, jobDescription ai.Document) (ai.ContextHandle, error) {
	if jobDescription.Empty() {
		return ai.ContextHandle{}, ai.NewError(ai.KindInput, "job description is empty", nil)
	}

	cfg := &genai.CreateCachedContentConfig{
		DisplayName:       displayName("jd", jobDescription.Name),
		TTL:               c.contextTTL,
		SystemInstruction: genai.NewContentFromText(systemPrompt(), genai.RoleUser),
		Contents: []*genai.Content{
			genai.NewContentFromParts([]*genai.Part{
				genai.NewPartFromText("Job description:"),
				documentPart(jobDescription),
			}, genai.RoleUser),
		},
	}

	cached, err := c.caches.Create(ctx, c.model, cfg)
	if err != nil {
		return ai.ContextHandle{}, classify("create cached content", err)
	}

	name := strings.TrimSpace(cached.Name)
	if name == "" {
		return ai.ContextHandle{}, ai.NewError(ai.KindProvider, "gemini api returned empty cache name", nil)
	}

	expires := cached.ExpireTime
	if expires.IsZero() {
		expires = time.Now().Add(c.contextTTL)
	}

	c.logger.Debug("cached content created",
		zap.String("cache", name),
		zap.String(logger.FieldJobDescription, jobDescription.Name),
		zap.Time("expires_at", expires),
	)
	return ai.ContextHandle{Name: name, ExpiresAt: expires}, nil
}

// DeleteContext removes a cached content before its TTL runs out.
func (c *Client) DeleteContext(ctx context.Context, handle string) error {
	if strings.TrimSpace(handle) == "" {
		return nil
	}
	if _, err := c.caches.Delete(ctx, handle, nil); err != nil {
		return classify("delete cached content", err)
	}
	return nil
}

// Score evaluates one resume against the cached job description and returns
// the raw JSON text of the answer.
func (c *Client) Score(ctx context.Context, handle string, resume ai.Document) (string, error) {
	if strings.TrimSpace(handle) == "" {
		return "", ai.NewError(ai.KindContextInvalid, "cached content name is required", nil)
	}
	if resume.Empty() {
		return "", ai.NewError(ai.KindInput, "resume is empty", nil)
	}

	contents := scoreContents(resume)
	c.logger.Debug("gemini generate content request",
		zap.String(logger.FieldResume, resume.Identity),
		zap.String("cache", handle),
		zap.Int("resume_length", utf8.RuneCountInString(resume.Text)+len(resume.Data)),
	)

	resp, err := c.models.GenerateContent(ctx, c.model, contents, scoreConfig(handle))
	if err != nil {
		return "", classify("generate content", err)
	}

	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return "", ai.NewError(ai.KindProvider, "gemini api returned empty response", nil)
	}

	c.logger.Debug("gemini generate content response",
		zap.String(logger.FieldResume, resume.Identity),
		zap.Int("response_length", utf8.RuneCountInString(text)),
		zap.String("response_preview", utils.TruncateForLog(text, c.maxLogLen)),
	)
	return text, nil
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}

	var builder strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		text := strings.TrimSpace(part.Text)
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(text)
	}
	return builder.String()
}

func displayName(prefix, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return prefix
	}
	const limit = 120
	out := prefix + "-" + name
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
