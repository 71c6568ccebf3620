package gemini

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"google.golang.org/genai"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
	"github.com/VarshithPawarHR/resume-match-engine/internal/scoring"
)

//go:embed prompt.md
var promptTemplate string

const (
	fallbackPrompt = "Evaluate the candidate resume against the cached job description. Answer with JSON only."
	scoreQuery     = "Evaluate this candidate resume against the job description."
	jsonMIMEType   = "application/json"
)

func systemPrompt() string {
	if strings.TrimSpace(promptTemplate) == "" {
		return fallbackPrompt
	}
	return promptTemplate
}

// documentPart sends binary documents (PDF) as inline data and extracted text as text.
func documentPart(doc ai.Document) *genai.Part {
	if len(doc.Data) > 0 {
		return genai.NewPartFromBytes(doc.Data, doc.MIMEType)
	}
	return genai.NewPartFromText(doc.Text)
}

func scoreContents(resume ai.Document) []*genai.Content {
	return []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(scoreQuery),
			documentPart(resume),
		}, genai.RoleUser),
	}
}

func scoreConfig(handle string) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		CachedContent:      handle,
		ResponseMIMEType:   jsonMIMEType,
		ResponseJsonSchema: scoring.Schema(),
	}
}

// fileRequest is one line of a batch input file.
type fileRequest struct {
	Key     string          `json:"key"`
	Request fileRequestBody `json:"request"`
}

type fileRequestBody struct {
	Contents         []*genai.Content  `json:"contents"`
	CachedContent    string            `json:"cachedContent,omitempty"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseMIMEType   string `json:"responseMimeType,omitempty"`
	ResponseJSONSchema any    `json:"responseJsonSchema,omitempty"`
}

// fileResult is one line of a batch output file.
type fileResult struct {
	Key      string                         `json:"key"`
	Response *genai.GenerateContentResponse `json:"response,omitempty"`
	Error    *fileError                     `json:"error,omitempty"`
}

type fileError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// encodeRequests renders the batch input file. Every line carries its key so
// results can be matched back regardless of output order.
func encodeRequests(handle string, items []ai.BatchItem) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	schema := scoring.Schema()

	for _, item := range items {
		line := fileRequest{
			Key: item.Key,
			Request: fileRequestBody{
				Contents:      scoreContents(item.Document),
				CachedContent: handle,
				GenerationConfig: &generationConfig{
					ResponseMIMEType:   jsonMIMEType,
					ResponseJSONSchema: schema,
				},
			},
		}
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("encode batch request %q: %w", item.Key, err)
		}
	}
	return buf.Bytes(), nil
}

// decodeResults parses a batch output file into results keyed by request key.
// Malformed lines are skipped; their keys surface later as missing results.
func decodeResults(data []byte) (map[string]ai.BatchResult, int) {
	results := make(map[string]ai.BatchResult)
	skipped := 0

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var res fileResult
		if err := json.Unmarshal(line, &res); err != nil || res.Key == "" {
			skipped++
			continue
		}

		switch {
		case res.Error != nil:
			results[res.Key] = ai.BatchResult{Err: ai.NewError(ai.KindProvider, res.Error.describe(), nil)}
		case res.Response != nil:
			text := strings.TrimSpace(responseText(res.Response))
			if text == "" {
				results[res.Key] = ai.BatchResult{Err: ai.NewError(ai.KindProvider, "batch response has no text", nil)}
				continue
			}
			results[res.Key] = ai.BatchResult{Text: text}
		default:
			skipped++
		}
	}
	if scanner.Err() != nil {
		skipped++
	}
	return results, skipped
}

func (e *fileError) describe() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "request failed"
	}
	if e.Status != "" {
		return fmt.Sprintf("%s (%s)", msg, e.Status)
	}
	return msg
}
