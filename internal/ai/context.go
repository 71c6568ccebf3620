package ai

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// JobContext is the provider-side cached representation of a job description.
type JobContext struct {
	SourceIdentity string
	ProviderHandle string
	CreatedAt      time.Time
	// ExpiresAt is zero when the provider reports no expiry.
	ExpiresAt time.Time
}

// Expired reports whether the context can no longer be used at now.
func (c *JobContext) Expired(now time.Time) bool {
	if c == nil {
		return true
	}
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// Document is a loaded input file. PDFs keep their bytes, DOCX files are converted to Text.
type Document struct {
	Identity string
	Name     string
	MIMEType string
	Data     []byte
	Text     string
}

// ContentIdentity returns a stable digest of the document content.
func (d Document) ContentIdentity() string {
	h := sha256.New()
	h.Write([]byte(d.MIMEType))
	h.Write([]byte{0})
	if len(d.Data) > 0 {
		h.Write(d.Data)
	} else {
		h.Write([]byte(d.Text))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Empty reports whether the document carries no content.
func (d Document) Empty() bool {
	return len(d.Data) == 0 && d.Text == ""
}

// ScoreRequest is one unit of work.
type ScoreRequest struct {
	ResumeIdentity string
	Resume         Document
	JobContext     *JobContext
}
