// Package documents loads resumes and job descriptions from disk.
package documents

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
)

const (
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEText = "text/plain"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExtraction        = errors.New("extraction failed")
)

// MaxFileSize caps a single input document.
const MaxFileSize = 20 << 20

// Supported reports whether path has an extension the loader understands.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx", ".txt", ".md":
		return true
	default:
		return false
	}
}

// Load reads path into a Document. PDFs keep their bytes for the provider, DOCX
// and plain text files are converted to text. Every failure is an InputError.
func Load(path string) (ai.Document, error) {
	doc := ai.Document{Identity: path, Name: filepath.Base(path)}

	if !Supported(path) {
		return doc, ai.NewError(ai.KindInput, fmt.Sprintf("%s: %q", ErrUnsupportedFormat, filepath.Ext(path)), ErrUnsupportedFormat)
	}

	info, err := os.Stat(path)
	if err != nil {
		return doc, ai.NewError(ai.KindInput, "cannot read file", err)
	}
	if info.IsDir() {
		return doc, ai.NewError(ai.KindInput, "path is a directory", ErrExtraction)
	}
	if info.Size() > MaxFileSize {
		return doc, ai.NewError(ai.KindInput, fmt.Sprintf("file exceeds %d bytes", MaxFileSize), ErrExtraction)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return doc, ai.NewError(ai.KindInput, "cannot read file", err)
	}

	return FromBytes(path, data)
}

// FromBytes builds a Document from in-memory content named like a file.
func FromBytes(name string, data []byte) (ai.Document, error) {
	doc := ai.Document{Identity: name, Name: filepath.Base(name)}
	if len(data) == 0 {
		return doc, ai.NewError(ai.KindInput, "file is empty", ErrExtraction)
	}

	detected := mimetype.Detect(data)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		if !detected.Is(MIMEPDF) {
			return doc, ai.NewError(ai.KindInput, fmt.Sprintf("expected a pdf, content looks like %s", detected.String()), ErrExtraction)
		}
		doc.MIMEType = MIMEPDF
		doc.Data = data
	case ".docx":
		text, err := docxText(data)
		if err != nil {
			return doc, ai.NewError(ai.KindInput, "cannot extract docx text", errors.Join(ErrExtraction, err))
		}
		doc.MIMEType = MIMEText
		doc.Text = text
	case ".txt", ".md":
		if !strings.HasPrefix(detected.String(), "text/") {
			return doc, ai.NewError(ai.KindInput, fmt.Sprintf("expected text, content looks like %s", detected.String()), ErrExtraction)
		}
		doc.MIMEType = MIMEText
		doc.Text = strings.TrimSpace(string(data))
	default:
		return doc, ai.NewError(ai.KindInput, fmt.Sprintf("%s: %q", ErrUnsupportedFormat, filepath.Ext(name)), ErrUnsupportedFormat)
	}

	if doc.Empty() {
		return doc, ai.NewError(ai.KindInput, "document has no text", ErrExtraction)
	}
	return doc, nil
}

// docxText returns the paragraph text of word/document.xml.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document part: %w", err)
		}
		defer rc.Close()
		return paragraphs(rc)
	}
	return "", errors.New("word/document.xml not found")
}

func paragraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		out    strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document part: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				out.WriteString("\t")
			case "br":
				out.WriteString("\n")
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				out.Write(el)
			}
		}
	}

	return strings.TrimSpace(out.String()), nil
}
