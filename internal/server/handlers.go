package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
	"github.com/VarshithPawarHR/resume-match-engine/internal/bulk"
	"github.com/VarshithPawarHR/resume-match-engine/internal/documents"
	"github.com/VarshithPawarHR/resume-match-engine/internal/logger"
	"github.com/VarshithPawarHR/resume-match-engine/internal/store"
)

const maxArchiveSize = 256 << 20

type uploadResponse struct {
	RunID           string           `json:"run_id"`
	Strategy        string           `json:"strategy"`
	Succeeded       int              `json:"succeeded"`
	Failed          int              `json:"failed"`
	Saved           bool             `json:"saved"`
	AnalysisResults []store.Analysis `json:"analysis_results"`
}

type resultsResponse struct {
	UserUUID     string           `json:"user_uuid"`
	TotalResults int              `json:"total_results"`
	Analyses     []store.Analysis `json:"analyses"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// upload scores a single resume sequentially.
func (s *Server) upload(c *gin.Context) {
	userID, ok := userFrom(c, c.PostForm("user_uuid"))
	if !ok {
		return
	}

	dir, err := s.workspace()
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	defer os.RemoveAll(dir)

	jdPath, ok := s.save(c, "jd", dir)
	if !ok {
		return
	}
	resumePath, ok := s.save(c, "resume", filepath.Join(dir, "resumes"))
	if !ok {
		return
	}

	cfg := s.strategy
	cfg.Name = bulk.StrategySequential
	s.score(c, userID, jdPath, []string{resumePath}, cfg)
}

// bulkUpload scores every supported document of a zip archive.
func (s *Server) bulkUpload(c *gin.Context) {
	userID, ok := userFrom(c, c.PostForm("user_uuid"))
	if !ok {
		return
	}

	cfg := s.strategy
	if name := strings.TrimSpace(c.PostForm("strategy")); name != "" {
		cfg.Name = name
	}
	if err := cfg.WithDefaults().Validate(); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	dir, err := s.workspace()
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	defer os.RemoveAll(dir)

	jdPath, ok := s.save(c, "jd", dir)
	if !ok {
		return
	}

	header, err := c.FormFile("resumes_zip")
	if err != nil {
		s.fail(c, http.StatusBadRequest, fmt.Errorf("resumes_zip: %w", err))
		return
	}
	data, err := readUpload(header)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	resumes, err := documents.ExtractArchive(data, filepath.Join(dir, "resumes"))
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	if len(resumes) == 0 {
		s.fail(c, http.StatusBadRequest, errors.New("archive contains no supported resumes"))
		return
	}

	s.score(c, userID, jdPath, resumes, cfg)
}

func (s *Server) results(c *gin.Context) {
	userID, ok := userFrom(c, c.Param("user_uuid"))
	if !ok {
		return
	}

	session, found, err := s.history.Load(c.Request.Context(), userID)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	if !found || len(session.AnalysisResults) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no analysis results found for user %s", userID)})
		return
	}

	c.JSON(http.StatusOK, resultsResponse{
		UserUUID:     userID,
		TotalResults: len(session.AnalysisResults),
		Analyses:     session.AnalysisResults,
	})
}

func (s *Server) score(c *gin.Context, userID, jdPath string, resumes []string, cfg bulk.StrategyConfig) {
	log := logger.WithFields(s.logger, zap.String(logger.FieldUser, userID))

	report, err := s.runner.Run(c.Request.Context(), jdPath, resumes, cfg)
	if err != nil {
		status := http.StatusBadGateway
		if ai.KindOf(err) == ai.KindInput {
			status = http.StatusBadRequest
		}
		s.fail(c, status, err)
		return
	}

	analyses := report.Analyses()
	saved := true
	if err := s.history.Append(c.Request.Context(), userID, analyses, report.BatchJob()); err != nil {
		saved = false
		log.Error("failed to save analysis results", zap.String(logger.FieldRunID, report.RunID), zap.Error(err))
	}

	c.JSON(http.StatusOK, uploadResponse{
		RunID:           report.RunID,
		Strategy:        report.Strategy,
		Succeeded:       report.Succeeded(),
		Failed:          report.Failed(),
		Saved:           saved,
		AnalysisResults: analyses,
	})
}

// workspace creates a per-request directory under the upload dir.
func (s *Server) workspace() (string, error) {
	dir := filepath.Join(s.cfg.UploadDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	return dir, nil
}

// save stores the multipart file field under dir keeping its base name.
func (s *Server) save(c *gin.Context, field, dir string) (string, bool) {
	header, err := c.FormFile(field)
	if err != nil {
		s.fail(c, http.StatusBadRequest, fmt.Errorf("%s: %w", field, err))
		return "", false
	}
	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		s.fail(c, http.StatusBadRequest, fmt.Errorf("%s: missing file name", field))
		return "", false
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.fail(c, http.StatusInternalServerError, fmt.Errorf("create upload dir: %w", err))
		return "", false
	}

	dst := filepath.Join(dir, name)
	if err := c.SaveUploadedFile(header, dst); err != nil {
		s.fail(c, http.StatusInternalServerError, fmt.Errorf("save %s: %w", field, err))
		return "", false
	}
	return dst, true
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func userFrom(c *gin.Context, raw string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_uuid must be a valid uuid"})
		return "", false
	}
	return id.String(), true
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	if header.Size > maxArchiveSize {
		return nil, fmt.Errorf("archive exceeds %d bytes", maxArchiveSize)
	}
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	if len(data) > maxArchiveSize {
		return nil, fmt.Errorf("archive exceeds %d bytes", maxArchiveSize)
	}
	return data, nil
}
