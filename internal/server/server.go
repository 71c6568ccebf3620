// Package server exposes bulk scoring over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/VarshithPawarHR/resume-match-engine/internal/bulk"
	"github.com/VarshithPawarHR/resume-match-engine/internal/logger"
	"github.com/VarshithPawarHR/resume-match-engine/internal/metrics"
	"github.com/VarshithPawarHR/resume-match-engine/internal/store"
)

const (
	shutdownTimeout   = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Runner scores resumes against a job description.
type Runner interface {
	Run(ctx context.Context, jobDescriptionPath string, resumePaths []string, cfg bulk.StrategyConfig) (*bulk.Report, error)
}

type Config struct {
	Addr      string `mapstructure:"addr"`
	UploadDir string `mapstructure:"upload-dir"`
	Debug     bool   `mapstructure:"-"`
}

type Deps struct {
	Runner   Runner
	History  *store.History
	Strategy bulk.StrategyConfig
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

type Server struct {
	cfg      Config
	runner   Runner
	history  *store.History
	strategy bulk.StrategyConfig
	logger   *zap.Logger
	engine   *gin.Engine
}

func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if deps.History == nil {
		return nil, errors.New("history is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		runner:   deps.Runner,
		history:  deps.History,
		strategy: deps.Strategy,
		logger:   logger.WithFields(deps.Logger, zap.String("component", "http")),
	}

	engine := gin.New()
	engine.MaxMultipartMemory = 32 << 20
	engine.Use(recovery(s.logger), requestLogger(s.logger))

	engine.GET("/healthz", s.health)
	engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	engine.POST("/upload", s.upload)
	engine.POST("/bulk-upload", s.bulkUpload)
	engine.GET("/results/:user_uuid", s.results)

	s.engine = engine
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			log.Error("http request failed", append(fields, zap.Strings("errors", c.Errors.Errors()))...)
			return
		}
		log.Debug("http request", fields...)
	}
}

func recovery(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("panic while serving request", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}
