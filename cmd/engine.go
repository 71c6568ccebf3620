package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai/gemini"
	"github.com/VarshithPawarHR/resume-match-engine/internal/bulk"
	"github.com/VarshithPawarHR/resume-match-engine/internal/logger"
	"github.com/VarshithPawarHR/resume-match-engine/internal/metrics"
	"github.com/VarshithPawarHR/resume-match-engine/internal/secrets"
	"github.com/VarshithPawarHR/resume-match-engine/internal/store"
)

// engine bundles what the scoring commands share.
type engine struct {
	config       *Config
	logger       *zap.Logger
	metrics      *metrics.Metrics
	orchestrator *bulk.Orchestrator
	history      *store.History
	closers      []func()
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// setup creates the logger and reads the config. It exits on failure like
// the rest of the command layer.
func setup() (*Config, *zap.Logger) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	// credentials are masked before dumping
	masked := *config
	gem := *config.Gemini
	if gem.APIKey != "" {
		gem.APIKey = "***"
	}
	masked.Gemini = &gem
	if masked.Store.PostgresURL != "" {
		masked.Store.PostgresURL = "***"
	}
	pretty, _ := json.MarshalIndent(masked, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return config, logger
}

func resolveAPIKey(cfg *GeminiConfig) (string, error) {
	key, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return "", fmt.Errorf("%w (set gemini.api-key-file, RME_GEMINI_API_KEY or GEMINI_API_KEY)", err)
	}
	return key, nil
}

// newEngine wires the provider, the orchestrator and the session store.
func newEngine(ctx context.Context, config *Config, log *zap.Logger, withStore bool) (*engine, error) {
	e := &engine{config: config, logger: log, metrics: metrics.New()}

	if withStore {
		history, closeStore, err := openHistory(ctx, config.Store)
		if err != nil {
			return nil, err
		}
		e.history = history
		e.closers = append(e.closers, closeStore)
	}

	apiKey, err := resolveAPIKey(config.Gemini)
	if err != nil {
		e.Close()
		return nil, err
	}

	client, err := gemini.New(ctx, gemini.Options{
		APIKey:       apiKey,
		Model:        config.Gemini.Model,
		ContextTTL:   config.Gemini.ContextTTL,
		Logger:       log,
		MaxLogLength: config.Gemini.MaxLogLength,
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	orchestrator, err := bulk.New(bulk.Deps{
		Provider:     client,
		Policy:       config.Retry,
		Logger:       log,
		Metrics:      e.metrics,
		MaxLogLength: config.Gemini.MaxLogLength,
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	e.orchestrator = orchestrator
	// cached contexts are deleted on the provider when the run ends
	e.closers = append(e.closers, orchestrator.Close)

	return e, nil
}

func openHistory(ctx context.Context, cfg store.Config) (*store.History, func(), error) {
	s, closeFn, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s store: %w", cfg.Backend, err)
	}
	return store.NewHistory(s), closeFn, nil
}
