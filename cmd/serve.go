package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/VarshithPawarHR/resume-match-engine/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scoring HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default :8000)")
	serveCmd.Flags().String("upload-dir", "", "directory for uploaded files (default uploads)")

	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("server.upload-dir", serveCmd.Flags().Lookup("upload-dir"))
}

func runServe() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, logger := setup()
	logger.Info("starting the resume-match-engine api", zap.String("version", version))

	e, err := newEngine(ctx, config, logger, true)
	if err != nil {
		logger.Fatal("preparing the engine", zap.Error(err))
	}
	defer e.Close()

	srv, err := server.New(config.Server, server.Deps{
		Runner:   e.orchestrator,
		History:  e.history,
		Strategy: config.Strategy,
		Metrics:  e.metrics,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("creating the http server", zap.Error(err))
	}

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Fatal("serving", zap.Error(err))
	}
}
