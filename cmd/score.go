package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/VarshithPawarHR/resume-match-engine/internal/bulk"
)

var scoreCmd = &cobra.Command{
	Use:   "score [resume]",
	Short: "Score a single resume against a job description",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runScore(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().String("jd", "", "job description file (pdf, docx, txt or md)")
	scoreCmd.Flags().StringP("output", "o", "", "write the json report to this file instead of stdout")
	scoreCmd.Flags().StringP("user", "u", "", "save the result into this user's session")

	scoreCmd.MarkFlagRequired("jd")
}

func runScore(cmd *cobra.Command, resume string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, logger := setup()

	user := mustString(cmd, "user")
	e, err := newEngine(ctx, config, logger, user != "")
	if err != nil {
		logger.Fatal("preparing the engine", zap.Error(err))
	}
	defer e.Close()

	strategy := config.Strategy
	strategy.Name = bulk.StrategySequential

	report, err := e.orchestrator.Run(ctx, mustString(cmd, "jd"), []string{resume}, strategy)
	if err != nil {
		logger.Fatal("scoring failed", zap.Error(err))
	}

	for _, entry := range report.Results {
		if !entry.Outcome.OK() {
			logger.Warn("resume was not scored",
				zap.String("resume", entry.Resume),
				zap.String("kind", string(entry.Outcome.Kind())),
				zap.String("message", entry.Outcome.Failure.Message),
			)
		}
	}

	if user != "" {
		if err := e.history.Append(ctx, user, report.Analyses(), nil); err != nil {
			logger.Error("saving result", zap.String("user_id", user), zap.Error(err))
		}
	}

	if err := writeReport(report, mustString(cmd, "output")); err != nil {
		logger.Fatal("writing report", zap.Error(err))
	}
}
