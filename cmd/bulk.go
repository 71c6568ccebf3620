package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/VarshithPawarHR/resume-match-engine/internal/bulk"
	"github.com/VarshithPawarHR/resume-match-engine/internal/documents"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var errDeclined = errors.New("batch submission declined")

var bulkCmd = &cobra.Command{
	Use:   "bulk [resume files, directories or zip archives...]",
	Short: "Score many resumes against one job description",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runBulk(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(bulkCmd)

	bulkCmd.Flags().String("jd", "", "job description file (pdf, docx, txt or md)")
	bulkCmd.Flags().StringP("strategy", "s", "", "execution strategy: sequential, parallel or batch")
	bulkCmd.Flags().IntP("workers", "w", 0, "parallel workers")
	bulkCmd.Flags().String("batch-mode", "", "batch submission mode: auto, inline or file")
	bulkCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation before submitting a batch job")
	bulkCmd.Flags().StringP("output", "o", "", "write the json report to this file instead of stdout")
	bulkCmd.Flags().StringP("user", "u", "", "save the results into this user's session")

	bulkCmd.MarkFlagRequired("jd")

	viper.BindPFlag("strategy.name", bulkCmd.Flags().Lookup("strategy"))
	viper.BindPFlag("strategy.workers", bulkCmd.Flags().Lookup("workers"))
	viper.BindPFlag("strategy.batch.mode", bulkCmd.Flags().Lookup("batch-mode"))
}

func runBulk(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, logger := setup()
	logger.Info("starting the resume-match-engine", zap.String("version", version))

	tmp, err := os.MkdirTemp("", app+"-")
	if err != nil {
		logger.Fatal("creating a temp dir", zap.Error(err))
	}
	defer os.RemoveAll(tmp)

	resumes, err := collectResumes(args, tmp)
	if err != nil {
		logger.Fatal("collecting resumes", zap.Error(err))
	}
	if len(resumes) == 0 {
		logger.Info("exiting", zap.String("reason", "no resumes found"))
		return
	}
	logger.Info("collected resumes", zap.Int("count", len(resumes)))

	strategy := config.Strategy.WithDefaults()
	if err := strategy.Validate(); err != nil {
		logger.Fatal("validating strategy", zap.Error(err))
	}

	if strategy.Name == bulk.StrategyBatch && !mustBool(cmd, "yes") {
		if err := confirmBatch(len(resumes), strategy); err != nil {
			logger.Info("exiting", zap.Error(err))
			return
		}
	}

	user := strings.TrimSpace(mustString(cmd, "user"))
	e, err := newEngine(ctx, config, logger, user != "")
	if err != nil {
		logger.Fatal("preparing the engine", zap.Error(err))
	}
	defer e.Close()

	jd := mustString(cmd, "jd")
	report, err := e.orchestrator.Run(ctx, jd, resumes, strategy)
	if err != nil {
		logger.Fatal("bulk run failed", zap.Error(err))
	}

	if user != "" {
		if err := e.history.Append(ctx, user, report.Analyses(), report.BatchJob()); err != nil {
			logger.Error("saving results", zap.String("user_id", user), zap.Error(err))
		} else {
			logger.Info("results saved", zap.String("user_id", user))
		}
	}

	if err := writeReport(report, mustString(cmd, "output")); err != nil {
		logger.Fatal("writing report", zap.Error(err))
	}
}

// collectResumes expands directories and zip archives into document paths.
// Plain files are passed through so unsupported ones get their own outcome.
func collectResumes(args []string, tmp string) ([]string, error) {
	var out []string
	for i, arg := range args {
		info, err := os.Stat(arg)
		switch {
		case err != nil:
			// missing files are reported per item by the orchestrator
			out = append(out, arg)
		case info.IsDir():
			entries, err := os.ReadDir(arg)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", arg, err)
			}
			var found []string
			for _, entry := range entries {
				if !entry.IsDir() && documents.Supported(entry.Name()) {
					found = append(found, filepath.Join(arg, entry.Name()))
				}
			}
			sort.Strings(found)
			out = append(out, found...)
		case strings.EqualFold(filepath.Ext(arg), ".zip"):
			data, err := os.ReadFile(arg)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", arg, err)
			}
			extracted, err := documents.ExtractArchive(data, filepath.Join(tmp, fmt.Sprintf("archive-%d", i)))
			if err != nil {
				return nil, fmt.Errorf("extracting %s: %w", arg, err)
			}
			out = append(out, extracted...)
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func confirmBatch(n int, cfg bulk.StrategyConfig) error {
	prompt := promptui.Select{
		Label: fmt.Sprintf("Submit %d resumes as a %s batch job (results may take up to %s)?", n, cfg.Batch.ModeFor(n), cfg.Batch.Timeout),
		Items: []string{PromptYes, PromptNo},
	}
	_, answer, err := prompt.Run()
	if err != nil {
		return err
	}
	if answer != PromptYes {
		return errDeclined
	}
	return nil
}

func writeReport(report *bulk.Report, output string) error {
	pretty, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if output == "" {
		fmt.Println(string(pretty))
		return nil
	}
	if err := os.WriteFile(output, pretty, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	return nil
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func mustBool(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}
