package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resultsCmd = &cobra.Command{
	Use:   "results [user id]",
	Short: "Print the stored analysis results of a user",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		runResults(args[0])
	},
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(user string) {
	ctx := context.Background()
	config, logger := setup()

	history, closeStore, err := openHistory(ctx, config.Store)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer closeStore()

	session, found, err := history.Load(ctx, user)
	if err != nil {
		logger.Fatal("loading results", zap.String("user_id", user), zap.Error(err))
	}
	if !found || len(session.AnalysisResults) == 0 {
		logger.Info("no analysis results found", zap.String("user_id", user))
		return
	}

	pretty, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		logger.Fatal("encoding results", zap.Error(err))
	}
	fmt.Println(string(pretty))
}
