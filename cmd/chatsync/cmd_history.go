package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chatsync/internal/infra/logger"
	"chatsync/internal/usecase"
)

var (
	historySession string
	historyJSON    bool
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVarP(&historySession, "session", "s", "", "session id")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print messages as JSON")
	historyCmd.MarkFlagRequired("session")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Fetch and print a session's history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, configPath)
		if err != nil {
			return err
		}
		defer a.close(context.Background())

		loader := usecase.NewHistoryLoader(a.api, a.history, nil, logger.Component(a.logger, "history"))
		msgs, err := loader.Load(ctx, historySession)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if historyJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(msgs)
		}
		printTranscript(out, msgs)
		return nil
	},
}
