package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Streaming chat client for agent sessions",
	Long: `chatsync attaches to an agent chat session over a websocket, renders the
streamed reply as it arrives and keeps a local cache of session history.

Configuration is read from --config (YAML) and CHATSYNC_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chatsync: %v\n", err)
		os.Exit(1)
	}
}
