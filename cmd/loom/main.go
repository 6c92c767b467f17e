package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loom-ai/loom/internal/cli"
	"github.com/loom-ai/loom/internal/cli/client"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "loom",
		Short: "Loom CLI - retrieval and agent conversations",
		Long: `Loom CLI provides commands to ingest documents, run retrieval and chat
with agents through a running loom server.

Environment variables:
  LOOM_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.IngestCmd())
	rootCmd.AddCommand(client.SearchCmd())
	rootCmd.AddCommand(client.DocsCmd())
	rootCmd.AddCommand(client.ChatCmd())
	rootCmd.AddCommand(client.ConversationsCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
