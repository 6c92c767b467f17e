package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loom-ai/loom/internal/cli"
	"github.com/loom-ai/loom/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "loomd",
		Short: "Loom daemon",
		Long:  "Loom daemon for running the API server and the document processing worker",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
