package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DocsCmd returns the docs command group.
func DocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage ingested documents",
	}

	cmd.AddCommand(docsListCmd())
	cmd.AddCommand(docsGetCmd())
	cmd.AddCommand(docsRetryCmd())
	cmd.AddCommand(docsDeleteCmd())

	return cmd
}

func docsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <kb-id>",
		Short: "List documents in a knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClientWithCmd(cmd)
			resp, err := client.Get("/knowledge-bases/" + args[0] + "/documents")
			if err != nil {
				return err
			}
			return printData(resp.Data)
		},
	}
}

func docsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <document-id>",
		Short: "Show a document's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClientWithCmd(cmd)
			resp, err := client.Get("/documents/" + args[0])
			if err != nil {
				return err
			}
			return printData(resp.Data)
		},
	}
}

func docsRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <document-id>",
		Short: "Re-queue a failed document for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClientWithCmd(cmd)
			resp, err := client.Post("/documents/"+args[0]+"/retry", nil)
			if err != nil {
				return err
			}
			return printData(resp.Data)
		},
	}
}

func docsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClientWithCmd(cmd)
			if _, err := client.Delete("/documents/" + args[0]); err != nil {
				return err
			}
			fmt.Printf("document %s deleted\n", args[0])
			return nil
		},
	}
}
