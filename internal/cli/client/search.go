package client

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// SearchCmd returns the search command.
func SearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve chunks from a knowledge base",
		Long:  "Run the knowledge base's retrieval strategy against a query and print the scored chunks.",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().String("kb", "", "Path to a knowledge base config snapshot (JSON)")
	cmd.Flags().Int("top-k", 0, "Number of chunks to return (server default when 0)")
	_ = cmd.MarkFlagRequired("kb")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	kbPath, _ := cmd.Flags().GetString("kb")
	kb, err := loadSnapshot(kbPath)
	if err != nil {
		return err
	}

	topK, _ := cmd.Flags().GetInt("top-k")

	body := map[string]interface{}{
		"knowledge_base": json.RawMessage(kb),
		"query":          args[0],
		"top_k":          topK,
	}

	client := NewAPIClientWithCmd(cmd)
	resp, err := client.Post("/knowledge-bases/retrieve", body)
	if err != nil {
		return err
	}

	return printData(resp.Data)
}
