package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// IngestCmd returns the ingest command.
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Upload a document into a knowledge base",
		Long:  "Upload a local file into a knowledge base. The document is chunked and embedded asynchronously by the server worker.",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}

	cmd.Flags().String("kb", "", "Path to a knowledge base config snapshot (JSON)")
	cmd.Flags().String("name", "", "Document name (defaults to the file name)")
	_ = cmd.MarkFlagRequired("kb")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	kbPath, _ := cmd.Flags().GetString("kb")
	kb, err := loadSnapshot(kbPath)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read document file: %w", err)
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = filepath.Base(args[0])
	}

	body := map[string]interface{}{
		"knowledge_base": json.RawMessage(kb),
		"name":           name,
		"content":        string(content),
	}

	client := NewAPIClientWithCmd(cmd)
	resp, err := client.Post("/knowledge-bases/documents", body)
	if err != nil {
		return err
	}

	return printData(resp.Data)
}
