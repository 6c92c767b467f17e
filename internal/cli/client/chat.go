package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// ChatCmd returns the chat command.
func ChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a message and run one conversation turn",
		Long: "Send a user message to an agent or a communication. Without --conversation " +
			"a new conversation owned by the given config is created first.",
		Args: cobra.ExactArgs(1),
		RunE: runChat,
	}

	cmd.Flags().String("agent", "", "Path to an agent config snapshot (JSON)")
	cmd.Flags().String("communication", "", "Path to a communication config snapshot (JSON)")
	cmd.Flags().String("conversation", "", "Existing conversation ID (created when omitted)")

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	agentPath, _ := cmd.Flags().GetString("agent")
	commPath, _ := cmd.Flags().GetString("communication")

	if (agentPath == "") == (commPath == "") {
		return fmt.Errorf("exactly one of --agent or --communication is required")
	}

	snapshotPath := agentPath
	ownerKind := "agent"
	if commPath != "" {
		snapshotPath = commPath
		ownerKind = "communication"
	}

	snapshot, err := loadSnapshot(snapshotPath)
	if err != nil {
		return err
	}

	ownerID, err := snapshotID(snapshot)
	if err != nil {
		return err
	}

	client := NewAPIClientWithCmd(cmd)

	conversationID, _ := cmd.Flags().GetString("conversation")
	if conversationID == "" {
		conversationID, err = createConversation(client, ownerKind, ownerID)
		if err != nil {
			return err
		}
		fmt.Printf("conversation: %s\n", conversationID)
	}

	body := map[string]interface{}{
		"message": args[0],
		ownerKind: json.RawMessage(snapshot),
	}

	resp, err := client.Post("/conversations/"+conversationID+"/"+ownerKind+"-turn", body)
	if err != nil {
		return err
	}

	var turn struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		ResponderID string `json:"responder_id"`
		Partial     bool   `json:"partial"`
	}
	if err := json.Unmarshal(resp.Data, &turn); err != nil {
		return printData(resp.Data)
	}

	if turn.Partial {
		fmt.Printf("[%s, partial]\n%s\n", turn.ResponderID, turn.Message.Content)
	} else {
		fmt.Printf("[%s]\n%s\n", turn.ResponderID, turn.Message.Content)
	}
	return nil
}

func snapshotID(snapshot json.RawMessage) (string, error) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(snapshot, &probe); err != nil {
		return "", fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if probe.ID == "" {
		return "", fmt.Errorf("snapshot has no id field")
	}
	return probe.ID, nil
}

func createConversation(client *APIClient, ownerKind, ownerID string) (string, error) {
	resp, err := client.Post("/conversations", map[string]string{
		"owner_kind": ownerKind,
		"owner_id":   ownerID,
	})
	if err != nil {
		return "", err
	}

	var conv struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &conv); err != nil {
		return "", fmt.Errorf("failed to parse conversation response: %w", err)
	}
	return conv.ID, nil
}
