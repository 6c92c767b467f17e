package client

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// ConversationsCmd returns the conversations command group.
func ConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "Manage conversations",
	}

	cmd.AddCommand(conversationsListCmd())
	cmd.AddCommand(conversationsHistoryCmd())
	cmd.AddCommand(conversationsDeleteCmd())

	return cmd
}

func conversationsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			cursor, _ := cmd.Flags().GetString("cursor")

			query := url.Values{}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			if cursor != "" {
				query.Set("cursor", cursor)
			}
			path := "/conversations"
			if len(query) > 0 {
				path += "?" + query.Encode()
			}

			client := NewAPIClientWithCmd(cmd)
			resp, err := client.Get(path)
			if err != nil {
				return err
			}
			return printData(resp.Data)
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of conversations to return")
	cmd.Flags().String("cursor", "", "Pagination cursor from a previous page")

	return cmd
}

func conversationsHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Show a conversation's message history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClientWithCmd(cmd)
			resp, err := client.Get("/conversations/" + args[0] + "/messages")
			if err != nil {
				return err
			}
			return printData(resp.Data)
		},
	}
}

func conversationsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation-id>",
		Short: "Delete a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClientWithCmd(cmd)
			if _, err := client.Delete("/conversations/" + args[0]); err != nil {
				return err
			}
			fmt.Printf("conversation %s deleted\n", args[0])
			return nil
		},
	}
}
