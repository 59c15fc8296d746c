package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(chatsCmd, markReadCmd)
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List chats with unread counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cl, _, err := newClient()
		if err != nil {
			return err
		}
		defer cl.Close()

		chats, err := cl.Rest.ListChats(cmd.Context())
		if err != nil {
			return fmt.Errorf("list chats: %w", err)
		}

		if len(chats) == 0 {
			fmt.Println("No chats found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CHAT\tWITH\tUNREAD\tLAST MESSAGE\tUPDATED")
		for _, c := range chats {
			preview := c.LastMessage.Content
			if len(preview) > 40 {
				preview = preview[:37] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				c.ChatID,
				c.Target.Username,
				c.UnreadCount,
				preview,
				c.UpdatedAt.Format("2006-01-02 15:04"),
			)
		}
		return w.Flush()
	},
}

var markReadCmd = &cobra.Command{
	Use:   "mark-read <chat-id>",
	Short: "Mark a chat as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cl, _, err := newClient()
		if err != nil {
			return err
		}
		defer cl.Close()

		if err := cl.MarkChatRead(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
		fmt.Println("Marked as read.")
		return nil
	},
}
