package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chatterline/realtime-go/internal/client"
	"github.com/chatterline/realtime-go/internal/transport"
)

func init() {
	rootCmd.AddCommand(sendCmd)
}

type outgoingMessage struct {
	ClientID string    `json:"client_id"`
	ChatID   string    `json:"chat_id"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sent_at"`
}

var sendCmd = &cobra.Command{
	Use:   "send <chat-id> <text>...",
	Short: "Send a message to a chat",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cl, _, err := newClient()
		if err != nil {
			return err
		}
		defer cl.Close()

		if err := cl.Start(cmd.Context()); err != nil {
			if errors.Is(err, client.ErrNotLoggedIn) {
				return err
			}
			// No realtime connection; the HTTP fallback below still works.
			fmt.Fprintf(cmd.ErrOrStderr(), "realtime connection unavailable: %v\n", err)
		}

		chatID := args[0]
		msg := outgoingMessage{
			ClientID: uuid.NewString(),
			ChatID:   chatID,
			Content:  strings.Join(args[1:], " "),
			SentAt:   time.Now().UTC(),
		}
		if err := cl.Transport.Publish("chat."+chatID, msg); err != nil {
			if !errors.Is(err, transport.ErrNotConnected) {
				return fmt.Errorf("send: %w", err)
			}
			// The socket is down; fall back to the HTTP send endpoint.
			if _, err := cl.Rest.SendMessage(cmd.Context(), chatID, msg.ClientID, msg.Content); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
		fmt.Println("Sent.")
		return nil
	},
}
