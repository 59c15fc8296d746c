// Package main is the terminal client for the Chatterline realtime layer.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chatterline/realtime-go/internal/chatstore"
	"github.com/chatterline/realtime-go/internal/client"
	"github.com/chatterline/realtime-go/internal/config"
	"github.com/chatterline/realtime-go/internal/model"
	"github.com/chatterline/realtime-go/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "chatctl",
	Short:         "Terminal client for the Chatterline realtime platform",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newClient builds a client from the environment configuration.
func newClient() (*client.Client, *config.Config, error) {
	cfg := config.Load()
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	logger.SetGlobal(log)

	return client.New(cfg, terminalNotifier{}, log), cfg, nil
}

// terminalNotifier prints notification toasts to stdout.
type terminalNotifier struct{}

func (terminalNotifier) Notify(ev model.NotificationEvent) {
	actor := ev.Actor.Username
	if actor == "" {
		actor = "someone"
	}
	fmt.Printf("[%s] %s: %s\n", ev.SentAt.Format("15:04:05"), actor, describeAction(ev.Action))
}

func describeAction(action model.EventAction) string {
	switch action {
	case model.ActionFriendRequestSent:
		return "sent you a friend request"
	case model.ActionFriendAccepted:
		return "accepted your friend request"
	case model.ActionPostLiked:
		return "liked your post"
	case model.ActionComment:
		return "commented on your post"
	case model.ActionNewMessage:
		return "sent you a message"
	default:
		return string(action)
	}
}

var _ chatstore.Notifier = terminalNotifier{}
