package reconciler

import (
	"fmt"
)

const topicPrefix = "user"

// ChatTopic returns the per-user topic carrying chat message events.
func ChatTopic(userID string) string {
	return fmt.Sprintf("%s.%s.chat", topicPrefix, userID)
}

// NotificationTopic returns the per-user topic carrying status and
// notification events.
func NotificationTopic(userID string) string {
	return fmt.Sprintf("%s.%s.notifications", topicPrefix, userID)
}
