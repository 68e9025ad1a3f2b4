package services

import (
	"context"

	"github.com/thereayou/bizdesk/pkg/logger"
	"go.uber.org/zap"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

type Notification struct {
	WorkspaceID     uint
	WorkspaceUserID uint
	Channel         Channel
	Title           string
	Body            string
	EntityType      string
	EntityID        uint
}

// Notifier delivers messages to workspace users.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log. It stands in for an SMS or
// push gateway.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, msg Notification) error {
	n.log.Info("notification",
		zap.String("channel", string(msg.Channel)),
		zap.Uint("workspace_id", msg.WorkspaceID),
		zap.Uint("workspace_user_id", msg.WorkspaceUserID),
		zap.String("entity_type", msg.EntityType),
		zap.Uint("entity_id", msg.EntityID),
		zap.String("title", msg.Title),
	)
	return nil
}
