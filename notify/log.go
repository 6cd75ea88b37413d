package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/unilib/circulation-go/circulation"
)

const logMsgNotification = "notification dispatched"

// LogDispatcher writes every notification to the configured logger instead
// of sending it anywhere. Useful for development and as a safe default when
// no gateway is configured.
type LogDispatcher struct {
	logger circulation.Logger
}

// NewLogDispatcher creates a dispatcher that only logs.
func NewLogDispatcher(logger circulation.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Notify logs the notification at info level and always succeeds.
func (d *LogDispatcher) Notify(_ context.Context, userID uuid.UUID, kind circulation.TemplateKind, payload map[string]string) error {
	if d.logger != nil {
		args := []any{"user_id", userID.String(), "template", string(kind)}
		for key, value := range payload {
			args = append(args, key, value)
		}

		d.logger.Info(logMsgNotification, args...)
	}

	return nil
}
