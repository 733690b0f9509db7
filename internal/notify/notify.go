// Package notify delivers operator notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"solana-trade-engine/internal/domain"
)

// Sender delivers one notification and returns the id of the sent or edited message.
type Sender interface {
	Send(ctx context.Context, n domain.Notification) (int, error)
}

// RateLimitError is returned when the channel asks the client to back off.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// LogSender writes notifications to the log instead of a chat. Used when no
// bot token is configured.
type LogSender struct {
	logger *slog.Logger
	nextID atomic.Int64
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With(slog.String("component", "notify"))}
}

// Send logs n and returns a synthetic message id.
func (s *LogSender) Send(_ context.Context, n domain.Notification) (int, error) {
	id := int(s.nextID.Add(1))
	if n.EditTargetID != nil {
		id = *n.EditTargetID
	}
	s.logger.Info("notification",
		slog.String("kind", n.Kind),
		slog.Int64("chat_id", n.ChatID),
		slog.Int("message_id", id),
		slog.Bool("edit", n.EditTargetID != nil),
		slog.String("text", n.Text),
	)
	return id, nil
}
