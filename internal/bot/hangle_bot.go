package bot

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"anon_relay_bot/internal/pkg/metrics"
	"anon_relay_bot/internal/pkg/relay/domain"
	"anon_relay_bot/internal/pkg/relay/usecase"
)

const welcomeText = "📩 Welcome to the Anonymous Forwarder Bot! 🔒\n\n" +
	"I forward messages anonymously.\n" +
	"✨ Just send me any message!"

func (b *Bot) handleMessage(ctx context.Context, msg domain.Message) {
	if msg.Command == "start" {
		b.onStartCommand(ctx, msg)
		return
	}

	err := b.relay.Dispatch(ctx, msg)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnsupportedMedia):
		// Logged by the relay when the item was dropped.
	case errors.Is(err, usecase.ErrClosed):
		b.log.Warn("message arrived during shutdown", zap.Int64("chat_id", msg.ChatID), zap.Int("message_id", msg.MessageID))
	default:
		b.log.Warn("message relayed with errors",
			zap.Int64("chat_id", msg.ChatID),
			zap.Int("message_id", msg.MessageID),
			zap.Error(err))
	}
}

// onStartCommand greets the user. The command itself is never relayed.
func (b *Bot) onStartCommand(ctx context.Context, msg domain.Message) {
	metrics.Messages.WithLabelValues(metrics.RouteCommand).Inc()
	if err := b.replier.SendText(ctx, msg.ChatID, welcomeText); err != nil {
		b.log.Error("failed to send welcome", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
	}
}
