package usecase

import (
	"context"

	"go.uber.org/zap"

	"anon_relay_bot/internal/pkg/metrics"
	"anon_relay_bot/internal/pkg/relay/domain"
)

// admit adds a photo or video to its album and makes sure the album has exactly one flush,
// due one window after the album's first item. Later items never move the deadline.
func (r *Relay) admit(ctx context.Context, msg domain.Message) error {
	item, err := Normalize(msg)
	if err != nil {
		r.log.Warn("media message dropped",
			zap.Int64("chat_id", msg.ChatID),
			zap.Int("message_id", msg.MessageID),
			zap.Error(err))
		return err
	}

	key := domain.KeyFor(msg, r.cfg.Window)
	opener := Opener{
		ChatID: r.destination(msg),
		Sender: msg.Sender,
		Header: AuditHeader(msg.Sender),
		At:     r.clock.Now(),
	}

	// The flush outlives the update that opened the album.
	flushCtx := context.WithoutCancel(ctx)
	size, opened := r.store.Admit(key, item, opener, func() Timer {
		r.pending.Add(1)
		return r.clock.AfterFunc(r.cfg.Window, func() {
			defer r.pending.Done()
			r.flush(flushCtx, key)
		})
	})

	if opened {
		metrics.OpenGroups.Inc()
	}
	r.log.Debug("media admitted",
		zap.Stringer("group", key),
		zap.Int("items", size),
		zap.Bool("opened", opened))
	return nil
}
