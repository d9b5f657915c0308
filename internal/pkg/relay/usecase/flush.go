package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"

	journal "anon_relay_bot/internal/pkg/journal/domain"
	"anon_relay_bot/internal/pkg/metrics"
	"anon_relay_bot/internal/pkg/relay/domain"
)

// flush sends the album of key to the destination and to the audit chat. Taking the group out of
// the store comes first, so a group is sent at most once and a late item opens a new group.
// Both copies are attempted whatever happens to the other one.
func (r *Relay) flush(ctx context.Context, key domain.GroupKey) {
	batch, ok := r.store.Take(key)
	if !ok {
		return
	}
	metrics.OpenGroups.Dec()
	if len(batch.Items) == 0 {
		return
	}

	var destErr error
	if err := r.sender.SendMediaGroup(ctx, batch.ChatID, batch.Items); err != nil {
		destErr = r.sendFailed(metrics.TargetDestination, &domain.SendError{Op: "sendMediaGroup", ChatID: batch.ChatID, Err: err})
	}
	auditErr := r.sendAlbumAudit(ctx, batch)

	metrics.BatchesFlushed.Inc()
	metrics.BatchItems.Observe(float64(len(batch.Items)))
	metrics.BatchLatency.Observe(r.clock.Now().Sub(batch.OpenedAt).Seconds())

	r.record(ctx, &journal.Delivery{
		Kind:              journal.KindBatch,
		GroupKey:          key.String(),
		ChatID:            batch.ChatID,
		SenderID:          batch.Sender.ID,
		SenderUsername:    batch.Sender.Username,
		ItemCount:         len(batch.Items),
		DestinationStatus: journal.StatusOf(destErr),
		AuditStatus:       journal.StatusOf(auditErr),
	}, destErr, auditErr)

	r.log.Info("album flushed",
		zap.Stringer("group", key),
		zap.Int64("chat_id", batch.ChatID),
		zap.Int("items", len(batch.Items)),
		zap.Bool("destination_ok", destErr == nil),
		zap.Bool("audit_ok", auditErr == nil))
}

func (r *Relay) sendAlbumAudit(ctx context.Context, batch Batch) error {
	audit := r.cfg.AuditChatID

	var errs []error
	if err := r.sender.SendText(ctx, audit, albumAuditText(batch.Header)); err != nil {
		errs = append(errs, r.sendFailed(metrics.TargetAudit, &domain.SendError{Op: "sendMessage", ChatID: audit, Err: err}))
	}
	if err := r.sender.SendMediaGroup(ctx, audit, batch.Items); err != nil {
		errs = append(errs, r.sendFailed(metrics.TargetAudit, &domain.SendError{Op: "sendMediaGroup", ChatID: audit, Err: err}))
	}
	return errors.Join(errs...)
}
