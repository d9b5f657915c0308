package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	journal "anon_relay_bot/internal/pkg/journal/domain"
	"anon_relay_bot/internal/pkg/metrics"
	"anon_relay_bot/internal/pkg/relay/domain"
)

var ErrClosed = errors.New("relay is closed")

type Config struct {
	// Window is the debounce window of an album, measured from its first item.
	Window time.Duration
	// AuditChatID receives the identity header and a copy of every message.
	AuditChatID int64
	// DestinationChatID overrides the destination of anonymous copies. Zero sends each copy back
	// to the chat the message came from.
	DestinationChatID int64
}

type Option func(*Relay)

func WithClock(c Clock) Option {
	return func(r *Relay) {
		r.clock = c
	}
}

// Relay routes inbound messages: photos and videos are aggregated into albums and flushed after
// the window, everything else is copied immediately. Each copy to the destination is anonymous;
// the audit chat gets the same content preceded by the sender's identity.
type Relay struct {
	cfg     Config
	sender  Sender
	journal DeliveryRecorder
	clock   Clock
	log     *zap.Logger
	store   *AggregationStore

	pending sync.WaitGroup // scheduled flushes not yet finished
	closed  atomic.Bool
}

// New builds a relay. journal may be nil.
func New(cfg Config, sender Sender, journal DeliveryRecorder, log *zap.Logger, opts ...Option) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Relay{
		cfg:     cfg,
		sender:  sender,
		journal: journal,
		clock:   systemClock{},
		log:     log,
		store:   NewAggregationStore(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch is the per-message entry point. It never waits for an album flush.
func (r *Relay) Dispatch(ctx context.Context, msg domain.Message) error {
	if r.closed.Load() {
		return ErrClosed
	}

	if msg.HasVisualMedia() {
		if err := r.admit(ctx, msg); err != nil {
			metrics.Messages.WithLabelValues(metrics.RouteRejected).Inc()
			return err
		}
		metrics.Messages.WithLabelValues(metrics.RouteMedia).Inc()
		return nil
	}

	metrics.Messages.WithLabelValues(metrics.RouteImmediate).Inc()
	return r.forward(ctx, msg)
}

// forward copies a single non-album message to the destination and to the audit chat.
func (r *Relay) forward(ctx context.Context, msg domain.Message) error {
	dest := r.destination(msg)

	var destErr error
	if err := r.sender.CopyMessage(ctx, dest, msg.ChatID, msg.MessageID); err != nil {
		destErr = r.sendFailed(metrics.TargetDestination, &domain.SendError{Op: "copyMessage", ChatID: dest, Err: err})
	}

	var auditErrs []error
	if err := r.sender.SendText(ctx, r.cfg.AuditChatID, AuditHeader(msg.Sender)); err != nil {
		auditErrs = append(auditErrs, r.sendFailed(metrics.TargetAudit, &domain.SendError{Op: "sendMessage", ChatID: r.cfg.AuditChatID, Err: err}))
	}
	if err := r.sender.CopyMessage(ctx, r.cfg.AuditChatID, msg.ChatID, msg.MessageID); err != nil {
		auditErrs = append(auditErrs, r.sendFailed(metrics.TargetAudit, &domain.SendError{Op: "copyMessage", ChatID: r.cfg.AuditChatID, Err: err}))
	}
	auditErr := errors.Join(auditErrs...)

	r.record(ctx, &journal.Delivery{
		Kind:              journal.KindSingle,
		ChatID:            dest,
		SourceMessageID:   msg.MessageID,
		SenderID:          msg.Sender.ID,
		SenderUsername:    msg.Sender.Username,
		ItemCount:         1,
		DestinationStatus: journal.StatusOf(destErr),
		AuditStatus:       journal.StatusOf(auditErr),
	}, destErr, auditErr)

	r.log.Debug("message relayed",
		zap.Int64("chat_id", msg.ChatID),
		zap.Int("message_id", msg.MessageID),
		zap.Bool("ok", destErr == nil && auditErr == nil))

	return errors.Join(destErr, auditErr)
}

func (r *Relay) destination(msg domain.Message) int64 {
	if r.cfg.DestinationChatID != 0 {
		return r.cfg.DestinationChatID
	}
	return msg.ChatID
}

func (r *Relay) sendFailed(target string, err *domain.SendError) error {
	metrics.SendFailures.WithLabelValues(target).Inc()
	r.log.Error("send failed",
		zap.String("target", target),
		zap.String("op", err.Op),
		zap.Int64("chat_id", err.ChatID),
		zap.Error(err.Err))
	return err
}

func (r *Relay) record(ctx context.Context, d *journal.Delivery, errs ...error) {
	if r.journal == nil {
		return
	}
	if err := errors.Join(errs...); err != nil {
		d.Error = err.Error()
	}
	if err := r.journal.SaveDelivery(ctx, d); err != nil {
		r.log.Warn("failed to record delivery", zap.String("kind", d.Kind), zap.Error(err))
	}
}

// Pending lists the albums waiting for their flush.
func (r *Relay) Pending() []GroupSnapshot {
	return r.store.Snapshot()
}

// Close rejects further messages and flushes every open album now instead of waiting for its
// window. It returns once all flushes have finished or ctx is done.
func (r *Relay) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	keys := r.store.Keys()
	for _, key := range keys {
		if r.store.StopFlush(key) {
			r.flush(ctx, key)
			r.pending.Done()
		}
	}
	r.log.Info("relay closing", zap.Int("drained_groups", len(keys)))

	done := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
