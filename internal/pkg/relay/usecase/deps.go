package usecase

import (
	"context"
	"time"

	journal "anon_relay_bot/internal/pkg/journal/domain"
	"anon_relay_bot/internal/pkg/relay/domain"
)

// Sender is the set of outbound primitives the relay needs from the chat platform.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendMediaGroup(ctx context.Context, chatID int64, items []domain.MediaItem) error
	CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) error
}

// DeliveryRecorder receives one record per relayed message or album.
type DeliveryRecorder interface {
	SaveDelivery(ctx context.Context, d *journal.Delivery) error
}

// Timer is the handle of a scheduled flush.
type Timer interface {
	Stop() bool
}

// Clock schedules deferred work. The relay never reads the wall clock directly so that tests can
// drive the debounce window by hand.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
