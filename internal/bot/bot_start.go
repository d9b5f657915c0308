package bot

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"anon_relay_bot/internal/pkg/relay/domain"
	"anon_relay_bot/internal/pkg/relay/telegram_transport"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, msg domain.Message) error
}

// Replier answers the user directly, outside the relay.
type Replier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type Bot struct {
	Api         *tgbotapi.BotAPI
	relay       Dispatcher
	replier     Replier
	log         *zap.Logger
	pollTimeout int

	inflight sync.WaitGroup
}

func New(api *tgbotapi.BotAPI, relay Dispatcher, replier Replier, pollTimeout int, log *zap.Logger) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{
		Api:         api,
		relay:       relay,
		replier:     replier,
		log:         log,
		pollTimeout: pollTimeout,
	}
}

// Start polls for updates until ctx is done. Every message is handled on its own goroutine;
// Start returns after the handlers already running have finished.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout

	updates := b.Api.GetUpdatesChan(u)

	b.log.Info("authorized", zap.String("account", b.Api.Self.UserName))

	defer b.inflight.Wait()
	for {
		select {
		case <-ctx.Done():
			b.Api.StopReceivingUpdates()
			b.log.Info("stopped receiving updates")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}

			msg := telegram_transport.FromAPI(update.Message)
			b.inflight.Add(1)
			go func() {
				defer b.inflight.Done()
				// Handlers outlive the poller so accepted messages still go out on shutdown.
				b.handleMessage(context.WithoutCancel(ctx), msg)
			}()
		}
	}
}
