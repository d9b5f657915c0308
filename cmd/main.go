package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"anon_relay_bot/internal/bot"
	"anon_relay_bot/internal/config"
	"anon_relay_bot/internal/pkg/http_client"
	"anon_relay_bot/internal/pkg/journal/memory_storage"
	"anon_relay_bot/internal/pkg/journal/postgres_storage"
	"anon_relay_bot/internal/pkg/journal/repository"
	"anon_relay_bot/internal/pkg/logger"
	"anon_relay_bot/internal/pkg/relay/telegram_transport"
	"anon_relay_bot/internal/pkg/relay/usecase"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("bot stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	journal, closeJournal, err := openJournal(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeJournal()

	endpoint := cfg.TelegramAPIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := http_client.NewLoggedClient(log.Named("http"), cfg.LogHTTP, cfg.LogServerURL)
	api, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramToken, endpoint, client)
	if err != nil {
		return fmt.Errorf("create bot: %s", http_client.RedactToken(err.Error()))
	}

	transport := telegram_transport.New(api)
	relay := usecase.New(usecase.Config{
		Window:            cfg.RelayWindow,
		AuditChatID:       cfg.AuditChatID,
		DestinationChatID: cfg.DestinationChatID,
	}, transport, journal, log.Named("relay"))

	b := bot.New(api, relay, transport, cfg.PollTimeout, log.Named("bot"))
	webServer := bot.NewWebServer(relay, journal, cfg.WebPort, log.Named("web"))

	log.Info("relay configured",
		zap.Duration("window", cfg.RelayWindow),
		zap.Int64("audit_chat_id", cfg.AuditChatID),
		zap.Int64("destination_chat_id", cfg.DestinationChatID))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := b.Start(gctx); err != nil {
			return err
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return relay.Close(shutdownCtx)
	})
	g.Go(webServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return webServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("shutdown complete")
	return err
}

func openJournal(ctx context.Context, cfg config.Config, log *zap.Logger) (repository.DeliveryRepository, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Info("delivery journal in memory", zap.Int("size", cfg.JournalSize))
		return memory_storage.NewMemoryStorage(cfg.JournalSize), func() {}, nil
	}

	store, err := postgres_storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open delivery journal: %w", err)
	}
	log.Info("delivery journal in postgres")
	return store, func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close delivery journal", zap.Error(err))
		}
	}, nil
}
