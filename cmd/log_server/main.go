package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"anon_relay_bot/internal/pkg/http_client"
	"anon_relay_bot/internal/pkg/logger"
)

// Collects the Bot API request log shipped by the bot when LOG_SERVER_URL points here.
func main() {
	log, err := logger.New(envOr("LOG_LEVEL", "info"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	dir := envOr("LOG_DIR", "/logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatal("failed to create log dir", zap.String("dir", dir), zap.Error(err))
	}

	logFile, err := os.OpenFile(
		filepath.Join(dir, fmt.Sprintf("http_%s.log", time.Now().Format("2006-01-02"))),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY,
		0644,
	)
	if err != nil {
		log.Fatal("failed to open log file", zap.Error(err))
	}
	defer logFile.Close()

	store := http_client.NewLogStore(1000, logFile, log)

	port := envOr("LOG_SERVER_PORT", "8081")
	log.Info("log server starting", zap.String("port", port))
	if err := http.ListenAndServe(":"+port, store.Handler()); err != nil {
		log.Fatal("log server stopped", zap.Error(err))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
