package main

import (
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"anon_relay_bot/internal/pkg/logger"
	"anon_relay_bot/internal/pkg/mock-api/handlers"
)

// Local Bot API stand-in. Run the bot with TELEGRAM_API_ENDPOINT=http://localhost:8082/bot%s/%s,
// push inbound messages with POST /updates and inspect what the bot sent with GET /calls.
func main() {
	log, err := logger.New("debug")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	srv := handlers.NewServer(log)
	handler := corsMiddleware(srv.Handler())

	port := os.Getenv("MOCK_API_PORT")
	if port == "" {
		port = "8082"
	}
	log.Info("mock bot api starting",
		zap.String("port", port),
		zap.Strings("endpoints", []string{
			"POST /bot{token}/{method}",
			"POST /updates",
			"GET  /calls",
			"DELETE /calls",
			"GET  /health",
		}))

	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatal("mock bot api stopped", zap.Error(err))
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
