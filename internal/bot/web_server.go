package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"anon_relay_bot/internal/pkg/journal/domain"
	"anon_relay_bot/internal/pkg/journal/repository"
	"anon_relay_bot/internal/pkg/metrics"
	"anon_relay_bot/internal/pkg/relay/usecase"
)

const (
	defaultDeliveryLimit = 50
	maxDeliveryLimit     = 500
)

type PendingLister interface {
	Pending() []usecase.GroupSnapshot
}

type WebServer struct {
	relay   PendingLister
	journal repository.DeliveryRepository
	port    string
	log     *zap.Logger
	srv     *http.Server
}

func NewWebServer(relay PendingLister, journal repository.DeliveryRepository, port string, log *zap.Logger) *WebServer {
	if log == nil {
		log = zap.NewNop()
	}
	ws := &WebServer{
		relay:   relay,
		journal: journal,
		port:    port,
		log:     log,
	}
	ws.srv = &http.Server{
		Addr:              ":" + port,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ws
}

func (ws *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/", ws.handleHealthCheck)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/debug/groups", ws.handlePendingGroups)
	mux.HandleFunc("/deliveries", ws.handleDeliveries)
	return mux
}

// Start serves until Shutdown is called.
func (ws *WebServer) Start() error {
	ws.log.Info("starting web server", zap.String("port", ws.port))
	if err := ws.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (ws *WebServer) Shutdown(ctx context.Context) error {
	return ws.srv.Shutdown(ctx)
}

func (ws *WebServer) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (ws *WebServer) handlePendingGroups(w http.ResponseWriter, r *http.Request) {
	groups := ws.relay.Pending()
	if groups == nil {
		groups = []usecase.GroupSnapshot{}
	}
	ws.sendJSON(w, http.StatusOK, map[string]any{
		"count":  len(groups),
		"groups": groups,
	})
}

func (ws *WebServer) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if ws.journal == nil {
		ws.sendJSON(w, http.StatusNotFound, map[string]string{"error": "delivery journal is disabled"})
		return
	}

	limit := defaultDeliveryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			ws.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxDeliveryLimit)
	}

	deliveries, err := ws.journal.RecentDeliveries(r.Context(), limit)
	if err != nil {
		ws.log.Error("failed to read deliveries", zap.Error(err))
		ws.sendJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read deliveries"})
		return
	}
	stats, err := ws.journal.DeliveryStats(r.Context())
	if err != nil {
		ws.log.Error("failed to read delivery stats", zap.Error(err))
		ws.sendJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read delivery stats"})
		return
	}
	if deliveries == nil {
		deliveries = []*domain.Delivery{}
	}

	ws.sendJSON(w, http.StatusOK, map[string]any{
		"stats":      stats,
		"deliveries": deliveries,
	})
}

func (ws *WebServer) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		ws.log.Debug("failed to write response", zap.Error(err))
	}
}
