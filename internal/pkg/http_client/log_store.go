package http_client

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// LogStore collects the entries shipped by LoggedClient. It keeps the latest entries in memory
// and appends every entry as a JSON line to out when out is set.
type LogStore struct {
	mu       sync.Mutex
	entries  []LogEntry
	capacity int
	out      io.Writer
	log      *zap.Logger
}

func NewLogStore(capacity int, out io.Writer, log *zap.Logger) *LogStore {
	if capacity <= 0 {
		capacity = 1000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LogStore{capacity: capacity, out: out, log: log}
}

func (s *LogStore) Add(entry LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[len(s.entries)-s.capacity:]
	}

	if s.out == nil {
		return nil
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = s.out.Write(append(line, '\n'))
	return err
}

func (s *LogStore) Entries() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LogEntry{}, s.entries...)
}

// Handler serves POST /log, GET /logs and GET /health.
func (s *LogStore) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/log", s.handleLog)
	mux.HandleFunc("/logs", s.handleGetLogs)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

func (s *LogStore) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var entry LogEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := s.Add(entry); err != nil {
		s.log.Error("failed to persist log entry", zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("method", entry.Method),
		zap.String("url", entry.URL),
		zap.Int("status", entry.StatusCode),
		zap.Int64("duration_ms", entry.Duration),
	}
	if entry.Error != "" {
		s.log.Warn("request failed", append(fields, zap.String("error", entry.Error))...)
	} else {
		s.log.Info("request", fields...)
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *LogStore) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Entries())
}
