package http_client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"anon_relay_bot/internal/pkg/metrics"
)

const maxLoggedBody = 1000

// LoggedClient is the HTTP client handed to the Bot API library. Every request is timed into the
// Telegram request histogram and shipped to the log collector when one is set; with body logging
// on, the request and response bodies are also logged at debug and included in the entry.
type LoggedClient struct {
	*http.Client
	log          *zap.Logger
	logBodies    bool
	logServerURL string
	sink         *http.Client
}

type LogEntry struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	Method       string `json:"method"`
	URL          string `json:"url"`
	RequestBody  string `json:"request_body,omitempty"`
	StatusCode   int    `json:"status_code"`
	ResponseBody string `json:"response_body,omitempty"`
	Duration     int64  `json:"duration_ms"`
	Error        string `json:"error,omitempty"`
}

func NewLoggedClient(log *zap.Logger, logBodies bool, logServerURL string) *LoggedClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggedClient{
		Client: &http.Client{
			Timeout: 90 * time.Second, // above the long-poll timeout of getUpdates
		},
		log:          log,
		logBodies:    logBodies,
		logServerURL: logServerURL,
		sink:         &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *LoggedClient) Do(req *http.Request) (*http.Response, error) {
	startTime := time.Now()
	apiMethod := path.Base(req.URL.Path)

	var requestBody []byte
	if c.logBodies && req.Body != nil {
		requestBody, _ = io.ReadAll(req.Body)
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(requestBody))
	}

	resp, err := c.Client.Do(req)
	elapsed := time.Since(startTime)

	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	metrics.TelegramRequests.WithLabelValues(apiMethod, status).Observe(elapsed.Seconds())

	entry := LogEntry{
		ID:        uuid.NewString(),
		Timestamp: startTime.Format(time.RFC3339),
		Method:    req.Method,
		URL:       RedactToken(req.URL.String()),
		Duration:  elapsed.Milliseconds(),
	}

	if err != nil {
		entry.Error = RedactToken(err.Error())
		c.log.Warn("bot api request failed",
			zap.String("api_method", apiMethod),
			zap.Duration("duration", elapsed),
			zap.String("error", entry.Error))
		c.ship(entry)
		return nil, err
	}
	entry.StatusCode = resp.StatusCode

	if !c.logBodies {
		c.ship(entry)
		return resp, nil
	}

	responseBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(responseBody))

	entry.RequestBody = truncate(string(requestBody))
	entry.ResponseBody = truncate(string(responseBody))

	c.log.Debug("bot api request",
		zap.String("id", entry.ID),
		zap.String("api_method", apiMethod),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", elapsed),
		zap.String("request", entry.RequestBody),
		zap.String("response", entry.ResponseBody))
	c.ship(entry)

	return resp, nil
}

// ship sends entry to the log collector in the background.
func (c *LoggedClient) ship(entry LogEntry) {
	if c.logServerURL == "" {
		return
	}
	go func() {
		jsonData, err := json.Marshal(entry)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.logServerURL+"/log", bytes.NewReader(jsonData))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.sink.Do(req)
		if err != nil {
			c.log.Debug("log collector unreachable", zap.Error(err))
			return
		}
		resp.Body.Close()
	}()
}

// RedactToken hides the bot token in a Bot API URL (".../bot<token>/<method>").
func RedactToken(s string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, "/bot")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i+len("/bot")])
		s = s[i+len("/bot"):]

		end := strings.IndexAny(s, "/\"' ")
		if end < 0 {
			end = len(s)
		}
		if end > 0 {
			b.WriteString("<redacted>")
		}
		s = s[end:]
	}
}

func truncate(s string) string {
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody] + "... [truncated]"
	}
	return s
}
