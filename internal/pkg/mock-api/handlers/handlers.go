// Package handlers implements a local stand-in for the Telegram Bot API. It answers the methods the
// relay uses, records every outbound call and lets tests or a developer inject inbound updates.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"anon_relay_bot/internal/pkg/mock-api/models"
)

// maxPollWait caps the long-poll wait of getUpdates so shutdown stays quick.
const maxPollWait = 2 * time.Second

var BotUser = tgbotapi.User{
	ID:        1000,
	IsBot:     true,
	FirstName: "Relay",
	UserName:  "mock_relay_bot",
}

type Server struct {
	mu            sync.Mutex
	calls         []models.Call
	updates       []tgbotapi.Update
	nextUpdateID  int
	nextMessageID int
	failures      map[string]string // method -> error description
	notify        chan struct{}
	log           *zap.Logger
}

func NewServer(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		nextUpdateID:  1,
		nextMessageID: 1,
		failures:      make(map[string]string),
		notify:        make(chan struct{}),
		log:           log,
	}
}

// Handler routes Bot API calls (/bot<token>/<method>) and the control endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/updates", s.handleUpdates)
	mux.HandleFunc("/calls", s.handleCalls)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/", s.handleBotAPI)
	return mux
}

// FailMethod makes every following call of method fail with description.
// An empty description clears the failure.
func (s *Server) FailMethod(method, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if description == "" {
		delete(s.failures, method)
		return
	}
	s.failures[method] = description
}

// PushMessage queues msg as the next inbound update and returns its update id.
func (s *Server) PushMessage(msg tgbotapi.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.MessageID == 0 {
		msg.MessageID = s.nextMessageID
		s.nextMessageID++
	}
	if msg.Date == 0 {
		msg.Date = int(time.Now().Unix())
	}

	id := s.nextUpdateID
	s.nextUpdateID++
	s.updates = append(s.updates, tgbotapi.Update{UpdateID: id, Message: &msg})

	close(s.notify)
	s.notify = make(chan struct{})
	return id
}

func (s *Server) Calls() []models.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Call(nil), s.calls...)
}

func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
	s.updates = nil
}

func (s *Server) handleBotAPI(w http.ResponseWriter, r *http.Request) {
	// /bot<token>/<method>
	path := strings.TrimPrefix(r.URL.Path, "/")
	tokenPart, method, ok := strings.Cut(path, "/")
	if !ok || !strings.HasPrefix(tokenPart, "bot") || len(tokenPart) == len("bot") {
		sendError(w, http.StatusNotFound, "Not Found")
		return
	}
	if err := r.ParseForm(); err != nil {
		sendError(w, http.StatusBadRequest, "Bad Request: "+err.Error())
		return
	}

	s.mu.Lock()
	failure, failing := s.failures[method]
	s.mu.Unlock()
	if failing {
		s.log.Debug("injected failure", zap.String("method", method))
		sendError(w, http.StatusBadRequest, failure)
		return
	}

	switch method {
	case "getMe":
		sendResult(w, BotUser)
	case "getUpdates":
		s.getUpdates(w, r)
	case "sendMessage":
		s.sendMessage(w, r)
	case "sendPhoto":
		s.sendFile(w, r, "photo")
	case "sendVideo":
		s.sendFile(w, r, "video")
	case "sendMediaGroup":
		s.sendMediaGroup(w, r)
	case "copyMessage":
		s.copyMessage(w, r)
	default:
		sendError(w, http.StatusNotFound, "Not Found: method "+method)
	}
}

func (s *Server) getUpdates(w http.ResponseWriter, r *http.Request) {
	offset := formInt(r, "offset")
	wait := time.Duration(formInt(r, "timeout")) * time.Second
	if wait > maxPollWait {
		wait = maxPollWait
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		var out []tgbotapi.Update
		kept := s.updates[:0]
		for _, u := range s.updates {
			if u.UpdateID >= offset {
				out = append(out, u)
				kept = append(kept, u)
			}
		}
		// Updates below the offset are acknowledged and dropped.
		s.updates = kept
		notify := s.notify
		s.mu.Unlock()

		if len(out) > 0 || wait == 0 {
			if out == nil {
				out = []tgbotapi.Update{}
			}
			sendResult(w, out)
			return
		}

		select {
		case <-notify:
		case <-deadline.C:
			wait = 0
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	chatID := formInt64(r, "chat_id")
	text := r.PostForm.Get("text")
	if text == "" {
		sendError(w, http.StatusBadRequest, "Bad Request: message text is empty")
		return
	}

	msg := s.record(models.Call{Method: "sendMessage", ChatID: chatID, Text: text})
	msg.Text = text
	sendResult(w, msg)
}

func (s *Server) sendFile(w http.ResponseWriter, r *http.Request, field string) {
	chatID := formInt64(r, "chat_id")
	file := r.PostForm.Get(field)
	if file == "" {
		sendError(w, http.StatusBadRequest, "Bad Request: there is no "+field+" in the request")
		return
	}

	caption := r.PostForm.Get("caption")
	msg := s.record(models.Call{
		Method:  "send" + strings.ToUpper(field[:1]) + field[1:],
		ChatID:  chatID,
		File:    file,
		Caption: caption,
	})
	msg.Caption = caption
	switch field {
	case "photo":
		msg.Photo = []tgbotapi.PhotoSize{{FileID: file}}
	case "video":
		msg.Video = &tgbotapi.Video{FileID: file}
	}
	sendResult(w, msg)
}

func (s *Server) sendMediaGroup(w http.ResponseWriter, r *http.Request) {
	chatID := formInt64(r, "chat_id")

	var media []models.InputMedia
	if err := json.Unmarshal([]byte(r.PostForm.Get("media")), &media); err != nil {
		sendError(w, http.StatusBadRequest, "Bad Request: can't parse media JSON object")
		return
	}
	if len(media) < 2 || len(media) > 10 {
		sendError(w, http.StatusBadRequest, "Bad Request: wrong number of messages in media group")
		return
	}

	first := s.record(models.Call{Method: "sendMediaGroup", ChatID: chatID, Media: media})
	out := []tgbotapi.Message{first}
	s.mu.Lock()
	for range media[1:] {
		m := first
		m.MessageID = s.nextMessageID
		s.nextMessageID++
		out = append(out, m)
	}
	s.mu.Unlock()
	sendResult(w, out)
}

func (s *Server) copyMessage(w http.ResponseWriter, r *http.Request) {
	chatID := formInt64(r, "chat_id")
	fromChatID := formInt64(r, "from_chat_id")
	messageID := formInt(r, "message_id")
	if fromChatID == 0 || messageID == 0 {
		sendError(w, http.StatusBadRequest, "Bad Request: message to copy not found")
		return
	}

	msg := s.record(models.Call{
		Method:     "copyMessage",
		ChatID:     chatID,
		FromChatID: fromChatID,
		MessageID:  messageID,
	})
	sendResult(w, tgbotapi.MessageID{MessageID: msg.MessageID})
}

// record stores c and returns the message the bot "sent".
func (s *Server) record(c models.Call) tgbotapi.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.At = time.Now()
	s.calls = append(s.calls, c)

	id := s.nextMessageID
	s.nextMessageID++

	s.log.Debug("bot api call", zap.String("method", c.Method), zap.Int64("chat_id", c.ChatID))
	return tgbotapi.Message{
		MessageID: id,
		From:      &BotUser,
		Date:      int(c.At.Unix()),
		Chat:      &tgbotapi.Chat{ID: c.ChatID},
	}
}

// handleUpdates accepts a JSON message on POST and queues it as an inbound update.
func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var msg tgbotapi.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg.Chat == nil {
		sendError(w, http.StatusBadRequest, "chat is required")
		return
	}

	sendResult(w, map[string]int{"update_id": s.PushMessage(msg)})
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		calls := s.Calls()
		if calls == nil {
			calls = []models.Call{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(calls)
	case http.MethodDelete:
		s.Reset()
		w.WriteHeader(http.StatusNoContent)
	default:
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func formInt64(r *http.Request, key string) int64 {
	v, _ := strconv.ParseInt(r.Form.Get(key), 10, 64)
	return v
}

func formInt(r *http.Request, key string) int {
	v, _ := strconv.Atoi(r.Form.Get(key))
	return v
}

func sendResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(models.APIResponse{Ok: true, Result: result})
}

func sendError(w http.ResponseWriter, status int, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.APIResponse{
		Ok:          false,
		ErrorCode:   status,
		Description: description,
	})
}
