package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"anon_relay_bot/internal/pkg/relay/domain"
)

// manualClock fires timers only when the test advances it.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	f       func()
	fired   bool
	stopped bool
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock and runs due timers synchronously, earliest first.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

func (c *manualClock) scheduled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *manualClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type sentCall struct {
	Op     string
	ChatID int64
	Text   string
	Items  []domain.MediaItem
	From   int64
	MsgID  int
}

type recordingSender struct {
	mu    sync.Mutex
	calls []sentCall
	fail  map[string]error // "op:chatID" -> error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{fail: make(map[string]error)}
}

func (s *recordingSender) failOn(op string, chatID int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[fmt.Sprintf("%s:%d", op, chatID)] = err
}

func (s *recordingSender) record(c sentCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	return s.fail[fmt.Sprintf("%s:%d", c.Op, c.ChatID)]
}

func (s *recordingSender) SendText(_ context.Context, chatID int64, text string) error {
	return s.record(sentCall{Op: "sendMessage", ChatID: chatID, Text: text})
}

func (s *recordingSender) SendMediaGroup(_ context.Context, chatID int64, items []domain.MediaItem) error {
	cp := append([]domain.MediaItem(nil), items...)
	return s.record(sentCall{Op: "sendMediaGroup", ChatID: chatID, Items: cp})
}

func (s *recordingSender) CopyMessage(_ context.Context, toChatID, fromChatID int64, messageID int) error {
	return s.record(sentCall{Op: "copyMessage", ChatID: toChatID, From: fromChatID, MsgID: messageID})
}

func (s *recordingSender) Calls() []sentCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentCall(nil), s.calls...)
}

func (s *recordingSender) ops(op string) []sentCall {
	var out []sentCall
	for _, c := range s.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

var alice = domain.Sender{ID: 42, FirstName: "Alice", Username: "alice"}

func photoMsg(id int, chatID int64, groupID string, fileID string, at time.Time) domain.Message {
	return domain.Message{
		MessageID:    id,
		ChatID:       chatID,
		Sender:       alice,
		Date:         at,
		MediaGroupID: groupID,
		Photo: []domain.PhotoSize{
			{FileID: fileID + "-small", Width: 90, Height: 90},
			{FileID: fileID, Width: 1280, Height: 1280},
		},
	}
}

func videoMsg(id int, chatID int64, groupID string, fileID string, at time.Time) domain.Message {
	return domain.Message{
		MessageID:    id,
		ChatID:       chatID,
		Sender:       alice,
		Date:         at,
		MediaGroupID: groupID,
		Video:        &domain.Video{FileID: fileID},
	}
}
