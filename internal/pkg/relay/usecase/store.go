package usecase

import (
	"sort"
	"sync"
	"time"

	"anon_relay_bot/internal/pkg/relay/domain"
)

// Opener describes the message that opened a group. Only the first admit of a key is used.
type Opener struct {
	ChatID int64 // destination of the anonymous copy
	Sender domain.Sender
	Header string
	At     time.Time
}

// Batch is the content of a group handed to the flush executor.
type Batch struct {
	Key      domain.GroupKey
	ChatID   int64
	Sender   domain.Sender
	Header   string
	Items    []domain.MediaItem
	OpenedAt time.Time
}

type GroupSnapshot struct {
	Key       string    `json:"key"`
	ChatID    int64     `json:"chat_id"`
	Items     int       `json:"items"`
	OpenedAt  time.Time `json:"opened_at"`
	Scheduled bool      `json:"flush_scheduled"`
}

type entry struct {
	mu       sync.Mutex
	chatID   int64
	sender   domain.Sender
	header   string
	openedAt time.Time
	items    []domain.MediaItem
	flush    Timer
	retired  bool
}

// AggregationStore holds the albums in progress. Every key has its own entry lock, so admits and
// takes of unrelated groups never wait on each other.
type AggregationStore struct {
	entries sync.Map // domain.GroupKey -> *entry
}

func NewAggregationStore() *AggregationStore {
	return &AggregationStore{}
}

// Admit appends item to the group of key, opening the group when it does not exist.
// schedule is called at most once per group, under the group lock, when the group has no
// flush yet. It returns the group size after the append and whether this call opened the group.
func (s *AggregationStore) Admit(key domain.GroupKey, item domain.MediaItem, opener Opener, schedule func() Timer) (int, bool) {
	for {
		e := s.load(key)
		e.mu.Lock()
		if e.retired {
			// Taken between load and lock; the key is absent again.
			e.mu.Unlock()
			continue
		}

		opened := len(e.items) == 0
		if opened {
			e.chatID = opener.ChatID
			e.sender = opener.Sender
			e.header = opener.Header
			e.openedAt = opener.At
		}
		e.items = append(e.items, item)
		if e.flush == nil && schedule != nil {
			e.flush = schedule()
		}
		size := len(e.items)
		e.mu.Unlock()

		return size, opened
	}
}

func (s *AggregationStore) load(key domain.GroupKey) *entry {
	if v, ok := s.entries.Load(key); ok {
		return v.(*entry)
	}
	v, _ := s.entries.LoadOrStore(key, &entry{})
	return v.(*entry)
}

// Take removes the group of key and returns its content. It is the only way a group leaves the
// store: once it returns, a later admit of the same key opens a new group.
func (s *AggregationStore) Take(key domain.GroupKey) (Batch, bool) {
	v, ok := s.entries.Load(key)
	if !ok {
		return Batch{}, false
	}
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.retired {
		return Batch{}, false
	}
	e.retired = true
	s.entries.CompareAndDelete(key, e)

	b := Batch{
		Key:      key,
		ChatID:   e.chatID,
		Sender:   e.sender,
		Header:   e.header,
		Items:    e.items,
		OpenedAt: e.openedAt,
	}
	e.items = nil
	return b, true
}

// StopFlush cancels the scheduled flush of key. It returns false when there is no such group or
// when the flush has already started, in which case the flush owns the group.
func (s *AggregationStore) StopFlush(key domain.GroupKey) bool {
	v, ok := s.entries.Load(key)
	if !ok {
		return false
	}
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.retired || e.flush == nil {
		return false
	}
	return e.flush.Stop()
}

func (s *AggregationStore) Keys() []domain.GroupKey {
	var keys []domain.GroupKey
	s.entries.Range(func(k, _ any) bool {
		keys = append(keys, k.(domain.GroupKey))
		return true
	})
	return keys
}

// Snapshot lists the open groups, oldest first.
func (s *AggregationStore) Snapshot() []GroupSnapshot {
	var out []GroupSnapshot
	s.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		if !e.retired && len(e.items) > 0 {
			out = append(out, GroupSnapshot{
				Key:       k.(domain.GroupKey).String(),
				ChatID:    e.chatID,
				Items:     len(e.items),
				OpenedAt:  e.openedAt,
				Scheduled: e.flush != nil,
			})
		}
		e.mu.Unlock()
		return true
	})

	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

func (s *AggregationStore) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
