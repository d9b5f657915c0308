package usecase

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	journal "anon_relay_bot/internal/pkg/journal/domain"
	"anon_relay_bot/internal/pkg/journal/memory_storage"
	"anon_relay_bot/internal/pkg/metrics"
	"anon_relay_bot/internal/pkg/relay/domain"
)

const (
	userChat  int64 = 7
	auditChat int64 = -100500
	window          = 5 * time.Second
)

var t0 = time.Unix(1_700_000_000, 0) // aligned to a 5s bucket

type fixture struct {
	relay   *Relay
	clock   *manualClock
	sender  *recordingSender
	journal *memory_storage.MemoryStorage
}

func newFixture(t *testing.T, cfg Config, log *zap.Logger) *fixture {
	t.Helper()
	if cfg.Window == 0 {
		cfg.Window = window
	}
	if cfg.AuditChatID == 0 {
		cfg.AuditChatID = auditChat
	}
	if log == nil {
		log = zap.NewNop()
	}
	clock := newManualClock(t0)
	sender := newRecordingSender()
	store := memory_storage.NewMemoryStorage(10)
	return &fixture{
		relay:   New(cfg, sender, store, log, WithClock(clock)),
		clock:   clock,
		sender:  sender,
		journal: store,
	}
}

func (f *fixture) dispatch(t *testing.T, msg domain.Message) {
	t.Helper()
	if err := f.relay.Dispatch(context.Background(), msg); err != nil {
		t.Fatalf("Dispatch(%d) error: %v", msg.MessageID, err)
	}
}

func items(refs ...string) []domain.MediaItem {
	out := make([]domain.MediaItem, 0, len(refs))
	for _, r := range refs {
		out = append(out, domain.MediaItem{Kind: domain.MediaPhoto, ContentRef: r})
	}
	return out
}

func TestRelay_NativeAlbumFlushesOnceAfterWindow(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.dispatch(t, photoMsg(1, userChat, "groupA", "p1", t0))
	f.clock.Advance(time.Second)
	f.dispatch(t, photoMsg(2, userChat, "groupA", "p2", t0.Add(time.Second)))

	f.clock.Advance(3900 * time.Millisecond)
	if calls := f.sender.Calls(); len(calls) != 0 {
		t.Fatalf("sent before the window elapsed: %+v", calls)
	}

	f.clock.Advance(100 * time.Millisecond)

	header := AuditHeader(alice)
	want := []sentCall{
		{Op: "sendMediaGroup", ChatID: userChat, Items: items("p1", "p2")},
		{Op: "sendMessage", ChatID: auditChat, Text: header + albumMarker},
		{Op: "sendMediaGroup", ChatID: auditChat, Items: items("p1", "p2")},
	}
	if got := f.sender.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls =\n%+v\nwant\n%+v", got, want)
	}

	f.clock.Advance(time.Hour)
	if got := len(f.sender.Calls()); got != len(want) {
		t.Fatalf("album flushed again: %d calls", got)
	}
	if got := f.clock.scheduled(); got != 1 {
		t.Fatalf("scheduled flushes = %d, want 1", got)
	}
}

func TestRelay_BurstWithoutGroupIDMergesWithinBucket(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.dispatch(t, photoMsg(1, userChat, "", "p1", t0))
	f.dispatch(t, photoMsg(2, userChat, "", "p2", t0.Add(200*time.Millisecond)))
	f.clock.Advance(window)

	dest := f.sender.ops("sendMediaGroup")
	if len(dest) != 2 {
		t.Fatalf("sendMediaGroup calls = %d, want 2 (destination + audit)", len(dest))
	}
	if !reflect.DeepEqual(dest[0].Items, items("p1", "p2")) {
		t.Errorf("batch = %+v, want p1, p2", dest[0].Items)
	}
}

func TestRelay_BurstStraddlingBucketBoundarySplits(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.dispatch(t, photoMsg(1, userChat, "", "p1", t0.Add(4900*time.Millisecond)))
	f.dispatch(t, photoMsg(2, userChat, "", "p2", t0.Add(5100*time.Millisecond)))
	f.clock.Advance(window)

	var batches [][]domain.MediaItem
	for _, c := range f.sender.ops("sendMediaGroup") {
		if c.ChatID == userChat {
			batches = append(batches, c.Items)
		}
	}
	if len(batches) != 2 {
		t.Fatalf("destination batches = %d, want 2", len(batches))
	}
}

func TestRelay_SameBucketDifferentChatsDoNotMerge(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.dispatch(t, photoMsg(1, 7, "", "p1", t0))
	f.dispatch(t, photoMsg(2, 8, "", "p2", t0))
	f.clock.Advance(window)

	got := map[int64]int{}
	for _, c := range f.sender.ops("sendMediaGroup") {
		got[c.ChatID] += len(c.Items)
	}
	if got[7] != 1 || got[8] != 1 || got[auditChat] != 2 {
		t.Fatalf("items per chat = %v", got)
	}
}

// Loose photos carry no sender in their key, so a group chat burst from two users becomes one album
// audited under whoever opened it.
func TestRelay_GroupChatBurstFromTwoSendersMergesUnderFirstSender(t *testing.T) {
	const groupChat int64 = -42
	f := newFixture(t, Config{}, nil)
	bob := domain.Sender{ID: 43, FirstName: "Bob", Username: "bob"}

	f.dispatch(t, photoMsg(1, groupChat, "", "p1", t0))
	second := photoMsg(2, groupChat, "", "p2", t0.Add(time.Second))
	second.Sender = bob
	f.dispatch(t, second)
	f.clock.Advance(window)

	var dest []sentCall
	for _, c := range f.sender.ops("sendMediaGroup") {
		if c.ChatID == groupChat {
			dest = append(dest, c)
		}
	}
	if len(dest) != 1 || !reflect.DeepEqual(dest[0].Items, items("p1", "p2")) {
		t.Fatalf("destination batches = %+v, want one with p1, p2", dest)
	}

	texts := f.sender.ops("sendMessage")
	if len(texts) != 1 || texts[0].Text != albumAuditText(AuditHeader(alice)) {
		t.Errorf("audit text = %+v, want the header of the first sender", texts)
	}
}

func TestRelay_TextIsRelayedImmediately(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.dispatch(t, domain.Message{MessageID: 11, ChatID: userChat, Sender: alice, Date: t0, Text: "hi"})

	want := []sentCall{
		{Op: "copyMessage", ChatID: userChat, From: userChat, MsgID: 11},
		{Op: "sendMessage", ChatID: auditChat, Text: AuditHeader(alice)},
		{Op: "copyMessage", ChatID: auditChat, From: userChat, MsgID: 11},
	}
	if got := f.sender.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls =\n%+v\nwant\n%+v", got, want)
	}
	if n := f.clock.scheduled(); n != 0 {
		t.Fatalf("text message scheduled %d flushes", n)
	}
}

func TestRelay_NormalizationFailureMidAlbumIsExcluded(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.dispatch(t, photoMsg(1, userChat, "groupA", "p1", t0))

	broken := photoMsg(2, userChat, "groupA", "", t0)
	broken.Photo = []domain.PhotoSize{{FileID: ""}}
	err := f.relay.Dispatch(context.Background(), broken)
	var nerr *domain.NormalizationError
	if !errors.As(err, &nerr) {
		t.Fatalf("Dispatch(broken) error = %v, want NormalizationError", err)
	}
	if !errors.Is(err, domain.ErrUnsupportedMedia) {
		t.Errorf("error %v does not wrap ErrUnsupportedMedia", err)
	}

	f.dispatch(t, videoMsg(3, userChat, "groupA", "v3", t0))
	f.clock.Advance(window)

	want := []domain.MediaItem{
		{Kind: domain.MediaPhoto, ContentRef: "p1"},
		{Kind: domain.MediaVideo, ContentRef: "v3"},
	}
	dest := f.sender.ops("sendMediaGroup")
	if len(dest) != 2 || !reflect.DeepEqual(dest[0].Items, want) {
		t.Fatalf("destination batch = %+v, want %+v", dest, want)
	}
}

func TestRelay_WindowIsMeasuredFromFirstItem(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.dispatch(t, photoMsg(1, userChat, "groupA", "p1", t0))
	f.clock.Advance(4 * time.Second)
	f.dispatch(t, photoMsg(2, userChat, "groupA", "p2", t0.Add(4*time.Second)))
	f.clock.Advance(time.Second)

	dest := f.sender.ops("sendMediaGroup")
	if len(dest) == 0 {
		t.Fatal("album not flushed 5s after its first item")
	}
	if !reflect.DeepEqual(dest[0].Items, items("p1", "p2")) {
		t.Errorf("batch = %+v", dest[0].Items)
	}
}

func TestRelay_ConcurrentAdmitsShareOneGroup(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = f.relay.Dispatch(context.Background(), photoMsg(i, userChat, "groupA", "p", t0))
		}(i)
	}
	wg.Wait()

	if got := f.relay.store.Len(); got != 1 {
		t.Fatalf("store entries = %d, want 1", got)
	}
	if got := f.clock.scheduled(); got != 1 {
		t.Fatalf("scheduled flushes = %d, want 1", got)
	}

	f.clock.Advance(window)
	dest := f.sender.ops("sendMediaGroup")
	if len(dest) != 2 {
		t.Fatalf("sendMediaGroup calls = %d, want 2", len(dest))
	}
	if got := len(dest[0].Items); got != n {
		t.Fatalf("destination batch has %d items, want %d", got, n)
	}
}

func TestRelay_ItemAfterFlushOpensNewGroup(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.dispatch(t, photoMsg(1, userChat, "groupA", "p1", t0))
	f.clock.Advance(window)
	f.dispatch(t, photoMsg(2, userChat, "groupA", "p2", t0.Add(window)))

	if got := len(f.relay.Pending()); got != 1 {
		t.Fatalf("pending groups = %d, want 1", got)
	}
	f.clock.Advance(window)

	var batches [][]domain.MediaItem
	for _, c := range f.sender.ops("sendMediaGroup") {
		if c.ChatID == userChat {
			batches = append(batches, c.Items)
		}
	}
	want := [][]domain.MediaItem{items("p1"), items("p2")}
	if !reflect.DeepEqual(batches, want) {
		t.Fatalf("batches = %+v, want %+v", batches, want)
	}
}

func TestRelay_FailedDestinationSendDoesNotBlockAudit(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	f := newFixture(t, Config{}, zap.New(core))
	f.sender.failOn("sendMediaGroup", userChat, errors.New("chat not found"))

	destBase := testutil.ToFloat64(metrics.SendFailures.WithLabelValues(metrics.TargetDestination))
	flushBase := testutil.ToFloat64(metrics.BatchesFlushed)

	f.dispatch(t, photoMsg(1, userChat, "groupA", "p1", t0))
	f.dispatch(t, photoMsg(2, userChat, "groupA", "p2", t0))
	f.clock.Advance(window)

	audit := 0
	for _, c := range f.sender.Calls() {
		if c.ChatID == auditChat {
			audit++
		}
	}
	if audit != 2 {
		t.Fatalf("audit calls = %d, want header + album", audit)
	}

	if got := testutil.ToFloat64(metrics.SendFailures.WithLabelValues(metrics.TargetDestination)); got != destBase+1 {
		t.Errorf("destination failures = %v, want %v", got, destBase+1)
	}
	if got := testutil.ToFloat64(metrics.BatchesFlushed); got != flushBase+1 {
		t.Errorf("batches flushed = %v, want %v", got, flushBase+1)
	}
	if got := logs.FilterMessage("send failed").Len(); got != 1 {
		t.Errorf("logged send failures = %d, want 1", got)
	}

	recent, _ := f.journal.RecentDeliveries(context.Background(), 1)
	if len(recent) != 1 {
		t.Fatalf("journal has %d deliveries", len(recent))
	}
	d := recent[0]
	if d.DestinationStatus != journal.StatusFailed || d.AuditStatus != journal.StatusSuccess || d.ItemCount != 2 {
		t.Errorf("journal delivery = %+v", d)
	}
}

func TestRelay_FailedAuditSendIsReportedForText(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	f := newFixture(t, Config{}, zap.New(core))
	f.sender.failOn("sendMessage", auditChat, errors.New("bot was kicked"))

	err := f.relay.Dispatch(context.Background(), domain.Message{MessageID: 5, ChatID: userChat, Sender: alice, Text: "hi"})

	var serr *domain.SendError
	if !errors.As(err, &serr) || serr.ChatID != auditChat {
		t.Fatalf("Dispatch error = %v, want SendError for the audit chat", err)
	}
	if got := len(f.sender.ops("copyMessage")); got != 2 {
		t.Errorf("copyMessage calls = %d, want 2", got)
	}
	if got := logs.FilterField(zap.String("target", metrics.TargetAudit)).Len(); got != 1 {
		t.Errorf("audit failures logged = %d, want 1", got)
	}
}

func TestRelay_DestinationOverride(t *testing.T) {
	const channel int64 = -100777
	f := newFixture(t, Config{DestinationChatID: channel}, nil)

	f.dispatch(t, domain.Message{MessageID: 3, ChatID: userChat, Sender: alice, Text: "hi"})
	f.dispatch(t, photoMsg(4, userChat, "g", "p1", t0))
	f.clock.Advance(window)

	calls := f.sender.Calls()
	if calls[0].ChatID != channel || calls[0].From != userChat {
		t.Errorf("text copied to %d from %d, want %d from %d", calls[0].ChatID, calls[0].From, channel, userChat)
	}
	dest := f.sender.ops("sendMediaGroup")
	if dest[0].ChatID != channel {
		t.Errorf("album sent to %d, want %d", dest[0].ChatID, channel)
	}
}

func TestRelay_CloseFlushesPendingAlbums(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.dispatch(t, photoMsg(1, userChat, "groupA", "p1", t0))
	f.dispatch(t, photoMsg(2, userChat, "", "p2", t0))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.relay.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := len(f.sender.ops("sendMediaGroup")); got != 4 {
		t.Fatalf("sendMediaGroup calls after Close = %d, want 4", got)
	}
	if got := f.clock.active(); got != 0 {
		t.Errorf("active timers after Close = %d", got)
	}
	if err := f.relay.Dispatch(context.Background(), photoMsg(3, userChat, "", "p3", t0)); !errors.Is(err, ErrClosed) {
		t.Errorf("Dispatch after Close = %v, want ErrClosed", err)
	}

	f.clock.Advance(window)
	if got := len(f.sender.ops("sendMediaGroup")); got != 4 {
		t.Errorf("stopped flush ran anyway: %d calls", got)
	}
}

func TestRelay_PendingListsOpenGroups(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.dispatch(t, photoMsg(1, userChat, "groupA", "p1", t0))
	f.dispatch(t, photoMsg(2, userChat, "groupA", "p2", t0))

	pending := f.relay.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending = %+v", pending)
	}
	p := pending[0]
	if p.Key != "album:groupA" || p.Items != 2 || !p.Scheduled || p.ChatID != userChat {
		t.Errorf("snapshot = %+v", p)
	}

	f.clock.Advance(window)
	if got := len(f.relay.Pending()); got != 0 {
		t.Errorf("pending after flush = %d", got)
	}
}

func TestRelay_JournalRecordsSinglesAndBatches(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.dispatch(t, domain.Message{MessageID: 1, ChatID: userChat, Sender: alice, Text: "hi"})
	f.dispatch(t, photoMsg(2, userChat, "g", "p1", t0))
	f.dispatch(t, photoMsg(3, userChat, "g", "p2", t0))
	f.clock.Advance(window)

	stats, err := f.journal.DeliveryStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := journal.Stats{Batches: 1, Singles: 1, Items: 3}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}

	recent, _ := f.journal.RecentDeliveries(context.Background(), 0)
	if recent[0].GroupKey != "album:g" || recent[0].SenderUsername != "alice" {
		t.Errorf("latest delivery = %+v", recent[0])
	}
}
