package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nextvibe/chatsync/internal/bus"
	"github.com/nextvibe/chatsync/internal/presence"
	"github.com/nextvibe/chatsync/internal/socket"
	"github.com/nextvibe/chatsync/internal/store"
	intsync "github.com/nextvibe/chatsync/internal/sync"
	"github.com/nextvibe/chatsync/internal/wire"
)

const selfID = int64(1)

// fakeFetcher returns queued pages or errors, one per Fetch call.
type fakeFetcher struct {
	mu         sync.Mutex
	pages      [][]store.Message
	errs       []error
	calls      int
	lastBefore int64
}

func (f *fakeFetcher) Fetch(_ context.Context, _ int64, beforeID int64) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastBefore = beforeID
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeFetcher) PageSize() int { return 3 }

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSender records outbound frames; open=false simulates a closed socket.
type fakeSender struct {
	mu     sync.Mutex
	open   bool
	frames []wire.Outbound
}

func (s *fakeSender) Send(f wire.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return socket.ErrNotOpen
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSender) sent() []wire.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Outbound, len(s.frames))
	copy(out, s.frames)
	return out
}

func page(ids ...int64) []store.Message {
	msgs := make([]store.Message, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, store.Message{ID: id, ChatID: 7, SenderID: 2, CreatedAt: time.Now()})
	}
	return msgs
}

func fixture(t *testing.T, fetcher Fetcher, sender *fakeSender) (*Manager, *intsync.Reconciler) {
	t.Helper()
	b := bus.New()
	rec := intsync.NewReconciler(selfID, presence.NewMap(), b, zap.NewNop())
	m := NewManager(selfID, fetcher, sender, rec, b, zap.NewNop(), 50*time.Millisecond)
	return m, rec
}

func TestLoadOlderPagination(t *testing.T) {
	fetcher := &fakeFetcher{pages: [][]store.Message{
		page(30, 29, 28), // full page: more history
		page(27),         // short page: exhausted
	}}
	m, _ := fixture(t, fetcher, &fakeSender{open: true})
	h := m.Open(7, 2)

	if err := h.LoadOlder(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !h.HasMore() {
		t.Fatal("hasMore = false after full page")
	}

	if err := h.LoadOlder(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fetcher.lastBefore != 28 {
		t.Errorf("second fetch cursor = %d, want 28", fetcher.lastBefore)
	}
	if h.HasMore() {
		t.Error("hasMore = true after short page")
	}

	// Exhausted history: no further network calls.
	for i := 0; i < 3; i++ {
		if err := h.LoadOlder(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if got := fetcher.callCount(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}

	if h.Snapshot()[0].ID != 30 || len(h.Snapshot()) != 4 {
		t.Errorf("snapshot = %+v", h.Snapshot())
	}
}

func TestLoadOlderFailureIsNoOp(t *testing.T) {
	fetcher := &fakeFetcher{
		errs:  []error{errors.New("boom")},
		pages: [][]store.Message{page(30, 29, 28)},
	}
	m, _ := fixture(t, fetcher, &fakeSender{open: true})
	h := m.Open(7, 2)

	if err := h.LoadOlder(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !h.HasMore() {
		t.Error("failed fetch flipped hasMore")
	}
	if h.st.Len() != 0 {
		t.Error("failed fetch mutated the store")
	}

	// The retry succeeds and fetches from the unchanged cursor.
	if err := h.LoadOlder(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fetcher.lastBefore != 0 {
		t.Errorf("cursor = %d after failure, want 0", fetcher.lastBefore)
	}
	if h.st.Len() != 3 {
		t.Errorf("store len = %d, want 3", h.st.Len())
	}
}

func TestLoadOlderConcurrentGuard(t *testing.T) {
	block := make(chan struct{})
	fetcher := newBlockingFetcher(block)
	m, _ := fixture(t, fetcher, &fakeSender{open: true})
	h := m.Open(7, 2)

	done := make(chan error, 1)
	go func() { done <- h.LoadOlder(context.Background()) }()

	// Wait for the first call to be in flight.
	select {
	case <-fetcher.started:
	case <-time.After(time.Second):
		t.Fatal("first fetch never started")
	}

	// Second call must return immediately without fetching.
	if err := h.LoadOlder(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := fetcher.callCount(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (guard bypassed)", got)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

type blockingFetcher struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingFetcher(release chan struct{}) *blockingFetcher {
	return &blockingFetcher{
		started: make(chan struct{}, 1),
		release: release,
	}
}

func (f *blockingFetcher) Fetch(context.Context, int64, int64) ([]store.Message, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	f.once.Do(func() { f.started <- struct{}{} })
	<-f.release
	return nil, nil
}

func (f *blockingFetcher) PageSize() int { return 3 }

func (f *blockingFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestStaleFetchDoesNotMutateClosedStore(t *testing.T) {
	block := make(chan struct{})
	fetcher := newBlockingFetcher(block)
	m, _ := fixture(t, fetcher, &fakeSender{open: true})
	h := m.Open(7, 2)

	done := make(chan error, 1)
	go func() { done <- h.LoadOlder(context.Background()) }()
	<-fetcher.started

	// Navigate away while the fetch is in flight.
	h.Close()
	close(block)

	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if h.st.Len() != 0 {
		t.Error("stale completion wrote into a discarded store")
	}
}

func TestSendMessageOptimisticThenConfirmed(t *testing.T) {
	sender := &fakeSender{open: true}
	m, rec := fixture(t, &fakeFetcher{}, sender)
	h := m.Open(7, 2)

	tempID, err := h.SendMessage("hi", nil)
	if err != nil {
		t.Fatal(err)
	}
	if tempID >= 0 {
		t.Fatalf("temp id = %d, want negative", tempID)
	}

	snap := h.Snapshot()
	if len(snap) != 1 || snap[0].SenderID != selfID || snap[0].Status != store.StatusSending {
		t.Fatalf("optimistic message wrong: %+v", snap)
	}

	// Grab the client id off the outbound frame and echo it back.
	frames := sender.sent()
	sendFrame, ok := frames[len(frames)-1].(wire.Send)
	if !ok {
		t.Fatalf("last frame is %T, want wire.Send", frames[len(frames)-1])
	}
	rec.Handle(wire.NewMessage{
		ChatID: 7, MessageID: 500, SenderID: selfID, Content: "hi",
		CreatedAt: wire.Timestamp{Time: time.Now()}, ClientID: sendFrame.ClientID,
	})

	snap = h.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("store has %d messages after confirmation, want 1", len(snap))
	}
	if snap[0].ID != 500 || snap[0].Status != store.StatusSent {
		t.Errorf("confirmed message = %+v", snap[0])
	}
}

func TestSendMessageWhileSocketClosed(t *testing.T) {
	sender := &fakeSender{open: false}
	m, _ := fixture(t, &fakeFetcher{}, sender)
	h := m.Open(7, 2)

	tempID, err := h.SendMessage("lost?", nil)
	if err != nil {
		t.Fatalf("send during gap returned error: %v", err)
	}

	// Optimistic message remains visible and pending.
	msg, ok := h.st.Get(tempID)
	if !ok {
		t.Fatal("optimistic message missing")
	}
	if msg.Status != store.StatusSending {
		t.Errorf("status = %q, want sending", msg.Status)
	}
}

func TestAckTimeoutMarksFailedAndRetryWorks(t *testing.T) {
	sender := &fakeSender{open: false}
	m, _ := fixture(t, &fakeFetcher{}, sender)
	b := m.bus
	h := m.Open(7, 2)

	failed, unsub := b.Subscribe(EventSendFailed, 4)
	defer unsub()

	tempID, err := h.SendMessage("never acked", nil)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-failed:
		if evt.Payload.(int64) != tempID {
			t.Errorf("failed id = %v, want %d", evt.Payload, tempID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ack window never expired")
	}

	msg, _ := h.st.Get(tempID)
	if msg.Status != store.StatusFailed {
		t.Fatalf("status = %q, want failed", msg.Status)
	}

	// Socket is back: retry re-dispatches with the same correlation id.
	sender.mu.Lock()
	sender.open = true
	sender.mu.Unlock()

	if err := h.RetrySend(tempID); err != nil {
		t.Fatal(err)
	}
	frames := sender.sent()
	sendFrame := frames[len(frames)-1].(wire.Send)
	if sendFrame.ClientID != msg.ClientID {
		t.Error("retry changed the correlation id")
	}
	cur, _ := h.st.Get(tempID)
	if cur.Status != store.StatusSending {
		t.Errorf("status after retry = %q, want sending", cur.Status)
	}
}

func TestSendMessageEmpty(t *testing.T) {
	m, _ := fixture(t, &fakeFetcher{}, &fakeSender{open: true})
	h := m.Open(7, 2)

	if _, err := h.SendMessage("", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("err = %v, want ErrEmptyMessage", err)
	}
}

func TestMarkActiveRead(t *testing.T) {
	sender := &fakeSender{open: true}
	m, _ := fixture(t, &fakeFetcher{}, sender)
	h := m.Open(7, 2)
	baseline := len(sender.sent()) // enter_chat from Open

	// No unread messages from the other party: nothing sent.
	h.MarkActiveRead()
	if len(sender.sent()) != baseline {
		t.Error("read status sent with nothing unread")
	}

	h.st.InsertNew(store.Message{ID: 9, ChatID: 7, SenderID: 2, Content: "unread", CreatedAt: time.Now()})
	h.MarkActiveRead()

	frames := sender.sent()
	if len(frames) != baseline+1 {
		t.Fatalf("sent %d frames, want %d", len(frames), baseline+1)
	}
	rs, ok := frames[len(frames)-1].(wire.ReadStatus)
	if !ok || rs.ChatID != 7 {
		t.Errorf("last frame = %#v", frames[len(frames)-1])
	}
}

func TestOpenSendsEnterChatAndReplacesActive(t *testing.T) {
	sender := &fakeSender{open: true}
	m, rec := fixture(t, &fakeFetcher{}, sender)

	first := m.Open(7, 2)
	frames := sender.sent()
	if len(frames) != 1 {
		t.Fatalf("sent %d frames on open, want 1", len(frames))
	}
	if ec, ok := frames[0].(wire.EnterChat); !ok || ec.Type != wire.TypeEnterChat || ec.ChatID != 7 {
		t.Errorf("open frame = %#v", frames[0])
	}

	second := m.Open(8, 3)
	// Frames for the first conversation no longer land anywhere.
	rec.Handle(wire.NewMessage{ChatID: 7, MessageID: 1, SenderID: 2, Content: "late", CreatedAt: wire.Timestamp{Time: time.Now()}})
	if first.st.Len() != 0 {
		t.Error("closed conversation store received a frame")
	}

	rec.Handle(wire.NewMessage{ChatID: 8, MessageID: 2, SenderID: 3, Content: "fresh", CreatedAt: wire.Timestamp{Time: time.Now()}})
	if second.st.Len() != 1 {
		t.Error("active conversation did not receive its frame")
	}
}

func TestOnChangeNotifiesForOwnChatOnly(t *testing.T) {
	sender := &fakeSender{open: true}
	m, rec := fixture(t, &fakeFetcher{}, sender)
	h := m.Open(7, 2)

	changes := make(chan struct{}, 8)
	unsub := h.OnChange(func() { changes <- struct{}{} })
	defer unsub()

	rec.Handle(wire.NewMessage{ChatID: 7, MessageID: 3, SenderID: 2, Content: "x", CreatedAt: wire.Timestamp{Time: time.Now()}})

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("no change notification for own chat")
	}
}
