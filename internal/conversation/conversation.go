// Package conversation is the subscription layer: the interface a UI renders
// against. A Handle exposes an ordered snapshot of the open conversation and
// accepts intents (send, load older history, mark read); changes flow back
// through the event bus.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nextvibe/chatsync/internal/bus"
	"github.com/nextvibe/chatsync/internal/media"
	"github.com/nextvibe/chatsync/internal/socket"
	"github.com/nextvibe/chatsync/internal/store"
	"github.com/nextvibe/chatsync/internal/wire"
)

// Bus event kinds published by the subscription layer.
const (
	EventQueued     = "message.queued"
	EventSendFailed = "message.send_failed"
	EventPageLoaded = "conversation.page_loaded"
)

// ErrEmptyMessage is returned for a send with no content and no attachments.
var ErrEmptyMessage = errors.New("conversation: empty message")

// Fetcher pulls pages of older messages. *history.Fetcher satisfies this.
type Fetcher interface {
	Fetch(ctx context.Context, chatID, beforeID int64) ([]store.Message, error)
	PageSize() int
}

// FrameSender writes outbound frames. *socket.Manager satisfies this.
type FrameSender interface {
	Send(f wire.Outbound) error
}

// Attacher routes inbound frames into the active store. *sync.Reconciler
// satisfies this.
type Attacher interface {
	Attach(st *store.Store)
	Detach(st *store.Store)
}

// Handle is the live view of one open conversation.
type Handle struct {
	chatID      int64
	otherUserID int64
	selfID      int64

	st      *store.Store
	fetcher Fetcher
	sender  FrameSender
	rec     Attacher
	bus     *bus.Bus
	logger  *zap.Logger

	ackTimeout time.Duration

	mu         sync.Mutex
	fetching   bool
	hasMore    bool
	cursor     int64 // oldest loaded server message id; 0 before first page
	closed     bool
	lastTempID int64
	ackTimers  map[int64]*time.Timer
}

// ChatID returns the conversation id.
func (h *Handle) ChatID() int64 {
	return h.chatID
}

// Snapshot returns the newest-first message sequence.
func (h *Handle) Snapshot() []store.Message {
	return h.st.Snapshot()
}

// HasMore reports whether older history may still exist on the server.
func (h *Handle) HasMore() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hasMore
}

// OnChange invokes fn after every change to this conversation's view.
// Returns an unsubscribe function.
func (h *Handle) OnChange(fn func()) func() {
	msgCh, unsubMsg := h.bus.Subscribe("message.", 64)
	convCh, unsubConv := h.bus.Subscribe("conversation.", 16)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case evt := <-msgCh:
				if evt.ChatID == h.chatID {
					fn()
				}
			case evt := <-convCh:
				if evt.ChatID == h.chatID {
					fn()
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		unsubMsg()
		unsubConv()
		close(done)
	}
}

// LoadOlder fetches the next page of history and merges it at the older end.
// Calls while a fetch is in flight, after history is exhausted, or after the
// conversation closed are no-ops. A failed fetch leaves hasMore and the
// cursor exactly as they were.
func (h *Handle) LoadOlder(ctx context.Context) error {
	h.mu.Lock()
	if h.closed || h.fetching || !h.hasMore {
		h.mu.Unlock()
		return nil
	}
	h.fetching = true
	cursor := h.cursor
	h.mu.Unlock()

	page, err := h.fetcher.Fetch(ctx, h.chatID, cursor)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.fetching = false

	if h.closed {
		// Conversation was torn down while the request was in flight; the
		// store is discarded, do not touch it.
		return nil
	}
	if err != nil {
		h.logger.Warn("history fetch failed",
			zap.Int64("chat_id", h.chatID),
			zap.Error(err))
		return fmt.Errorf("load older: %w", err)
	}

	h.st.MergeOlderPage(page)
	h.hasMore = len(page) == h.fetcher.PageSize()
	if len(page) > 0 {
		h.cursor = page[len(page)-1].ID
	}

	h.bus.Publish(bus.Event{
		Kind:      EventPageLoaded,
		ChatID:    h.chatID,
		Timestamp: time.Now(),
		Payload:   len(page),
	})
	return nil
}

// SendMessage inserts an optimistic message and dispatches the send frame.
// The returned id is the temporary local id; the reconciler retires it when
// the server confirms. A closed socket does not fail the call: the message
// stays visible locally and the ack window surfaces the failure.
func (h *Handle) SendMessage(content string, mediaPaths []string) (int64, error) {
	if content == "" && len(mediaPaths) == 0 {
		return 0, ErrEmptyMessage
	}

	attachments, tempMedia, err := media.EncodeAttachments(mediaPaths)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0, errors.New("conversation: closed")
	}
	tempID := h.nextTempID()
	h.mu.Unlock()

	clientID := uuid.NewString()
	msg := store.Message{
		ID:        tempID,
		ChatID:    h.chatID,
		SenderID:  h.selfID,
		Content:   content,
		CreatedAt: time.Now(),
		Media:     tempMedia,
		ClientID:  clientID,
		Status:    store.StatusSending,
	}
	h.st.InsertNew(msg)
	h.bus.Publish(bus.Event{
		Kind:      EventQueued,
		ChatID:    h.chatID,
		Timestamp: time.Now(),
		Payload:   tempID,
	})

	h.dispatch(wire.Send{
		ChatID:   h.chatID,
		Message:  content,
		Media:    attachments,
		ClientID: clientID,
	}, tempID)

	return tempID, nil
}

// RetrySend re-dispatches a message that was surfaced as failed.
func (h *Handle) RetrySend(tempID int64) error {
	msg, ok := h.st.Get(tempID)
	if !ok {
		return fmt.Errorf("retry send: message %d not found", tempID)
	}
	if msg.Status != store.StatusFailed {
		return fmt.Errorf("retry send: message %d is %q, not failed", tempID, msg.Status)
	}

	paths := make([]string, 0, len(msg.Media))
	for _, att := range msg.Media {
		if att.IsTemp {
			paths = append(paths, att.FileURL)
		}
	}
	attachments, _, err := media.EncodeAttachments(paths)
	if err != nil {
		return fmt.Errorf("retry send: %w", err)
	}

	h.st.SetStatus(tempID, store.StatusSending)
	h.bus.Publish(bus.Event{
		Kind:      EventQueued,
		ChatID:    h.chatID,
		Timestamp: time.Now(),
		Payload:   tempID,
	})

	h.dispatch(wire.Send{
		ChatID:   h.chatID,
		Message:  msg.Content,
		Media:    attachments,
		ClientID: msg.ClientID,
	}, tempID)
	return nil
}

// MarkActiveRead sends a read-status frame when the snapshot holds unread
// messages from the other party.
func (h *Handle) MarkActiveRead() {
	unread := false
	for _, m := range h.st.Snapshot() {
		if m.SenderID == h.otherUserID && !m.IsRead {
			unread = true
			break
		}
	}
	if !unread {
		return
	}
	if err := h.sender.Send(wire.NewReadStatus(h.chatID)); err != nil && !errors.Is(err, socket.ErrNotOpen) {
		h.logger.Warn("read status send failed", zap.Error(err))
	}
}

// Close unsubscribes the conversation from frame dispatch and discards its
// pending ack timers. The socket stays up; only logout closes it.
func (h *Handle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	timers := h.ackTimers
	h.ackTimers = nil
	h.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	h.rec.Detach(h.st)
}

// dispatch writes the frame and arms the acknowledgement window. A socket in
// any non-open state drops the frame silently; the optimistic message stays
// pending until the window expires.
func (h *Handle) dispatch(frame wire.Send, tempID int64) {
	if err := h.sender.Send(frame); err != nil && !errors.Is(err, socket.ErrNotOpen) {
		h.logger.Warn("send failed", zap.Int64("temp_id", tempID), zap.Error(err))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if h.ackTimers == nil {
		h.ackTimers = make(map[int64]*time.Timer)
	}
	h.ackTimers[tempID] = time.AfterFunc(h.ackTimeout, func() { h.ackExpired(tempID) })
}

// ackExpired flips a still-unconfirmed optimistic message to failed.
func (h *Handle) ackExpired(tempID int64) {
	h.mu.Lock()
	delete(h.ackTimers, tempID)
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return
	}

	msg, ok := h.st.Get(tempID)
	if !ok || msg.Status != store.StatusSending {
		// Confirmed (temp id retired) or already failed; nothing to do.
		return
	}
	h.st.SetStatus(tempID, store.StatusFailed)
	h.logger.Warn("message unacknowledged, marking failed",
		zap.Int64("chat_id", h.chatID),
		zap.Int64("temp_id", tempID))
	h.bus.Publish(bus.Event{
		Kind:      EventSendFailed,
		ChatID:    h.chatID,
		Timestamp: time.Now(),
		Payload:   tempID,
	})
}

// nextTempID returns a fresh temporary message id. Temporary ids are
// negative millisecond timestamps, decremented on collision so two sends in
// one millisecond stay distinct. Callers hold h.mu.
func (h *Handle) nextTempID() int64 {
	id := -time.Now().UnixMilli()
	if id >= h.lastTempID {
		id = h.lastTempID - 1
	}
	h.lastTempID = id
	return id
}
