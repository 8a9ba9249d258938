// Package sync reconciles inbound socket frames against the active message
// store. Frames arrive one at a time from the socket reader, so each handler
// runs to completion before the next frame is seen; the mutex here only
// serializes frame handling against attach/detach from the conversation
// layer.
package sync

import (
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/nextvibe/chatsync/internal/bus"
	"github.com/nextvibe/chatsync/internal/presence"
	"github.com/nextvibe/chatsync/internal/store"
	"github.com/nextvibe/chatsync/internal/wire"
)

// Bus event kinds published after store mutations.
const (
	EventReceived  = "message.received"
	EventConfirmed = "message.confirmed"
	EventEdited    = "message.edited"
	EventDeleted   = "message.deleted"
	EventRead      = "message.read"
	EventPresence  = "presence.changed"
	EventPreview   = "chatlist.preview"
)

// Confirmation is the payload of an EventConfirmed event.
type Confirmation struct {
	TempID  int64
	Message store.Message
}

// Reconciler matches inbound server events against the active conversation's
// store and the process-wide presence map.
type Reconciler struct {
	selfID   int64
	presence *presence.Map
	bus      *bus.Bus
	logger   *zap.Logger

	// markActive is invoked when a message from the other party lands in
	// the active conversation, so the server can mark it read immediately.
	markActive func(chatID int64)

	mu     gosync.Mutex
	active *store.Store
}

// NewReconciler creates a reconciler for the authenticated user.
func NewReconciler(selfID int64, pm *presence.Map, b *bus.Bus, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		selfID:   selfID,
		presence: pm,
		bus:      b,
		logger:   logger,
	}
}

// SetMarkActive registers the mark-active signal callback.
func (r *Reconciler) SetMarkActive(fn func(chatID int64)) {
	r.markActive = fn
}

// Attach makes st the active conversation store. Any previously attached
// store stops receiving frames.
func (r *Reconciler) Attach(st *store.Store) {
	r.mu.Lock()
	r.active = st
	r.mu.Unlock()
}

// Detach stops dispatch into st. A no-op if another store was attached in
// the meantime (rapid navigation).
func (r *Reconciler) Detach(st *store.Store) {
	r.mu.Lock()
	if r.active == st {
		r.active = nil
	}
	r.mu.Unlock()
}

// Handle reconciles one inbound frame. Registered as the socket manager's
// dispatch callback.
func (r *Reconciler) Handle(frame wire.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch f := frame.(type) {
	case wire.NewMessage:
		r.handleNewMessage(f)
	case wire.MessageEdited:
		if st := r.activeFor(f.ChatID); st != nil {
			if st.UpdateContent(f.MessageID, f.Content) {
				r.publish(EventEdited, f.ChatID, f.MessageID)
			}
		}
	case wire.MessageDeleted:
		if st := r.activeFor(f.ChatID); st != nil {
			if st.Remove(f.MessageID) {
				r.publish(EventDeleted, f.ChatID, f.MessageID)
			}
		}
	case wire.MessagesRead:
		r.handleMessagesRead(f)
	case wire.Presence:
		r.presence.Set(f.UserID, f.Online)
		r.publish(EventPresence, 0, f)
	default:
		r.logger.Warn("unhandled frame", zap.Any("frame", frame))
	}
}

func (r *Reconciler) handleNewMessage(f wire.NewMessage) {
	st := r.activeFor(f.ChatID)
	if st == nil {
		// Background conversation: the socket is user-scoped, so frames
		// for closed chats still arrive. They only feed list previews.
		r.publish(EventPreview, f.ChatID, f)
		return
	}

	msg := messageFromWire(f)

	if f.SenderID == r.selfID {
		if tempID, ok := r.findOptimistic(st, f); ok {
			msg.Status = store.StatusSent
			if orig, found := st.Get(tempID); found {
				msg.ClientID = orig.ClientID
			}
			st.Replace(tempID, msg)
			r.publish(EventConfirmed, f.ChatID, Confirmation{TempID: tempID, Message: msg})
			return
		}
		// No matching optimistic message (sent from another device, or the
		// heuristic missed). Degrade to a plain insert rather than dropping.
		r.logger.Warn("own message with no optimistic match",
			zap.Int64("chat_id", f.ChatID),
			zap.Int64("message_id", f.MessageID))
		if st.InsertNew(msg) {
			r.publish(EventReceived, f.ChatID, msg.ID)
		}
		return
	}

	if st.InsertNew(msg) {
		r.publish(EventReceived, f.ChatID, msg.ID)
		if r.markActive != nil {
			r.markActive(f.ChatID)
		}
	}
}

func (r *Reconciler) handleMessagesRead(f wire.MessagesRead) {
	if f.ReaderID == r.selfID {
		// Our own read echo; nothing to apply locally.
		return
	}
	st := r.activeFor(f.ChatID)
	if st == nil {
		return
	}
	if marked := st.MarkReadSince(f.ReaderID, f.Timestamp.Time); marked > 0 {
		r.publish(EventRead, f.ChatID, f.ReaderID)
	}
}

// findOptimistic locates the optimistic message a server confirmation
// corresponds to. Exact correlation-id match wins; servers that do not echo
// client_id fall back to the oldest still-sending message from self,
// preferring one with pending media, then equal content.
func (r *Reconciler) findOptimistic(st *store.Store, f wire.NewMessage) (int64, bool) {
	snap := st.Snapshot()

	if f.ClientID != "" {
		for _, m := range snap {
			if m.ClientID == f.ClientID && m.ID < 0 {
				return m.ID, true
			}
		}
		return 0, false
	}

	var contentMatch int64
	var haveContentMatch bool
	// Oldest-first: the server confirms sends in order.
	for i := len(snap) - 1; i >= 0; i-- {
		m := snap[i]
		if m.ID >= 0 || m.SenderID != r.selfID || m.Status != store.StatusSending {
			continue
		}
		if m.HasTempMedia() {
			return m.ID, true
		}
		if !haveContentMatch && m.Content == f.Content {
			contentMatch = m.ID
			haveContentMatch = true
		}
	}
	return contentMatch, haveContentMatch
}

// activeFor returns the attached store when it belongs to chatID. Callers
// hold r.mu.
func (r *Reconciler) activeFor(chatID int64) *store.Store {
	if r.active != nil && r.active.ChatID() == chatID {
		return r.active
	}
	return nil
}

func (r *Reconciler) publish(kind string, chatID int64, payload any) {
	r.bus.Publish(bus.Event{
		Kind:      kind,
		ChatID:    chatID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

func messageFromWire(f wire.NewMessage) store.Message {
	var media []store.MediaAttachment
	for _, m := range f.Media {
		media = append(media, store.MediaAttachment{ID: m.ID, FileURL: m.FileURL})
	}
	return store.Message{
		ID:        f.MessageID,
		ChatID:    f.ChatID,
		SenderID:  f.SenderID,
		Content:   f.Content,
		CreatedAt: f.CreatedAt.Time,
		Media:     media,
		ClientID:  f.ClientID,
	}
}
