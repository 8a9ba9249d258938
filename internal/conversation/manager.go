package conversation

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nextvibe/chatsync/internal/bus"
	"github.com/nextvibe/chatsync/internal/socket"
	"github.com/nextvibe/chatsync/internal/store"
	"github.com/nextvibe/chatsync/internal/wire"
)

// Manager owns the active conversation. Opening a conversation discards the
// previous one; there is no background retention of closed stores.
type Manager struct {
	selfID     int64
	fetcher    Fetcher
	sender     FrameSender
	rec        Attacher
	bus        *bus.Bus
	logger     *zap.Logger
	ackTimeout time.Duration

	mu     sync.Mutex
	active *Handle
}

// NewManager creates the subscription-layer manager.
func NewManager(selfID int64, fetcher Fetcher, sender FrameSender, rec Attacher, b *bus.Bus, logger *zap.Logger, ackTimeout time.Duration) *Manager {
	return &Manager{
		selfID:     selfID,
		fetcher:    fetcher,
		sender:     sender,
		rec:        rec,
		bus:        b,
		logger:     logger,
		ackTimeout: ackTimeout,
	}
}

// Open makes chatID the active conversation and returns its handle. Any
// previously open conversation is closed first. The caller drives the
// initial history load through Handle.LoadOlder.
func (m *Manager) Open(chatID, otherUserID int64) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		m.active.Close()
	}

	h := &Handle{
		chatID:      chatID,
		otherUserID: otherUserID,
		selfID:      m.selfID,
		st:          store.New(chatID),
		fetcher:     m.fetcher,
		sender:      m.sender,
		rec:         m.rec,
		bus:         m.bus,
		logger:      m.logger,
		ackTimeout:  m.ackTimeout,
		hasMore:     true,
	}
	m.rec.Attach(h.st)
	m.active = h

	// Let the server suppress notification badges while the chat is open.
	enter := wire.NewEnterChat(chatID, wire.FormatTimestamp(time.Now()))
	if err := m.sender.Send(enter); err != nil && !errors.Is(err, socket.ErrNotOpen) {
		m.logger.Warn("enter chat signal failed", zap.Error(err))
	}

	m.logger.Info("conversation opened",
		zap.Int64("chat_id", chatID),
		zap.Int64("other_user_id", otherUserID))
	return h
}

// CloseActive closes the open conversation, if any. Called on navigation
// away and at logout.
func (m *Manager) CloseActive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.active.Close()
		m.active = nil
	}
}
