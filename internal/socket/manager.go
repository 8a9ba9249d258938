// Package socket owns the persistent WebSocket connection to the chat
// service. One connection is held per authenticated user and multiplexes all
// of that user's conversations; the manager reconnects for the lifetime of
// the session and is closed only on logout.
package socket

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nextvibe/chatsync/internal/bus"
	"github.com/nextvibe/chatsync/internal/wire"
)

const writeWait = 10 * time.Second

// ErrNotOpen is returned by Send when the connection is not in the OPEN
// state. Callers treat it as a silent local drop: the optimistic message
// stays pending and the ack window surfaces the failure.
var ErrNotOpen = errors.New("socket: connection not open")

// Options configures a Manager.
type Options struct {
	// URL is the full WebSocket endpoint including the /ws/{userId} path.
	URL string
	// ReconnectMin is the delay before a reconnection attempt.
	ReconnectMin time.Duration
	// ReconnectMax, when above ReconnectMin, enables capped exponential
	// backoff with jitter. Zero keeps the fixed delay.
	ReconnectMax time.Duration
}

// Manager dials the socket, decodes inbound frames, and dispatches them in
// wire arrival order to a single callback. Writes only succeed while the
// connection is Open.
type Manager struct {
	opts    Options
	machine *machine
	logger  *zap.Logger

	onFrame func(wire.Frame)

	mu     sync.Mutex // guards conn and writes to it
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a manager. OnFrame must be set before Start.
func NewManager(opts Options, b *bus.Bus, logger *zap.Logger) *Manager {
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = 5 * time.Second
	}
	return &Manager{
		opts:    opts,
		machine: newMachine(b),
		logger:  logger,
	}
}

// OnFrame registers the single dispatch callback, invoked once per decoded
// inbound frame. No reordering is performed at this layer.
func (m *Manager) OnFrame(fn func(wire.Frame)) {
	m.onFrame = fn
}

// State returns the current connection state.
func (m *Manager) State() State {
	return m.machine.Current()
}

// Start begins the connect/reconnect loop. Dial failures are not surfaced:
// the loop retries indefinitely until Close.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx)
}

// Close tears the connection down permanently. Only logout does this.
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	if m.conn != nil {
		_ = m.conn.Close()
	}
	m.mu.Unlock()
	if m.done != nil {
		<-m.done
	}
}

// Send encodes and writes an outbound frame if and only if the connection is
// Open. Any other state returns ErrNotOpen.
func (m *Manager) Send(f wire.Outbound) error {
	if m.machine.Current() != Open {
		return ErrNotOpen
	}
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return ErrNotOpen
	}
	_ = m.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	return nil
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	delay := m.opts.ReconnectMin
	_ = m.machine.Transition(Connecting)

	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, m.opts.URL, nil)
		if err != nil {
			m.logger.Warn("socket dial failed", zap.Error(err))
			_ = m.machine.Transition(Closed)
		} else {
			m.mu.Lock()
			m.conn = conn
			m.mu.Unlock()
			_ = m.machine.Transition(Open)
			m.logger.Info("socket connected", zap.String("url", m.opts.URL))
			delay = m.opts.ReconnectMin

			m.readLoop(conn)

			m.mu.Lock()
			m.conn = nil
			m.mu.Unlock()
			_ = conn.Close()
			_ = m.machine.Transition(Closed)
			m.logger.Warn("socket disconnected")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = m.nextDelay(delay)
		_ = m.machine.Transition(Connecting)
	}
}

// readLoop decodes inbound frames until the connection drops. Malformed
// frames are dropped without terminating dispatch for subsequent frames.
func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := wire.Decode(data)
		if err != nil {
			m.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		if m.onFrame != nil {
			m.onFrame(frame)
		}
	}
}

// nextDelay computes the delay for the following reconnection attempt. With
// no ReconnectMax configured the delay stays fixed; otherwise it doubles up
// to the cap, with uniform jitter of up to half the delay.
func (m *Manager) nextDelay(current time.Duration) time.Duration {
	if m.opts.ReconnectMax <= m.opts.ReconnectMin {
		return m.opts.ReconnectMin
	}
	next := current * 2
	if next > m.opts.ReconnectMax {
		next = m.opts.ReconnectMax
	}
	return next + time.Duration(rand.Int63n(int64(next/2+1)))
}
