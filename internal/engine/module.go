// Package engine composes the chat synchronization engine: config, logger,
// bus, presence, socket, reconciler, and the conversation manager, with
// lifecycle hooks for login (connect) and logout (teardown).
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/nextvibe/chatsync/internal/bus"
	"github.com/nextvibe/chatsync/internal/config"
	"github.com/nextvibe/chatsync/internal/conversation"
	"github.com/nextvibe/chatsync/internal/history"
	"github.com/nextvibe/chatsync/internal/logging"
	"github.com/nextvibe/chatsync/internal/presence"
	"github.com/nextvibe/chatsync/internal/socket"
	intsync "github.com/nextvibe/chatsync/internal/sync"
	"github.com/nextvibe/chatsync/internal/wire"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config *config.Config
}

// Module returns the fx module for the engine, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("engine",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			providePresence,
			provideSocket,
			provideFetcher,
			provideReconciler,
			provideConversationManager,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.Config.LogPath, p.Config.UserID)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func providePresence() *presence.Map {
	return presence.NewMap()
}

func provideSocket(p Params, b *bus.Bus, logger *zap.Logger) (*socket.Manager, error) {
	url := p.Config.SocketURL
	if url == "" {
		derived, err := socket.DeriveURL(p.Config.APIBaseURL, p.Config.UserID)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		url = derived
	}
	return socket.NewManager(socket.Options{
		URL:          url,
		ReconnectMin: p.Config.ReconnectMin.Std(),
		ReconnectMax: p.Config.ReconnectMax.Std(),
	}, b, logger), nil
}

func provideFetcher(p Params) *history.Fetcher {
	return history.New(p.Config.APIBaseURL, p.Config.Token, p.Config.PageSize)
}

func provideReconciler(p Params, pm *presence.Map, b *bus.Bus, logger *zap.Logger) *intsync.Reconciler {
	return intsync.NewReconciler(p.Config.UserID, pm, b, logger)
}

func provideConversationManager(p Params, f *history.Fetcher, sock *socket.Manager, rec *intsync.Reconciler, b *bus.Bus, logger *zap.Logger) *conversation.Manager {
	return conversation.NewManager(p.Config.UserID, f, sock, rec, b, logger, p.Config.AckTimeout.Std())
}

func registerLifecycle(lc fx.Lifecycle, sock *socket.Manager, rec *intsync.Reconciler, conv *conversation.Manager, pm *presence.Map, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Inbound frames dispatch straight into the reconciler; the
			// conversation layer routes read-status signals back out.
			rec.SetMarkActive(func(chatID int64) {
				_ = sock.Send(wire.NewReadStatus(chatID))
			})
			sock.OnFrame(rec.Handle)

			// The socket outlives any single conversation; it retries for
			// the whole session.
			sock.Start(context.Background())
			logger.Info("engine started", zap.Time("at", time.Now()))
			return nil
		},
		OnStop: func(_ context.Context) error {
			// Logout: the only event that tears the socket down and clears
			// presence.
			conv.CloseActive()
			sock.Close()
			pm.Reset()
			logger.Info("engine stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
