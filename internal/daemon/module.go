package daemon

import (
	"context"

	"github.com/matheus3301/pchat/internal/api"
	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/config"
	"github.com/matheus3301/pchat/internal/live"
	"github.com/matheus3301/pchat/internal/lock"
	"github.com/matheus3301/pchat/internal/logging"
	"github.com/matheus3301/pchat/internal/outbox"
	"github.com/matheus3301/pchat/internal/peer"
	"github.com/matheus3301/pchat/internal/restapi"
	"github.com/matheus3301/pchat/internal/room"
	"github.com/matheus3301/pchat/internal/session"
	intsync "github.com/matheus3301/pchat/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	// PeerID is opened as soon as the engine starts; zero opens nothing.
	PeerID     int64
	SocketPath string         // optional override for testing; empty = use default
	Config     *config.Config // optional; nil = load ~/.pchat/config.toml
	LogStderr  bool
}

// Module returns the fx module for a client session, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideRESTClient,
			provideLiveConn,
			provideResolver,
			provideHistory,
			provideSender,
			provideDirectory,
			provideEngine,
			api.NewHealthService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	return config.LoadOrDefault(session.ConfigPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Path:    session.LogPath(p.SessionName),
		Session: p.SessionName,
		Level:   cfg.Log.Level,
		Stderr:  p.LogStderr,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName), "pchat")
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideRESTClient(cfg *config.Config) *restapi.Client {
	return restapi.New(cfg.Server.BaseURL, cfg.Server.Token, cfg.Server.RequestTimeout)
}

func provideLiveConn(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *live.Conn {
	return live.NewConn(live.WebSocketDialer(cfg.Server.WSURL, cfg.Server.Token), b, logger.Named("live"))
}

func provideResolver(c *restapi.Client) *room.Resolver {
	return room.NewResolver(c)
}

func provideHistory(c *restapi.Client) *room.HistoryLoader {
	return room.NewHistoryLoader(c)
}

func provideSender(c *restapi.Client, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(c, b, logger.Named("outbox"))
}

func provideDirectory(c *restapi.Client) *peer.Directory {
	return peer.NewDirectory(c)
}

func provideEngine(
	cfg *config.Config,
	resolver *room.Resolver,
	history *room.HistoryLoader,
	conn *live.Conn,
	client *restapi.Client,
	sender *outbox.Sender,
	b *bus.Bus,
	logger *zap.Logger,
) (*intsync.Engine, error) {
	if cfg.Profile.ViewerID <= 0 {
		return nil, session.ErrNoViewer
	}
	return intsync.NewEngine(cfg.Profile.ViewerID, intsync.Deps{
		Resolver: resolver,
		History:  history,
		Channel:  conn,
		Marker:   client,
		Outbox:   sender,
		Bus:      b,
		Logger:   logger.Named("engine"),
	}), nil
}

func registerLifecycle(
	lc fx.Lifecycle,
	p Params,
	srv *Server,
	lk *lock.Lock,
	conn *live.Conn,
	engine *intsync.Engine,
	sender *outbox.Sender,
	health *api.HealthService,
	b *bus.Bus,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			health.Start(context.Background())

			// Without the live channel the conversation still loads from history.
			if err := conn.Connect(ctx); err != nil {
				logger.Error("live channel unavailable", zap.Error(err))
				b.Publish(bus.NewEvent(bus.KindLiveDown, "", err.Error()))
			}

			sender.Start(context.Background())
			engine.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if p.PeerID != 0 {
				engine.Open(p.PeerID)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// The engine leaves its room over the live channel, so it stops first.
			engine.Stop()
			sender.Stop()
			if err := conn.Close(); err != nil {
				logger.Debug("closing live channel", zap.Error(err))
			}
			health.Stop()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("session stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
