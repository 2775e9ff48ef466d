package daemon

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/nkaluva9/health-chatbot/internal/api"
	"github.com/nkaluva9/health-chatbot/internal/bus"
	"github.com/nkaluva9/health-chatbot/internal/cleanup"
	"github.com/nkaluva9/health-chatbot/internal/clock"
	"github.com/nkaluva9/health-chatbot/internal/config"
	"github.com/nkaluva9/health-chatbot/internal/engine"
	"github.com/nkaluva9/health-chatbot/internal/gateway"
	"github.com/nkaluva9/health-chatbot/internal/gateway/selector"
	"github.com/nkaluva9/health-chatbot/internal/lock"
	"github.com/nkaluva9/health-chatbot/internal/logging"
	"github.com/nkaluva9/health-chatbot/internal/profile"
	"github.com/nkaluva9/health-chatbot/internal/store"
	intsync "github.com/nkaluva9/health-chatbot/internal/sync"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	Config      *config.Config
	SocketPath  string          // optional override for testing; empty = use default
	Clock       clock.Scheduler // optional; nil = wall clock
	Logger      *zap.Logger     // optional; nil = file + stderr logger
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideEngine,
			provideConnector,
			provideSynchronizer,
			provideSweeper,
			provideChatService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(logging.Options{
		Path:    profile.LogPath(p.ProfileName),
		Profile: p.ProfileName,
		Level:   p.Config.LogLevel,
		Console: true,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is only opened by the lock holder.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideEngine(p Params, b *bus.Bus, logger *zap.Logger) (*engine.Engine, error) {
	var opts []engine.Option
	if p.Clock != nil {
		opts = append(opts, engine.WithClock(p.Clock))
	}
	return engine.New(engine.Config{
		UserID:   p.Config.UserID,
		UserName: p.Config.UserName,
	}, b, logger.Named("engine"), opts...)
}

func provideConnector(p Params, e *engine.Engine, logger *zap.Logger) *engine.Connector {
	factory := func() (gateway.Gateway, error) {
		return selector.New(p.Config.Gateway, selector.Options{Clock: p.Clock, Logger: logger.Named("gateway")})
	}
	// Engine errors also reach clients as engine.error bus events.
	onError := func(err error) {
		logger.Warn("engine error", zap.Error(err))
	}
	return engine.NewConnector(e, factory, onError, logger)
}

func provideSynchronizer(p Params, db *store.DB, e *engine.Engine, b *bus.Bus, logger *zap.Logger) *intsync.Synchronizer {
	return intsync.NewSynchronizer(db, e, b, logger.Named("sync"), intsync.Options{
		UserID:  p.Config.UserID,
		Enabled: p.Config.Persistence.Enabled,
	})
}

func provideSweeper(p Params, db *store.DB, logger *zap.Logger) *cleanup.Sweeper {
	return cleanup.NewSweeper(db, logger.Named("cleanup"), p.Config.Persistence.CleanupInterval.Duration)
}

func provideChatService(p Params, e *engine.Engine, c *engine.Connector, s *intsync.Synchronizer, b *bus.Bus, logger *zap.Logger) *api.ChatService {
	return api.NewChatService(e, c, s, b, logger, p.ProfileName)
}

type lifecycleDeps struct {
	fx.In

	Params    Params
	Server    *Server
	Lock      *lock.Lock
	DB        *store.DB
	Engine    *engine.Engine
	Connector *engine.Connector
	Sync      *intsync.Synchronizer
	Sweeper   *cleanup.Sweeper
	Logger    *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	persistence := d.Params.Config.Persistence.Enabled
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Subscribe before the gateway exists so no engine event is missed.
			d.Sync.Start(context.Background())
			mode, err := d.Sync.Restore()
			if err != nil {
				d.Logger.Error("restore session failed", zap.Error(err))
			}
			d.Logger.Info("persistence mode", zap.String("mode", string(mode)))

			if persistence {
				d.Sweeper.Start(context.Background())
			}

			// Gateways start connecting when built or first subscribed, so the
			// gateway is created here rather than as a provider.
			if err := d.Connector.Connect(); err != nil {
				return fmt.Errorf("connect gateway: %w", err)
			}

			go func() {
				if err := d.Server.Start(); err != nil {
					d.Logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Server.Stop(ctx)
			d.Connector.Close()
			d.Engine.Dispose()
			d.Sync.Stop()
			if persistence {
				d.Sweeper.Stop()
			}
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("daemon stopped")
			return nil
		},
	})
}
