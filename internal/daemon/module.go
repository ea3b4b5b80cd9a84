package daemon

import (
	"context"
	"fmt"

	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/bus"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/config"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/ingest"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/lock"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/logging"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/media"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/outbox"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/query"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/session"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/status"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/store"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideBlobStore,
			provideAdapter,
			provideResolver,
			provideEngine,
			provideSender,
			provideChatService,
			provideMessageService,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideConfig(logger *zap.Logger) *config.Config {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		logger.Warn("config unreadable, using defaults", zap.Error(err))
		return config.Default()
	}
	return cfg
}

func provideBus(logger *zap.Logger) *bus.Bus {
	b := bus.New()
	b.SetLogger(logger)
	return b
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
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

func provideBlobStore(p Params) (media.Store, error) {
	return media.NewDirStore(session.MediaDir(p.SessionName))
}

func provideAdapter(p Params, b *bus.Bus, logger *zap.Logger) (*wa.Adapter, error) {
	return wa.NewAdapter(context.Background(), p.SessionName, b, logger)
}

func provideResolver(adapter *wa.Adapter, blobs media.Store, cfg *config.Config, logger *zap.Logger) *media.Resolver {
	return media.NewResolver(adapter, blobs, cfg.MediaFetchTimeout(), logger)
}

func provideEngine(db *store.DB, resolver *media.Resolver, b *bus.Bus, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(db, resolver, b, logger)
}

func provideSender(db *store.DB, adapter *wa.Adapter, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, adapter, b, logger)
}

func provideChatService(db *store.DB, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *query.ChatService {
	return query.NewChatService(db, b, cfg.RecentWindow(), cfg.MessagesLimit(), logger)
}

func provideMessageService(db *store.DB, b *bus.Bus) *query.MessageService {
	return query.NewMessageService(db, b)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, adapter *wa.Adapter, engine *ingest.Engine, sender *outbox.Sender, machine *status.Machine, b *bus.Bus, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start ingestion engine (subscribes to source.* bus events).
			engine.Start(context.Background())

			// Register event handler for whatsmeow events. The adapter doubles
			// as the media registrar so downloads can be resolved later.
			handler := wa.NewEventHandler(b, machine, adapter, logger)
			adapter.RegisterEventHandler(handler.Handle)

			// Start outbox sender.
			sender.Start(context.Background())

			// Transition state based on auth status.
			if adapter.IsLoggedIn() {
				_ = machine.Transition(status.Connecting)
				go func() {
					if err := adapter.Connect(); err != nil {
						logger.Error("auto-connect failed", zap.Error(err))
						_ = machine.Transition(status.Error)
					}
				}()
			} else {
				logger.Info("no credentials found, auth required")
				_ = machine.Transition(status.AuthRequired)
				go runQRAuth(adapter, machine, logger)
			}

			return nil
		},
		OnStop: func(_ context.Context) error {
			sender.Stop()
			engine.Stop()
			adapter.Disconnect()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// runQRAuth drives the QR pairing flow, printing codes to the terminal until
// the session is authenticated or the flow gives up.
func runQRAuth(adapter *wa.Adapter, machine *status.Machine, logger *zap.Logger) {
	events, err := adapter.StartQRAuth(context.Background())
	if err != nil {
		logger.Error("failed to start QR auth", zap.Error(err))
		return
	}

	for evt := range events {
		switch evt.Type {
		case wa.AuthEventQRCode:
			fmt.Println("\nScan this QR code with WhatsApp on your phone:")
			fmt.Println(wa.RenderQR(evt.QRCode))
		case wa.AuthEventAuthenticated:
			logger.Info("session authenticated")
			fmt.Println("Authenticated.")
		case wa.AuthEventTimeout:
			logger.Warn("QR pairing timed out")
			fmt.Println("QR code expired. Restart the daemon to try again.")
			_ = machine.Transition(status.Error)
		case wa.AuthEventAuthFailed:
			logger.Error("authentication failed", zap.String("reason", evt.Message))
			_ = machine.Transition(status.Error)
		}
	}
}
