package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/betainvite/internal/betainvite/http"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/mail"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/metrics"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/service"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/store"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/store/drivers/postgres"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/store/drivers/sqlite"
	"github.com/aussiebroadwan/betainvite/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// BuildVersion is overridden at build time via ldflags.
var BuildVersion = "v0.1.0"

// Application wires the store, services and background workers together.
// One-shot commands use the services and Close; serve uses Run.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	sender   mail.Sender

	quotas      *service.QuotaLedger
	invitations *service.InvitationService
	waitingList *service.WaitingListService

	housekeeping *service.HousekeepingService
	dispatcher   *service.WaitlistDispatcher // nil when dispatching is disabled

	server *http.Server // nil when the ops listener is disabled

	closeOnce sync.Once
}

type Option func(*Application)

// WithLogOutput sends logs to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(app *Application) {
		app.logger = newLogger(app.cfg, w)
	}
}

// WithStore uses st instead of opening the configured database. Migrations
// are still applied.
func WithStore(st store.Store) Option {
	return func(app *Application) { app.db = st }
}

// WithSender overrides the configured mail sender.
func WithSender(s mail.Sender) Option {
	return func(app *Application) { app.sender = s }
}

func newLogger(cfg Config, w io.Writer) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: "betainvite",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Output:  w,
	})
}

// New creates an Application with every dependency initialised.
func New(ctx context.Context, cfg Config, opts ...Option) (*Application, error) {
	app := &Application{cfg: cfg}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		app.logger = newLogger(cfg, os.Stderr)
	}

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}

	app.initMetrics()
	app.initMail()
	app.initServices()
	app.initHTTP()

	return app, nil
}

func (app *Application) Logger() *slog.Logger                    { return app.logger }
func (app *Application) Config() Config                          { return app.cfg }
func (app *Application) Quotas() *service.QuotaLedger            { return app.quotas }
func (app *Application) Invitations() *service.InvitationService { return app.invitations }
func (app *Application) WaitingList() *service.WaitingListService {
	return app.waitingList
}

// Run starts the background workers and the ops listener, then blocks until
// ctx is cancelled, a shutdown signal arrives or the listener fails.
func (app *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.housekeeping.Start()
	if app.dispatcher != nil {
		app.dispatcher.Start()
	}

	app.logger.Info("betainvite starting",
		slog.String("version", BuildVersion),
		slog.String("driver", app.cfg.DatabaseDriver),
		slog.String("ops_addr", app.cfg.OpsAddr),
	)

	g, gctx := errgroup.WithContext(ctx)
	if app.server != nil {
		g.Go(func() error {
			if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ops server failed: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutdown requested")
		return app.Shutdown()
	})

	return g.Wait()
}

// Shutdown stops the listener and workers and closes the database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down betainvite...")

	if app.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
		defer cancel()

		if err := app.server.Shutdown(ctx); err != nil {
			app.logger.Error("graceful server shutdown failed", slog.Any("error", err))
			if err := app.server.Close(); err != nil {
				app.logger.Error("error closing server", slog.Any("error", err))
			}
		}
	}

	app.housekeeping.Stop()
	if app.dispatcher != nil {
		app.dispatcher.Stop()
	}

	if err := app.Close(); err != nil {
		return err
	}

	app.logger.Info("betainvite stopped")
	return nil
}

// Close releases the database. It is safe to call more than once.
func (app *Application) Close() error {
	var err error
	app.closeOnce.Do(func() {
		if err = app.db.Close(); err != nil {
			app.logger.Error("error closing database", slog.Any("error", err))
		}
	})
	return err
}

func (app *Application) initDatabase(ctx context.Context) error {
	if app.db == nil {
		var err error
		switch app.cfg.DatabaseDriver {
		case DriverPostgres:
			app.db, err = postgres.NewStore(ctx, app.cfg.DatabaseURL, postgres.PoolConfig{
				MaxConns:        app.cfg.DatabaseMaxConns,
				MaxConnIdleTime: 5 * time.Minute,
			})
		case DriverSQLite:
			app.db, err = sqlite.NewStore(app.cfg.SQLiteDSN())
		default:
			err = fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, app.cfg.DatabaseDriver)
		}
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	if err := app.db.ApplyMigrations(); err != nil {
		_ = app.db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Debug("database migrations applied", slog.String("driver", app.cfg.DatabaseDriver))
	return nil
}

func (app *Application) initMetrics() {
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.New(app.registry)
}

func (app *Application) initMail() {
	if app.sender != nil {
		return
	}
	if app.cfg.SMTP.Host == "" {
		app.logger.Warn("SMTP_HOST not set, waiting list invitations cannot be delivered")
		app.sender = mail.LogSender{}
		return
	}
	app.sender = mail.NewSMTPSender(mail.SMTPConfig{
		Host:     app.cfg.SMTP.Host,
		Port:     app.cfg.SMTP.Port,
		Username: app.cfg.SMTP.Username,
		Password: app.cfg.SMTP.Password,
		From:     app.cfg.MailFrom,
	})
}

func (app *Application) initServices() {
	app.quotas = &service.QuotaLedger{
		Store:              app.db,
		InvitationsPerUser: app.cfg.InvitationsPerUser,
	}
	app.invitations = &service.InvitationService{
		Store:          app.db,
		Quotas:         app.quotas,
		ValidityWindow: service.DaysToWindow(app.cfg.InvitationsValidDays),
		Metrics:        app.metrics,
	}
	app.waitingList = &service.WaitingListService{
		Store:       app.db,
		Invitations: app.invitations,
		Sender:      app.sender,
		SiteName:    app.cfg.SiteName,
		Metrics:     app.metrics,
		SendRate:    rate.Limit(app.cfg.WaitlistSendRate),
	}

	app.housekeeping = service.NewHousekeepingService(
		app.invitations,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	if _, unconfigured := app.sender.(mail.LogSender); unconfigured {
		if app.cfg.WaitlistDispatchInterval > 0 {
			app.logger.Warn("waiting list dispatcher disabled until SMTP_HOST is set")
		}
		return
	}
	app.dispatcher = service.NewWaitlistDispatcher(
		app.waitingList,
		app.logger,
		app.cfg.WaitlistDispatchInterval,
		app.cfg.WaitlistDispatchBatch,
	)
}

func (app *Application) initHTTP() {
	if !app.cfg.OpsEnabled() {
		return
	}

	router := httpapi.NewRouter(BuildVersion, app.db, app.registry, app.logger)
	router.ApplyRoutes()

	app.server = &http.Server{
		Addr:              app.cfg.OpsAddr,
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
