// Package application provides application-level services and dependency injection.
package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jbctechsolutions/focusvault/internal/adapters/remote"
	"github.com/jbctechsolutions/focusvault/internal/adapters/sync/sqlite"
	"github.com/jbctechsolutions/focusvault/internal/application/clock"
	appOutbox "github.com/jbctechsolutions/focusvault/internal/application/outbox"
	"github.com/jbctechsolutions/focusvault/internal/application/ports"
	"github.com/jbctechsolutions/focusvault/internal/application/session"
	"github.com/jbctechsolutions/focusvault/internal/application/snapshot"
	domainErrors "github.com/jbctechsolutions/focusvault/internal/domain/errors"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/config"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/crypto"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/logging"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/notify"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/storage"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/tracing"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/watcher"
)

// TokenEnvVar overrides the configured remote token.
const TokenEnvVar = "FOCUSVAULT_TOKEN"

// Options adjusts how the container is built.
type Options struct {
	Verbose bool

	// AlarmOut receives the alarm bell and banner. Defaults to os.Stderr.
	AlarmOut io.Writer

	// Remote replaces the HTTP client, mainly for tests.
	Remote ports.SessionRemotePort

	// OnTick is passed through to the session controller.
	OnTick func(session.Status)
}

// Container holds all application dependencies and provides a central
// point for dependency injection. It manages the lifecycle of services
// and ensures proper initialization order.
type Container struct {
	config *config.Config
	opts   Options

	// Database connection
	dbConn *sqlite.Connection
	db     *sql.DB

	// Repositories
	kvRepo    ports.KeyValueStoragePort
	queueRepo ports.WriteQueueStoragePort

	// Observability
	logger *logging.Logger
	tracer *tracing.Tracer

	// Remote and sync services
	remote       ports.SessionRemotePort
	snapshots    *snapshot.Store
	queue        *appOutbox.Queue
	client       *appOutbox.DurableClient
	replay       *appOutbox.ReplayWorker
	connectivity *appOutbox.Connectivity

	// Session
	visibility *clock.ManualVisibility
	notifier   *notify.Notifier
	controller *session.Controller

	// Background services started by StartBackground
	bgMu     sync.Mutex
	bgCancel context.CancelFunc
	bgDone   chan struct{}
	trigger  *watcher.TriggerWatcher
}

// NewContainer creates a new dependency injection container with all services
// initialized based on the provided configuration.
func NewContainer(cfg *config.Config, opts Options) (*Container, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c := &Container{config: cfg, opts: opts}

	if err := c.initObservability(); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	if err := c.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	c.initRepositories()

	if err := c.initRemote(); err != nil {
		_ = c.Close(context.Background())
		return nil, fmt.Errorf("failed to initialize remote client: %w", err)
	}

	c.initServices()
	return c, nil
}

// initObservability initializes logging and tracing.
func (c *Container) initObservability() error {
	level := logging.Level(c.config.Logging.Level)
	if level == "" {
		level = logging.LevelWarn
	}
	if c.opts.Verbose {
		level = logging.LevelDebug
	}
	format := logging.FormatText
	if c.config.Logging.Format == "json" {
		format = logging.FormatJSON
	}
	c.logger = logging.New(logging.Config{Level: level, Format: format, Output: os.Stderr})

	tc := c.config.Observability.Tracing
	if !tc.Enabled {
		c.tracer = tracing.Default()
		return nil
	}
	tracer, err := tracing.New(context.Background(), tracing.Config{
		Enabled:      true,
		ExporterType: tracing.ExporterType(tc.ExporterType),
		OTLPEndpoint: tc.OTLPEndpoint,
		ServiceName:  tc.ServiceName,
		Environment:  "production",
		SampleRate:   tc.SampleRate,
		Output:       os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	c.tracer = tracer
	return nil
}

// initDatabase opens the local database and runs migrations.
func (c *Container) initDatabase() error {
	path, err := config.ExpandPath(c.config.Storage.Path)
	if err != nil {
		return err
	}

	conn, err := sqlite.NewConnection(path)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := conn.Open(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db, err := conn.DB()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to get database handle: %w", err)
	}

	c.dbConn = conn
	c.db = db
	return nil
}

func (c *Container) initRepositories() {
	c.kvRepo = storage.NewKVRepository(c.db)
	c.queueRepo = storage.NewQueueRepository(c.db)
}

func (c *Container) initRemote() error {
	if c.opts.Remote != nil {
		c.remote = c.opts.Remote
		return nil
	}

	token, err := c.resolveToken()
	if err != nil {
		return err
	}
	rc := c.config.Remote
	c.remote = remote.NewClient(token,
		remote.WithBaseURL(rc.BaseURL),
		remote.WithTimeout(rc.Timeout),
		remote.WithMaxRetries(rc.MaxRetries),
	)
	return nil
}

// resolveToken prefers the environment over the encrypted config value.
func (c *Container) resolveToken() (string, error) {
	if tok := os.Getenv(TokenEnvVar); tok != "" {
		return tok, nil
	}
	if c.config.Remote.TokenEncrypted == "" {
		return "", nil
	}
	enc, err := crypto.NewEncryptor()
	if err != nil {
		return "", fmt.Errorf("creating encryptor: %w", err)
	}
	tok, err := enc.Decrypt(c.config.Remote.TokenEncrypted)
	if err != nil {
		return "", fmt.Errorf("decrypting remote token: %w", err)
	}
	return tok, nil
}

func (c *Container) initServices() {
	sysClock := ports.SystemClock{}

	c.snapshots = snapshot.NewStore(c.kvRepo, sysClock, c.logger)
	c.queue = appOutbox.NewQueue(c.queueRepo, sysClock, appOutbox.QueueConfig{
		MaxAge:      c.config.Queue.MaxAge,
		MaxAttempts: c.config.Queue.MaxAttempts,
	}, c.logger)
	c.client = appOutbox.NewDurableClient(c.remote, c.queue, c.tracer, c.logger)
	c.replay = appOutbox.NewReplayWorker(c.client, c.config.Queue.WakeInterval, c.tracer, c.logger)
	c.client.SetReplayTrigger(func() {
		c.replay.Trigger(appOutbox.TriggerBacklog)
	})
	c.connectivity = appOutbox.NewConnectivity(c.remote, c.config.Queue.ProbeInterval, func() {
		c.replay.Trigger(appOutbox.TriggerConnectivity)
	}, c.logger)

	alarmOut := c.opts.AlarmOut
	if alarmOut == nil {
		alarmOut = os.Stderr
	}
	backend := notify.BackendNone
	if c.config.Alarm.Desktop {
		backend = notify.BackendAuto
	}
	c.notifier = notify.New(notify.Config{Bell: c.config.Alarm.Bell, Backend: backend, Out: alarmOut})

	c.visibility = clock.NewManualVisibility(true)
	c.controller = session.NewController(session.Options{
		Remote:      c.remote,
		Client:      c.client,
		Store:       c.snapshots,
		Clock:       sysClock,
		Foreground:  clock.NewFrameScheduler(c.config.Sync.ForegroundTick),
		Background:  clock.NewIntervalScheduler(c.config.Sync.BackgroundTick),
		Visibility:  c.visibility,
		FlushWindow: c.config.Sync.FlushInterval,
		Notifier:    c.notifier,
		Tracer:      c.tracer,
		Logger:      c.logger,
		OnTick:      c.opts.OnTick,
	})
}

// Open starts the controller the way a page load would: queued writes are
// replayed first, then the session is restored. Expired writes are purged
// before the replay.
func (c *Container) Open(ctx context.Context) (session.Status, error) {
	c.controller.Start(ctx)

	if _, err := c.queue.Purge(ctx); err != nil {
		c.logger.WarnContext(ctx, "purging expired writes failed", "error", err)
	}
	if n, err := c.queue.Pending(ctx); err == nil && n > 0 {
		if _, err := c.replay.RunOnce(ctx, appOutbox.TriggerManual); err != nil {
			c.logger.WarnContext(ctx, "replay before restore failed", "error", err)
		}
	}
	return c.controller.Restore(ctx)
}

// StartBackground runs the replay worker, connectivity probe and trigger
// file watcher until StopBackground or ctx cancellation.
func (c *Container) StartBackground(ctx context.Context) error {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	if c.bgCancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.replay.Start(ctx)

	var tw *watcher.TriggerWatcher
	if c.config.Sync.TriggerFile != "" {
		path, err := config.ExpandPath(c.config.Sync.TriggerFile)
		if err == nil {
			tw, err = watcher.NewTriggerWatcher(path, watcher.DefaultConfig())
		}
		if err == nil {
			err = tw.Start()
		}
		if err != nil {
			c.logger.WarnContext(ctx, "trigger file watcher disabled", "error", err)
			if tw != nil {
				_ = tw.Close()
			}
			tw = nil
		}
	}
	c.trigger = tw

	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.connectivity.Run(ctx)
		}()
		if tw != nil {
			c.forwardTriggers(ctx, tw)
		}
		wg.Wait()
	}()

	c.bgCancel = cancel
	c.bgDone = done
	return nil
}

// forwardTriggers turns trigger file touches into replay requests.
func (c *Container) forwardTriggers(ctx context.Context, tw *watcher.TriggerWatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-tw.Triggers():
			if !ok {
				return
			}
			c.logger.DebugContext(ctx, "sync trigger file touched", "path", tw.Path())
			c.replay.Trigger(appOutbox.TriggerFile)
		case err, ok := <-tw.Errors():
			if !ok {
				return
			}
			c.logger.WarnContext(ctx, "trigger watcher error", "error", err)
		}
	}
}

// StopBackground stops the services started by StartBackground.
func (c *Container) StopBackground() {
	c.bgMu.Lock()
	cancel, done, tw := c.bgCancel, c.bgDone, c.trigger
	c.bgCancel, c.bgDone, c.trigger = nil, nil, nil
	c.bgMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.replay.Stop()
	if tw != nil {
		_ = tw.Close()
	}
}

// SignalSync touches the trigger file so a running console replays.
func (c *Container) SignalSync() error {
	if c.config.Sync.TriggerFile == "" {
		return fmt.Errorf("sync.trigger_file is not configured")
	}
	path, err := config.ExpandPath(c.config.Sync.TriggerFile)
	if err != nil {
		return err
	}
	return watcher.Touch(path)
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// DB returns the database connection.
func (c *Container) DB() *sql.DB {
	return c.db
}

// Logger returns the application logger.
func (c *Container) Logger() *logging.Logger {
	return c.logger
}

// Tracer returns the application tracer.
func (c *Container) Tracer() *tracing.Tracer {
	return c.tracer
}

// Controller returns the session controller.
func (c *Container) Controller() *session.Controller {
	return c.controller
}

// Visibility returns the visibility source driving the clock engine.
func (c *Container) Visibility() *clock.ManualVisibility {
	return c.visibility
}

// Queue returns the offline write queue.
func (c *Container) Queue() *appOutbox.Queue {
	return c.queue
}

// Replay returns the replay worker.
func (c *Container) Replay() *appOutbox.ReplayWorker {
	return c.replay
}

// Connectivity returns the connectivity monitor.
func (c *Container) Connectivity() *appOutbox.Connectivity {
	return c.connectivity
}

// Snapshots returns the local snapshot store.
func (c *Container) Snapshots() *snapshot.Store {
	return c.snapshots
}

// Close stops the controller (flushing an active session), the background
// services and the tracer, then closes the database.
func (c *Container) Close(ctx context.Context) error {
	var errs []error

	c.StopBackground()

	if c.controller != nil {
		if err := c.controller.Stop(ctx); err != nil && !errors.Is(err, domainErrors.ErrControllerStopped) {
			errs = append(errs, fmt.Errorf("stopping session controller: %w", err))
		}
	}

	if c.tracer != nil {
		if err := c.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down tracer: %w", err))
		}
	}

	if c.dbConn != nil {
		if err := c.dbConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}

	return errors.Join(errs...)
}
