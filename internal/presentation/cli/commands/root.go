// Package commands implements the CLI commands for focusvault.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/focusvault/internal/application"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/config"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/logging"
	"github.com/jbctechsolutions/focusvault/internal/presentation/cli/output"
)

// Version information - set at build time via ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// shutdownTimeout bounds the unload flush performed on exit.
const shutdownTimeout = 5 * time.Second

// GlobalFlags holds the global CLI flags.
type GlobalFlags struct {
	ConfigFile string
	Output     string
	Verbose    bool
}

// AppContext holds the application runtime context.
type AppContext struct {
	Config    *config.Config
	Formatter *output.Formatter
	Flags     *GlobalFlags
	Container *application.Container
	Ctx       context.Context
	cancel    context.CancelFunc
}

var (
	globalFlags GlobalFlags
	appCtx      *AppContext
	appCtxMu    sync.RWMutex // Protects appCtx for thread-safe access

	// containerOptions is passed to every container built by the CLI.
	// Tests replace the remote here.
	containerOptions application.Options
)

// skipInit lists commands that run without a container.
var skipInit = map[string]bool{
	"help":       true,
	"version":    true,
	"completion": true,
	"init":       true,
}

// NewRootCmd creates the root command for the focusvault CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fv",
		Short: "Focus Vault - study session timer with offline sync",
		Long: `Focus Vault (fv) times study sessions against a target and keeps the
session service up to date.

Elapsed time is computed from a persisted checkpoint, so closing the
terminal or losing the network never loses progress. Writes that fail
while offline are queued locally and replayed in order once the service
is reachable again.

Run "fv run" for the interactive timer console, or use the individual
commands (start, pause, resume, end) from scripts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipInit[cmd.Name()] {
				return nil
			}
			return initializeApp(cmd.Context(), cmd.OutOrStdout())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "config file path (default: ~/.focusvault/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.Output, "output", "o", "text", "output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewInitCmd())

	// Session lifecycle
	rootCmd.AddCommand(NewStartCmd())
	rootCmd.AddCommand(NewPauseCmd())
	rootCmd.AddCommand(NewResumeCmd())
	rootCmd.AddCommand(NewEndCmd())
	rootCmd.AddCommand(NewNotesCmd())
	rootCmd.AddCommand(NewCancelCmd())
	rootCmd.AddCommand(NewResetCmd())
	rootCmd.AddCommand(NewStatusCmd())
	rootCmd.AddCommand(NewRunCmd())

	// Offline queue
	rootCmd.AddCommand(NewSyncCmd())
	rootCmd.AddCommand(NewQueueCmd())

	return rootCmd
}

// newFormatter builds a formatter for the --output flag.
func newFormatter(w io.Writer) (*output.Formatter, error) {
	format, err := output.ParseFormat(globalFlags.Output)
	if err != nil {
		return nil, err
	}
	opts := []output.Option{output.WithFormat(format), output.WithWriter(w)}
	if format == output.FormatJSON {
		opts = append(opts, output.WithColor(false))
	}
	return output.NewFormatter(opts...), nil
}

// initializeApp loads the config and builds the container.
func initializeApp(parent context.Context, w io.Writer) error {
	formatter, err := newFormatter(w)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(globalFlags.ConfigFile)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	opts := containerOptions
	opts.Verbose = globalFlags.Verbose
	container, err := application.NewContainer(cfg, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(logging.WithCorrelationID(parent, uuid.NewString()))

	appCtxMu.Lock()
	appCtx = &AppContext{
		Config:    cfg,
		Formatter: formatter,
		Flags:     &globalFlags,
		Container: container,
		Ctx:       ctx,
		cancel:    cancel,
	}
	appCtxMu.Unlock()

	return nil
}

// loadConfig loads configuration from the specified file or default location.
func loadConfig(configPath string) (*config.Config, error) {
	loader, err := config.NewLoader("")
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}
	return loader.Load(configPath)
}

// GetAppContext returns the current application context.
// Returns nil if the app hasn't been initialized.
func GetAppContext() *AppContext {
	appCtxMu.RLock()
	defer appCtxMu.RUnlock()
	return appCtx
}

// GetFormatter returns the output formatter.
// Creates a default formatter if app context is not initialized.
func GetFormatter() *output.Formatter {
	if ctx := GetAppContext(); ctx != nil {
		return ctx.Formatter
	}
	return output.NewFormatter()
}

// requireApp returns the initialized context or an error.
func requireApp() (*AppContext, error) {
	app := GetAppContext()
	if app == nil || app.Container == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return app, nil
}

// Shutdown flushes and closes the container and cancels the context.
func Shutdown() {
	appCtxMu.Lock()
	app := appCtx
	appCtx = nil
	appCtxMu.Unlock()

	if app == nil {
		return
	}
	if app.Container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := app.Container.Close(ctx); err != nil {
			app.Container.Logger().Warn("shutdown incomplete", "error", err)
		}
		cancel()
	}
	if app.cancel != nil {
		app.cancel()
	}
}

// Execute runs the root command with graceful shutdown support.
func Execute() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- NewRootCmd().Execute()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			_ = GetFormatter().Error("%s", err.Error())
			Shutdown()
			os.Exit(1)
		}
	case sig := <-sigChan:
		_ = GetFormatter().Warning("Received signal %v, saving progress...", sig)
		Shutdown()
		os.Exit(130) // Standard exit code for SIGINT
	}

	Shutdown()
}
