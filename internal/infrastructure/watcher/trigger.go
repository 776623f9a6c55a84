// Package watcher watches the sync trigger file. Touching the file from
// another process (for example "fv sync --signal") asks a running
// console to replay its queued writes.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config holds configuration for the trigger watcher.
type Config struct {
	DebounceDuration time.Duration
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{DebounceDuration: 200 * time.Millisecond}
}

// TriggerWatcher emits one trigger per burst of changes to a single file.
type TriggerWatcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	config    Config
	triggers  chan time.Time
	errors    chan error

	// Debouncing state
	pendingAt time.Time
	pending   bool
	pendingMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

// NewTriggerWatcher creates a watcher for path. The file need not exist;
// its directory is created on Start.
func NewTriggerWatcher(path string, cfg Config) (*TriggerWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving trigger path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.DebounceDuration <= 0 {
		cfg.DebounceDuration = DefaultConfig().DebounceDuration
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TriggerWatcher{
		fsWatcher: fsWatcher,
		path:      abs,
		config:    cfg,
		triggers:  make(chan time.Time, 1),
		errors:    make(chan error, 8),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Path returns the absolute trigger file path.
func (w *TriggerWatcher) Path() string {
	return w.path
}

// Start begins watching. The parent directory is watched rather than the
// file itself so that editors that replace the file are still seen.
func (w *TriggerWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating trigger directory: %w", err)
	}
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	w.wg.Add(2)
	go w.processEvents()
	go w.debounceProcessor()
	return nil
}

// Triggers delivers one value per debounced burst. Triggers that arrive
// while one is still unread are coalesced.
func (w *TriggerWatcher) Triggers() <-chan time.Time {
	return w.triggers
}

// Errors returns the channel for receiving watcher errors.
func (w *TriggerWatcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher and releases resources.
func (w *TriggerWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	err := w.fsWatcher.Close()
	w.wg.Wait()

	close(w.triggers)
	close(w.errors)

	return err
}

func (w *TriggerWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || !isTouch(event.Op) {
				continue
			}

			w.pendingMu.Lock()
			w.pending = true
			w.pendingAt = time.Now()
			w.pendingMu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *TriggerWatcher) debounceProcessor() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceDuration / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.emitIfStable(time.Now())
		}
	}
}

func (w *TriggerWatcher) emitIfStable(now time.Time) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if !w.pending || now.Sub(w.pendingAt) < w.config.DebounceDuration {
		return
	}
	w.pending = false

	select {
	case w.triggers <- w.pendingAt:
	default:
	}
}

// isTouch reports whether op changes the file's content or presence.
// Removal and chmod are ignored.
func isTouch(op fsnotify.Op) bool {
	return op&(fsnotify.Create|fsnotify.Write) != 0
}

// Touch writes the current time to path, creating it if needed.
func Touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating trigger directory: %w", err)
	}
	stamp := []byte(time.Now().UTC().Format(time.RFC3339Nano) + "\n")
	if err := os.WriteFile(path, stamp, 0600); err != nil {
		return fmt.Errorf("writing trigger file: %w", err)
	}
	return nil
}
