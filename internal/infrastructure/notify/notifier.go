// Package notify tells the user that a study session reached its target.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// Backend identifies how desktop notifications are delivered.
type Backend string

const (
	BackendNone       Backend = "none"
	BackendOSAScript  Backend = "osascript"
	BackendNotifySend Backend = "notify-send"
	BackendTmux       Backend = "tmux"
	BackendAuto       Backend = "auto"
)

const bell = "\a"

// Config controls how alarms are surfaced.
type Config struct {
	Bell    bool
	Backend Backend
	Out     io.Writer // bell and banner destination, os.Stderr when nil
}

// runFunc runs an external command. Tests substitute a recorder.
type runFunc func(ctx context.Context, name string, args ...string) error

// Notifier rings the terminal bell and optionally raises a desktop
// notification.
type Notifier struct {
	config  Config
	backend Backend
	run     runFunc
	mu      sync.Mutex
}

// New creates a notifier. BackendAuto is resolved once here.
func New(cfg Config) *Notifier {
	if cfg.Out == nil {
		cfg.Out = os.Stderr
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendNone
	}

	n := &Notifier{config: cfg, run: runCommand}
	n.backend = cfg.Backend
	if n.backend == BackendAuto {
		n.backend = detectBackend()
	}
	return n
}

// Backend returns the resolved desktop notification backend.
func (n *Notifier) Backend() Backend {
	return n.backend
}

// Notify announces that the session reached its target.
func (n *Notifier) Notify(ctx context.Context, sessionID string, subject string, elapsed int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	msg := Message(subject, elapsed)

	var b strings.Builder
	if n.config.Bell {
		b.WriteString(bell)
	}
	b.WriteString(msg)
	b.WriteString("\n")
	if _, err := io.WriteString(n.config.Out, b.String()); err != nil {
		return fmt.Errorf("writing alarm: %w", err)
	}

	if err := n.desktop(ctx, msg); err != nil {
		return fmt.Errorf("desktop notification for session %s: %w", sessionID, err)
	}
	return nil
}

// Message renders the alarm text.
func Message(subject string, elapsed int) string {
	if subject == "" {
		subject = "Study session"
	}
	return fmt.Sprintf("%s: target reached after %s", subject, clock(elapsed))
}

func (n *Notifier) desktop(ctx context.Context, msg string) error {
	switch n.backend {
	case BackendOSAScript:
		script := fmt.Sprintf(`display notification "%s" with title "Focus Vault" sound name "Glass"`, escapeAppleScript(msg))
		return n.run(ctx, "osascript", "-e", script)
	case BackendNotifySend:
		return n.run(ctx, "notify-send", "--app-name=focusvault", "Focus Vault", msg)
	case BackendTmux:
		return n.run(ctx, "tmux", "display-message", msg)
	case BackendNone, "":
		return nil
	default:
		return fmt.Errorf("unsupported notification backend: %s", n.backend)
	}
}

// detectBackend picks a desktop notification mechanism for this machine.
func detectBackend() Backend {
	if os.Getenv("TMUX") != "" && isCommandAvailable("tmux") {
		return BackendTmux
	}

	switch runtime.GOOS {
	case "darwin":
		if isCommandAvailable("osascript") {
			return BackendOSAScript
		}
	case "linux":
		if isCommandAvailable("notify-send") {
			return BackendNotifySend
		}
	}
	return BackendNone
}

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

func isCommandAvailable(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func clock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
