package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

type recordedCall struct {
	name string
	args []string
}

func newTestNotifier(cfg Config) (*Notifier, *bytes.Buffer, *[]recordedCall) {
	var out bytes.Buffer
	cfg.Out = &out
	n := New(cfg)

	calls := &[]recordedCall{}
	n.run = func(_ context.Context, name string, args ...string) error {
		*calls = append(*calls, recordedCall{name: name, args: args})
		return nil
	}
	return n, &out, calls
}

func TestNew_Defaults(t *testing.T) {
	n := New(Config{})
	if n.Backend() != BackendNone {
		t.Errorf("expected backend none, got %s", n.Backend())
	}
	if n.config.Out == nil {
		t.Error("expected a default writer")
	}
}

func TestNotifier_Bell(t *testing.T) {
	tests := []struct {
		name     string
		bell     bool
		wantBell bool
	}{
		{"bell on", true, true},
		{"bell off", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, out, calls := newTestNotifier(Config{Bell: tt.bell})

			if err := n.Notify(context.Background(), "s1", "Math", 1500); err != nil {
				t.Fatalf("Notify() error = %v", err)
			}
			if got := strings.HasPrefix(out.String(), bell); got != tt.wantBell {
				t.Errorf("bell written = %v, want %v (output %q)", got, tt.wantBell, out.String())
			}
			if !strings.Contains(out.String(), "Math: target reached after 25m00s") {
				t.Errorf("unexpected output %q", out.String())
			}
			if len(*calls) != 0 {
				t.Errorf("expected no desktop notification, got %v", *calls)
			}
		})
	}
}

func TestNotifier_DesktopBackends(t *testing.T) {
	tests := []struct {
		backend  Backend
		wantName string
	}{
		{BackendOSAScript, "osascript"},
		{BackendNotifySend, "notify-send"},
		{BackendTmux, "tmux"},
	}

	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			n, _, calls := newTestNotifier(Config{Backend: tt.backend})

			if err := n.Notify(context.Background(), "s1", "Bio", 61); err != nil {
				t.Fatalf("Notify() error = %v", err)
			}
			if len(*calls) != 1 || (*calls)[0].name != tt.wantName {
				t.Fatalf("calls = %v, want one %s call", *calls, tt.wantName)
			}
			joined := strings.Join((*calls)[0].args, " ")
			if !strings.Contains(joined, "Bio: target reached after 1m01s") {
				t.Errorf("args %q missing message", joined)
			}
		})
	}
}

func TestNotifier_DesktopFailure(t *testing.T) {
	n, out, _ := newTestNotifier(Config{Backend: BackendNotifySend})
	n.run = func(context.Context, string, ...string) error { return errors.New("no dbus") }

	err := n.Notify(context.Background(), "s1", "Math", 10)
	if err == nil || !strings.Contains(err.Error(), "no dbus") {
		t.Errorf("Notify() error = %v, want wrapped runner error", err)
	}
	if out.Len() == 0 {
		t.Error("terminal message should still be written")
	}
}

func TestNotifier_UnsupportedBackend(t *testing.T) {
	n, _, _ := newTestNotifier(Config{Backend: "pager"})
	if err := n.Notify(context.Background(), "s1", "Math", 10); err == nil {
		t.Error("expected error for an unsupported backend")
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		subject string
		elapsed int
		want    string
	}{
		{"Math", 59, "Math: target reached after 0m59s"},
		{"Math", 3725, "Math: target reached after 1h02m05s"},
		{"", 60, "Study session: target reached after 1m00s"},
		{"Math", -5, "Math: target reached after 0m00s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Message(tt.subject, tt.elapsed); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeAppleScript(t *testing.T) {
	if got := escapeAppleScript(`say "hi" \ bye`); got != `say \"hi\" \\ bye` {
		t.Errorf("escapeAppleScript() = %q", got)
	}
}
