package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/focusvault/internal/application"
	appsession "github.com/jbctechsolutions/focusvault/internal/application/session"
	domainErrors "github.com/jbctechsolutions/focusvault/internal/domain/errors"
	"github.com/jbctechsolutions/focusvault/internal/domain/outbox"
	"github.com/jbctechsolutions/focusvault/internal/domain/session"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/config"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/crypto"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/testutil"
)

// executeCommand executes a cobra command with the given args.
func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// setupCLI points HOME at a temp dir and routes the CLI to a fake remote.
func setupCLI(t *testing.T) (*testutil.FakeRemote, string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(application.TokenEnvVar, "")

	remote := testutil.NewFakeRemote()
	containerOptions = application.Options{Remote: remote, AlarmOut: io.Discard}
	t.Cleanup(func() {
		Shutdown()
		containerOptions = application.Options{}
	})
	return remote, home
}

// fv runs one CLI invocation the way main does, including shutdown.
func fv(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, err := executeCommand(NewRootCmd(), args...)
	Shutdown()
	return out, err
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	if cmd.Use != "fv" {
		t.Errorf("expected Use='fv', got %q", cmd.Use)
	}

	wantSubcmds := []string{"version", "init", "start", "pause", "resume", "end", "notes", "cancel", "reset", "status", "run", "sync", "queue"}
	subcmds := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcmds[sub.Name()] = true
	}
	for _, want := range wantSubcmds {
		if !subcmds[want] {
			t.Errorf("missing subcommand: %s", want)
		}
	}

	for _, flag := range []string{"config", "output", "verbose"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag: %s", flag)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"basic", []string{"version"}, "Version: " + Version},
		{"short", []string{"version", "--short"}, Version},
		{"json", []string{"version", "-o", "json"}, `"version": "` + Version + `"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeCommand(NewRootCmd(), tt.args...)
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output %q missing %q", out, tt.want)
			}
		})
	}
}

func TestInvalidOutputFormat(t *testing.T) {
	setupCLI(t)
	if _, err := fv(t, "status", "-o", "yaml"); err == nil {
		t.Error("expected error for unknown output format")
	}
}

func TestSessionLifecycle(t *testing.T) {
	remote, _ := setupCLI(t)

	out, err := fv(t, "start", "Organic", "Chemistry", "--target", "30m")
	if err != nil {
		t.Fatalf("start error = %v", err)
	}
	if !strings.Contains(out, "Started Organic Chemistry") {
		t.Errorf("start output = %q", out)
	}
	s := remote.Session("S1")
	if s == nil || s.Subject != "Organic Chemistry" || s.TargetTime != 1800 || !s.IsActive() {
		t.Fatalf("remote session after start = %+v", s)
	}

	if _, err := fv(t, "start", "Math"); !errors.Is(err, domainErrors.ErrSessionInProgress) {
		t.Errorf("second start error = %v, want ErrSessionInProgress", err)
	}

	if _, err := fv(t, "pause"); err != nil {
		t.Fatalf("pause error = %v", err)
	}
	if s := remote.Session("S1"); !s.IsPaused() {
		t.Errorf("remote status after pause = %s", s.Status)
	}

	out, err = fv(t, "status", "-o", "json")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	var st appsession.Status
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("status JSON: %v\n%s", err, out)
	}
	if st.SessionID != "S1" || st.State != session.StatusPaused {
		t.Errorf("status = %+v", st)
	}

	if _, err := fv(t, "resume"); err != nil {
		t.Fatalf("resume error = %v", err)
	}
	if _, err := fv(t, "notes", "chapter", "3"); err != nil {
		t.Fatalf("notes error = %v", err)
	}
	if s := remote.Session("S1"); !s.IsActive() || s.Notes != "chapter 3" {
		t.Errorf("remote after resume+notes = %+v", s)
	}

	out, err = fv(t, "end", "--notes", "done")
	if err != nil {
		t.Fatalf("end error = %v", err)
	}
	if !strings.Contains(out, "Ended Organic Chemistry") {
		t.Errorf("end output = %q", out)
	}
	if s := remote.Session("S1"); !s.IsEnded() || s.Notes != "done" {
		t.Errorf("remote after end = %+v", s)
	}

	out, err = fv(t, "status")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(out, "No active session") {
		t.Errorf("status after end = %q", out)
	}
}

func TestStartValidation(t *testing.T) {
	setupCLI(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing subject", []string{"start"}},
		{"target too short", []string{"start", "Math", "--target", "500ms"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := fv(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestActionsWithoutSession(t *testing.T) {
	setupCLI(t)

	for _, args := range [][]string{{"pause"}, {"resume"}, {"end"}, {"notes", "x"}, {"cancel"}} {
		t.Run(args[0], func(t *testing.T) {
			_, err := fv(t, args...)
			if !errors.Is(err, domainErrors.ErrNoActiveSession) {
				t.Errorf("error = %v, want ErrNoActiveSession", err)
			}
		})
	}
}

func TestOfflinePauseQueuesAndSyncReplays(t *testing.T) {
	remote, _ := setupCLI(t)

	if _, err := fv(t, "start", "Bio", "-t", "10m"); err != nil {
		t.Fatalf("start error = %v", err)
	}

	remote.SetOffline(true)
	out, err := fv(t, "pause")
	if err != nil {
		t.Fatalf("offline pause error = %v", err)
	}
	if !strings.Contains(out, "queued") {
		t.Errorf("pause output should mention queueing: %q", out)
	}

	out, err = fv(t, "queue", "list", "-o", "json")
	if err != nil {
		t.Fatalf("queue list error = %v", err)
	}
	var writes []*outbox.QueuedWrite
	if err := json.Unmarshal([]byte(out), &writes); err != nil {
		t.Fatalf("queue JSON: %v\n%s", err, out)
	}
	if len(writes) != 1 || writes[0].Request.Path != "/session/S1" {
		t.Fatalf("queued writes = %+v", writes)
	}

	out, err = fv(t, "sync")
	if err != nil {
		t.Fatalf("offline sync error = %v", err)
	}
	if !strings.Contains(out, "still queued") {
		t.Errorf("offline sync output = %q", out)
	}

	remote.SetOffline(false)
	if _, err := fv(t, "sync"); err != nil {
		t.Fatalf("sync error = %v", err)
	}
	if s := remote.Session("S1"); !s.IsPaused() {
		t.Errorf("remote after sync = %+v", s)
	}

	out, _ = fv(t, "queue", "list")
	if !strings.Contains(out, "Queue is empty") {
		t.Errorf("queue list after sync = %q", out)
	}
}

func TestSyncSignalTouchesTriggerFile(t *testing.T) {
	_, home := setupCLI(t)

	if _, err := fv(t, "sync", "--signal"); err != nil {
		t.Fatalf("sync --signal error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".focusvault", "sync.trigger")); err != nil {
		t.Errorf("trigger file not written: %v", err)
	}
}

func TestQueuePurge(t *testing.T) {
	setupCLI(t)
	out, err := fv(t, "queue", "purge", "-o", "json")
	if err != nil {
		t.Fatalf("purge error = %v", err)
	}
	if !strings.Contains(out, `"purged": 0`) {
		t.Errorf("purge output = %q", out)
	}
}

func TestCancelAndReset(t *testing.T) {
	remote, _ := setupCLI(t)

	if _, err := fv(t, "start", "Art"); err != nil {
		t.Fatalf("start error = %v", err)
	}
	if _, err := fv(t, "cancel"); err != nil {
		t.Fatalf("cancel error = %v", err)
	}
	if remote.Session("S1") != nil {
		t.Error("cancel should delete the remote session")
	}

	if _, err := fv(t, "start", "Art"); err != nil {
		t.Fatalf("start error = %v", err)
	}
	if _, err := fv(t, "reset"); err != nil {
		t.Fatalf("reset error = %v", err)
	}
	if s := remote.Session("S2"); s == nil || !s.IsActive() {
		t.Errorf("reset must not touch the remote, got %+v", s)
	}
}

func TestInitCmd(t *testing.T) {
	_, home := setupCLI(t)

	out, err := fv(t, "init", "--url", "https://study.example.com/api/", "--token", "secret")
	if err != nil {
		t.Fatalf("init error = %v", err)
	}
	if !strings.Contains(out, "Configuration written") {
		t.Errorf("init output = %q", out)
	}

	loader, _ := config.NewLoader(filepath.Join(home, ".focusvault"))
	cfg, err := loader.LoadFromFile(loader.DefaultConfigPath())
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Remote.BaseURL != "https://study.example.com/api" {
		t.Errorf("base_url = %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.TokenEncrypted == "" || cfg.Remote.TokenEncrypted == "secret" {
		t.Fatalf("token not encrypted: %q", cfg.Remote.TokenEncrypted)
	}
	enc, _ := crypto.NewEncryptor()
	if tok, err := enc.Decrypt(cfg.Remote.TokenEncrypted); err != nil || tok != "secret" {
		t.Errorf("Decrypt() = %q, %v", tok, err)
	}

	if _, err := fv(t, "init", "--url", "https://other.example.com"); err == nil {
		t.Error("expected error when config exists without --force")
	}
	if _, err := fv(t, "init", "--url", "https://other.example.com", "--token", "x", "--force"); err != nil {
		t.Errorf("init --force error = %v", err)
	}
}

func TestInitPromptsForMissingValues(t *testing.T) {
	_, home := setupCLI(t)

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetIn(strings.NewReader("\n\n"))
	root.SetArgs([]string{"init"})
	if err := root.Execute(); err != nil {
		t.Fatalf("init error = %v", err)
	}

	loader, _ := config.NewLoader(filepath.Join(home, ".focusvault"))
	cfg, err := loader.LoadFromFile(loader.DefaultConfigPath())
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Remote.BaseURL != config.DefaultRemoteURL || cfg.Remote.TokenEncrypted != "" {
		t.Errorf("defaults not applied: %+v", cfg.Remote)
	}
	if !strings.Contains(buf.String(), "Session service URL") {
		t.Errorf("prompt not shown: %q", buf.String())
	}
}

func TestConsoleHandle(t *testing.T) {
	remote, _ := setupCLI(t)

	var buf bytes.Buffer
	if err := initializeApp(context.Background(), &buf); err != nil {
		t.Fatalf("initializeApp() error = %v", err)
	}
	app := GetAppContext()
	if _, err := openSession(app); err != nil {
		t.Fatalf("openSession() error = %v", err)
	}
	c := newConsole(app)
	ctx := context.Background()

	steps := []struct {
		line     string
		wantExit bool
		wantErr  bool
	}{
		{"", false, false},
		{"help", false, false},
		{"start Linear Algebra 45m", false, false},
		{"hide", false, false},
		{"mute", false, false},
		{"pause", false, false},
		{"resume", false, false},
		{"notes proofs", false, false},
		{"show", false, false},
		{"status", false, false},
		{"sync", false, false},
		{"notes", false, true},
		{"bogus", false, true},
		{"end wrapped up", false, false},
		{"exit", true, false},
	}

	for _, step := range steps {
		exit, err := c.handle(ctx, step.line)
		if exit != step.wantExit {
			t.Errorf("handle(%q) exit = %v, want %v", step.line, exit, step.wantExit)
		}
		if (err != nil) != step.wantErr {
			t.Errorf("handle(%q) error = %v, wantErr %v", step.line, err, step.wantErr)
		}
	}

	s := remote.Session("S1")
	if s == nil || s.Subject != "Linear Algebra" || s.TargetTime != 2700 {
		t.Fatalf("remote session = %+v", s)
	}
	if !s.IsEnded() || s.Notes != "wrapped up" {
		t.Errorf("remote session after end = %+v", s)
	}
	if !app.Container.Visibility().Visible() {
		t.Error("show should restore visibility")
	}
}

func TestParseStartArgs(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantSubject string
		wantTarget  int
		wantErr     bool
	}{
		{"subject only", []string{"Math"}, "Math", 1500, false},
		{"trailing target", []string{"Organic", "Chemistry", "50m"}, "Organic Chemistry", 3000, false},
		{"single word that parses", []string{"1h"}, "1h", 1500, false},
		{"non-duration tail", []string{"Chapter", "7"}, "Chapter 7", 1500, false},
		{"empty", nil, "", 0, true},
		{"zero target", []string{"Math", "0s"}, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, target, err := parseStartArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if subject != tt.wantSubject || target != tt.wantTarget {
				t.Errorf("parseStartArgs() = %q, %d; want %q, %d", subject, target, tt.wantSubject, tt.wantTarget)
			}
		})
	}
}

func TestPrompt(t *testing.T) {
	if got := prompt(appsession.Status{}); got != "fv> " {
		t.Errorf("prompt() = %q", got)
	}
	got := prompt(appsession.Status{SessionID: "S1", Subject: "Math", State: session.StatusActive, Elapsed: 61})
	if got != "[Math 00:01:01 active] fv> " {
		t.Errorf("prompt() = %q", got)
	}
}
