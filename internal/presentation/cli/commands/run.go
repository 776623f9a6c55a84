package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	appOutbox "github.com/jbctechsolutions/focusvault/internal/application/outbox"
	appsession "github.com/jbctechsolutions/focusvault/internal/application/session"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/config"
	"github.com/jbctechsolutions/focusvault/internal/presentation/cli/output"
)

// promptRefresh is how often the console prompt is redrawn.
const promptRefresh = 250 * time.Millisecond

// NewRunCmd creates the run command for the interactive console.
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Interactive timer console",
		Long: `Open the interactive timer console. The prompt shows the live timer.

While the console is open, queued writes are replayed in the background
when the service comes back, every wake interval, and whenever
"fv sync --signal" touches the trigger file.

Console commands:
  start <subject> [target]  - Start a session (target like 25m, default 25m)
  pause, resume             - Freeze or continue the timer
  end [notes]               - End the session
  notes <text>              - Save notes
  cancel                    - Abandon the session
  hide, show                - Switch between background and foreground ticking
  mute, unmute              - Silence or restore the alarm
  status                    - Show the session
  sync                      - Replay queued writes now
  help                      - Show this help
  exit, quit                - Leave the console (progress is saved)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			return runConsole(app)
		},
	}
}

// console executes console commands against the controller.
type console struct {
	app *AppContext
	out *output.Formatter
}

func newConsole(app *AppContext) *console {
	return &console{app: app, out: app.Formatter}
}

func runConsole(app *AppContext) error {
	if _, err := openSession(app); err != nil {
		return err
	}
	if err := app.Container.StartBackground(app.Ctx); err != nil {
		return fmt.Errorf("starting background sync: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt(app.Container.Controller().Current()),
		HistoryFile:     historyFile(),
		AutoComplete:    consoleCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("could not create readline: %w", err)
	}
	defer rl.Close()

	c := newConsole(app)
	_ = c.out.Info("Type help for commands. The timer keeps running while you type.")

	ctx, cancel := context.WithCancel(app.Ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.refreshPrompt(ctx, rl)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				break
			}
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		exit, err := c.handle(ctx, line)
		if err != nil {
			_ = c.out.Error("%s", err.Error())
		}
		if exit {
			break
		}
		rl.SetPrompt(prompt(app.Container.Controller().Current()))
	}

	_ = c.out.Info("Progress saved. Goodbye!")
	return nil
}

// refreshPrompt redraws the prompt whenever the displayed second changes.
func (c *console) refreshPrompt(ctx context.Context, rl *readline.Instance) {
	ticker := time.NewTicker(promptRefresh)
	defer ticker.Stop()

	last := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p := prompt(c.app.Container.Controller().Current())
			if p == last {
				continue
			}
			last = p
			rl.SetPrompt(p)
			rl.Refresh()
		}
	}
}

// prompt renders the live timer prompt.
func prompt(st appsession.Status) string {
	if !st.HasSession() {
		return "fv> "
	}
	return fmt.Sprintf("[%s %s %s] fv> ", st.Subject, output.FormatElapsed(st.Elapsed), st.State)
}

func historyFile() string {
	dir, err := config.ExpandPath("~/.focusvault")
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}

func consoleCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("start"),
		readline.PcItem("pause"),
		readline.PcItem("resume"),
		readline.PcItem("end"),
		readline.PcItem("notes"),
		readline.PcItem("cancel"),
		readline.PcItem("hide"),
		readline.PcItem("show"),
		readline.PcItem("mute"),
		readline.PcItem("unmute"),
		readline.PcItem("status"),
		readline.PcItem("sync"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

// handle runs one console line. It reports whether the console should exit.
func (c *console) handle(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	ctrl := c.app.Container.Controller()

	var (
		st  appsession.Status
		err error
	)
	switch name {
	case "exit", "quit":
		return true, nil
	case "help", "?":
		c.help()
		return false, nil
	case "start":
		subject, target, perr := parseStartArgs(args)
		if perr != nil {
			return false, perr
		}
		st, err = ctrl.StartSession(ctx, subject, target)
	case "pause":
		st, err = ctrl.Pause(ctx)
	case "resume":
		st, err = ctrl.Resume(ctx)
	case "end":
		st, err = ctrl.End(ctx, strings.Join(args, " "))
	case "notes":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: notes <text>")
		}
		st, err = ctrl.SaveNotes(ctx, strings.Join(args, " "))
	case "cancel", "abandon":
		st, err = ctrl.Abandon(ctx)
	case "hide":
		c.app.Container.Visibility().Set(false)
		return false, c.out.Info("Hidden: ticking once per second")
	case "show":
		c.app.Container.Visibility().Set(true)
		return false, c.out.Info("Visible: ticking every frame")
	case "mute":
		st, err = ctrl.Mute(ctx)
	case "unmute":
		st, err = ctrl.Unmute(ctx)
	case "status":
		st, err = ctrl.Status(ctx)
	case "sync":
		res, rerr := c.app.Container.Replay().RunOnce(ctx, appOutbox.TriggerManual)
		if rerr != nil {
			return false, rerr
		}
		return false, c.out.Info("Replayed %d, rejected %d, expired %d, %d remaining",
			res.Replayed, res.Rejected, res.Expired, res.Remaining)
	default:
		return false, fmt.Errorf("unknown command %q (type help)", name)
	}
	if err != nil {
		return false, err
	}
	return false, c.out.Status(st)
}

func (c *console) help() {
	_ = c.out.Println("%s", strings.TrimSpace(`
start <subject> [target]  pause  resume  end [notes]  notes <text>  cancel
hide  show  mute  unmute  status  sync  help  exit`))
}

// parseStartArgs splits "start Organic Chemistry 50m" into a subject and a
// target in seconds. A trailing duration is taken as the target.
func parseStartArgs(args []string) (string, int, error) {
	if len(args) == 0 {
		return "", 0, fmt.Errorf("usage: start <subject> [target]")
	}
	target := DefaultTarget
	if len(args) > 1 {
		if d, err := time.ParseDuration(args[len(args)-1]); err == nil {
			target = d
			args = args[:len(args)-1]
		}
	}
	secs, err := targetSeconds(target)
	if err != nil {
		return "", 0, err
	}
	return strings.Join(args, " "), secs, nil
}
