package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	appsession "github.com/jbctechsolutions/focusvault/internal/application/session"
	"github.com/jbctechsolutions/focusvault/internal/presentation/cli/output"
)

// DefaultTarget is the study target when --target is omitted.
const DefaultTarget = 25 * time.Minute

// openSession restores the current session for a one-shot command.
func openSession(app *AppContext) (appsession.Status, error) {
	st, err := app.Container.Open(app.Ctx)
	if err != nil {
		return st, fmt.Errorf("restoring session: %w", err)
	}
	return st, nil
}

// targetSeconds converts a --target duration to whole seconds.
func targetSeconds(d time.Duration) (int, error) {
	if d < time.Second {
		return 0, fmt.Errorf("target must be at least 1s, got %v", d)
	}
	return int(d / time.Second), nil
}

// reportStatus prints st after an action, with a headline in text mode.
func reportStatus(app *AppContext, headline string, st appsession.Status) error {
	f := app.Formatter
	if !f.IsJSON() && headline != "" {
		if err := f.Success("%s", headline); err != nil {
			return err
		}
	}
	return f.Status(st)
}

// NewStartCmd creates the start command.
func NewStartCmd() *cobra.Command {
	var target time.Duration

	cmd := &cobra.Command{
		Use:   "start <subject>",
		Short: "Start a study session",
		Long: `Start a study session for the given subject.

The session is created on the session service first; starting requires
the service to be reachable. Only one session can run at a time.

Examples:
  fv start Math
  fv start "Organic Chemistry" --target 50m`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			secs, err := targetSeconds(target)
			if err != nil {
				return err
			}
			if _, err := openSession(app); err != nil {
				return err
			}

			subject := strings.Join(args, " ")
			st, err := app.Container.Controller().StartSession(app.Ctx, subject, secs)
			if err != nil {
				return err
			}
			return reportStatus(app, fmt.Sprintf("Started %s", subject), st)
		},
	}

	cmd.Flags().DurationVarP(&target, "target", "t", DefaultTarget, "study target (e.g. 25m, 1h30m)")
	return cmd
}

// NewPauseCmd creates the pause command.
func NewPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the running session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			if _, err := openSession(app); err != nil {
				return err
			}
			st, err := app.Container.Controller().Pause(app.Ctx)
			if err != nil {
				return err
			}
			return reportStatus(app, "Paused", st)
		},
	}
}

// NewResumeCmd creates the resume command.
func NewResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			if _, err := openSession(app); err != nil {
				return err
			}
			st, err := app.Container.Controller().Resume(app.Ctx)
			if err != nil {
				return err
			}
			return reportStatus(app, "Resumed", st)
		},
	}
}

// NewEndCmd creates the end command.
func NewEndCmd() *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "end",
		Short: "End the session and record the final time",
		Long: `End the session. The final elapsed time and optional notes are sent to
the session service; when it is unreachable the end is queued and the
local timer is cleared anyway.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			before, err := openSession(app)
			if err != nil {
				return err
			}
			st, err := app.Container.Controller().End(app.Ctx, notes)
			if err != nil {
				return err
			}

			f := app.Formatter
			if f.IsJSON() {
				return f.JSON(map[string]any{
					"sessionId":   before.SessionID,
					"elapsedTime": before.Elapsed,
					"queued":      st.LastQueued,
				})
			}
			if err := f.Success("Ended %s after %s", before.Subject, output.FormatElapsed(before.Elapsed)); err != nil {
				return err
			}
			if st.LastQueued {
				return f.Warning("Service unreachable; the end will sync later")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&notes, "notes", "n", "", "session notes")
	return cmd
}

// NewNotesCmd creates the notes command.
func NewNotesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notes <text>",
		Short: "Save notes on the current session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			if _, err := openSession(app); err != nil {
				return err
			}
			st, err := app.Container.Controller().SaveNotes(app.Ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return reportStatus(app, "Notes saved", st)
		},
	}
}

// NewCancelCmd creates the cancel command.
func NewCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "cancel",
		Aliases: []string{"abandon"},
		Short:   "Abandon the session without recording it",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			before, err := openSession(app)
			if err != nil {
				return err
			}
			st, err := app.Container.Controller().Abandon(app.Ctx)
			if err != nil {
				return err
			}
			if app.Formatter.IsJSON() {
				return app.Formatter.JSON(map[string]any{"sessionId": before.SessionID, "queued": st.LastQueued})
			}
			return app.Formatter.Success("Abandoned %s", before.Subject)
		},
	}
}

// NewResetCmd creates the reset command.
func NewResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the local timer state",
		Long: `Clear the local checkpoint and cached session. Nothing is sent to the
session service; the next command restores from the service record.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			if _, err := openSession(app); err != nil {
				return err
			}
			st, err := app.Container.Controller().Reset(app.Ctx)
			if err != nil {
				return err
			}
			return reportStatus(app, "Local state cleared", st)
		},
	}
}

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			st, err := openSession(app)
			if err != nil {
				return err
			}
			if err := app.Formatter.Status(st); err != nil {
				return err
			}
			if app.Formatter.IsJSON() {
				return nil
			}
			if n, err := app.Container.Queue().Pending(app.Ctx); err == nil && n > 0 {
				return app.Formatter.Warning("%d write(s) waiting to sync", n)
			}
			return nil
		},
	}
}
