package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	appOutbox "github.com/jbctechsolutions/focusvault/internal/application/outbox"
)

// NewSyncCmd creates the sync command.
func NewSyncCmd() *cobra.Command {
	var signalOnly bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay queued writes now",
		Long: `Replay the offline write queue in order. Replay stops at the first
write that still cannot reach the service; rejected and expired writes are
dropped.

With --signal, touch the sync trigger file instead so that a running
"fv run" console replays its queue.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			f := app.Formatter

			if signalOnly {
				if err := app.Container.SignalSync(); err != nil {
					return err
				}
				if f.IsJSON() {
					return f.JSON(map[string]bool{"signaled": true})
				}
				return f.Success("Signaled running console")
			}

			res, err := app.Container.Replay().RunOnce(app.Ctx, appOutbox.TriggerManual)
			if err != nil {
				return err
			}
			if f.IsJSON() {
				return f.JSON(res)
			}

			_ = f.Item("Replayed", strconv.Itoa(res.Replayed))
			_ = f.Item("Rejected", strconv.Itoa(res.Rejected))
			_ = f.Item("Expired", strconv.Itoa(res.Expired))
			_ = f.Item("Remaining", strconv.Itoa(res.Remaining))
			if res.Stopped {
				return f.Warning("Service unreachable; %d write(s) still queued", res.Remaining)
			}
			return f.Success("Queue synced")
		},
	}

	cmd.Flags().BoolVar(&signalOnly, "signal", false, "signal a running console instead of replaying here")
	return cmd
}

// NewQueueCmd creates the queue command group.
func NewQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the offline write queue",
	}
	cmd.AddCommand(newQueueListCmd())
	cmd.AddCommand(newQueuePurgeCmd())
	return cmd
}

func newQueueListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List queued writes in replay order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			writes, err := app.Container.Queue().List(app.Ctx, limit)
			if err != nil {
				return err
			}
			return app.Formatter.QueuedWrites(writes)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "maximum entries to show (0 for all)")
	return cmd
}

func newQueuePurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Drop expired writes",
		Long:  `Remove queued writes that exceeded the configured age or attempt limit.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp()
			if err != nil {
				return err
			}
			n, err := app.Container.Queue().Purge(app.Ctx)
			if err != nil {
				return err
			}
			if app.Formatter.IsJSON() {
				return app.Formatter.JSON(map[string]int{"purged": n})
			}
			return app.Formatter.Success("Purged %d expired write(s)", n)
		},
	}
}
