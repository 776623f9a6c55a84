package output

import (
	"fmt"
	"strings"
	"time"

	appsession "github.com/jbctechsolutions/focusvault/internal/application/session"
	"github.com/jbctechsolutions/focusvault/internal/domain/outbox"
	"github.com/jbctechsolutions/focusvault/internal/domain/session"
)

const progressWidth = 30

// FormatElapsed renders whole seconds as HH:MM:SS. Negative input renders
// as zero.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// ProgressBar renders elapsed against target as a fixed-width bar. The bar
// is full once the target is reached.
func ProgressBar(elapsed, target, width int) string {
	if width <= 0 {
		width = progressWidth
	}
	if target <= 0 {
		return "[" + strings.Repeat("░", width) + "]"
	}
	filled := elapsed * width / target
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

// TimerLine is the single-line live view used by the console.
func TimerLine(st appsession.Status) string {
	if !st.HasSession() {
		return "no session"
	}
	line := fmt.Sprintf("%s %s / %s %s %s",
		st.Subject,
		FormatElapsed(st.Elapsed),
		FormatElapsed(st.Target),
		ProgressBar(st.Elapsed, st.Target, 20),
		st.State,
	)
	if st.LastQueued {
		line += " (offline)"
	}
	return line
}

// Status prints the controller status in the formatter's format.
func (f *Formatter) Status(st appsession.Status) error {
	if f.IsJSON() {
		return f.JSON(st)
	}
	if !st.HasSession() {
		return f.Info("No active session")
	}

	state := string(st.State)
	switch st.State {
	case session.StatusActive:
		state = f.Colorize(state, ColorGreen)
	case session.StatusPaused:
		state = f.Colorize(state, ColorYellow)
	}

	items := []struct{ k, v string }{
		{"Session", st.SessionID},
		{"Subject", st.Subject},
		{"Status", state},
		{"Elapsed", FormatElapsed(st.Elapsed)},
		{"Target", FormatElapsed(st.Target)},
		{"Progress", ProgressBar(st.Elapsed, st.Target, progressWidth)},
	}
	for _, it := range items {
		if err := f.Item(it.k, it.v); err != nil {
			return err
		}
	}
	if st.AlarmFired {
		if err := f.Item("Alarm", "target reached"); err != nil {
			return err
		}
	}
	if st.Muted {
		if err := f.Item("Muted", "yes"); err != nil {
			return err
		}
	}
	if st.LastQueued {
		return f.Warning("Last write was queued; it will sync when the service is reachable")
	}
	return nil
}

// QueuedWrites prints the offline queue.
func (f *Formatter) QueuedWrites(writes []*outbox.QueuedWrite) error {
	if f.IsJSON() {
		if writes == nil {
			writes = []*outbox.QueuedWrite{}
		}
		return f.JSON(writes)
	}
	if len(writes) == 0 {
		return f.Info("Queue is empty")
	}

	rows := make([][]string, 0, len(writes))
	for _, w := range writes {
		rows = append(rows, []string{
			shortID(w.ID),
			w.Request.Method,
			w.Request.Path,
			time.UnixMilli(w.EnqueuedAtMs).Format(time.DateTime),
			fmt.Sprintf("%d", w.Attempts),
			w.LastError,
		})
	}
	return f.Table(TableData{
		Headers: []string{"ID", "METHOD", "PATH", "QUEUED", "ATTEMPTS", "LAST ERROR"},
		Rows:    rows,
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
