package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/resync/internal/control"
	"github.com/vietddude/resync/internal/state/guard"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store health and the effective query settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, runStatus)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(ctx context.Context, app *control.App) error {
	report := app.Health(ctx)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintf(w, "SYSTEM\t%s\n", report.SystemStatus)
	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tLATENCY\tERROR")

	names := make([]string, 0, len(report.Components))
	for name := range report.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := report.Components[name]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%dms\t%s\n", name, c.Status, c.LatencyMs, c.Error)
	}
	_ = w.Flush()

	q := app.Executor().Config()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "\nSETTING\tVALUE")
	_, _ = fmt.Fprintf(w, "store\t%s\n", cfg.Store.Driver)
	_, _ = fmt.Fprintf(w, "backup\t%s\n", cfg.Backup.Driver)
	_, _ = fmt.Fprintf(w, "max retries\t%d\n", q.MaxRetries)
	_, _ = fmt.Fprintf(w, "backoff\t%s base, %s cap\n", q.BaseDelay, q.MaxDelay)
	_, _ = fmt.Fprintf(w, "timeouts\t%s / %s / %s\n", q.Timeouts.Light, q.Timeouts.Standard, q.Timeouts.Heavy)
	_, _ = fmt.Fprintf(w, "batch size\t%d\n", q.BatchSize)
	_, _ = fmt.Fprintf(w, "guard safety timeout\t%s\n", cfg.Guard.SafetyTimeout)
	_, _ = fmt.Fprintf(w, "profile guard\t%s\n", guard.StateDescription(app.ProfileSnapshot().State))
	_, _ = fmt.Fprintf(w, "autosave delay\t%s\n", cfg.Autosave.Delay)
	return w.Flush()
}
