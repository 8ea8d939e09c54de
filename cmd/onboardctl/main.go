// Command onboardctl inspects and drives the onboarding deadline sweeper
// through its admin HTTP surface.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/angelmondragon/onboarding-enforcer/internal/monitoring"
	"github.com/angelmondragon/onboarding-enforcer/internal/sweep"
)

const timeLayout = "2006-01-02 15:04 MST"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ONBOARDCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "onboardctl",
		Short:         "Operate the onboarding deadline sweeper",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("addr", "http://localhost:8080", "admin HTTP address (env ONBOARDCTL_ADDR)")
	root.PersistentFlags().Bool("json", false, "print raw JSON")
	root.PersistentFlags().Duration("http-timeout", 6*time.Minute, "HTTP client timeout")
	_ = v.BindPFlag("addr", root.PersistentFlags().Lookup("addr"))
	_ = v.BindPFlag("json", root.PersistentFlags().Lookup("json"))
	_ = v.BindPFlag("http-timeout", root.PersistentFlags().Lookup("http-timeout"))

	root.AddCommand(
		statusCmd(v),
		triggerCmd(v),
		overdueCmd(v),
		approachingCmd(v),
		reassignmentsCmd(v),
	)
	return root
}

func clientFrom(v *viper.Viper) (*client, error) {
	return newClient(v.GetString("addr"), v.GetDuration("http-timeout"))
}

func statusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show scheduler state and the last sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFrom(v)
			if err != nil {
				return err
			}
			st, err := c.status(cmd.Context())
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), st)
			}
			renderStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func triggerCmd(v *viper.Viper) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Run a sweep now and wait for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFrom(v)
			if err != nil {
				return err
			}
			res, err := c.trigger(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !res.Finished {
				if v.GetBool("json") {
					return printJSON(out, map[string]any{"running": true, "status": res.Status})
				}
				fmt.Fprintln(out, "sweep still running; check `onboardctl status` for the result")
				return nil
			}
			if v.GetBool("json") {
				return printJSON(out, res.Result)
			}
			renderResult(out, res.Result)
			if res.Result.Health == sweep.HealthDegraded {
				fmt.Fprintf(out, "sweep finished degraded: %d match(es) failed and will be retried next sweep\n", res.Result.Failed)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long the server waits for the sweep (server default when 0)")
	return cmd
}

func overdueCmd(v *viper.Viper) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "List matches past their deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFrom(v)
			if err != nil {
				return err
			}
			out, err := c.overdue(cmd.Context(), tenant)
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), out)
			}
			renderDeadlines(cmd.OutOrStdout(), "Overdue applications", out.Applications)
			renderDeadlines(cmd.OutOrStdout(), "Overdue assignments", out.Assignments)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "restrict to one tenant id")
	return cmd
}

func approachingCmd(v *viper.Viper) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "approaching",
		Short: "List matches inside the warning window",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFrom(v)
			if err != nil {
				return err
			}
			out, err := c.approaching(cmd.Context(), tenant)
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), out)
			}
			renderDeadlines(cmd.OutOrStdout(), "Application deadlines", out.Application)
			renderDeadlines(cmd.OutOrStdout(), "Assignment deadlines", out.Assignment)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "restrict to one tenant id")
	return cmd
}

func reassignmentsCmd(v *viper.Viper) *cobra.Command {
	var (
		window time.Duration
		limit  int
		cursor string
	)
	cmd := &cobra.Command{
		Use:   "reassignments",
		Short: "List recent reassignment events",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFrom(v)
			if err != nil {
				return err
			}
			page, err := c.reassignments(cmd.Context(), window, limit, cursor)
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), page)
			}
			renderEvents(cmd.OutOrStdout(), page)
			return nil
		},
	}
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "how far back to look")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor from a previous page")
	return cmd
}

func renderStatus(w io.Writer, st sweep.Status) {
	tw := newTable(w)
	tw.AppendRow(table.Row{"Running", st.Running})
	tw.AppendRow(table.Row{"Sweeping", st.Sweeping})
	tw.AppendRow(table.Row{"Health", st.Health})
	tw.AppendRow(table.Row{"Interval", st.Interval})
	tw.AppendRow(table.Row{"Last run", formatTime(st.LastRunAt)})
	tw.AppendRow(table.Row{"Next run", formatTime(st.NextRunAt)})
	if st.LastError != "" {
		tw.AppendRow(table.Row{"Last error", st.LastError})
	}
	tw.Render()
	if st.LastResult != nil {
		renderResult(w, *st.LastResult)
	}
}

func renderResult(w io.Writer, r sweep.Result) {
	tw := newTable(w)
	tw.SetTitle("Sweep " + r.SweepID)
	tw.AppendHeader(table.Row{"Trigger", "Health", "Evaluated", "Reassigned", "No replacement", "Conflicts", "Failed", "Stale cleared", "Warnings", "Duration"})
	tw.AppendRow(table.Row{
		r.Trigger, r.Health, r.Evaluated, r.Reassigned, r.NoReplacementFound,
		r.ClaimConflicts, r.Failed, r.StaleClaimsCleared, r.WarningsSent,
		(time.Duration(r.DurationMS) * time.Millisecond).String(),
	})
	tw.Render()
	for _, e := range r.Errors {
		fmt.Fprintln(w, "  error:", e)
	}
}

func renderDeadlines(w io.Writer, title string, rows []monitoring.DeadlineView) {
	tw := newTable(w)
	tw.SetTitle(fmt.Sprintf("%s (%d)", title, len(rows)))
	tw.AppendHeader(table.Row{"Match", "Request", "Worker", "Status", "Attempt", "Deadline", "Days left", "Claimed"})
	for _, m := range rows {
		tw.AppendRow(table.Row{m.MatchID, m.RequestID, m.WorkerID, m.Status, m.AttemptNumber, m.Deadline.Format(timeLayout), m.BusinessDaysLeft, m.Claimed})
	}
	tw.Render()
}

func renderEvents(w io.Writer, page monitoring.ReassignmentPage) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Occurred", "Request", "Expired match", "New match", "Reason"})
	for _, e := range page.Events {
		next := "-"
		if e.NewMatchID != nil {
			next = e.NewMatchID.String()
		}
		tw.AppendRow(table.Row{e.OccurredAt.Format(timeLayout), e.RequestID, e.ExpiredMatchID, next, e.Reason})
	}
	tw.Render()
	if page.NextCursor != "" {
		fmt.Fprintln(w, "next cursor:", page.NextCursor)
	}
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	return tw
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(timeLayout)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
