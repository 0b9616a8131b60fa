package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/trip-cli/internal/model"
	"github.com/sells-group/trip-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect planning run history",
	Long:  "Commands for listing, viewing, and summarizing planning runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List planning runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.Status(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

// runDetail is a run together with its recorded phases.
type runDetail struct {
	*model.Run
	Phases []model.RunPhase `json:"phases"`
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		phases, err := st.ListPhases(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show: phases")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runDetail{Run: run, Phases: phases})
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		if since > 0 {
			runs = runsSince(runs, time.Now().Add(-since))
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (extracting_preferences, completed, ...)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total          int
	Planned        int
	Failed         int
	InProgress     int
	Reoptimized    int
	OverBudget     int
	AvgReopts      float64
	AvgDurSecs     float64
	AvgTotalCost   float64
	ErrorsByReason map[string]int
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.Run) runStats {
	s := runStats{Total: len(runs), ErrorsByReason: make(map[string]int)}

	var totalDur time.Duration
	var reopts, finished int
	var cost float64

	for _, r := range runs {
		if r.Status != model.StatusCompleted || r.Result == nil {
			s.InProgress++
			continue
		}
		finished++
		totalDur += r.UpdatedAt.Sub(r.CreatedAt)
		reopts += r.Result.ReoptimizationCount
		if r.Result.ReoptimizationCount > 0 {
			s.Reoptimized++
		}

		if r.Result.Payload.IsError() {
			s.Failed++
			s.ErrorsByReason[r.Result.Payload.Error]++
			continue
		}
		s.Planned++
		cost += r.Result.Payload.TotalCost
		if r.Result.Payload.RemainingBudget < 0 {
			s.OverBudget++
		}
	}

	if finished > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(finished)
		s.AvgReopts = float64(reopts) / float64(finished)
	}
	if s.Planned > 0 {
		s.AvgTotalCost = cost / float64(s.Planned)
	}
	return s
}

func runsSince(runs []model.Run, after time.Time) []model.Run {
	out := runs[:0:0]
	for _, r := range runs {
		if r.CreatedAt.After(after) {
			out = append(out, r)
		}
	}
	return out
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tREQUEST\tSTATUS\tTOTAL\tREOPT\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t-----\t-----\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()

		total, reopt := "", ""
		if r.Result != nil {
			reopt = fmt.Sprintf("%d", r.Result.ReoptimizationCount)
			if r.Result.Payload.IsError() {
				total = "error"
			} else {
				total = fmt.Sprintf("$%.2f", r.Result.Payload.TotalCost)
			}
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			truncateText(r.Request, 40),
			r.Status,
			total,
			reopt,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Planned:\t%d\n", s.Planned)
	_, _ = fmt.Fprintf(w, "  Over budget:\t%d\n", s.OverBudget)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	for reason, n := range s.ErrorsByReason {
		_, _ = fmt.Fprintf(w, "  %s\t%d\n", truncateText(reason, 50), n)
	}
	_, _ = fmt.Fprintf(w, "In progress:\t%d\n", s.InProgress)
	_, _ = fmt.Fprintf(w, "Re-optimized:\t%d\n", s.Reoptimized)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	if s.Planned > 0 {
		_, _ = fmt.Fprintf(w, "Avg re-optimizations:\t%.2f\n", s.AvgReopts)
		_, _ = fmt.Fprintf(w, "Avg total cost:\t$%.2f\n", s.AvgTotalCost)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncateText collapses whitespace and shortens s to n runes.
func truncateText(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
