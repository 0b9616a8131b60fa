package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/trip-cli/internal/model"
)

var (
	planRequest string
	planFormat  string
)

// errQuit is returned by readRequest when the user asks to exit.
var errQuit = eris.New("quit")

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan a single trip",
	Long:  "Plans one trip from --request, or from a request typed on stdin (end with a blank line, 'quit' to exit).",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		text := planRequest
		if strings.TrimSpace(text) == "" {
			var err error
			text, err = readRequest(os.Stdin, os.Stderr)
			if eris.Is(err, errQuit) {
				fmt.Fprintln(os.Stderr, "Exiting...")
				return nil
			}
			if err != nil {
				return err
			}
		}

		env, err := initPipeline(ctx, "plan")
		if err != nil {
			return err
		}
		defer env.Close()

		res := env.Pipeline.Process(ctx, text)
		return writePayload(os.Stdout, res.Payload, planFormat)
	},
}

func init() {
	planCmd.Flags().StringVar(&planRequest, "request", "", "trip request text (reads stdin when empty)")
	planCmd.Flags().StringVar(&planFormat, "format", "json", "output format: json or table")
	rootCmd.AddCommand(planCmd)
}

// readRequest reads a multi-line request. Input ends at the first blank line
// or EOF; a line of quit, exit or q aborts with errQuit.
func readRequest(in io.Reader, prompt io.Writer) (string, error) {
	_, _ = fmt.Fprintln(prompt, "Enter your travel request (blank line to finish, 'quit' to exit):")
	_, _ = fmt.Fprintln(prompt, "Example: Plan a trip from New York to Paris from December 1, 2026 to December 6, 2026. Budget: $3,000")

	var lines []string
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		switch strings.ToLower(trimmed) {
		case "quit", "exit", "q":
			return "", errQuit
		}
		if trimmed == "" {
			break
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return "", eris.Wrap(err, "read request")
	}

	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" {
		return "", eris.New("no request provided")
	}
	return text, nil
}

// writePayload renders a payload as indented JSON or as a day table.
func writePayload(out io.Writer, p model.Payload, format string) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case "table":
		formatItinerary(out, p)
		return nil
	default:
		return eris.Errorf("unknown output format %q", format)
	}
}

// formatItinerary writes a payload as a tabular day-by-day plan.
func formatItinerary(out io.Writer, p model.Payload) {
	if p.IsError() {
		_, _ = fmt.Fprintf(out, "Error: %s\nStatus: %s\n", p.Error, p.Status)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DAY\tCITY\tATTRACTION\tACCOMMODATION\tCOST")
	_, _ = fmt.Fprintln(w, "---\t----\t----------\t-------------\t----")
	for _, d := range p.Days {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t$%.2f\n",
			d.Day, d.CurrentCity, d.Attraction, d.Accommodation, d.DailyCost)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nTotal cost:        $%.2f\n", p.TotalCost)
	_, _ = fmt.Fprintf(out, "Remaining budget:  $%.2f\n", p.RemainingBudget)
}
