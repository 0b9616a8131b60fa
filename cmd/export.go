package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/trip-cli/internal/model"
	"github.com/sells-group/trip-cli/internal/store"
	"github.com/sells-group/trip-cli/internal/triplog"
)

const exportSheet = "Runs"

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export planning runs to an .xlsx or .csv file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		out, _ := cmd.Flags().GetString("out")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		format := strings.ToLower(strings.TrimPrefix(filepath.Ext(out), "."))
		if format != "xlsx" && format != "csv" {
			return eris.Errorf("export: --out must end in .xlsx or .csv, got %q", out)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.Status(status), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "export: list runs")
		}

		f, err := os.Create(out)
		if err != nil {
			return eris.Wrap(err, "export: create file")
		}
		defer f.Close() //nolint:errcheck

		rows := exportRows(runs)
		if format == "csv" {
			err = writeRunsCSV(f, rows)
		} else {
			err = writeRunsXLSX(f, rows)
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Exported %d runs (%d rows) to %s\n", len(runs), len(rows)-1, out)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "runs.xlsx", "output file (.xlsx or .csv)")
	exportCmd.Flags().String("status", "", "filter by run status")
	exportCmd.Flags().Int("limit", 1000, "max number of runs to export")
	rootCmd.AddCommand(exportCmd)
}

// exportColumns is the trip log layout prefixed with the run id.
func exportColumns() []string {
	return append([]string{"run_id"}, triplog.Columns...)
}

// exportRows renders runs in the trip log row layout, header first. Runs
// without a result yet get a single row carrying their status.
func exportRows(runs []model.Run) [][]string {
	rows := [][]string{exportColumns()}
	for _, r := range runs {
		if r.Result == nil {
			row := make([]string, len(triplog.Columns))
			row[0] = r.CreatedAt.Format("2006-01-02 15:04:05")
			row[1] = strings.TrimSpace(r.Request)
			row[3] = string(r.Status)
			rows = append(rows, append([]string{r.ID}, row...))
			continue
		}
		for _, row := range triplog.Rows(r.CreatedAt, r.Request, r.Result.Payload) {
			rows = append(rows, append([]string{r.ID}, row...))
		}
	}
	return rows
}

func writeRunsCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return eris.Wrap(err, "export: write csv")
	}
	return nil
}

// numericColumns are written as numbers in the workbook.
var numericColumns = map[string]bool{
	"day":              true,
	"daily_cost":       true,
	"total_cost":       true,
	"remaining_budget": true,
}

func writeRunsXLSX(w io.Writer, rows [][]string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(exportSheet)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	var header []string
	for i, values := range rows {
		if i == 0 {
			header = values
		}
		row := sheet.AddRow()
		for j, v := range values {
			cell := row.AddCell()
			if i > 0 && j < len(header) && numericColumns[header[j]] && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					cell.SetFloat(f)
					continue
				}
			}
			cell.SetString(v)
		}
	}

	if err := file.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}
