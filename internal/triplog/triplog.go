// Package triplog records every request and its final payload to disk: one
// JSON file per request plus an append-only CSV of all requests.
package triplog

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/trip-cli/internal/model"
)

// CSVName is the file the CSV rows are appended to.
const CSVName = "trip_data.csv"

// Columns is the CSV header.
var Columns = []string{
	"timestamp",
	"query",
	"error",
	"status",
	"day",
	"current_city",
	"transportation",
	"breakfast",
	"attraction",
	"lunch",
	"dinner",
	"accommodation",
	"daily_cost",
	"total_cost",
	"remaining_budget",
}

// Entry is the content of a per-request JSON file.
type Entry struct {
	Timestamp string        `json:"timestamp"`
	Query     string        `json:"query"`
	Output    model.Payload `json:"output"`
}

// Logger writes trip logs under a directory. Safe for concurrent use.
type Logger struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// New creates a Logger writing to dir. The directory is created on first write.
func New(dir string, opts ...Option) *Logger {
	l := &Logger{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the log directory.
func (l *Logger) Dir() string { return l.dir }

// Record writes the JSON file for one request and appends its CSV rows.
// It returns the JSON file path.
func (l *Logger) Record(query string, out model.Payload) (string, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", eris.Wrap(err, "triplog: create dir")
	}
	now := l.now()

	path, err := l.writeJSON(now, query, out)
	if err != nil {
		return "", err
	}
	if err := l.appendCSV(now, query, out); err != nil {
		return path, err
	}
	return path, nil
}

func (l *Logger) writeJSON(now time.Time, query string, out model.Payload) (string, error) {
	name := now.Format("20060102_150405") + "_" + now.Format(".000")[1:] + "_" + uuid.NewString()[:8] + ".json"
	path := filepath.Join(l.dir, name)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Entry{
		Timestamp: now.Format(time.RFC3339Nano),
		Query:     query,
		Output:    out,
	}); err != nil {
		return "", eris.Wrap(err, "triplog: encode entry")
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", eris.Wrap(err, "triplog: write json")
	}
	return path, nil
}

// appendCSV writes all rows for a request in a single write so concurrent
// requests never interleave.
func (l *Logger) appendCSV(now time.Time, query string, out model.Payload) error {
	rows := Rows(now, query, out)

	l.mu.Lock()
	defer l.mu.Unlock()

	path := filepath.Join(l.dir, CSVName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrap(err, "triplog: open csv")
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return eris.Wrap(err, "triplog: stat csv")
	}
	if info.Size() == 0 {
		rows = append([][]string{Columns}, rows...)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return eris.Wrap(err, "triplog: encode csv")
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return eris.Wrap(err, "triplog: append csv")
	}
	return nil
}

// Rows renders a payload as CSV rows: one per error, or one per day with the
// trip totals on the last day only.
func Rows(now time.Time, query string, out model.Payload) [][]string {
	ts := now.Format("2006-01-02 15:04:05")
	query = strings.TrimSpace(query)

	if out.IsError() {
		row := make([]string, len(Columns))
		row[0], row[1], row[2], row[3] = ts, query, out.Error, out.Status
		return [][]string{row}
	}

	rows := make([][]string, 0, len(out.Days))
	for i, d := range out.Days {
		row := []string{
			ts, query, "", "success",
			strconv.Itoa(d.Day),
			d.CurrentCity,
			d.Transportation,
			d.Breakfast,
			d.Attraction,
			d.Lunch,
			d.Dinner,
			d.Accommodation,
			money(d.DailyCost),
			"", "",
		}
		if i == len(out.Days)-1 {
			row[13] = money(out.TotalCost)
			row[14] = money(out.RemainingBudget)
		}
		rows = append(rows, row)
	}
	return rows
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
