package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// maxParams is the Postgres bind parameter limit for one statement.
const maxParams = 65535

// Upsert writes rows with INSERT ... ON CONFLICT (Key) DO UPDATE, replacing
// every non-key column.
type Upsert struct {
	Table   string
	Columns []string
	Key     string
	// BatchRows caps rows per statement. Zero fits as many as the
	// parameter limit allows.
	BatchRows int
}

// Exec writes rows in one transaction and returns the rows affected.
func (u Upsert) Exec(ctx context.Context, pool Pool, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := u.validate(rows); err != nil {
		return 0, err
	}

	batch := u.BatchRows
	if limit := maxParams / len(u.Columns); batch <= 0 || batch > limit {
		batch = limit
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var total int64
	for start := 0; start < len(rows); start += batch {
		chunk := rows[start:min(start+batch, len(rows))]

		args := make([]any, 0, len(chunk)*len(u.Columns))
		for _, r := range chunk {
			args = append(args, r...)
		}

		tag, err := tx.Exec(ctx, u.statement(len(chunk)), args...)
		if err != nil {
			return 0, eris.Wrapf(err, "db: upsert %s rows %d-%d", u.Table, start, start+len(chunk)-1)
		}
		total += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return total, nil
}

func (u Upsert) validate(rows [][]any) error {
	if u.Table == "" {
		return eris.New("db: upsert: no table specified")
	}
	if len(u.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	found := false
	for _, c := range u.Columns {
		if c == u.Key {
			found = true
		}
	}
	if !found {
		return eris.Errorf("db: upsert: key %q is not one of the columns", u.Key)
	}
	for i, r := range rows {
		if len(r) != len(u.Columns) {
			return eris.Errorf("db: upsert: row %d has %d values, want %d", i, len(r), len(u.Columns))
		}
	}
	return nil
}

// statement builds the upsert SQL for n rows.
func (u Upsert) statement(n int) string {
	cols := make([]string, len(u.Columns))
	var set []string
	for i, c := range u.Columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
		if c != u.Key {
			set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", cols[i], cols[i]))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", tableIdent(u.Table), strings.Join(cols, ", "))
	p := 1
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range u.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			p++
		}
		b.WriteByte(')')
	}

	key := pgx.Identifier{u.Key}.Sanitize()
	if len(set) == 0 {
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO NOTHING", key)
	} else {
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s", key, strings.Join(set, ", "))
	}
	return b.String()
}

// tableIdent quotes a table name, honoring a schema prefix.
func tableIdent(table string) string {
	return pgx.Identifier(strings.SplitN(table, ".", 2)).Sanitize()
}
