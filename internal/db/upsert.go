package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Merge describes how re-saved rows fold into a keyed table. Matches are
// re-saved when follow-ups resolve and tax statements when a lookup is
// refreshed, so the same key arrives more than once over a table's life.
type Merge struct {
	Table   string   // target table, optionally schema-qualified
	Columns []string // columns in row order
	Keys    []string // primary key columns

	// Version names a timestamp column. When set, a row replaces the stored
	// one only if it is not older, so a late retry cannot undo a newer
	// save, and duplicate keys within one batch keep the newest row.
	Version string
}

func (m Merge) validate() error {
	if len(m.Columns) == 0 {
		return eris.Errorf("db: merge %s: no columns", m.Table)
	}
	if len(m.Keys) == 0 {
		return eris.Errorf("db: merge %s: no key columns", m.Table)
	}
	for _, k := range m.Keys {
		if !slices.Contains(m.Columns, k) {
			return eris.Errorf("db: merge %s: key %s is not a column", m.Table, k)
		}
	}
	if m.Version != "" && !slices.Contains(m.Columns, m.Version) {
		return eris.Errorf("db: merge %s: version %s is not a column", m.Table, m.Version)
	}
	return nil
}

// RowSQL returns a single-row upsert taking the columns as $1..$n.
func (m Merge) RowSQL() string {
	params := make([]string, len(m.Columns))
	for i := range m.Columns {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s AS t (%s) VALUES (%s) %s",
		tableIdent(m.Table), idents(m.Columns), strings.Join(params, ", "), m.onConflict())
}

// Apply stages rows in a temp table with COPY and merges them into the
// table in one transaction. It returns the number of rows inserted or
// replaced; rows skipped by the version check are not counted.
func (m Merge) Apply(ctx context.Context, pool Pool, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := m.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: begin tx", m.Table)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	stage := m.stageName()
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{stage}.Sanitize(), tableIdent(m.Table),
	)); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: create stage table", m.Table)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{stage}, m.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: copy %d rows", m.Table, len(rows))
	}

	tag, err := tx.Exec(ctx, m.mergeSQL())
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge %s", m.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: commit", m.Table)
	}
	return tag.RowsAffected(), nil
}

func (m Merge) stageName() string {
	return "_stage_" + strings.ReplaceAll(m.Table, ".", "_")
}

// mergeSQL moves staged rows into the table. DISTINCT ON keeps one row per
// key because ON CONFLICT cannot touch the same target row twice.
func (m Merge) mergeSQL() string {
	order := idents(m.Keys)
	if m.Version != "" {
		order += ", " + pgx.Identifier{m.Version}.Sanitize() + " DESC"
	}
	return fmt.Sprintf("INSERT INTO %s AS t (%s) SELECT DISTINCT ON (%s) %s FROM %s ORDER BY %s %s",
		tableIdent(m.Table),
		idents(m.Columns),
		idents(m.Keys),
		idents(m.Columns),
		pgx.Identifier{m.stageName()}.Sanitize(),
		order,
		m.onConflict(),
	)
}

func (m Merge) onConflict() string {
	var sets []string
	for _, c := range m.Columns {
		if slices.Contains(m.Keys, c) {
			continue
		}
		col := pgx.Identifier{c}.Sanitize()
		sets = append(sets, col+" = EXCLUDED."+col)
	}
	if len(sets) == 0 {
		return fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", idents(m.Keys))
	}
	clause := fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", idents(m.Keys), strings.Join(sets, ", "))
	if m.Version != "" {
		v := pgx.Identifier{m.Version}.Sanitize()
		clause += fmt.Sprintf(" WHERE t.%s <= EXCLUDED.%s", v, v)
	}
	return clause
}

// tableIdent quotes a table name, keeping an optional schema prefix.
func tableIdent(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func idents(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
