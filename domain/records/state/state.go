// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	coredatabase "github.com/clustervision/luna2-daemon-sub002/core/database"
	"github.com/clustervision/luna2-daemon-sub002/domain/records"
	recordserrors "github.com/clustervision/luna2-daemon-sub002/domain/records/errors"
	"github.com/clustervision/luna2-daemon-sub002/domain/schema"
	"github.com/clustervision/luna2-daemon-sub002/internal/database"
)

// State gives generic access to the tracked tables. The tables have
// different shapes, so it works on plain database/sql rows with column
// names taken from the schema rather than on typed sqlair statements.
type State struct {
	getDB   coredatabase.TxnRunnerFactory
	tracked set.Strings
}

// NewState returns a new state reference.
func NewState(factory coredatabase.TxnRunnerFactory) *State {
	return &State{
		getDB:   factory,
		tracked: set.NewStrings(schema.TrackedTables()...),
	}
}

func (st *State) db(ctx context.Context, table string) (coredatabase.TxnRunner, error) {
	if !st.tracked.Contains(table) {
		return nil, errors.Annotatef(recordserrors.TableNotTracked, "%q", table)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	db, err := st.getDB()
	return db, errors.Trace(err)
}

// Columns returns the column names of the input table in schema order.
func (st *State) Columns(ctx context.Context, table string) ([]string, error) {
	db, err := st.db(ctx, table)
	if err != nil {
		return nil, errors.Trace(err)
	}

	var columns []string
	err = db.StdTxn(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		columns, err = tableColumns(ctx, tx, table)
		return errors.Trace(err)
	})
	return columns, errors.Trace(err)
}

// Dump returns every row of the input table ordered by its natural key.
func (st *State) Dump(ctx context.Context, table string) (records.Table, error) {
	db, err := st.db(ctx, table)
	if err != nil {
		return records.Table{}, errors.Trace(err)
	}

	result := records.Table{Name: table}
	err = db.StdTxn(ctx, func(ctx context.Context, tx *sql.Tx) error {
		columns, err := tableColumns(ctx, tx, table)
		if err != nil {
			return errors.Trace(err)
		}
		key, err := records.NaturalKey(columns)
		if err != nil {
			return errors.Annotatef(err, "table %q", table)
		}

		query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
			quoteList(columns), quote(table), quoteList(key))
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return errors.Trace(err)
		}
		defer func() { _ = rows.Close() }()

		result.Columns = columns
		result.Rows = nil
		for rows.Next() {
			values := make([]any, len(columns))
			ptrs := make([]any, len(columns))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return errors.Trace(err)
			}
			for i, v := range values {
				values[i] = records.Normalise(v)
			}
			result.Rows = append(result.Rows, values)
		}
		return errors.Trace(rows.Err())
	})
	if err != nil {
		return records.Table{}, errors.Trace(err)
	}
	return result, nil
}

// Replace deletes every row of the table and inserts the input rows in
// one transaction. The input columns must be exactly the local columns.
func (st *State) Replace(ctx context.Context, content records.Table) error {
	db, err := st.db(ctx, content.Name)
	if err != nil {
		return errors.Trace(err)
	}

	err = db.StdTxn(ctx, func(ctx context.Context, tx *sql.Tx) error {
		columns, err := tableColumns(ctx, tx, content.Name)
		if err != nil {
			return errors.Trace(err)
		}
		if !set.NewStrings(columns...).Difference(set.NewStrings(content.Columns...)).IsEmpty() ||
			len(columns) != len(content.Columns) {
			return errors.Annotatef(recordserrors.ColumnMismatch,
				"table %q has %v, got %v", content.Name, columns, content.Columns)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM "+quote(content.Name)); err != nil {
			return errors.Annotatef(err, "clearing %q", content.Name)
		}

		insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quote(content.Name), quoteList(content.Columns), placeholders(len(content.Columns)))
		for i, row := range content.Rows {
			if len(row) != len(content.Columns) {
				return errors.Annotatef(recordserrors.ColumnMismatch,
					"row %d of %q has %d values", i, content.Name, len(row))
			}
			if _, err := tx.ExecContext(ctx, insert, row...); err != nil {
				return errors.Annotatef(err, "inserting row %d of %q", i, content.Name)
			}
		}
		return nil
	})
	return errors.Trace(err)
}

// Upsert inserts the record or updates the record with the same natural
// key, and returns the stored row.
func (st *State) Upsert(ctx context.Context, table string, values map[string]any) (map[string]any, error) {
	db, err := st.db(ctx, table)
	if err != nil {
		return nil, errors.Trace(err)
	}

	var stored map[string]any
	err = db.StdTxn(ctx, func(ctx context.Context, tx *sql.Tx) error {
		columns, err := tableColumns(ctx, tx, table)
		if err != nil {
			return errors.Trace(err)
		}
		key, err := records.NaturalKey(columns)
		if err != nil {
			return errors.Annotatef(err, "table %q", table)
		}

		known := set.NewStrings(columns...)
		var (
			cols    []string
			args    []any
			updates []string
		)
		for _, col := range columns {
			v, ok := values[col]
			if !ok {
				continue
			}
			cols = append(cols, col)
			args = append(args, records.Normalise(v))
		}
		for col := range values {
			if !known.Contains(col) {
				return errors.NotValidf("column %q of table %q", col, table)
			}
		}
		keySet := set.NewStrings(key...)
		for _, col := range cols {
			if !keySet.Contains(col) {
				updates = append(updates, fmt.Sprintf("%s = excluded.%s", quote(col), quote(col)))
			}
		}
		for _, col := range key {
			if _, ok := values[col]; !ok {
				return errors.NotValidf("%s record without %q", table, col)
			}
		}

		conflict := "DO NOTHING"
		if len(updates) > 0 {
			conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
			quote(table), quoteList(cols), placeholders(len(cols)), quoteList(key), conflict)
		if _, err := tx.ExecContext(ctx, query, args...); database.IsErrConstraintUnique(err) {
			return errors.NewNotValid(err, fmt.Sprintf("upserting into %q", table))
		} else if err != nil {
			return errors.Annotatef(err, "upserting into %q", table)
		}

		stored, err = selectByKey(ctx, tx, table, columns, key, values)
		return errors.Trace(err)
	})
	return stored, errors.Trace(err)
}

// Delete removes the record with the input natural key values. Deleting
// an absent record is not an error.
func (st *State) Delete(ctx context.Context, table string, keyValues map[string]any) error {
	db, err := st.db(ctx, table)
	if err != nil {
		return errors.Trace(err)
	}

	err = db.StdTxn(ctx, func(ctx context.Context, tx *sql.Tx) error {
		columns, err := tableColumns(ctx, tx, table)
		if err != nil {
			return errors.Trace(err)
		}
		key, err := records.NaturalKey(columns)
		if err != nil {
			return errors.Annotatef(err, "table %q", table)
		}
		where, args, err := keyPredicate(table, key, keyValues)
		if err != nil {
			return errors.Trace(err)
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", quote(table), where), args...)
		return errors.Annotatef(err, "deleting from %q", table)
	})
	return errors.Trace(err)
}

// NaturalKey returns the natural key columns of the input table.
func (st *State) NaturalKey(ctx context.Context, table string) ([]string, error) {
	columns, err := st.Columns(ctx, table)
	if err != nil {
		return nil, errors.Trace(err)
	}
	key, err := records.NaturalKey(columns)
	return key, errors.Annotatef(err, "table %q", table)
}

func selectByKey(
	ctx context.Context, tx *sql.Tx, table string, columns, key []string, keyValues map[string]any,
) (map[string]any, error) {
	where, args, err := keyPredicate(table, key, keyValues)
	if err != nil {
		return nil, errors.Trace(err)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", quoteList(columns), quote(table), where)

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	err = tx.QueryRowContext(ctx, query, args...).Scan(ptrs...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Annotatef(recordserrors.RecordNotFound, "table %q", table)
	} else if err != nil {
		return nil, errors.Trace(err)
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = records.Normalise(values[i])
	}
	return row, nil
}

func keyPredicate(table string, key []string, values map[string]any) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)
	for _, col := range key {
		v, ok := values[col]
		if !ok {
			return "", nil, errors.NotValidf("%s record without %q", table, col)
		}
		clauses = append(clauses, quote(col)+" = ?")
		args = append(args, records.Normalise(v))
	}
	return strings.Join(clauses, " AND "), args, nil
}

func tableColumns(ctx context.Context, tx *sql.Tx, table string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, errors.Annotatef(err, "reading columns of %q", table)
	}
	defer func() { _ = rows.Close() }()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Trace(err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	if len(columns) == 0 {
		return nil, errors.NotFoundf("table %q", table)
	}
	return columns, nil
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = quote(name)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
