package sqlitedb

import (
	"context"
	"fmt"
	"strings"
)

// Table is one table's schema and contents.
//
// Columns and Types are in definition order, and every entry in Rows has
// exactly len(Columns) cells. A nil cell is a SQL NULL.
type Table struct {
	Name    string      `json:"name"`
	Columns []string    `json:"columns"`
	Types   []string    `json:"types"`
	Rows    [][]*string `json:"data"`
}

// QuoteIdent quotes name for use as an identifier in SQL text. Embedded
// double quotes are doubled, so any catalog name is safe to splice.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Describe reads the columns and every row of the named table, converting
// each cell to its canonical string form with [FormatValue].
func (d *DB) Describe(ctx context.Context, name string) (Table, error) {
	quoted := QuoteIdent(name)

	columns, types, err := d.columns(ctx, quoted)
	if err != nil {
		return Table{}, err
	}

	rows, err := d.db.QueryContext(ctx, "SELECT "+plainProjection(columns)+" FROM "+quoted)
	if err != nil {
		return Table{}, fmt.Errorf("scan table: %w", err)
	}
	defer rows.Close()

	scanned, err := rows.Columns()
	if err != nil {
		return Table{}, fmt.Errorf("scan table: %w", err)
	}
	if len(scanned) != len(columns) {
		return Table{}, fmt.Errorf("scan table: got %d columns, schema has %d", len(scanned), len(columns))
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	data := make([][]*string, 0)
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return Table{}, fmt.Errorf("scan row %d: %w", len(data)+1, err)
		}
		row := make([]*string, len(values))
		for i, v := range values {
			row[i] = FormatValue(v)
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return Table{}, fmt.Errorf("scan table: %w", err)
	}

	return Table{
		Name:    name,
		Columns: columns,
		Types:   types,
		Rows:    data,
	}, nil
}

// plainProjection selects every column as a unary-plus expression. The value
// is unchanged, but the result column has no declared type, so the driver
// hands back TEXT as stored instead of parsing DATE or TIMESTAMP columns
// into time.Time.
func plainProjection(columns []string) string {
	exprs := make([]string, len(columns))
	for i, c := range columns {
		exprs[i] = "+" + QuoteIdent(c)
	}
	return strings.Join(exprs, ", ")
}

// columns runs a zero-row query to learn column names and declared types.
func (d *DB) columns(ctx context.Context, quoted string) ([]string, []string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT * FROM "+quoted+" LIMIT 0")
	if err != nil {
		return nil, nil, fmt.Errorf("read columns: %w", err)
	}
	defer rows.Close()

	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, fmt.Errorf("read columns: %w", err)
	}

	names := make([]string, len(cts))
	types := make([]string, len(cts))
	for i, ct := range cts {
		names[i] = ct.Name()
		types[i] = ct.DatabaseTypeName()
	}
	return names, types, rows.Err()
}
