package sqlitedb

import (
	"context"
	"fmt"
	"strings"
)

// ListTables returns the names of all catalog entries of type 'table', in
// the order the catalog yields them. That order is not re-sorted and is not
// guaranteed to be stable across engine versions. Names that are empty or
// only whitespace are dropped; nothing else is filtered, so engine-created
// tables such as sqlite_sequence are listed when present.
func (d *DB) ListTables(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		if strings.TrimSpace(name) == "" {
			continue
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}
