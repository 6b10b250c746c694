package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/satishbabariya/cohortsql/internal/core/dialect"
)

// Schema maps each table of a live database to its columns in ordinal order.
// Names are lower case.
type Schema map[string][]string

var columnQueries = map[dialect.Dialect]string{
	dialect.PostgreSQL: `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY table_schema, table_name, ordinal_position`,
	dialect.MySQL: `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		ORDER BY table_name, ordinal_position`,
	dialect.SQLite: `
		SELECT m.name, p.name
		FROM sqlite_master m
		JOIN pragma_table_info(m.name) p
		WHERE m.type IN ('table', 'view')
		  AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, p.cid`,
	dialect.Oracle: `
		SELECT table_name, column_name
		FROM user_tab_columns
		ORDER BY table_name, column_id`,
}

// Introspect reads the tables and columns a connected adapter can see.
func Introspect(ctx context.Context, a Adapter) (Schema, error) {
	query, ok := columnQueries[a.Dialect()]
	if !ok {
		return nil, fmt.Errorf("introspection is not supported for %s", a.Dialect())
	}
	rows, err := a.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	schema := Schema{}
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		table = strings.ToLower(table)
		column = strings.ToLower(column)
		if !containsName(schema[table], column) {
			schema[table] = append(schema[table], column)
		}
	}
	return schema, rows.Err()
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
