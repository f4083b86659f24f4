package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// MySQLIntrospector reads the schema selected by the connection. Each
// information_schema view is read once for the whole schema.
type MySQLIntrospector struct {
	db *sql.DB
}

const (
	mysqlTablesQuery = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'`

	mysqlColumnsQuery = `
		SELECT table_name, column_name, column_type, is_nullable, column_default, extra
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		ORDER BY table_name, ordinal_position`

	mysqlIndexesQuery = `
		SELECT table_name, index_name,
			GROUP_CONCAT(column_name ORDER BY seq_in_index),
			MAX(non_unique)
		FROM information_schema.statistics
		WHERE table_schema = DATABASE()
		GROUP BY table_name, index_name
		ORDER BY table_name, index_name`

	mysqlForeignKeysQuery = `
		SELECT kcu.table_name, kcu.constraint_name,
			GROUP_CONCAT(kcu.column_name ORDER BY kcu.ordinal_position),
			kcu.referenced_table_name,
			GROUP_CONCAT(kcu.referenced_column_name ORDER BY kcu.ordinal_position),
			rc.delete_rule
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_schema = kcu.constraint_schema
			AND rc.constraint_name = kcu.constraint_name
		WHERE kcu.table_schema = DATABASE() AND kcu.referenced_table_name IS NOT NULL
		GROUP BY kcu.table_name, kcu.constraint_name, kcu.referenced_table_name, rc.delete_rule
		ORDER BY kcu.table_name, kcu.constraint_name`

	// check_constraints exists from MySQL 8.0.16; older servers parse and
	// drop CHECK clauses, so there is nothing to read.
	mysqlChecksQuery = `
		SELECT tc.table_name, cc.check_clause
		FROM information_schema.table_constraints tc
		JOIN information_schema.check_constraints cc
			ON cc.constraint_schema = tc.constraint_schema
			AND cc.constraint_name = tc.constraint_name
		WHERE tc.table_schema = DATABASE() AND tc.constraint_type = 'CHECK'
		ORDER BY tc.table_name, cc.constraint_name`
)

// Introspect reads every base table of the current database.
func (i *MySQLIntrospector) Introspect(ctx context.Context) (*DatabaseSchema, error) {
	byName := map[string]*Table{}
	err := i.each(ctx, mysqlTablesQuery, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		byName[name] = &Table{Name: name}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}

	readers := []struct {
		what  string
		query string
		scan  func(*sql.Rows, map[string]*Table) error
	}{
		{"columns", mysqlColumnsQuery, scanMySQLColumn},
		{"indexes", mysqlIndexesQuery, scanMySQLIndex},
		{"foreign keys", mysqlForeignKeysQuery, scanMySQLForeignKey},
		{"checks", mysqlChecksQuery, scanMySQLCheck},
	}
	for _, r := range readers {
		err := i.each(ctx, r.query, func(rows *sql.Rows) error { return r.scan(rows, byName) })
		if err != nil {
			return nil, fmt.Errorf("failed to introspect %s: %w", r.what, err)
		}
	}

	schema := &DatabaseSchema{Tables: make([]Table, 0, len(byName))}
	for _, t := range byName {
		schema.Tables = append(schema.Tables, *t)
	}
	sort.Slice(schema.Tables, func(a, b int) bool { return schema.Tables[a].Name < schema.Tables[b].Name })
	return schema, nil
}

// each runs query and calls fn for every row.
func (i *MySQLIntrospector) each(ctx context.Context, query string, fn func(*sql.Rows) error) error {
	rows, err := i.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// The scanners skip rows belonging to views.
func scanMySQLColumn(rows *sql.Rows, tables map[string]*Table) error {
	var (
		table, nullable, extra string
		def                    sql.NullString
		col                    Column
	)
	if err := rows.Scan(&table, &col.Name, &col.Type, &nullable, &def, &extra); err != nil {
		return err
	}
	t, ok := tables[table]
	if !ok {
		return nil
	}
	col.Type = strings.ToLower(col.Type)
	col.Nullable = nullable == "YES"
	if def.Valid {
		col.DefaultValue = &def.String
	}
	col.AutoIncrement = strings.Contains(strings.ToLower(extra), "auto_increment")
	t.Columns = append(t.Columns, col)
	return nil
}

func scanMySQLIndex(rows *sql.Rows, tables map[string]*Table) error {
	var (
		table, name, columns string
		nonUnique            int
	)
	if err := rows.Scan(&table, &name, &columns, &nonUnique); err != nil {
		return err
	}
	t, ok := tables[table]
	if !ok {
		return nil
	}
	cols := strings.Split(columns, ",")
	if name == "PRIMARY" {
		t.PrimaryKey = &PrimaryKey{Name: name, Columns: cols}
		return nil
	}
	t.Indexes = append(t.Indexes, Index{Name: name, Columns: cols, IsUnique: nonUnique == 0})
	return nil
}

func scanMySQLForeignKey(rows *sql.Rows, tables map[string]*Table) error {
	var (
		table, columns, refColumns, rule string
		fk                               ForeignKey
	)
	if err := rows.Scan(&table, &fk.Name, &columns, &fk.ReferencedTable, &refColumns, &rule); err != nil {
		return err
	}
	t, ok := tables[table]
	if !ok {
		return nil
	}
	fk.Columns = strings.Split(columns, ",")
	fk.ReferencedColumns = strings.Split(refColumns, ",")
	fk.OnDelete = normalizeRule(rule)
	t.ForeignKeys = append(t.ForeignKeys, fk)
	return nil
}

func scanMySQLCheck(rows *sql.Rows, tables map[string]*Table) error {
	var table, clause string
	if err := rows.Scan(&table, &clause); err != nil {
		return err
	}
	if t, ok := tables[table]; ok {
		t.Checks = append(t.Checks, clause)
	}
	return nil
}
