package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// SQLiteIntrospector implements introspection for SQLite
type SQLiteIntrospector struct {
	db *sql.DB
}

// Introspect reads the SQLite database schema
func (i *SQLiteIntrospector) Introspect(ctx context.Context) (*DatabaseSchema, error) {
	tables, err := i.introspectTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect tables: %w", err)
	}
	return &DatabaseSchema{Tables: tables}, nil
}

func (i *SQLiteIntrospector) introspectTables(ctx context.Context) ([]Table, error) {
	query := `
		SELECT name, sql
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`

	rows, err := i.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	type entry struct{ name, ddl string }
	var entries []entry
	for rows.Next() {
		var e entry
		var ddl sql.NullString
		if err := rows.Scan(&e.name, &ddl); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		e.ddl = ddl.String
		entries = append(entries, e)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	tables := make([]Table, 0, len(entries))
	for _, e := range entries {
		table := Table{Name: e.name, Checks: checkClauses(e.ddl)}

		columns, pk, err := i.introspectColumns(ctx, e.name, e.ddl)
		if err != nil {
			return nil, fmt.Errorf("failed to introspect columns for %s: %w", e.name, err)
		}
		table.Columns = columns
		table.PrimaryKey = pk

		if table.Indexes, err = i.introspectIndexes(ctx, e.name); err != nil {
			return nil, fmt.Errorf("failed to introspect indexes for %s: %w", e.name, err)
		}
		if table.ForeignKeys, err = i.introspectForeignKeys(ctx, e.name); err != nil {
			return nil, fmt.Errorf("failed to introspect foreign keys for %s: %w", e.name, err)
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func (i *SQLiteIntrospector) introspectColumns(ctx context.Context, tableName, ddl string) ([]Column, *PrimaryKey, error) {
	rows, err := i.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteSQLite(tableName)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []Column
	var pk *PrimaryKey
	for rows.Next() {
		var cid, notNull, isPk int
		var col Column
		var dflt sql.NullString
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &dflt, &isPk); err != nil {
			return nil, nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.Type = strings.ToLower(col.Type)
		col.Nullable = notNull == 0 && isPk == 0
		if dflt.Valid && dflt.String != "" {
			col.DefaultValue = &dflt.String
		}
		if isPk > 0 {
			if pk == nil {
				pk = &PrimaryKey{Name: tableName + "_pkey"}
			}
			pk.Columns = append(pk.Columns, col.Name)
			col.AutoIncrement = col.Type == "integer" && strings.Contains(strings.ToUpper(ddl), "AUTOINCREMENT")
		}
		columns = append(columns, col)
	}
	return columns, pk, rows.Err()
}

func (i *SQLiteIntrospector) introspectIndexes(ctx context.Context, tableName string) ([]Index, error) {
	rows, err := i.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", quoteSQLite(tableName)))
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	var indexes []Index
	for rows.Next() {
		var seq, unique, partial int
		var idx Index
		var origin string
		if err := rows.Scan(&seq, &idx.Name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		if origin == "pk" {
			continue
		}
		idx.IsUnique = unique == 1
		indexes = append(indexes, idx)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	for n := range indexes {
		colRows, err := i.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", quoteSQLite(indexes[n].Name)))
		if err != nil {
			return nil, fmt.Errorf("failed to query index columns: %w", err)
		}
		for colRows.Next() {
			var seqno, cid int
			var name sql.NullString
			if err := colRows.Scan(&seqno, &cid, &name); err != nil {
				colRows.Close()
				return nil, fmt.Errorf("failed to scan index column: %w", err)
			}
			if name.Valid {
				indexes[n].Columns = append(indexes[n].Columns, name.String)
			}
		}
		if err := colRows.Close(); err != nil {
			return nil, err
		}
	}
	sort.Slice(indexes, func(a, b int) bool { return indexes[a].Name < indexes[b].Name })
	return indexes, nil
}

func (i *SQLiteIntrospector) introspectForeignKeys(ctx context.Context, tableName string) ([]ForeignKey, error) {
	rows, err := i.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteSQLite(tableName)))
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	// foreign_key_list returns one row per column; group them by id.
	byID := make(map[int]*ForeignKey)
	var ids []int
	for rows.Next() {
		var id, seq int
		var table, from string
		var to sql.NullString
		var onUpdate, onDelete, match string
		if err := rows.Scan(&id, &seq, &table, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}
		fk, ok := byID[id]
		if !ok {
			fk = &ForeignKey{
				Name:            fmt.Sprintf("%s_fk_%d", tableName, id),
				ReferencedTable: table,
				OnDelete:        normalizeRule(onDelete),
			}
			byID[id] = fk
			ids = append(ids, id)
		}
		fk.Columns = append(fk.Columns, from)
		fk.ReferencedColumns = append(fk.ReferencedColumns, to.String)
	}
	sort.Ints(ids)
	fks := make([]ForeignKey, 0, len(ids))
	for _, id := range ids {
		fks = append(fks, *byID[id])
	}
	return fks, rows.Err()
}

// checkClauses extracts the expressions of every CHECK clause in a
// CREATE TABLE statement. SQLite keeps no catalog of check constraints.
func checkClauses(ddl string) []string {
	var checks []string
	upper := strings.ToUpper(ddl)
	for pos := 0; ; {
		i := strings.Index(upper[pos:], "CHECK")
		if i < 0 {
			return checks
		}
		start := pos + i + len("CHECK")
		for start < len(ddl) && ddl[start] == ' ' {
			start++
		}
		if start >= len(ddl) || ddl[start] != '(' {
			pos = start
			continue
		}
		depth, inQuote := 0, false
		end := start
		for ; end < len(ddl); end++ {
			switch ch := ddl[end]; {
			case ch == '\'':
				inQuote = !inQuote
			case inQuote:
			case ch == '(':
				depth++
			case ch == ')':
				depth--
			}
			if depth == 0 {
				break
			}
		}
		if end >= len(ddl) {
			return checks
		}
		checks = append(checks, strings.TrimSpace(ddl[start+1:end]))
		pos = end + 1
	}
}

func quoteSQLite(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
