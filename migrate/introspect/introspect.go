// Package introspect reads the live schema of a database so applied
// migrations can be checked against what they were meant to produce.
package introspect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/satishbabariya/schemadelta/migrate/sqlgen"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported database provider")
	ErrTableNotFound       = errors.New("table not found")
)

// Introspector reads a database schema.
type Introspector interface {
	Introspect(ctx context.Context) (*DatabaseSchema, error)
}

// DatabaseSchema is the introspected schema.
type DatabaseSchema struct {
	Tables []Table
}

// Table represents a database table
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  *PrimaryKey
	Indexes     []Index
	ForeignKeys []ForeignKey
	// Checks holds check constraint expressions as the database reports
	// them.
	Checks []string
}

// Column represents a table column
type Column struct {
	Name          string
	Type          string
	Nullable      bool
	DefaultValue  *string
	AutoIncrement bool
}

// PrimaryKey represents a primary key constraint
type PrimaryKey struct {
	Name    string
	Columns []string
}

// Index represents a database index
type Index struct {
	Name     string
	Columns  []string
	IsUnique bool
}

// ForeignKey represents a foreign key constraint. OnDelete is upper case
// with spaces, e.g. "NO ACTION".
type ForeignKey struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          string
}

// Table looks up a table by name.
func (s *DatabaseSchema) Table(name string) (*Table, error) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
}

// TableNames returns the names of every table.
func (s *DatabaseSchema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// IsUnique reports whether a single-column unique index covers column.
func (t *Table) IsUnique(column string) bool {
	for _, idx := range t.Indexes {
		if idx.IsUnique && len(idx.Columns) == 1 && idx.Columns[0] == column {
			return true
		}
	}
	return false
}

// ForeignKeyOn returns the foreign key whose only column is column.
func (t *Table) ForeignKeyOn(column string) (*ForeignKey, bool) {
	for i := range t.ForeignKeys {
		fk := &t.ForeignKeys[i]
		if len(fk.Columns) == 1 && fk.Columns[0] == column {
			return fk, true
		}
	}
	return nil, false
}

// HasCheck reports whether a check constraint mentions every fragment.
// Databases rewrite check expressions, so callers match on pieces such as
// the column name and the bound instead of the full text.
func (t *Table) HasCheck(fragments ...string) bool {
	for _, c := range t.Checks {
		normalized := strings.ToLower(strings.NewReplacer(`"`, "", "`", "").Replace(c))
		ok := true
		for _, f := range fragments {
			if !strings.Contains(normalized, strings.ToLower(f)) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// NewIntrospector creates a new introspector for the given database
func NewIntrospector(db *sql.DB, provider string) (Introspector, error) {
	normalized, err := sqlgen.NormalizeProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	switch normalized {
	case "postgres":
		return &PostgresIntrospector{db: db}, nil
	case "mysql":
		return &MySQLIntrospector{db: db}, nil
	default:
		return &SQLiteIntrospector{db: db}, nil
	}
}

func normalizeRule(rule string) string {
	return strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(rule, "_", " ")))
}
