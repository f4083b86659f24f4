package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/schemadelta/migrate/field"
)

// mysqlDialect targets MySQL 8.0.16+, the first release that enforces
// CHECK constraints. DDL is not transactional on MySQL: a failing migration
// leaves the statements before the failure applied.
type mysqlDialect struct{}

func (mysqlDialect) name() string { return "mysql" }

func (mysqlDialect) quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (mysqlDialect) dataType(f field.Field) string {
	switch f.Kind {
	case field.Boolean:
		return "bool"
	case field.Char:
		return fmt.Sprintf("varchar(%d)", f.MaxLength)
	case field.Text:
		return "longtext"
	case field.DateTime:
		return "datetime(6)"
	default:
		return "integer"
	}
}

func (mysqlDialect) autoIncrement() string { return " AUTO_INCREMENT" }

func (mysqlDialect) literal(f field.Field, v any) string {
	var lit string
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case string:
		lit = quoteString(val, true)
	default:
		return fmt.Sprint(val)
	}
	// BLOB/TEXT columns only accept expression defaults.
	if f.Kind == field.Text {
		return "(" + lit + ")"
	}
	return lit
}

func (mysqlDialect) lengthFunc() string { return "CHAR_LENGTH" }

func (d mysqlDialect) dropTable(table string) string {
	return fmt.Sprintf("DROP TABLE %s", d.quote(table))
}

func (d mysqlDialect) renameColumn(table, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", d.quote(table), d.quote(from), d.quote(to))
}

func (d mysqlDialect) dropConstraint(table string, kind constraintKind, name string) string {
	switch kind {
	case foreignKeyConstraint:
		return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", d.quote(table), d.quote(name))
	case uniqueConstraint:
		return fmt.Sprintf("ALTER TABLE %s DROP INDEX %s", d.quote(table), d.quote(name))
	default:
		return fmt.Sprintf("ALTER TABLE %s DROP CHECK %s", d.quote(table), d.quote(name))
	}
}

func (d mysqlDialect) alterColumn(table string, old, next column) []string {
	if old.typ == next.typ && old.null == next.null && old.defaultSQL == next.defaultSQL {
		return nil
	}
	// MODIFY restates the whole column; the key stays on the table.
	b := base{d: d}
	return []string{fmt.Sprintf("ALTER TABLE %s MODIFY %s", d.quote(table), b.definition(next, false))}
}
