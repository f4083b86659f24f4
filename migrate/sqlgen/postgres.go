package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/schemadelta/migrate/field"
)

type postgresDialect struct{}

func (postgresDialect) name() string { return "postgres" }

func (postgresDialect) quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (postgresDialect) dataType(f field.Field) string {
	switch f.Kind {
	case field.Auto:
		return "serial"
	case field.Boolean:
		return "boolean"
	case field.Char:
		return fmt.Sprintf("varchar(%d)", f.MaxLength)
	case field.Text:
		return "text"
	case field.DateTime:
		return "timestamp with time zone"
	default:
		return "integer"
	}
}

func (postgresDialect) autoIncrement() string { return "" }

func (postgresDialect) literal(f field.Field, v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case string:
		return quoteString(val, false)
	default:
		return fmt.Sprint(val)
	}
}

func (postgresDialect) lengthFunc() string { return "char_length" }

func (d postgresDialect) dropTable(table string) string {
	return fmt.Sprintf("DROP TABLE %s CASCADE", d.quote(table))
}

func (d postgresDialect) renameColumn(table, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", d.quote(table), d.quote(from), d.quote(to))
}

func (d postgresDialect) dropConstraint(table string, _ constraintKind, name string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.quote(table), d.quote(name))
}

func (d postgresDialect) alterColumn(table string, old, next column) []string {
	var stmts []string
	prefix := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s", d.quote(table), d.quote(next.name))
	if old.typ != next.typ {
		stmts = append(stmts, fmt.Sprintf("%s TYPE %s USING %s::%s", prefix, next.typ, d.quote(next.name), next.typ))
	}
	if old.null != next.null {
		if next.null {
			stmts = append(stmts, prefix+" DROP NOT NULL")
		} else {
			stmts = append(stmts, prefix+" SET NOT NULL")
		}
	}
	if old.defaultSQL != next.defaultSQL {
		if next.defaultSQL == "" {
			stmts = append(stmts, prefix+" DROP DEFAULT")
		} else {
			stmts = append(stmts, prefix+" SET DEFAULT "+next.defaultSQL)
		}
	}
	return stmts
}
