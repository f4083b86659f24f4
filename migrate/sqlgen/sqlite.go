package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/schemadelta/migrate/field"
	"github.com/satishbabariya/schemadelta/migrate/state"
)

type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite" }

func (sqliteDialect) quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (sqliteDialect) dataType(f field.Field) string {
	switch f.Kind {
	case field.Boolean:
		return "bool"
	case field.Char:
		return fmt.Sprintf("varchar(%d)", f.MaxLength)
	case field.Text:
		return "text"
	case field.DateTime:
		return "datetime"
	default:
		return "integer"
	}
}

func (sqliteDialect) autoIncrement() string { return " AUTOINCREMENT" }

func (sqliteDialect) literal(f field.Field, v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case string:
		return quoteString(val, false)
	default:
		return fmt.Sprint(val)
	}
}

func (sqliteDialect) lengthFunc() string { return "length" }

func (d sqliteDialect) dropTable(table string) string {
	return fmt.Sprintf("DROP TABLE %s", d.quote(table))
}

func (d sqliteDialect) renameColumn(table, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", d.quote(table), d.quote(from), d.quote(to))
}

// SQLite cannot drop or alter constraints in place; the editor rebuilds the
// table instead, so these are never reached.
func (sqliteDialect) dropConstraint(string, constraintKind, string) string { return "" }
func (sqliteDialect) alterColumn(string, column, column) []string { return nil }

// sqliteEditor keeps every constraint inline and rebuilds tables for any
// change ALTER TABLE cannot express. Rebuilds must run with foreign key
// enforcement switched off; the executor takes care of that.
type sqliteEditor struct {
	base
}

func (e *sqliteEditor) CreateModel(p *state.Project, m *state.ModelState) error {
	stmt, err := e.createTable(p, m, m.TableName())
	if err != nil {
		return err
	}
	e.emit(stmt)
	return nil
}

func (e *sqliteEditor) DeleteModel(p *state.Project, m *state.ModelState) error {
	e.emit(e.d.dropTable(m.TableName()))
	return nil
}

func (e *sqliteEditor) AddField(p *state.Project, m *state.ModelState, name string) error {
	c, err := e.resolveField(p, m, name)
	if err != nil {
		return err
	}
	if c.pk || c.unique || c.fk != nil || (!c.null && c.defaultSQL == "") {
		old := m.Clone()
		i := old.Index(name)
		old.Fields = append(old.Fields[:i], old.Fields[i+1:]...)
		return e.remake(p, old, m, nil)
	}
	e.emit(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", e.d.quote(m.TableName()), e.inline(m.TableName(), c)))
	return nil
}

func (e *sqliteEditor) RemoveField(p *state.Project, m *state.ModelState, name string) error {
	if m.Index(name) < 0 {
		return fmt.Errorf("%w: %s.%s", state.ErrFieldNotFound, m.Key(), name)
	}
	next := m.Clone()
	i := next.Index(name)
	next.Fields = append(next.Fields[:i], next.Fields[i+1:]...)
	return e.remake(p, m, next, nil)
}

func (e *sqliteEditor) AlterField(from, to *state.Project, oldModel, newModel *state.ModelState, name string) error {
	old, err := e.resolveField(from, oldModel, name)
	if err != nil {
		return err
	}
	next, err := e.resolveField(to, newModel, name)
	if err != nil {
		return err
	}
	expr := e.d.quote(old.name)
	if old.null && !next.null && next.defaultSQL != "" {
		expr = fmt.Sprintf("coalesce(%s, %s)", expr, next.defaultSQL)
	}
	return e.remake(to, oldModel, newModel, map[string]string{name: expr})
}

// remake rebuilds newModel's table from oldModel's rows: create a copy with
// the new definition, move the data, drop the original and rename.
// overrides maps field names to the select expression feeding them.
func (e *sqliteEditor) remake(p *state.Project, oldModel, newModel *state.ModelState, overrides map[string]string) error {
	table := newModel.TableName()
	tmp := "new__" + table
	create, err := e.createTable(p, newModel, tmp)
	if err != nil {
		return err
	}

	var targets, sources []string
	for _, nf := range newModel.Fields {
		col := nf.Field.Column(nf.Name)
		if expr, ok := overrides[nf.Name]; ok {
			targets = append(targets, e.d.quote(col))
			sources = append(sources, expr)
			continue
		}
		if i := oldModel.Index(nf.Name); i >= 0 {
			targets = append(targets, e.d.quote(col))
			sources = append(sources, e.d.quote(oldModel.Fields[i].Field.Column(nf.Name)))
			continue
		}
		if nf.Field.HasDefault {
			targets = append(targets, e.d.quote(col))
			sources = append(sources, e.d.literal(nf.Field, nf.Field.Default))
		}
	}

	e.emit(create)
	if len(targets) > 0 {
		e.emit(fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			e.d.quote(tmp), strings.Join(targets, ", "), strings.Join(sources, ", "), e.d.quote(oldModel.TableName())))
	}
	e.emit(e.d.dropTable(oldModel.TableName()))
	e.emit(fmt.Sprintf("ALTER TABLE %s RENAME TO %s", e.d.quote(tmp), e.d.quote(table)))
	return nil
}

func (e *sqliteEditor) createTable(p *state.Project, m *state.ModelState, table string) (string, error) {
	cols, err := e.resolveAll(p, m)
	if err != nil {
		return "", err
	}
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		defs = append(defs, e.inline(m.TableName(), c))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", e.d.quote(table), strings.Join(defs, ", ")), nil
}

// inline renders a column with its constraints. Check constraints are
// named after table, which is the final name even during a rebuild.
func (e *sqliteEditor) inline(table string, c column) string {
	def := e.definition(c, true)
	if c.unique {
		def += " UNIQUE"
	}
	if c.check != "" {
		def += fmt.Sprintf(" CONSTRAINT %s CHECK (%s)", e.d.quote(constraintName(table, c.name, "check")), c.check)
	}
	if c.fk != nil {
		def += " " + e.references(c.fk)
	}
	return def
}
