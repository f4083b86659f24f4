package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/schemadelta/migrate/state"
)

// alterEditor serves providers whose ALTER TABLE can change columns and
// constraints in place (PostgreSQL and MySQL). Foreign keys created with a
// table are deferred to the end so models may be created in any order
// within one migration.
type alterEditor struct {
	base
	deferred []string
}

func (e *alterEditor) Statements() []string {
	out := append([]string(nil), e.stmts...)
	return append(out, e.deferred...)
}

func (e *alterEditor) Reset() {
	e.stmts = nil
	e.deferred = nil
}

func (e *alterEditor) CreateModel(p *state.Project, m *state.ModelState) error {
	cols, err := e.resolveAll(p, m)
	if err != nil {
		return err
	}
	table := m.TableName()
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, e.definition(c, true))
	}
	for _, c := range cols {
		if c.unique {
			parts = append(parts, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)",
				e.d.quote(constraintName(table, c.name, "uniq")), e.d.quote(c.name)))
		}
		if c.check != "" {
			parts = append(parts, fmt.Sprintf("CONSTRAINT %s CHECK (%s)",
				e.d.quote(constraintName(table, c.name, "check")), c.check))
		}
	}
	e.emit(fmt.Sprintf("CREATE TABLE %s (%s)", e.d.quote(table), strings.Join(parts, ", ")))
	for _, c := range cols {
		if c.fk != nil {
			e.deferred = append(e.deferred, e.addForeignKey(table, c))
		}
	}
	return nil
}

func (e *alterEditor) DeleteModel(p *state.Project, m *state.ModelState) error {
	e.emit(e.d.dropTable(m.TableName()))
	return nil
}

func (e *alterEditor) AddField(p *state.Project, m *state.ModelState, name string) error {
	c, err := e.resolveField(p, m, name)
	if err != nil {
		return err
	}
	table := m.TableName()
	e.emit(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", e.d.quote(table), e.definition(c, true)))
	e.addConstraints(table, c, true, true, true)
	return nil
}

func (e *alterEditor) RemoveField(p *state.Project, m *state.ModelState, name string) error {
	c, err := e.resolveField(p, m, name)
	if err != nil {
		return err
	}
	table := m.TableName()
	e.dropConstraints(table, c, true, true, true)
	e.emit(fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", e.d.quote(table), e.d.quote(c.name)))
	return nil
}

func (e *alterEditor) AlterField(from, to *state.Project, oldModel, newModel *state.ModelState, name string) error {
	old, err := e.resolveField(from, oldModel, name)
	if err != nil {
		return err
	}
	next, err := e.resolveField(to, newModel, name)
	if err != nil {
		return err
	}
	if oldModel.TableName() != newModel.TableName() {
		return fmt.Errorf("alter field %s: table changed from %s to %s", name, oldModel.TableName(), newModel.TableName())
	}
	table := newModel.TableName()
	renamed := old.name != next.name

	dropFK := old.fk != nil && (renamed || !old.fk.equal(next.fk))
	dropUnique := old.unique && (renamed || !next.unique)
	dropCheck := old.check != "" && (renamed || old.check != next.check)
	e.dropConstraints(table, old, dropFK, dropUnique, dropCheck)

	if renamed {
		e.emit(e.d.renameColumn(table, old.name, next.name))
		old.name = next.name
	}
	for _, stmt := range e.d.alterColumn(table, old, next) {
		e.emit(stmt)
	}

	addFK := next.fk != nil && (renamed || !next.fk.equal(old.fk))
	addUnique := next.unique && (renamed || !old.unique)
	addCheck := next.check != "" && (renamed || next.check != old.check)
	e.addConstraints(table, next, addFK, addUnique, addCheck)
	return nil
}

func (e *alterEditor) addForeignKey(table string, c column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) %s",
		e.d.quote(table), e.d.quote(constraintName(table, c.name, "fk")),
		e.d.quote(c.name), e.references(c.fk))
}

func (e *alterEditor) addConstraints(table string, c column, fk, unique, check bool) {
	if unique && c.unique {
		e.emit(fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)",
			e.d.quote(table), e.d.quote(constraintName(table, c.name, "uniq")), e.d.quote(c.name)))
	}
	if check && c.check != "" {
		e.emit(fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)",
			e.d.quote(table), e.d.quote(constraintName(table, c.name, "check")), c.check))
	}
	if fk && c.fk != nil {
		e.emit(e.addForeignKey(table, c))
	}
}

func (e *alterEditor) dropConstraints(table string, c column, fk, unique, check bool) {
	if fk && c.fk != nil {
		e.emit(e.d.dropConstraint(table, foreignKeyConstraint, constraintName(table, c.name, "fk")))
	}
	if unique && c.unique {
		e.emit(e.d.dropConstraint(table, uniqueConstraint, constraintName(table, c.name, "uniq")))
	}
	if check && c.check != "" {
		e.emit(e.d.dropConstraint(table, checkConstraint, constraintName(table, c.name, "check")))
	}
}
