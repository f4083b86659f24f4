// Package operation defines the schema operations a migration lists.
//
// Every operation knows how to advance the project state and how to ask an
// editor for the SQL that moves the database forwards or backwards between
// the state before and the state after it.
package operation

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/schemadelta/migrate/field"
	"github.com/satishbabariya/schemadelta/migrate/sqlgen"
	"github.com/satishbabariya/schemadelta/migrate/state"
)

// Operation is one step of a migration.
type Operation interface {
	// Describe renders the operation canonically; checksums are built
	// from these descriptions.
	Describe() string

	// StateForwards applies the operation to p on behalf of app.
	StateForwards(app string, p *state.Project) error

	// DatabaseForwards records the SQL that moves the database from the
	// `from` state to the `to` state (to = from + this operation).
	DatabaseForwards(ed sqlgen.Editor, app string, from, to *state.Project) error

	// DatabaseBackwards records the SQL that undoes the operation. from is
	// the state after the operation, to the state before it.
	DatabaseBackwards(ed sqlgen.Editor, app string, from, to *state.Project) error

	// Reversible reports whether DatabaseBackwards is supported.
	Reversible() bool
}

// CreateModel creates a model with its fields.
type CreateModel struct {
	Name   string
	Table  string
	Fields []state.NamedField
}

func (o CreateModel) Describe() string {
	parts := make([]string, 0, len(o.Fields))
	for _, nf := range o.Fields {
		parts = append(parts, nf.Name+" "+nf.Field.Describe())
	}
	table := ""
	if o.Table != "" {
		table = fmt.Sprintf(" table=%q", o.Table)
	}
	return fmt.Sprintf("CreateModel(%s%s {%s})", o.Name, table, strings.Join(parts, "; "))
}

func (o CreateModel) StateForwards(app string, p *state.Project) error {
	return p.AddModel(&state.ModelState{
		App:    app,
		Name:   o.Name,
		Table:  o.Table,
		Fields: append([]state.NamedField(nil), o.Fields...),
	})
}

func (o CreateModel) DatabaseForwards(ed sqlgen.Editor, app string, from, to *state.Project) error {
	m, err := to.Model(app, o.Name)
	if err != nil {
		return err
	}
	return ed.CreateModel(to, m)
}

func (o CreateModel) DatabaseBackwards(ed sqlgen.Editor, app string, from, to *state.Project) error {
	m, err := from.Model(app, o.Name)
	if err != nil {
		return err
	}
	return ed.DeleteModel(from, m)
}

func (o CreateModel) Reversible() bool { return true }

// DeleteModel drops a model and its table.
type DeleteModel struct {
	Name string
}

func (o DeleteModel) Describe() string {
	return fmt.Sprintf("DeleteModel(%s)", o.Name)
}

func (o DeleteModel) StateForwards(app string, p *state.Project) error {
	return p.RemoveModel(app, o.Name)
}

func (o DeleteModel) DatabaseForwards(ed sqlgen.Editor, app string, from, to *state.Project) error {
	m, err := from.Model(app, o.Name)
	if err != nil {
		return err
	}
	return ed.DeleteModel(from, m)
}

func (o DeleteModel) DatabaseBackwards(ed sqlgen.Editor, app string, from, to *state.Project) error {
	m, err := to.Model(app, o.Name)
	if err != nil {
		return err
	}
	return ed.CreateModel(to, m)
}

func (o DeleteModel) Reversible() bool { return true }

// AddField adds a field to an existing model.
type AddField struct {
	Model string
	Name  string
	Field field.Field
}

func (o AddField) Describe() string {
	return fmt.Sprintf("AddField(%s.%s, %s)", o.Model, o.Name, o.Field.Describe())
}

func (o AddField) StateForwards(app string, p *state.Project) error {
	return p.AddField(app, o.Model, o.Name, o.Field)
}

func (o AddField) DatabaseForwards(ed sqlgen.Editor, app string, from, to *state.Project) error {
	m, err := to.Model(app, o.Model)
	if err != nil {
		return err
	}
	return ed.AddField(to, m, o.Name)
}

func (o AddField) DatabaseBackwards(ed sqlgen.Editor, app string, from, to *state.Project) error {
	m, err := from.Model(app, o.Model)
	if err != nil {
		return err
	}
	return ed.RemoveField(from, m, o.Name)
}

func (o AddField) Reversible() bool { return true }

// RemoveField drops a field from a model.
type RemoveField struct {
	Model string
	Name  string
}

func (o RemoveField) Describe() string {
	return fmt.Sprintf("RemoveField(%s.%s)", o.Model, o.Name)
}

func (o RemoveField) StateForwards(app string, p *state.Project) error {
	return p.RemoveField(app, o.Model, o.Name)
}

func (o RemoveField) DatabaseForwards(ed sqlgen.Editor, app string, from, to *state.Project) error {
	m, err := from.Model(app, o.Model)
	if err != nil {
		return err
	}
	return ed.RemoveField(from, m, o.Name)
}

func (o RemoveField) DatabaseBackwards(ed sqlgen.Editor, app string, from, to *state.Project) error {
	m, err := to.Model(app, o.Model)
	if err != nil {
		return err
	}
	return ed.AddField(to, m, o.Name)
}

func (o RemoveField) Reversible() bool { return true }

// AlterField replaces the definition of an existing field.
type AlterField struct {
	Model string
	Name  string
	Field field.Field
}

func (o AlterField) Describe() string {
	return fmt.Sprintf("AlterField(%s.%s, %s)", o.Model, o.Name, o.Field.Describe())
}

func (o AlterField) StateForwards(app string, p *state.Project) error {
	return p.AlterField(app, o.Model, o.Name, o.Field)
}

func (o AlterField) DatabaseForwards(ed sqlgen.Editor, app string, from, to *state.Project) error {
	return alter(ed, app, o.Model, o.Name, from, to)
}

func (o AlterField) DatabaseBackwards(ed sqlgen.Editor, app string, from, to *state.Project) error {
	return alter(ed, app, o.Model, o.Name, from, to)
}

func (o AlterField) Reversible() bool { return true }

func alter(ed sqlgen.Editor, app, model, name string, from, to *state.Project) error {
	oldModel, err := from.Model(app, model)
	if err != nil {
		return err
	}
	newModel, err := to.Model(app, model)
	if err != nil {
		return err
	}
	return ed.AlterField(from, to, oldModel, newModel, name)
}
