// Package state models the project schema as the migration graph sees it:
// every model with its ordered fields, after some prefix of the graph has
// been applied. Operations mutate a Project; SQL generation reads it.
package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/satishbabariya/schemadelta/migrate/field"
)

var (
	ErrModelNotFound        = errors.New("model not found")
	ErrModelExists          = errors.New("model already exists")
	ErrFieldNotFound        = errors.New("field not found")
	ErrFieldExists          = errors.New("field already exists")
	ErrRelationTarget       = errors.New("relation target does not exist")
	ErrReverseAccessorClash = errors.New("reverse accessor clash")
	ErrNoPrimaryKey         = errors.New("model has no primary key")
)

// NamedField is a field bound to its attribute name.
type NamedField struct {
	Name  string
	Field field.Field
}

// ModelState is one model: its app, name and fields in declaration order.
type ModelState struct {
	App    string
	Name   string
	Table  string
	Fields []NamedField
}

// ModelKey returns the case-insensitive lookup key for app.model.
func ModelKey(app, model string) string {
	return strings.ToLower(app) + "." + strings.ToLower(model)
}

// Key returns the model's lookup key.
func (m *ModelState) Key() string {
	return ModelKey(m.App, m.Name)
}

// TableName returns the table backing the model.
func (m *ModelState) TableName() string {
	if m.Table != "" {
		return m.Table
	}
	return strings.ToLower(m.App) + "_" + strings.ToLower(m.Name)
}

// Index returns the position of the named field, or -1.
func (m *ModelState) Index(name string) int {
	for i, nf := range m.Fields {
		if nf.Name == name {
			return i
		}
	}
	return -1
}

// Get returns the named field.
func (m *ModelState) Get(name string) (field.Field, bool) {
	if i := m.Index(name); i >= 0 {
		return m.Fields[i].Field, true
	}
	return field.Field{}, false
}

// PrimaryKey returns the primary key field.
func (m *ModelState) PrimaryKey() (NamedField, error) {
	for _, nf := range m.Fields {
		if nf.Field.PrimaryKey {
			return nf, nil
		}
	}
	return NamedField{}, fmt.Errorf("%w: %s", ErrNoPrimaryKey, m.Key())
}

// Clone returns a deep copy.
func (m *ModelState) Clone() *ModelState {
	c := *m
	c.Fields = append([]NamedField(nil), m.Fields...)
	return &c
}

// Project is the set of models known at one point of the graph.
type Project struct {
	Settings field.Settings
	models   map[string]*ModelState
	order    []string
}

// NewProject returns an empty project. Nil settings fall back to the
// defaults.
func NewProject(settings field.Settings) *Project {
	if settings == nil {
		settings = field.DefaultSettings()
	}
	return &Project{
		Settings: settings,
		models:   make(map[string]*ModelState),
	}
}

// Clone returns a deep copy; mutations of the copy never reach the original.
func (p *Project) Clone() *Project {
	c := &Project{
		Settings: p.Settings,
		models:   make(map[string]*ModelState, len(p.models)),
		order:    append([]string(nil), p.order...),
	}
	for k, m := range p.models {
		c.models[k] = m.Clone()
	}
	return c
}

// Models returns models in the order they were added.
func (p *Project) Models() []*ModelState {
	out := make([]*ModelState, 0, len(p.order))
	for _, k := range p.order {
		out = append(out, p.models[k])
	}
	return out
}

// Model looks up a model by app and name.
func (p *Project) Model(app, name string) (*ModelState, error) {
	m, ok := p.models[ModelKey(app, name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, ModelKey(app, name))
	}
	return m, nil
}

// AddModel registers a new model.
func (p *Project) AddModel(m *ModelState) error {
	key := m.Key()
	if _, ok := p.models[key]; ok {
		return fmt.Errorf("%w: %s", ErrModelExists, key)
	}
	seen := make(map[string]bool, len(m.Fields))
	for _, nf := range m.Fields {
		if seen[nf.Name] {
			return fmt.Errorf("%w: %s.%s", ErrFieldExists, key, nf.Name)
		}
		seen[nf.Name] = true
		if err := nf.Field.Validate(); err != nil {
			return fmt.Errorf("%s.%s: %w", key, nf.Name, err)
		}
	}
	p.models[key] = m.Clone()
	p.order = append(p.order, key)
	return nil
}

// RemoveModel drops a model.
func (p *Project) RemoveModel(app, name string) error {
	key := ModelKey(app, name)
	if _, ok := p.models[key]; !ok {
		return fmt.Errorf("%w: %s", ErrModelNotFound, key)
	}
	delete(p.models, key)
	for i, k := range p.order {
		if k == key {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return nil
}

// AddField appends a field to a model.
func (p *Project) AddField(app, model, name string, f field.Field) error {
	m, err := p.Model(app, model)
	if err != nil {
		return err
	}
	if m.Index(name) >= 0 {
		return fmt.Errorf("%w: %s.%s", ErrFieldExists, m.Key(), name)
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%s.%s: %w", m.Key(), name, err)
	}
	m.Fields = append(m.Fields, NamedField{Name: name, Field: f})
	return nil
}

// AlterField replaces an existing field in place.
func (p *Project) AlterField(app, model, name string, f field.Field) error {
	m, err := p.Model(app, model)
	if err != nil {
		return err
	}
	i := m.Index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s.%s", ErrFieldNotFound, m.Key(), name)
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%s.%s: %w", m.Key(), name, err)
	}
	m.Fields[i].Field = f
	return nil
}

// RemoveField deletes a field from a model.
func (p *Project) RemoveField(app, model, name string) error {
	m, err := p.Model(app, model)
	if err != nil {
		return err
	}
	i := m.Index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s.%s", ErrFieldNotFound, m.Key(), name)
	}
	m.Fields = append(m.Fields[:i], m.Fields[i+1:]...)
	return nil
}

// Target resolves the model a relation field points at.
func (p *Project) Target(fromApp string, f field.Field) (*ModelState, error) {
	ref, err := f.To.Resolve(p.Settings, fromApp)
	if err != nil {
		return nil, err
	}
	m, ok := p.models[ModelKey(ref.App, ref.Model)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRelationTarget, ref)
	}
	return m, nil
}

// ReverseAccessor returns the name a relation exposes on its target model.
func ReverseAccessor(source *ModelState, f field.Field) string {
	if f.RelatedName != "" {
		return f.RelatedName
	}
	if f.Kind == field.OneToOne {
		return strings.ToLower(source.Name)
	}
	return strings.ToLower(source.Name) + "_set"
}

// Validate checks every relation: the target must exist and each reverse
// accessor must be unique on its target model and must not shadow one of
// the target's own fields.
func (p *Project) Validate() error {
	type owner struct{ model, field string }
	accessors := make(map[string]map[string]owner)

	keys := append([]string(nil), p.order...)
	sort.Strings(keys)
	for _, key := range keys {
		m := p.models[key]
		for _, nf := range m.Fields {
			if !nf.Field.IsRelation() {
				continue
			}
			target, err := p.Target(m.App, nf.Field)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", key, nf.Name, err)
			}
			if _, err := target.PrimaryKey(); err != nil {
				return fmt.Errorf("%s.%s: %w", key, nf.Name, err)
			}
			accessor := ReverseAccessor(m, nf.Field)
			if target.Index(accessor) >= 0 {
				return fmt.Errorf("%w: %s.%s reverse accessor %q shadows field %s.%s",
					ErrReverseAccessorClash, key, nf.Name, accessor, target.Key(), accessor)
			}
			byName, ok := accessors[target.Key()]
			if !ok {
				byName = make(map[string]owner)
				accessors[target.Key()] = byName
			}
			if prev, ok := byName[accessor]; ok {
				return fmt.Errorf("%w: %s.%s and %s.%s both use %q on %s",
					ErrReverseAccessorClash, prev.model, prev.field, key, nf.Name, accessor, target.Key())
			}
			byName[accessor] = owner{model: key, field: nf.Name}
		}
	}
	return nil
}
