// Package sqlgen turns schema operations into provider-specific SQL.
//
// Editors collect statements instead of executing them, so the runner and
// `sqlmigrate` share one code path: the runner executes what the editor
// collected inside the migration's transaction.
package sqlgen

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/satishbabariya/schemadelta/migrate/field"
	"github.com/satishbabariya/schemadelta/migrate/state"
)

// Editor records the SQL needed to move a schema between two states.
type Editor interface {
	// Provider returns the normalized provider name.
	Provider() string

	// CreateModel creates the table for m, which must exist in p.
	CreateModel(p *state.Project, m *state.ModelState) error

	// DeleteModel drops the table for m.
	DeleteModel(p *state.Project, m *state.ModelState) error

	// AddField adds the column for the named field; m is the model after the
	// field was added.
	AddField(p *state.Project, m *state.ModelState, name string) error

	// RemoveField drops the column for the named field; m is the model
	// before the field was removed.
	RemoveField(p *state.Project, m *state.ModelState, name string) error

	// AlterField moves the named field from its definition in oldModel to
	// its definition in newModel.
	AlterField(from, to *state.Project, oldModel, newModel *state.ModelState, name string) error

	// Statements returns everything collected so far, in execution order.
	Statements() []string

	// Reset discards collected statements.
	Reset()
}

// NormalizeProvider maps provider spellings onto postgres, mysql or sqlite.
func NormalizeProvider(provider string) (string, error) {
	switch strings.ToLower(provider) {
	case "postgresql", "postgres":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	case "sqlite", "sqlite3":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported provider: %s", provider)
	}
}

// NewEditor creates an editor for the given provider.
func NewEditor(provider string) (Editor, error) {
	normalized, err := NormalizeProvider(provider)
	if err != nil {
		return nil, err
	}
	switch normalized {
	case "postgres":
		return &alterEditor{base: base{d: postgresDialect{}}}, nil
	case "mysql":
		return &alterEditor{base: base{d: mysqlDialect{}}}, nil
	default:
		return &sqliteEditor{base: base{d: sqliteDialect{}}}, nil
	}
}

// dialect captures the per-provider differences in DDL.
type dialect interface {
	name() string
	quote(ident string) string
	dataType(f field.Field) string
	autoIncrement() string
	literal(f field.Field, v any) string
	lengthFunc() string
	dropTable(table string) string
	renameColumn(table, from, to string) string
	dropConstraint(table string, kind constraintKind, name string) string
	alterColumn(table string, old, next column) []string
}

type constraintKind int

const (
	uniqueConstraint constraintKind = iota
	checkConstraint
	foreignKeyConstraint
)

// column is a field resolved against a project: everything DDL needs.
type column struct {
	name       string
	typ        string
	null       bool
	pk         bool
	auto       bool
	defaultSQL string
	unique     bool
	check      string
	fk         *foreignKey
}

type foreignKey struct {
	table    string
	column   string
	onDelete string
}

func (fk *foreignKey) equal(other *foreignKey) bool {
	if fk == nil || other == nil {
		return fk == other
	}
	return *fk == *other
}

type base struct {
	d     dialect
	stmts []string
}

func (b *base) Provider() string { return b.d.name() }

func (b *base) Statements() []string {
	return append([]string(nil), b.stmts...)
}

func (b *base) Reset() { b.stmts = nil }

func (b *base) emit(stmt string) {
	b.stmts = append(b.stmts, stmt)
}

// resolve builds the column for one field of m.
func (b *base) resolve(p *state.Project, m *state.ModelState, nf state.NamedField) (column, error) {
	f := nf.Field
	c := column{
		name:   f.Column(nf.Name),
		null:   f.Null,
		pk:     f.PrimaryKey,
		auto:   f.Kind == field.Auto,
		unique: f.Unique && !f.PrimaryKey,
	}

	if f.IsRelation() {
		target, err := p.Target(m.App, f)
		if err != nil {
			return column{}, fmt.Errorf("%s.%s: %w", m.Key(), nf.Name, err)
		}
		pk, err := target.PrimaryKey()
		if err != nil {
			return column{}, err
		}
		targetField := pk.Field
		if targetField.Kind == field.Auto {
			targetField = field.IntegerField()
		}
		c.typ = b.d.dataType(targetField)
		c.fk = &foreignKey{
			table:    target.TableName(),
			column:   pk.Field.Column(pk.Name),
			onDelete: f.OnDelete.SQLAction(),
		}
	} else {
		c.typ = b.d.dataType(f)
	}

	if f.HasDefault {
		c.defaultSQL = b.d.literal(f, f.Default)
	}
	if f.Kind == field.Text && f.MaxLength > 0 {
		c.check = fmt.Sprintf("%s(%s) <= %d", b.d.lengthFunc(), b.d.quote(c.name), f.MaxLength)
	}
	return c, nil
}

func (b *base) resolveAll(p *state.Project, m *state.ModelState) ([]column, error) {
	cols := make([]column, 0, len(m.Fields))
	for _, nf := range m.Fields {
		c, err := b.resolve(p, m, nf)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, nil
}

func (b *base) resolveField(p *state.Project, m *state.ModelState, name string) (column, error) {
	i := m.Index(name)
	if i < 0 {
		return column{}, fmt.Errorf("%w: %s.%s", state.ErrFieldNotFound, m.Key(), name)
	}
	return b.resolve(p, m, m.Fields[i])
}

// definition renders the column without table-level constraints.
func (b *base) definition(c column, withKey bool) string {
	var sb strings.Builder
	sb.WriteString(b.d.quote(c.name))
	sb.WriteString(" ")
	sb.WriteString(c.typ)
	if c.null {
		sb.WriteString(" NULL")
	} else {
		sb.WriteString(" NOT NULL")
	}
	if c.pk && withKey {
		sb.WriteString(" PRIMARY KEY")
		if c.auto {
			sb.WriteString(b.d.autoIncrement())
		}
	}
	if c.defaultSQL != "" {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(c.defaultSQL)
	}
	return sb.String()
}

func (b *base) references(fk *foreignKey) string {
	return fmt.Sprintf("REFERENCES %s (%s) ON DELETE %s",
		b.d.quote(fk.table), b.d.quote(fk.column), fk.onDelete)
}

// maxNameLength is the postgres identifier limit; mysql allows 64.
const maxNameLength = 63

// constraintName derives a deterministic constraint name, shortened with a
// hash suffix when it would exceed identifier limits.
func constraintName(table, column, suffix string) string {
	name := strings.ToLower(table + "_" + column + "_" + suffix)
	if len(name) <= maxNameLength {
		return name
	}
	sum := sha256.Sum256([]byte(table + "." + column))
	hash := hex.EncodeToString(sum[:])[:8]
	keep := maxNameLength - len(suffix) - len(hash) - 2
	return name[:keep] + "_" + hash + "_" + strings.ToLower(suffix)
}

func quoteString(s string, escapeBackslash bool) string {
	if escapeBackslash {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
