// Package diff compares two introspected schemas. It is used to check that
// a live database still matches what its applied migrations produce.
package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/satishbabariya/schemadelta/migrate/history"
	"github.com/satishbabariya/schemadelta/migrate/introspect"
	"github.com/satishbabariya/schemadelta/migrate/sqlgen"
)

// ChangeType classifies a difference.
type ChangeType string

const (
	ChangeTypeMissingTable      ChangeType = "MissingTable"
	ChangeTypeExtraTable        ChangeType = "ExtraTable"
	ChangeTypeMissingColumn     ChangeType = "MissingColumn"
	ChangeTypeExtraColumn       ChangeType = "ExtraColumn"
	ChangeTypeAlterColumn       ChangeType = "AlterColumn"
	ChangeTypeUniqueChanged     ChangeType = "UniqueChanged"
	ChangeTypeForeignKeyChanged ChangeType = "ForeignKeyChanged"
	ChangeTypeChecksChanged     ChangeType = "ChecksChanged"
)

// Change is one difference between the expected and the actual schema.
type Change struct {
	Type        ChangeType
	Table       string
	Column      string
	Description string
}

func (c Change) String() string {
	if c.Column != "" {
		return fmt.Sprintf("%s %s.%s: %s", c.Type, c.Table, c.Column, c.Description)
	}
	return fmt.Sprintf("%s %s: %s", c.Type, c.Table, c.Description)
}

// pair holds the same element from both schemas. Either side may be nil.
type pair[T any] struct {
	Expected *T
	Actual   *T
}

// Differ compares schemas read from one provider.
type Differ struct {
	provider string
}

// NewDiffer creates a differ for provider.
func NewDiffer(provider string) (*Differ, error) {
	normalized, err := sqlgen.NormalizeProvider(provider)
	if err != nil {
		return nil, err
	}
	return &Differ{provider: normalized}, nil
}

// Diff reports every difference between expected and actual, ordered by
// table and column. The migration history table is ignored.
func (d *Differ) Diff(expected, actual *introspect.DatabaseSchema) []Change {
	var changes []Change
	tables := pairTables(d, expected, actual)
	for _, name := range sortedKeys(tables) {
		p := tables[name]
		switch {
		case p.Actual == nil:
			changes = append(changes, Change{Type: ChangeTypeMissingTable, Table: name, Description: "table does not exist"})
		case p.Expected == nil:
			changes = append(changes, Change{Type: ChangeTypeExtraTable, Table: name, Description: "table is not created by any migration"})
		default:
			changes = append(changes, d.diffTable(name, p.Expected, p.Actual)...)
		}
	}
	return changes
}

func pairTables(d *Differ, expected, actual *introspect.DatabaseSchema) map[string]pair[introspect.Table] {
	tables := make(map[string]pair[introspect.Table])
	add := func(s *introspect.DatabaseSchema, isExpected bool) {
		if s == nil {
			return
		}
		for i := range s.Tables {
			t := &s.Tables[i]
			name := d.tableName(t.Name)
			if name == history.TableName {
				continue
			}
			p := tables[name]
			if isExpected {
				p.Expected = t
			} else {
				p.Actual = t
			}
			tables[name] = p
		}
	}
	add(expected, true)
	add(actual, false)
	return tables
}

// tableName folds case where the server may report it differently.
func (d *Differ) tableName(name string) string {
	if d.provider == "mysql" {
		return strings.ToLower(name)
	}
	return name
}

func (d *Differ) diffTable(name string, expected, actual *introspect.Table) []Change {
	var changes []Change
	columns := make(map[string]pair[introspect.Column])
	for i := range expected.Columns {
		c := &expected.Columns[i]
		columns[c.Name] = pair[introspect.Column]{Expected: c}
	}
	for i := range actual.Columns {
		c := &actual.Columns[i]
		p := columns[c.Name]
		p.Actual = c
		columns[c.Name] = p
	}

	for _, col := range sortedKeys(columns) {
		p := columns[col]
		switch {
		case p.Actual == nil:
			changes = append(changes, Change{Type: ChangeTypeMissingColumn, Table: name, Column: col, Description: "column does not exist"})
			continue
		case p.Expected == nil:
			changes = append(changes, Change{Type: ChangeTypeExtraColumn, Table: name, Column: col, Description: "column is not created by any migration"})
			continue
		}
		if desc := columnChanges(p.Expected, p.Actual); desc != "" {
			changes = append(changes, Change{Type: ChangeTypeAlterColumn, Table: name, Column: col, Description: desc})
		}
		if e, a := expected.IsUnique(col), actual.IsUnique(col); e != a {
			changes = append(changes, Change{Type: ChangeTypeUniqueChanged, Table: name, Column: col,
				Description: fmt.Sprintf("expected unique=%t, found unique=%t", e, a)})
		}
		if desc := d.foreignKeyChanges(expected, actual, col); desc != "" {
			changes = append(changes, Change{Type: ChangeTypeForeignKeyChanged, Table: name, Column: col, Description: desc})
		}
	}

	if e, a := normalizeChecks(expected.Checks), normalizeChecks(actual.Checks); strings.Join(e, "\n") != strings.Join(a, "\n") {
		changes = append(changes, Change{Type: ChangeTypeChecksChanged, Table: name,
			Description: fmt.Sprintf("expected %v, found %v", e, a)})
	}
	return changes
}

// columnChanges describes type, nullability and default differences.
func columnChanges(expected, actual *introspect.Column) string {
	var parts []string
	if !strings.EqualFold(strings.TrimSpace(expected.Type), strings.TrimSpace(actual.Type)) {
		parts = append(parts, fmt.Sprintf("type %s, found %s", expected.Type, actual.Type))
	}
	if expected.Nullable != actual.Nullable {
		parts = append(parts, fmt.Sprintf("nullable=%t, found nullable=%t", expected.Nullable, actual.Nullable))
	}
	if e, a := normalizeDefault(expected.DefaultValue), normalizeDefault(actual.DefaultValue); e != a {
		parts = append(parts, fmt.Sprintf("default %q, found %q", e, a))
	}
	if len(parts) == 0 {
		return ""
	}
	return "expected " + strings.Join(parts, "; expected ")
}

func (d *Differ) foreignKeyChanges(expected, actual *introspect.Table, col string) string {
	e, eok := expected.ForeignKeyOn(col)
	a, aok := actual.ForeignKeyOn(col)
	switch {
	case !eok && !aok:
		return ""
	case !aok:
		return fmt.Sprintf("expected a foreign key to %s, found none", e.ReferencedTable)
	case !eok:
		return fmt.Sprintf("expected no foreign key, found one to %s", a.ReferencedTable)
	}
	if d.tableName(e.ReferencedTable) != d.tableName(a.ReferencedTable) ||
		strings.Join(e.ReferencedColumns, ",") != strings.Join(a.ReferencedColumns, ",") {
		return fmt.Sprintf("expected reference %s(%s), found %s(%s)",
			e.ReferencedTable, strings.Join(e.ReferencedColumns, ", "),
			a.ReferencedTable, strings.Join(a.ReferencedColumns, ", "))
	}
	if e.OnDelete != a.OnDelete {
		return fmt.Sprintf("expected ON DELETE %s, found ON DELETE %s", e.OnDelete, a.OnDelete)
	}
	return ""
}

// normalizeDefault strips the wrapping parentheses some servers add.
func normalizeDefault(v *string) string {
	if v == nil {
		return ""
	}
	s := strings.TrimSpace(*v)
	for len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func normalizeChecks(checks []string) []string {
	out := make([]string, 0, len(checks))
	for _, c := range checks {
		c = strings.NewReplacer(`"`, "", "`", "", " ", "").Replace(c)
		out = append(out, strings.ToLower(c))
	}
	sort.Strings(out)
	return out
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
