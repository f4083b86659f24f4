// Package dsl reads migration descriptors from .delta files.
//
// A file holds one or more migration blocks:
//
//	migration groupapp 0002_groupmatch_group2accept_and_more {
//	  depends swappable AUTH_USER_MODEL
//	  depends groupapp 0001_initial
//	  add field groupmatch.group2Accept boolean(default=false)
//	  alter field interestgroup.description text(default="", max_length=500)
//	}
package dsl

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/spf13/afero"

	"github.com/satishbabariya/schemadelta/migrate/descriptor"
	"github.com/satishbabariya/schemadelta/migrate/field"
	"github.com/satishbabariya/schemadelta/migrate/operation"
	"github.com/satishbabariya/schemadelta/migrate/state"
)

// Ext is the file extension LoadDir picks up.
const Ext = ".delta"

// Parse reads every migration declared in r.
func Parse(filename string, r io.Reader) ([]*descriptor.Migration, error) {
	file, err := parser.Parse(filename, r)
	if err != nil {
		return nil, err
	}
	out := make([]*descriptor.Migration, 0, len(file.Migrations))
	for _, raw := range file.Migrations {
		m, err := convertMigration(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ParseString parses migrations from a string.
func ParseString(filename, input string) ([]*descriptor.Migration, error) {
	return Parse(filename, strings.NewReader(input))
}

// LoadDir parses every .delta file directly inside dir, in file name order.
func LoadDir(fs afero.Fs, dir string) ([]*descriptor.Migration, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == Ext {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []*descriptor.Migration
	for _, name := range names {
		path := filepath.Join(dir, name)
		f, err := fs.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		ms, err := Parse(path, f)
		f.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, ms...)
	}
	return out, nil
}

func convertMigration(raw *Migration) (*descriptor.Migration, error) {
	m := &descriptor.Migration{App: raw.App, Name: raw.Name, Initial: raw.Initial}
	for _, st := range raw.Statements {
		switch {
		case st.Depends != nil:
			if st.Depends.Setting != "" {
				m.Dependencies = append(m.Dependencies, descriptor.Swappable(st.Depends.Setting))
			} else {
				m.Dependencies = append(m.Dependencies, descriptor.DependsOn(st.Depends.App, st.Depends.Name))
			}
		case st.CreateModel != nil:
			op := operation.CreateModel{Name: st.CreateModel.Name}
			if st.CreateModel.Table != nil {
				op.Table = *st.CreateModel.Table
			}
			for _, decl := range st.CreateModel.Fields {
				f, err := convertField(decl.Pos, decl.Spec)
				if err != nil {
					return nil, err
				}
				op.Fields = append(op.Fields, state.NamedField{Name: decl.Name, Field: f})
			}
			m.Operations = append(m.Operations, op)
		case st.DeleteModel != nil:
			m.Operations = append(m.Operations, operation.DeleteModel{Name: *st.DeleteModel})
		case st.AddField != nil:
			f, err := convertField(st.AddField.Pos, st.AddField.Spec)
			if err != nil {
				return nil, err
			}
			m.Operations = append(m.Operations, operation.AddField{Model: st.AddField.Model, Name: st.AddField.Name, Field: f})
		case st.RemoveField != nil:
			m.Operations = append(m.Operations, operation.RemoveField{Model: st.RemoveField.Model, Name: st.RemoveField.Name})
		case st.AlterField != nil:
			f, err := convertField(st.AlterField.Pos, st.AlterField.Spec)
			if err != nil {
				return nil, err
			}
			m.Operations = append(m.Operations, operation.AlterField{Model: st.AlterField.Model, Name: st.AlterField.Name, Field: f})
		}
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", raw.Pos, err)
	}
	return m, nil
}

func convertField(pos lexer.Position, spec *FieldSpec) (field.Field, error) {
	kind, err := field.ParseKind(spec.Kind)
	if err != nil {
		return field.Field{}, fmt.Errorf("%s: %w", pos, err)
	}
	f := field.New(kind)
	for _, opt := range spec.Options {
		if err := applyOption(&f, opt); err != nil {
			return field.Field{}, fmt.Errorf("%s: %w", opt.Pos, err)
		}
	}
	if err := f.Validate(); err != nil {
		return field.Field{}, fmt.Errorf("%s: %w", pos, err)
	}
	return f, nil
}

func applyOption(f *field.Field, opt *Option) error {
	v := opt.Value
	switch opt.Key {
	case "default":
		switch {
		case v.String != nil:
			f.Default = *v.String
		case v.Number != nil:
			f.Default = *v.Number
		case v.Bool != nil:
			f.Default = *v.Bool == "true"
		case v.Null:
			f.Default = nil
		default:
			return fmt.Errorf("%w: default must be a literal", field.ErrInvalidField)
		}
		f.HasDefault = true
	case "max_length":
		if v.Number == nil {
			return fmt.Errorf("%w: max_length must be a number", field.ErrInvalidField)
		}
		f.MaxLength = *v.Number
	case "null", "unique", "primary_key":
		if v.Bool == nil {
			return fmt.Errorf("%w: %s must be true or false", field.ErrInvalidField, opt.Key)
		}
		b := *v.Bool == "true"
		switch opt.Key {
		case "null":
			f.Null = b
		case "unique":
			f.Unique = b
		default:
			f.PrimaryKey = b
		}
	case "to":
		switch {
		case v.Setting != nil:
			f.To = field.ToSetting(*v.Setting)
		case v.Ref != nil || v.String != nil:
			label := v.Ref
			if label == nil {
				label = v.String
			}
			ref, err := field.ParseRef(*label)
			if err != nil {
				return err
			}
			f.To = ref
		default:
			return fmt.Errorf("%w: to must name a model or a setting", field.ErrInvalidField)
		}
	case "on_delete":
		if v.Ref == nil {
			return fmt.Errorf("%w: on_delete must be a policy name", field.ErrInvalidField)
		}
		od, err := field.ParseOnDelete(*v.Ref)
		if err != nil {
			return err
		}
		f.OnDelete = od
	case "related_name", "db_column":
		if v.String == nil {
			return fmt.Errorf("%w: %s must be a string", field.ErrInvalidField, opt.Key)
		}
		if opt.Key == "related_name" {
			f.RelatedName = *v.String
		} else {
			f.DBColumn = *v.String
		}
	default:
		return fmt.Errorf("%w: unknown option %q", field.ErrInvalidField, opt.Key)
	}
	return nil
}
