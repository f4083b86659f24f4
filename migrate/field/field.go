// Package field describes model fields as migrations declare them.
//
// A Field is a passive descriptor: its kind, default, nullability, length and,
// for relations, the target model and the on-delete policy. SQL generation
// and state tracking interpret it; the descriptor itself never talks to a
// database.
package field

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidField is returned when a descriptor is internally inconsistent.
var ErrInvalidField = errors.New("invalid field")

// Kind identifies the storage type of a field.
type Kind string

const (
	// Auto is an auto-incrementing integer primary key.
	Auto Kind = "AutoField"
	// Integer is a plain integer column.
	Integer Kind = "IntegerField"
	// Boolean is a true/false column.
	Boolean Kind = "BooleanField"
	// Char is a bounded string column; MaxLength is required.
	Char Kind = "CharField"
	// Text is an unbounded string column.
	Text Kind = "TextField"
	// DateTime is a timestamp column.
	DateTime Kind = "DateTimeField"
	// ForeignKey is a many-to-one relation.
	ForeignKey Kind = "ForeignKey"
	// OneToOne is a unique many-to-one relation.
	OneToOne Kind = "OneToOneField"
)

var kinds = map[string]Kind{
	"auto":       Auto,
	"integer":    Integer,
	"boolean":    Boolean,
	"char":       Char,
	"text":       Text,
	"datetime":   DateTime,
	"foreign":    ForeignKey,
	"foreignkey": ForeignKey,
	"one_to_one": OneToOne,
}

// ParseKind accepts either the short DSL name ("boolean", "one_to_one") or
// the descriptor name ("BooleanField").
func ParseKind(s string) (Kind, error) {
	if k, ok := kinds[strings.ToLower(s)]; ok {
		return k, nil
	}
	for _, k := range kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown field kind %q", ErrInvalidField, s)
}

// IsRelation reports whether the kind points at another model.
func (k Kind) IsRelation() bool {
	return k == ForeignKey || k == OneToOne
}

// OnDelete is the policy applied to dependent rows when the referenced row
// is deleted.
type OnDelete string

const (
	Cascade    OnDelete = "CASCADE"
	Protect    OnDelete = "PROTECT"
	Restrict   OnDelete = "RESTRICT"
	SetNull    OnDelete = "SET_NULL"
	SetDefault OnDelete = "SET_DEFAULT"
	DoNothing  OnDelete = "DO_NOTHING"
)

// ParseOnDelete parses a policy name such as "DO_NOTHING".
func ParseOnDelete(s string) (OnDelete, error) {
	switch p := OnDelete(strings.ToUpper(s)); p {
	case Cascade, Protect, Restrict, SetNull, SetDefault, DoNothing:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown on_delete policy %q", ErrInvalidField, s)
}

// SQLAction maps the policy onto a referential action.
func (o OnDelete) SQLAction() string {
	switch o {
	case Cascade:
		return "CASCADE"
	case Protect, Restrict:
		return "RESTRICT"
	case SetNull:
		return "SET NULL"
	case SetDefault:
		return "SET DEFAULT"
	default:
		return "NO ACTION"
	}
}

// Settings maps swappable setting names to "app.Model" labels.
type Settings map[string]string

// AuthUserModel is the setting naming the user-identity model.
const AuthUserModel = "AUTH_USER_MODEL"

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{AuthUserModel: "auth.User"}
}

// Ref points at a model, either directly or through a swappable setting.
type Ref struct {
	App     string
	Model   string
	Setting string
}

// To references a concrete model. An empty app means "the declaring app".
func To(app, model string) Ref {
	return Ref{App: app, Model: model}
}

// ToSetting references whatever model the named setting points at.
func ToSetting(name string) Ref {
	return Ref{Setting: name}
}

// ParseRef parses "app.Model" or a bare "Model".
func ParseRef(label string) (Ref, error) {
	parts := strings.Split(label, ".")
	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return Ref{}, fmt.Errorf("%w: empty model reference", ErrInvalidField)
		}
		return Ref{Model: parts[0]}, nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return Ref{}, fmt.Errorf("%w: malformed model reference %q", ErrInvalidField, label)
		}
		return Ref{App: parts[0], Model: parts[1]}, nil
	default:
		return Ref{}, fmt.Errorf("%w: malformed model reference %q", ErrInvalidField, label)
	}
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool {
	return r.App == "" && r.Model == "" && r.Setting == ""
}

// IsSwappable reports whether the reference goes through a setting.
func (r Ref) IsSwappable() bool {
	return r.Setting != ""
}

func (r Ref) String() string {
	if r.IsSwappable() {
		return "setting " + r.Setting
	}
	if r.App == "" {
		return r.Model
	}
	return r.App + "." + r.Model
}

// Resolve turns a swappable reference into a concrete one. Concrete
// references without an app inherit fromApp.
func (r Ref) Resolve(settings Settings, fromApp string) (Ref, error) {
	if r.IsSwappable() {
		label, ok := settings[r.Setting]
		if !ok {
			return Ref{}, fmt.Errorf("%w: setting %s is not configured", ErrInvalidField, r.Setting)
		}
		resolved, err := ParseRef(label)
		if err != nil {
			return Ref{}, err
		}
		if resolved.App == "" {
			return Ref{}, fmt.Errorf("%w: setting %s must be of the form app.Model, got %q", ErrInvalidField, r.Setting, label)
		}
		return resolved, nil
	}
	if r.App == "" {
		return Ref{App: fromApp, Model: r.Model}, nil
	}
	return r, nil
}

// Field is a column descriptor.
type Field struct {
	Kind        Kind
	Default     any
	HasDefault  bool
	Null        bool
	MaxLength   int
	Unique      bool
	PrimaryKey  bool
	To          Ref
	OnDelete    OnDelete
	RelatedName string
	DBColumn    string
}

// Option customises a Field built by one of the constructors.
type Option func(*Field)

// Default sets the default value. Supported values are bool, string and
// integers.
func Default(v any) Option {
	return func(f *Field) {
		f.Default = v
		f.HasDefault = true
	}
}

// MaxLength bounds the length of string values.
func MaxLength(n int) Option {
	return func(f *Field) { f.MaxLength = n }
}

// Nullable allows NULL values.
func Nullable() Option {
	return func(f *Field) { f.Null = true }
}

// Unique adds a uniqueness constraint.
func Unique() Option {
	return func(f *Field) { f.Unique = true }
}

// RelatedName sets the reverse accessor name on the target model.
func RelatedName(name string) Option {
	return func(f *Field) { f.RelatedName = name }
}

// DBColumn overrides the column name.
func DBColumn(name string) Option {
	return func(f *Field) { f.DBColumn = name }
}

// New builds a field of the given kind.
func New(kind Kind, opts ...Option) Field {
	f := Field{Kind: kind}
	for _, opt := range opts {
		opt(&f)
	}
	if kind == Auto {
		f.PrimaryKey = true
	}
	if kind == OneToOne {
		f.Unique = true
	}
	return f
}

func AutoField() Field                   { return New(Auto) }
func IntegerField(opts ...Option) Field  { return New(Integer, opts...) }
func BooleanField(opts ...Option) Field  { return New(Boolean, opts...) }
func TextField(opts ...Option) Field     { return New(Text, opts...) }
func DateTimeField(opts ...Option) Field { return New(DateTime, opts...) }

// CharField builds a bounded string field.
func CharField(maxLength int, opts ...Option) Field {
	return New(Char, append([]Option{MaxLength(maxLength)}, opts...)...)
}

// ForeignKeyField builds a many-to-one relation.
func ForeignKeyField(to Ref, onDelete OnDelete, opts ...Option) Field {
	f := New(ForeignKey, opts...)
	f.To = to
	f.OnDelete = onDelete
	return f
}

// OneToOneField builds a one-to-one relation. The column is always unique.
func OneToOneField(to Ref, onDelete OnDelete, opts ...Option) Field {
	f := New(OneToOne, opts...)
	f.To = to
	f.OnDelete = onDelete
	return f
}

// IsRelation reports whether the field points at another model.
func (f Field) IsRelation() bool {
	return f.Kind.IsRelation()
}

// Column returns the database column backing a field called name.
func (f Field) Column(name string) string {
	if f.DBColumn != "" {
		return f.DBColumn
	}
	if f.IsRelation() {
		return name + "_id"
	}
	return name
}

// Validate checks the descriptor for combinations no database can honour.
func (f Field) Validate() error {
	switch f.Kind {
	case Auto, Integer, Boolean, Text, DateTime:
	case Char:
		if f.MaxLength <= 0 {
			return fmt.Errorf("%w: CharField requires a positive max_length", ErrInvalidField)
		}
	case ForeignKey, OneToOne:
		if f.To.IsZero() {
			return fmt.Errorf("%w: %s requires a target model", ErrInvalidField, f.Kind)
		}
		if f.OnDelete == "" {
			return fmt.Errorf("%w: %s requires an on_delete policy", ErrInvalidField, f.Kind)
		}
		if f.OnDelete == SetNull && !f.Null {
			return fmt.Errorf("%w: on_delete=SET_NULL requires null=true", ErrInvalidField)
		}
		if f.OnDelete == SetDefault && !f.HasDefault {
			return fmt.Errorf("%w: on_delete=SET_DEFAULT requires a default", ErrInvalidField)
		}
	default:
		return fmt.Errorf("%w: unknown field kind %q", ErrInvalidField, f.Kind)
	}
	if f.MaxLength < 0 {
		return fmt.Errorf("%w: max_length must not be negative", ErrInvalidField)
	}
	if f.HasDefault {
		if err := f.checkDefault(); err != nil {
			return err
		}
	}
	return nil
}

func (f Field) checkDefault() error {
	switch v := f.Default.(type) {
	case nil:
		if !f.Null {
			return fmt.Errorf("%w: default null on a non-null field", ErrInvalidField)
		}
	case bool:
		if f.Kind != Boolean {
			return fmt.Errorf("%w: boolean default on %s", ErrInvalidField, f.Kind)
		}
	case string:
		if f.Kind != Char && f.Kind != Text {
			return fmt.Errorf("%w: string default on %s", ErrInvalidField, f.Kind)
		}
		if f.MaxLength > 0 && len([]rune(v)) > f.MaxLength {
			return fmt.Errorf("%w: default longer than max_length %d", ErrInvalidField, f.MaxLength)
		}
	case int, int32, int64:
		if f.Kind != Integer && !f.IsRelation() {
			return fmt.Errorf("%w: integer default on %s", ErrInvalidField, f.Kind)
		}
	default:
		return fmt.Errorf("%w: unsupported default of type %T", ErrInvalidField, v)
	}
	return nil
}

// Describe renders the descriptor canonically. Two fields with the same
// description are interchangeable, which is what checksums rely on.
func (f Field) Describe() string {
	var args []string
	if f.IsRelation() {
		args = append(args, "to="+f.To.String(), "on_delete="+string(f.OnDelete))
	}
	if f.PrimaryKey && f.Kind != Auto {
		args = append(args, "primary_key=true")
	}
	if f.MaxLength > 0 {
		args = append(args, "max_length="+strconv.Itoa(f.MaxLength))
	}
	if f.Null {
		args = append(args, "null=true")
	}
	if f.Unique && f.Kind != OneToOne {
		args = append(args, "unique=true")
	}
	if f.HasDefault {
		args = append(args, "default="+FormatValue(f.Default))
	}
	if f.RelatedName != "" {
		args = append(args, "related_name="+strconv.Quote(f.RelatedName))
	}
	if f.DBColumn != "" {
		args = append(args, "db_column="+strconv.Quote(f.DBColumn))
	}
	return string(f.Kind) + "(" + strings.Join(args, ", ") + ")"
}

// Equal reports whether two descriptors are interchangeable.
func (f Field) Equal(other Field) bool {
	return f.Describe() == other.Describe()
}

// FormatValue renders a default value as it appears in descriptions.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// Names returns the sorted short kind names accepted by ParseKind.
func Names() []string {
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
