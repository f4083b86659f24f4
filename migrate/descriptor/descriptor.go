// Package descriptor holds migration descriptors: a named, ordered list of
// operations plus the migrations that must be applied first.
//
// Descriptors are authored once and never mutated; the runner only reads
// their dependencies and operations.
package descriptor

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/satishbabariya/schemadelta/migrate/field"
	"github.com/satishbabariya/schemadelta/migrate/operation"
)

const (
	// First resolves to the root migration of an app.
	First = "__first__"
	// Latest resolves to the leaf migration of an app.
	Latest = "__latest__"
)

var (
	ErrInvalidMigration = errors.New("invalid migration")
	ErrDuplicate        = errors.New("duplicate migration")
)

// Key identifies a migration.
type Key struct {
	App  string
	Name string
}

func (k Key) String() string {
	return k.App + "." + k.Name
}

// Less orders keys by app, then name.
func (k Key) Less(other Key) bool {
	if k.App != other.App {
		return k.App < other.App
	}
	return k.Name < other.Name
}

// SortKeys sorts keys in place.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

// Dependency is either a named migration or a swappable setting.
type Dependency struct {
	App     string
	Name    string
	Setting string
}

// DependsOn names a prior migration. name may be First or Latest.
func DependsOn(app, name string) Dependency {
	return Dependency{App: app, Name: name}
}

// Swappable depends on the first migration of whichever app provides the
// model the setting points at.
func Swappable(setting string) Dependency {
	return Dependency{Setting: setting}
}

// IsSwappable reports whether the dependency goes through a setting.
func (d Dependency) IsSwappable() bool {
	return d.Setting != ""
}

func (d Dependency) String() string {
	if d.IsSwappable() {
		return "swappable " + d.Setting
	}
	return d.App + "." + d.Name
}

// Resolve replaces a swappable dependency with the (app, First) key of the
// model the setting names. Named dependencies are returned unchanged.
func (d Dependency) Resolve(settings field.Settings) (Key, error) {
	if !d.IsSwappable() {
		return Key{App: d.App, Name: d.Name}, nil
	}
	ref, err := field.ToSetting(d.Setting).Resolve(settings, "")
	if err != nil {
		return Key{}, err
	}
	return Key{App: ref.App, Name: First}, nil
}

// Migration is a schema delta descriptor.
type Migration struct {
	App          string
	Name         string
	Initial      bool
	Dependencies []Dependency
	Operations   []operation.Operation
}

// Key returns the migration's identity.
func (m *Migration) Key() Key {
	return Key{App: m.App, Name: m.Name}
}

// Validate checks the descriptor's shape. It does not consult other
// migrations; the graph does that.
func (m *Migration) Validate() error {
	if m.App == "" || m.Name == "" {
		return fmt.Errorf("%w: app and name are required", ErrInvalidMigration)
	}
	if m.Name == First || m.Name == Latest {
		return fmt.Errorf("%w: %s is a reserved name", ErrInvalidMigration, m.Name)
	}
	for i, op := range m.Operations {
		if op == nil {
			return fmt.Errorf("%w: %s operation %d is nil", ErrInvalidMigration, m.Key(), i)
		}
	}
	for _, dep := range m.Dependencies {
		if !dep.IsSwappable() && (dep.App == "" || dep.Name == "") {
			return fmt.Errorf("%w: %s has an incomplete dependency", ErrInvalidMigration, m.Key())
		}
		if !dep.IsSwappable() && dep.App == m.App && dep.Name == m.Name {
			return fmt.Errorf("%w: %s depends on itself", ErrInvalidMigration, m.Key())
		}
	}
	return nil
}

// Describe renders the migration's operations, one per line.
func (m *Migration) Describe() string {
	lines := make([]string, 0, len(m.Operations))
	for _, op := range m.Operations {
		lines = append(lines, op.Describe())
	}
	return strings.Join(lines, "\n")
}

// Checksum hashes the canonical operation list. Editing an applied
// migration changes its checksum, which the runner reports as drift.
func (m *Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.Describe()))
	return hex.EncodeToString(sum[:])
}

// Registry is an ordered collection of migrations.
type Registry struct {
	migrations []*Migration
	index      map[Key]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[Key]int)}
}

// Register adds migrations, rejecting invalid descriptors and duplicates.
func (r *Registry) Register(migrations ...*Migration) error {
	for _, m := range migrations {
		if m == nil {
			return fmt.Errorf("%w: nil migration", ErrInvalidMigration)
		}
		if err := m.Validate(); err != nil {
			return err
		}
		if _, ok := r.index[m.Key()]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicate, m.Key())
		}
		r.index[m.Key()] = len(r.migrations)
		r.migrations = append(r.migrations, m)
	}
	return nil
}

// Get looks up a migration by key.
func (r *Registry) Get(key Key) (*Migration, bool) {
	i, ok := r.index[key]
	if !ok {
		return nil, false
	}
	return r.migrations[i], true
}

// All returns every migration in registration order.
func (r *Registry) All() []*Migration {
	return append([]*Migration(nil), r.migrations...)
}

// Len returns the number of registered migrations.
func (r *Registry) Len() int {
	return len(r.migrations)
}

// Apps returns the sorted set of apps with migrations.
func (r *Registry) Apps() []string {
	seen := make(map[string]bool)
	var apps []string
	for _, m := range r.migrations {
		if !seen[m.App] {
			seen[m.App] = true
			apps = append(apps, m.App)
		}
	}
	sort.Strings(apps)
	return apps
}
