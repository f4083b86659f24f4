// Package graph resolves migration dependencies into a directed acyclic
// graph and derives application plans and project states from it.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/satishbabariya/schemadelta/migrate/descriptor"
	"github.com/satishbabariya/schemadelta/migrate/field"
	"github.com/satishbabariya/schemadelta/migrate/state"
)

// NodeNotFoundError reports a dependency on a migration that does not exist.
type NodeNotFoundError struct {
	Origin     descriptor.Key
	Dependency descriptor.Dependency
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("migration %s depends on nonexistent migration %s", e.Origin, e.Dependency)
}

// CircularDependencyError reports a dependency cycle.
type CircularDependencyError struct {
	Cycle []descriptor.Key
}

func (e *CircularDependencyError) Error() string {
	parts := make([]string, len(e.Cycle))
	for i, k := range e.Cycle {
		parts[i] = k.String()
	}
	return "circular dependency: " + strings.Join(parts, " -> ")
}

// ConflictError reports an app with more than one leaf migration.
type ConflictError struct {
	App    string
	Leaves []descriptor.Key
}

func (e *ConflictError) Error() string {
	names := make([]string, len(e.Leaves))
	for i, k := range e.Leaves {
		names[i] = k.Name
	}
	return fmt.Sprintf("conflicting migrations in app %s: %s", e.App, strings.Join(names, ", "))
}

type node struct {
	migration *descriptor.Migration
	parents   []descriptor.Key
	children  []descriptor.Key
}

// Graph is the resolved dependency graph.
type Graph struct {
	settings field.Settings
	nodes    map[descriptor.Key]*node
	order    []descriptor.Key
}

// Build resolves every dependency in reg against settings.
func Build(reg *descriptor.Registry, settings field.Settings) (*Graph, error) {
	if settings == nil {
		settings = field.DefaultSettings()
	}
	g := &Graph{
		settings: settings,
		nodes:    make(map[descriptor.Key]*node, reg.Len()),
	}
	for _, m := range reg.All() {
		g.nodes[m.Key()] = &node{migration: m}
	}

	for _, m := range reg.All() {
		n := g.nodes[m.Key()]
		for _, dep := range m.Dependencies {
			key, err := dep.Resolve(settings)
			if err != nil {
				return nil, fmt.Errorf("migration %s: %w", m.Key(), err)
			}
			parent, ok := g.resolveSpecial(key)
			if !ok {
				return nil, &NodeNotFoundError{Origin: m.Key(), Dependency: dep}
			}
			if parent == m.Key() {
				// A swappable dependency on the app's own first migration.
				continue
			}
			n.parents = appendUnique(n.parents, parent)
			g.nodes[parent].children = appendUnique(g.nodes[parent].children, m.Key())
		}
	}
	for _, n := range g.nodes {
		descriptor.SortKeys(n.parents)
		descriptor.SortKeys(n.children)
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order

	for _, app := range reg.Apps() {
		if leaves := g.appLeaves(app); len(leaves) > 1 {
			return nil, &ConflictError{App: app, Leaves: leaves}
		}
	}
	return g, nil
}

// resolveSpecial maps First/Latest onto concrete keys. Before the graph
// edges exist, "first" means the app's migration with the smallest name.
// App labels match case-insensitively, like model lookups in project state.
func (g *Graph) resolveSpecial(key descriptor.Key) (descriptor.Key, bool) {
	app, ok := g.appLabel(key.App)
	if !ok {
		return descriptor.Key{}, false
	}
	switch key.Name {
	case descriptor.First, descriptor.Latest:
		var names []string
		for k := range g.nodes {
			if k.App == app {
				names = append(names, k.Name)
			}
		}
		sort.Strings(names)
		if key.Name == descriptor.First {
			return descriptor.Key{App: app, Name: names[0]}, true
		}
		return descriptor.Key{App: app, Name: names[len(names)-1]}, true
	default:
		k := descriptor.Key{App: app, Name: key.Name}
		_, ok := g.nodes[k]
		return k, ok
	}
}

// appLabel returns the registered spelling of app. An exact match wins;
// otherwise exactly one label may differ from it in case.
func (g *Graph) appLabel(app string) (string, bool) {
	var folded []string
	for k := range g.nodes {
		if k.App == app {
			return app, true
		}
		if strings.EqualFold(k.App, app) && !contains(folded, k.App) {
			folded = append(folded, k.App)
		}
	}
	if len(folded) != 1 {
		return "", false
	}
	return folded[0], true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func appendUnique(keys []descriptor.Key, key descriptor.Key) []descriptor.Key {
	for _, k := range keys {
		if k == key {
			return keys
		}
	}
	return append(keys, key)
}

// topoSort orders every node after its parents, breaking ties by key.
func (g *Graph) topoSort() ([]descriptor.Key, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[descriptor.Key]int, len(g.nodes))
	order := make([]descriptor.Key, 0, len(g.nodes))
	var stack []descriptor.Key

	var visit func(k descriptor.Key) error
	visit = func(k descriptor.Key) error {
		switch marks[k] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, s := range stack {
				if s == k {
					start = i
					break
				}
			}
			cycle := append(append([]descriptor.Key(nil), stack[start:]...), k)
			return &CircularDependencyError{Cycle: cycle}
		}
		marks[k] = visiting
		stack = append(stack, k)
		for _, p := range g.nodes[k].parents {
			if err := visit(p); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		marks[k] = done
		order = append(order, k)
		return nil
	}

	for _, k := range g.sortedKeys() {
		if err := visit(k); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (g *Graph) sortedKeys() []descriptor.Key {
	keys := make([]descriptor.Key, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	descriptor.SortKeys(keys)
	return keys
}

func (g *Graph) appLeaves(app string) []descriptor.Key {
	var leaves []descriptor.Key
	for _, k := range g.sortedKeys() {
		if k.App != app {
			continue
		}
		leaf := true
		for _, c := range g.nodes[k].children {
			if c.App == app {
				leaf = false
				break
			}
		}
		if leaf {
			leaves = append(leaves, k)
		}
	}
	return leaves
}

// Settings returns the settings swappable references resolve against.
func (g *Graph) Settings() field.Settings {
	return g.settings
}

// Migration returns the descriptor for key.
func (g *Graph) Migration(key descriptor.Key) (*descriptor.Migration, bool) {
	n, ok := g.nodes[key]
	if !ok {
		return nil, false
	}
	return n.migration, true
}

// Has reports whether key is a node.
func (g *Graph) Has(key descriptor.Key) bool {
	_, ok := g.nodes[key]
	return ok
}

// Parents returns the resolved dependencies of key.
func (g *Graph) Parents(key descriptor.Key) []descriptor.Key {
	if n, ok := g.nodes[key]; ok {
		return append([]descriptor.Key(nil), n.parents...)
	}
	return nil
}

// Children returns the migrations that depend on key.
func (g *Graph) Children(key descriptor.Key) []descriptor.Key {
	if n, ok := g.nodes[key]; ok {
		return append([]descriptor.Key(nil), n.children...)
	}
	return nil
}

// Roots returns the migrations of app that have no parent in the same app.
func (g *Graph) Roots(app string) []descriptor.Key {
	var roots []descriptor.Key
	for _, k := range g.order {
		if k.App != app {
			continue
		}
		root := true
		for _, p := range g.nodes[k].parents {
			if p.App == app {
				root = false
				break
			}
		}
		if root {
			roots = append(roots, k)
		}
	}
	return roots
}

// Keys returns every node in dependency order.
func (g *Graph) Keys() []descriptor.Key {
	return append([]descriptor.Key(nil), g.order...)
}

// Apps returns the sorted list of apps in the graph.
func (g *Graph) Apps() []string {
	seen := make(map[string]bool)
	var apps []string
	for _, k := range g.order {
		if !seen[k.App] {
			seen[k.App] = true
			apps = append(apps, k.App)
		}
	}
	sort.Strings(apps)
	return apps
}

// Leaf returns the latest migration of app.
func (g *Graph) Leaf(app string) (descriptor.Key, bool) {
	leaves := g.appLeaves(app)
	if len(leaves) == 0 {
		return descriptor.Key{}, false
	}
	return leaves[0], true
}

// Leaves returns the leaf migration of every app.
func (g *Graph) Leaves() []descriptor.Key {
	var leaves []descriptor.Key
	for _, app := range g.Apps() {
		if k, ok := g.Leaf(app); ok {
			leaves = append(leaves, k)
		}
	}
	return leaves
}

// ForwardsPlan returns target and all of its ancestors, dependencies first.
func (g *Graph) ForwardsPlan(target descriptor.Key) ([]descriptor.Key, error) {
	if !g.Has(target) {
		return nil, fmt.Errorf("unknown migration %s", target)
	}
	want := make(map[descriptor.Key]bool)
	var walk func(k descriptor.Key)
	walk = func(k descriptor.Key) {
		if want[k] {
			return
		}
		want[k] = true
		for _, p := range g.nodes[k].parents {
			walk(p)
		}
	}
	walk(target)
	return g.filter(want), nil
}

// BackwardsPlan returns target and all of its descendants, dependants first.
func (g *Graph) BackwardsPlan(target descriptor.Key) ([]descriptor.Key, error) {
	if !g.Has(target) {
		return nil, fmt.Errorf("unknown migration %s", target)
	}
	want := make(map[descriptor.Key]bool)
	var walk func(k descriptor.Key)
	walk = func(k descriptor.Key) {
		if want[k] {
			return
		}
		want[k] = true
		for _, c := range g.nodes[k].children {
			walk(c)
		}
	}
	walk(target)
	plan := g.filter(want)
	for i, j := 0, len(plan)-1; i < j; i, j = i+1, j-1 {
		plan[i], plan[j] = plan[j], plan[i]
	}
	return plan, nil
}

func (g *Graph) filter(want map[descriptor.Key]bool) []descriptor.Key {
	out := make([]descriptor.Key, 0, len(want))
	for _, k := range g.order {
		if want[k] {
			out = append(out, k)
		}
	}
	return out
}

// StateAt replays the operations of the given nodes, in dependency order,
// and returns the resulting project. Relations are validated after each
// migration so that models created later in the same migration resolve.
func (g *Graph) StateAt(nodes map[descriptor.Key]bool) (*state.Project, error) {
	p := state.NewProject(g.settings)
	for _, k := range g.order {
		if !nodes[k] {
			continue
		}
		if err := g.Advance(p, k); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Advance applies one migration's operations to p.
func (g *Graph) Advance(p *state.Project, key descriptor.Key) error {
	m, ok := g.Migration(key)
	if !ok {
		return fmt.Errorf("unknown migration %s", key)
	}
	for i, op := range m.Operations {
		if err := op.StateForwards(m.App, p); err != nil {
			return fmt.Errorf("migration %s operation %d (%s): %w", key, i+1, op.Describe(), err)
		}
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("migration %s: %w", key, err)
	}
	return nil
}
