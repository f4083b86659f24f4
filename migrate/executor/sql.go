package executor

import (
	"fmt"

	"github.com/satishbabariya/schemadelta/migrate/descriptor"
	"github.com/satishbabariya/schemadelta/migrate/graph"
	"github.com/satishbabariya/schemadelta/migrate/sqlgen"
	"github.com/satishbabariya/schemadelta/migrate/state"
)

// IrreversibleError is returned when unapplying a migration that contains
// an operation without a backwards form.
type IrreversibleError struct {
	Key       descriptor.Key
	Operation string
}

func (e *IrreversibleError) Error() string {
	return fmt.Sprintf("migration %s is not reversible: %s", e.Key, e.Operation)
}

// ForwardsSQL returns the statements that apply m to a database whose
// schema matches before, along with the resulting state.
func ForwardsSQL(ed sqlgen.Editor, m *descriptor.Migration, before *state.Project) (*state.Project, []string, error) {
	ed.Reset()
	cur := before.Clone()
	for i, op := range m.Operations {
		next := cur.Clone()
		if err := op.StateForwards(m.App, next); err != nil {
			return nil, nil, fmt.Errorf("migration %s operation %d (%s): %w", m.Key(), i+1, op.Describe(), err)
		}
		if err := op.DatabaseForwards(ed, m.App, cur, next); err != nil {
			return nil, nil, fmt.Errorf("migration %s operation %d (%s): %w", m.Key(), i+1, op.Describe(), err)
		}
		cur = next
	}
	if err := cur.Validate(); err != nil {
		return nil, nil, fmt.Errorf("migration %s: %w", m.Key(), err)
	}
	return cur, ed.Statements(), nil
}

// BackwardsSQL returns the statements that undo m, given the state the
// database was in before m was applied. Operations are undone last first.
func BackwardsSQL(ed sqlgen.Editor, m *descriptor.Migration, before *state.Project) ([]string, error) {
	ed.Reset()
	states := make([]*state.Project, 0, len(m.Operations)+1)
	states = append(states, before.Clone())
	for i, op := range m.Operations {
		if !op.Reversible() {
			return nil, &IrreversibleError{Key: m.Key(), Operation: op.Describe()}
		}
		next := states[i].Clone()
		if err := op.StateForwards(m.App, next); err != nil {
			return nil, fmt.Errorf("migration %s operation %d (%s): %w", m.Key(), i+1, op.Describe(), err)
		}
		states = append(states, next)
	}
	for i := len(m.Operations) - 1; i >= 0; i-- {
		op := m.Operations[i]
		if err := op.DatabaseBackwards(ed, m.App, states[i+1], states[i]); err != nil {
			return nil, fmt.Errorf("migration %s operation %d (%s): %w", m.Key(), i+1, op.Describe(), err)
		}
	}
	return ed.Statements(), nil
}

// CollectSQL renders one migration for provider without touching a
// database. The starting state is every ancestor of key applied.
func CollectSQL(g *graph.Graph, provider string, key descriptor.Key, backwards bool) ([]string, error) {
	m, ok := g.Migration(key)
	if !ok {
		return nil, fmt.Errorf("unknown migration %s", key)
	}
	ed, err := sqlgen.NewEditor(provider)
	if err != nil {
		return nil, err
	}
	ancestors, err := g.ForwardsPlan(key)
	if err != nil {
		return nil, err
	}
	nodes := make(map[descriptor.Key]bool, len(ancestors))
	for _, k := range ancestors {
		if k != key {
			nodes[k] = true
		}
	}
	before, err := g.StateAt(nodes)
	if err != nil {
		return nil, err
	}
	if backwards {
		return BackwardsSQL(ed, m, before)
	}
	_, stmts, err := ForwardsSQL(ed, m, before)
	return stmts, err
}
