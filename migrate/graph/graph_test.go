package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schemadelta/migrate/descriptor"
	"github.com/satishbabariya/schemadelta/migrate/field"
	"github.com/satishbabariya/schemadelta/migrate/operation"
	"github.com/satishbabariya/schemadelta/migrate/state"
)

var (
	authInitial  = descriptor.Key{App: "auth", Name: "0001_initial"}
	groupInitial = descriptor.Key{App: "groupApp", Name: "0001_initial"}
	groupSecond  = descriptor.Key{App: "groupApp", Name: "0002_groupmatch_group2accept_and_more"}
)

func migrations() []*descriptor.Migration {
	return []*descriptor.Migration{
		{
			App:  "auth",
			Name: "0001_initial",
			Operations: []operation.Operation{
				operation.CreateModel{Name: "User", Fields: []state.NamedField{
					{Name: "id", Field: field.AutoField()},
				}},
			},
		},
		{
			App:          "groupApp",
			Name:         "0001_initial",
			Dependencies: []descriptor.Dependency{descriptor.Swappable(field.AuthUserModel)},
			Operations: []operation.Operation{
				operation.CreateModel{Name: "GroupMatch", Fields: []state.NamedField{
					{Name: "id", Field: field.AutoField()},
					{Name: "owner", Field: field.ForeignKeyField(field.ToSetting(field.AuthUserModel), field.Cascade)},
				}},
			},
		},
		{
			App:  "groupApp",
			Name: "0002_groupmatch_group2accept_and_more",
			Dependencies: []descriptor.Dependency{
				descriptor.Swappable(field.AuthUserModel),
				descriptor.DependsOn("groupApp", "0001_initial"),
			},
			Operations: []operation.Operation{
				operation.AddField{Model: "groupmatch", Name: "group2Accept", Field: field.BooleanField(field.Default(false))},
			},
		},
	}
}

func build(t *testing.T, ms ...*descriptor.Migration) *Graph {
	t.Helper()
	reg := descriptor.NewRegistry()
	require.NoError(t, reg.Register(ms...))
	g, err := Build(reg, nil)
	require.NoError(t, err)
	return g
}

// TestBuild tests edge resolution, including swappable dependencies.
func TestBuild(t *testing.T) {
	g := build(t, migrations()...)

	assert.Equal(t, []descriptor.Key{authInitial, groupInitial, groupSecond}, g.Keys())
	assert.Equal(t, []descriptor.Key{authInitial}, g.Parents(groupInitial))
	assert.Equal(t, []descriptor.Key{authInitial, groupInitial}, g.Parents(groupSecond))
	assert.Equal(t, []descriptor.Key{groupInitial, groupSecond}, g.Children(authInitial))
	assert.Equal(t, []string{"auth", "groupApp"}, g.Apps())
	assert.Equal(t, []descriptor.Key{groupInitial}, g.Roots("groupApp"))
	assert.Empty(t, g.Roots("missing"))

	leaf, ok := g.Leaf("groupApp")
	require.True(t, ok)
	assert.Equal(t, groupSecond, leaf)
	assert.Equal(t, []descriptor.Key{authInitial, groupSecond}, g.Leaves())
}

func TestBuildErrors(t *testing.T) {
	t.Run("missing dependency", func(t *testing.T) {
		ms := migrations()[1:]
		reg := descriptor.NewRegistry()
		require.NoError(t, reg.Register(ms...))
		_, err := Build(reg, nil)
		var nf *NodeNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, groupInitial, nf.Origin)
	})

	t.Run("cycle", func(t *testing.T) {
		ms := migrations()
		ms[0].Dependencies = []descriptor.Dependency{descriptor.DependsOn("groupApp", "0002_groupmatch_group2accept_and_more")}
		reg := descriptor.NewRegistry()
		require.NoError(t, reg.Register(ms...))
		_, err := Build(reg, nil)
		var cycle *CircularDependencyError
		require.ErrorAs(t, err, &cycle)
		assert.Equal(t, cycle.Cycle[0], cycle.Cycle[len(cycle.Cycle)-1])
	})

	t.Run("conflict", func(t *testing.T) {
		ms := append(migrations(), &descriptor.Migration{
			App:          "groupApp",
			Name:         "0002_other",
			Dependencies: []descriptor.Dependency{descriptor.DependsOn("groupApp", "0001_initial")},
		})
		reg := descriptor.NewRegistry()
		require.NoError(t, reg.Register(ms...))
		_, err := Build(reg, nil)
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "groupApp", conflict.App)
		assert.Len(t, conflict.Leaves, 2)
	})

	t.Run("unconfigured setting", func(t *testing.T) {
		reg := descriptor.NewRegistry()
		require.NoError(t, reg.Register(migrations()...))
		_, err := Build(reg, field.Settings{})
		assert.Error(t, err)
	})
}

func TestSpecialNames(t *testing.T) {
	ms := append(migrations(), &descriptor.Migration{
		App:          "reports",
		Name:         "0001_initial",
		Dependencies: []descriptor.Dependency{descriptor.DependsOn("groupApp", descriptor.Latest)},
	})
	g := build(t, ms...)
	assert.Equal(t, []descriptor.Key{groupSecond}, g.Parents(descriptor.Key{App: "reports", Name: "0001_initial"}))
}

// TestPlans tests ancestor and descendant closures.
func TestPlans(t *testing.T) {
	g := build(t, migrations()...)

	plan, err := g.ForwardsPlan(groupSecond)
	require.NoError(t, err)
	assert.Equal(t, []descriptor.Key{authInitial, groupInitial, groupSecond}, plan)

	plan, err = g.BackwardsPlan(authInitial)
	require.NoError(t, err)
	assert.Equal(t, []descriptor.Key{groupSecond, groupInitial, authInitial}, plan)

	_, err = g.ForwardsPlan(descriptor.Key{App: "groupApp", Name: "0003"})
	assert.Error(t, err)
}

func TestStateAt(t *testing.T) {
	g := build(t, migrations()...)

	p, err := g.StateAt(map[descriptor.Key]bool{authInitial: true, groupInitial: true})
	require.NoError(t, err)
	m, err := p.Model("groupApp", "GroupMatch")
	require.NoError(t, err)
	assert.Equal(t, -1, m.Index("group2Accept"))

	require.NoError(t, g.Advance(p, groupSecond))
	assert.Equal(t, 2, m.Index("group2Accept"), "Advance mutates the project in place")

	_, err = g.StateAt(map[descriptor.Key]bool{groupInitial: true})
	assert.ErrorIs(t, err, state.ErrRelationTarget)
}

// TestSettingCase tests that a swappable setting spelled with a different
// app case resolves to the registered app.
func TestSettingCase(t *testing.T) {
	reg := descriptor.NewRegistry()
	require.NoError(t, reg.Register(migrations()...))
	g, err := Build(reg, field.Settings{field.AuthUserModel: "Auth.User"})
	require.NoError(t, err)

	assert.Equal(t, []descriptor.Key{authInitial}, g.Parents(groupInitial))
	assert.Equal(t, []descriptor.Key{authInitial, groupInitial}, g.Parents(groupSecond))

	p, err := g.StateAt(map[descriptor.Key]bool{authInitial: true, groupInitial: true, groupSecond: true})
	require.NoError(t, err)
	_, err = p.Model("groupApp", "GroupMatch")
	assert.NoError(t, err)

	ms := append(migrations(), &descriptor.Migration{
		App:          "reports",
		Name:         "0001_initial",
		Dependencies: []descriptor.Dependency{descriptor.DependsOn("GROUPAPP", "0001_initial")},
	})
	g = build(t, ms...)
	assert.Equal(t, []descriptor.Key{groupInitial}, g.Parents(descriptor.Key{App: "reports", Name: "0001_initial"}))
}
