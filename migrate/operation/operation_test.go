package operation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schemadelta/migrate/field"
	"github.com/satishbabariya/schemadelta/migrate/sqlgen"
	"github.com/satishbabariya/schemadelta/migrate/state"
)

var createUser = CreateModel{
	Name: "User",
	Fields: []state.NamedField{
		{Name: "id", Field: field.AutoField()},
		{Name: "username", Field: field.CharField(150)},
	},
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, `CreateModel(User {id AutoField(); username CharField(max_length=150)})`, createUser.Describe())
	assert.Equal(t, `CreateModel(User table="users" {})`, CreateModel{Name: "User", Table: "users"}.Describe())
	assert.Equal(t, "DeleteModel(User)", DeleteModel{Name: "User"}.Describe())
	assert.Equal(t, "AddField(groupmatch.group2Accept, BooleanField(default=false))",
		AddField{Model: "groupmatch", Name: "group2Accept", Field: field.BooleanField(field.Default(false))}.Describe())
	assert.Equal(t, "RemoveField(User.username)", RemoveField{Model: "User", Name: "username"}.Describe())
	assert.Equal(t, `AlterField(interestgroup.description, TextField(max_length=500, default=""))`,
		AlterField{Model: "interestgroup", Name: "description", Field: field.TextField(field.Default(""), field.MaxLength(500))}.Describe())
}

// TestStateForwards tests each operation against a project.
func TestStateForwards(t *testing.T) {
	p := state.NewProject(nil)
	require.NoError(t, createUser.StateForwards("auth", p))
	assert.ErrorIs(t, createUser.StateForwards("auth", p), state.ErrModelExists)

	require.NoError(t, AddField{Model: "user", Name: "email", Field: field.CharField(254, field.Default(""))}.StateForwards("auth", p))
	require.NoError(t, AlterField{Model: "user", Name: "email", Field: field.CharField(320, field.Default(""))}.StateForwards("auth", p))
	m, err := p.Model("auth", "User")
	require.NoError(t, err)
	f, _ := m.Get("email")
	assert.Equal(t, 320, f.MaxLength)

	require.NoError(t, RemoveField{Model: "User", Name: "email"}.StateForwards("auth", p))
	assert.ErrorIs(t, RemoveField{Model: "User", Name: "email"}.StateForwards("auth", p), state.ErrFieldNotFound)

	require.NoError(t, DeleteModel{Name: "User"}.StateForwards("auth", p))
	assert.Empty(t, p.Models())
}

// TestDatabaseBackwardsInvertsForwards tests that each operation's backwards
// SQL undoes its forwards SQL.
func TestDatabaseBackwardsInvertsForwards(t *testing.T) {
	before := state.NewProject(nil)
	require.NoError(t, createUser.StateForwards("auth", before))

	op := AddField{Model: "User", Name: "is_staff", Field: field.BooleanField(field.Default(false))}
	after := before.Clone()
	require.NoError(t, op.StateForwards("auth", after))

	ed, err := sqlgen.NewEditor("postgres")
	require.NoError(t, err)

	require.NoError(t, op.DatabaseForwards(ed, "auth", before, after))
	assert.Equal(t, []string{`ALTER TABLE "auth_user" ADD COLUMN "is_staff" boolean NOT NULL DEFAULT FALSE`}, ed.Statements())

	ed.Reset()
	require.NoError(t, op.DatabaseBackwards(ed, "auth", after, before))
	assert.Equal(t, []string{`ALTER TABLE "auth_user" DROP COLUMN "is_staff"`}, ed.Statements())

	ed.Reset()
	require.NoError(t, createUser.DatabaseBackwards(ed, "auth", before, state.NewProject(nil)))
	assert.Equal(t, []string{`DROP TABLE "auth_user" CASCADE`}, ed.Statements())

	for _, o := range []Operation{createUser, DeleteModel{}, op, RemoveField{}, AlterField{}} {
		assert.True(t, o.Reversible(), o.Describe())
	}
}
