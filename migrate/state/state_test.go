package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schemadelta/migrate/field"
)

func userModel() *ModelState {
	return &ModelState{
		App:  "auth",
		Name: "User",
		Fields: []NamedField{
			{Name: "id", Field: field.AutoField()},
			{Name: "username", Field: field.CharField(150, field.Unique())},
		},
	}
}

func groupModel() *ModelState {
	return &ModelState{
		App:  "groupApp",
		Name: "InterestGroup",
		Fields: []NamedField{
			{Name: "id", Field: field.AutoField()},
			{Name: "description", Field: field.TextField(field.Default(""))},
			{Name: "groupAdmin", Field: field.OneToOneField(field.ToSetting(field.AuthUserModel), field.Cascade)},
		},
	}
}

func newProject(t *testing.T) *Project {
	t.Helper()
	p := NewProject(nil)
	require.NoError(t, p.AddModel(userModel()))
	require.NoError(t, p.AddModel(groupModel()))
	require.NoError(t, p.Validate())
	return p
}

// TestModelLookup tests case-insensitive lookups and table naming.
func TestModelLookup(t *testing.T) {
	p := newProject(t)

	m, err := p.Model("groupapp", "interestgroup")
	require.NoError(t, err)
	assert.Equal(t, "InterestGroup", m.Name)
	assert.Equal(t, "groupapp_interestgroup", m.TableName())

	_, err = p.Model("groupApp", "Missing")
	assert.ErrorIs(t, err, ErrModelNotFound)

	assert.ErrorIs(t, p.AddModel(userModel()), ErrModelExists)
}

func TestFieldMutations(t *testing.T) {
	p := newProject(t)

	require.NoError(t, p.AddField("groupApp", "InterestGroup", "active", field.BooleanField(field.Default(true))))
	assert.ErrorIs(t, p.AddField("groupApp", "InterestGroup", "active", field.BooleanField()), ErrFieldExists)

	altered := field.TextField(field.Default(""), field.MaxLength(500))
	require.NoError(t, p.AlterField("groupApp", "interestgroup", "description", altered))
	m, _ := p.Model("groupApp", "InterestGroup")
	f, ok := m.Get("description")
	require.True(t, ok)
	assert.Equal(t, 500, f.MaxLength)
	assert.Equal(t, 1, m.Index("description"), "altered fields keep their position")

	assert.ErrorIs(t, p.AlterField("groupApp", "InterestGroup", "nope", altered), ErrFieldNotFound)
	assert.ErrorIs(t, p.AlterField("groupApp", "InterestGroup", "description", field.New(field.Char)), field.ErrInvalidField)

	require.NoError(t, p.RemoveField("groupApp", "InterestGroup", "active"))
	assert.Equal(t, -1, m.Index("active"))
	assert.ErrorIs(t, p.RemoveField("groupApp", "InterestGroup", "active"), ErrFieldNotFound)
}

// TestClone tests that clones are independent.
func TestClone(t *testing.T) {
	p := newProject(t)
	c := p.Clone()

	require.NoError(t, c.AddField("auth", "User", "email", field.CharField(254)))
	require.NoError(t, c.RemoveModel("groupApp", "InterestGroup"))

	m, err := p.Model("auth", "User")
	require.NoError(t, err)
	assert.Equal(t, -1, m.Index("email"))
	_, err = p.Model("groupApp", "InterestGroup")
	assert.NoError(t, err)
	assert.Len(t, p.Models(), 2)
	assert.Len(t, c.Models(), 1)
}

func TestValidateRelations(t *testing.T) {
	t.Run("missing target", func(t *testing.T) {
		p := NewProject(nil)
		require.NoError(t, p.AddModel(groupModel()))
		assert.ErrorIs(t, p.Validate(), ErrRelationTarget)
	})

	t.Run("swappable target", func(t *testing.T) {
		p := NewProject(field.Settings{field.AuthUserModel: "accounts.Member"})
		require.NoError(t, p.AddModel(groupModel()))
		require.NoError(t, p.AddModel(&ModelState{
			App:    "accounts",
			Name:   "Member",
			Fields: []NamedField{{Name: "id", Field: field.AutoField()}},
		}))
		assert.NoError(t, p.Validate())
	})

	t.Run("accessor clash", func(t *testing.T) {
		p := newProject(t)
		require.NoError(t, p.AddField("groupApp", "InterestGroup", "owner",
			field.OneToOneField(field.To("auth", "User"), field.Cascade, field.RelatedName("interestgroup"))))
		assert.ErrorIs(t, p.Validate(), ErrReverseAccessorClash)
	})

	t.Run("accessor shadows field", func(t *testing.T) {
		p := newProject(t)
		require.NoError(t, p.AlterField("groupApp", "InterestGroup", "groupAdmin",
			field.OneToOneField(field.ToSetting(field.AuthUserModel), field.DoNothing, field.RelatedName("username"))))
		assert.ErrorIs(t, p.Validate(), ErrReverseAccessorClash)
	})

	t.Run("related name resolves clash", func(t *testing.T) {
		p := newProject(t)
		require.NoError(t, p.AlterField("groupApp", "InterestGroup", "groupAdmin",
			field.OneToOneField(field.ToSetting(field.AuthUserModel), field.DoNothing, field.RelatedName("admin"))))
		require.NoError(t, p.AddField("groupApp", "InterestGroup", "owner",
			field.OneToOneField(field.To("auth", "User"), field.Cascade, field.Nullable())))
		assert.NoError(t, p.Validate())
	})
}

func TestReverseAccessor(t *testing.T) {
	m := groupModel()
	assert.Equal(t, "interestgroup", ReverseAccessor(m, field.OneToOneField(field.To("auth", "User"), field.Cascade)))
	assert.Equal(t, "interestgroup_set", ReverseAccessor(m, field.ForeignKeyField(field.To("auth", "User"), field.Cascade)))
	assert.Equal(t, "admin", ReverseAccessor(m, field.OneToOneField(field.To("auth", "User"), field.Cascade, field.RelatedName("admin"))))
}
