package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseKind tests short and descriptor kind names.
func TestParseKind(t *testing.T) {
	tests := []struct {
		in       string
		expected Kind
	}{
		{"boolean", Boolean},
		{"BooleanField", Boolean},
		{"one_to_one", OneToOne},
		{"OneToOneField", OneToOne},
		{"foreignkey", ForeignKey},
		{"text", Text},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			k, err := ParseKind(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, k)
		})
	}

	_, err := ParseKind("JSONField")
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestOnDeleteSQLAction(t *testing.T) {
	assert.Equal(t, "CASCADE", Cascade.SQLAction())
	assert.Equal(t, "RESTRICT", Protect.SQLAction())
	assert.Equal(t, "SET NULL", SetNull.SQLAction())
	assert.Equal(t, "NO ACTION", DoNothing.SQLAction())

	p, err := ParseOnDelete("do_nothing")
	require.NoError(t, err)
	assert.Equal(t, DoNothing, p)

	_, err = ParseOnDelete("IGNORE")
	assert.ErrorIs(t, err, ErrInvalidField)
}

// TestRefResolve tests swappable and app-relative references.
func TestRefResolve(t *testing.T) {
	settings := Settings{AuthUserModel: "accounts.Member"}

	r, err := ToSetting(AuthUserModel).Resolve(settings, "groupApp")
	require.NoError(t, err)
	assert.Equal(t, Ref{App: "accounts", Model: "Member"}, r)

	r, err = To("", "InterestGroup").Resolve(settings, "groupApp")
	require.NoError(t, err)
	assert.Equal(t, Ref{App: "groupApp", Model: "InterestGroup"}, r)

	_, err = ToSetting("MISSING").Resolve(settings, "groupApp")
	assert.ErrorIs(t, err, ErrInvalidField)

	_, err = ToSetting(AuthUserModel).Resolve(Settings{AuthUserModel: "User"}, "")
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestParseRef(t *testing.T) {
	r, err := ParseRef("auth.User")
	require.NoError(t, err)
	assert.Equal(t, To("auth", "User"), r)

	r, err = ParseRef("GroupMatch")
	require.NoError(t, err)
	assert.Equal(t, To("", "GroupMatch"), r)

	for _, bad := range []string{"", "a.b.c", ".User", "auth."} {
		_, err := ParseRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestColumn(t *testing.T) {
	assert.Equal(t, "group2Accept", BooleanField().Column("group2Accept"))
	assert.Equal(t, "groupAdmin_id", OneToOneField(ToSetting(AuthUserModel), DoNothing).Column("groupAdmin"))
	assert.Equal(t, "admin", OneToOneField(ToSetting(AuthUserModel), DoNothing, DBColumn("admin")).Column("groupAdmin"))
}

// TestValidate tests descriptor consistency checks.
func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		ok    bool
	}{
		{"boolean default", BooleanField(Default(false)), true},
		{"text with max length", TextField(Default(""), MaxLength(500)), true},
		{"char without length", New(Char), false},
		{"string default on boolean", BooleanField(Default("no")), false},
		{"default too long", CharField(3, Default("four")), false},
		{"null default on non-null", TextField(Default(nil)), false},
		{"null default on nullable", TextField(Nullable(), Default(nil)), true},
		{"relation without target", New(ForeignKey, func(f *Field) { f.OnDelete = Cascade }), false},
		{"relation without policy", New(ForeignKey, func(f *Field) { f.To = To("auth", "User") }), false},
		{"set null requires null", ForeignKeyField(To("auth", "User"), SetNull), false},
		{"set null nullable", ForeignKeyField(To("auth", "User"), SetNull, Nullable()), true},
		{"set default requires default", ForeignKeyField(To("auth", "User"), SetDefault), false},
		{"float default", New(Integer, Default(1.5)), false},
		{"one to one", OneToOneField(ToSetting(AuthUserModel), DoNothing, RelatedName("admin")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.field.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidField)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "BooleanField(default=false)", BooleanField(Default(false)).Describe())
	assert.Equal(t, `TextField(max_length=500, default="")`, TextField(Default(""), MaxLength(500)).Describe())
	assert.Equal(t,
		`OneToOneField(to=setting AUTH_USER_MODEL, on_delete=DO_NOTHING, related_name="admin")`,
		OneToOneField(ToSetting(AuthUserModel), DoNothing, RelatedName("admin")).Describe())
	assert.Equal(t, "AutoField()", AutoField().Describe())

	// Option order does not matter.
	assert.True(t, TextField(MaxLength(500), Default("")).Equal(TextField(Default(""), MaxLength(500))))
	assert.False(t, TextField(Default("")).Equal(TextField(Default(""), MaxLength(500))))
}

func TestOneToOneIsUnique(t *testing.T) {
	f := OneToOneField(To("auth", "User"), Cascade)
	assert.True(t, f.Unique)
	assert.True(t, f.IsRelation())
	assert.True(t, AutoField().PrimaryKey)
}
