package migrations_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schemadelta/apps/groupapp/migrations"
	"github.com/satishbabariya/schemadelta/migrate/dsl"
)

// TestTextualFormMatches tests that testdata/groupapp.delta and the Go
// descriptors describe the same migrations.
func TestTextualFormMatches(t *testing.T) {
	parsed, err := dsl.LoadDir(afero.NewOsFs(), "testdata")
	require.NoError(t, err)

	expected := migrations.All()
	require.Len(t, parsed, len(expected))
	for i, m := range expected {
		assert.Equal(t, m.Key(), parsed[i].Key())
		assert.Equal(t, m.Initial, parsed[i].Initial)
		assert.Equal(t, m.Dependencies, parsed[i].Dependencies)
		assert.Equal(t, m.Describe(), parsed[i].Describe())
		assert.Equal(t, m.Checksum(), parsed[i].Checksum())
	}
}

func TestGroupMatchGroup2Accept(t *testing.T) {
	m := migrations.GroupMatchGroup2Accept
	require.NoError(t, m.Validate())
	assert.Equal(t, `AddField(groupmatch.group2Accept, BooleanField(default=false))
AlterField(interestgroup.description, TextField(max_length=500, default=""))
AlterField(interestgroup.groupAdmin, OneToOneField(to=setting AUTH_USER_MODEL, on_delete=DO_NOTHING, related_name="admin"))`, m.Describe())
}
