package update

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewestRecorded(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		recorded []string
		expected string
	}{
		{"nothing recorded", "0.1.0", nil, ""},
		{"all older", "0.2.0", []string{"0.1.0", "0.2.0"}, ""},
		{"newer", "0.1.0", []string{"0.1.0", "0.3.0", "0.2.1"}, "0.3.0"},
		{"ignores junk", "0.1.0", []string{"", "dev", "v0.1.5"}, "0.1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewestRecorded(tt.current, tt.recorded)
			require.NoError(t, err)
			if tt.expected == "" {
				assert.Nil(t, v)
				return
			}
			require.NotNil(t, v)
			assert.Equal(t, tt.expected, v.String())
		})
	}

	_, err := NewestRecorded("dev", nil)
	assert.Error(t, err)
}

func TestInstallHint(t *testing.T) {
	v, err := NewestRecorded("0.1.0", []string{"0.4.2"})
	require.NoError(t, err)
	assert.Equal(t, "go install github.com/satishbabariya/schemadelta/cli@v0.4.2", InstallHint(v))
}
