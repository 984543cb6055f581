package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeProfile(t, `
endpoint: wss://example.com/connect
schema: analytics
host: https://example.com/
`)

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultConnectTimeout, p.ConnectTimeout)
	assert.Equal(t, DefaultCloseTimeout, p.CloseTimeout)
	assert.Equal(t, time.Duration(0), p.QueryTimeout)
	assert.Equal(t, "https://example.com", p.Host, "trailing slash trimmed")
	assert.NotNil(t, p.ServerSideParameters)
}

func TestLoadStringifiesServerSideParameters(t *testing.T) {
	path := writeProfile(t, `
endpoint: wss://example.com/connect
schema: analytics
server_side_parameters:
  spark.configuration: 10
  spark.dynamic: true
`)

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10", p.ServerSideParameters["spark.configuration"])
	assert.Equal(t, "true", p.ServerSideParameters["spark.dynamic"])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		wantErr string
	}{
		{
			name:    "missing endpoint",
			profile: Profile{Schema: "analytics"},
			wantErr: "endpoint",
		},
		{
			name:    "missing schema",
			profile: Profile{Endpoint: "wss://example.com"},
			wantErr: "schema",
		},
		{
			name:    "database mismatch",
			profile: Profile{Endpoint: "wss://example.com", Schema: "analytics", Database: "other"},
			wantErr: "database must be omitted or equal to schema",
		},
		{
			name:    "negative retries",
			profile: Profile{Endpoint: "wss://example.com", Schema: "analytics", ConnectRetries: -1},
			wantErr: "connect_retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("database equal to schema is cleared", func(t *testing.T) {
		p := Profile{Endpoint: "wss://example.com", Schema: "analytics", Database: "analytics"}
		require.NoError(t, p.Validate())
		assert.Empty(t, p.Database)
	})
}

func TestLoadRejectsInvalidProfile(t *testing.T) {
	path := writeProfile(t, `
endpoint: wss://example.com/connect
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}
