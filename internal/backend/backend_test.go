package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/config"
)

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(&config.Config{DataBackend: "postgres", DatabaseURL: "postgres://localhost/conti"})
	require.NoError(t, err)
	assert.Equal(t, PostgresBackend, cfg.Type)
	assert.Equal(t, "postgres://localhost/conti", cfg.DatabaseURL)

	_, err = FromAppConfig(&config.Config{DataBackend: "mysql"})
	assert.Error(t, err)

	_, err = FromAppConfig(nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"sqlite with path", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without url", Config{Type: PostgresBackend}, true},
		{"memory", Config{Type: MemoryBackend}, false},
		{"unknown", Config{Type: "redis"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	assert.Equal(t, []string{"sqlite", "postgres", "memory"}, GetBackendTypeStrings())
}

func TestFactory_CreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	for _, cfg := range []Config{
		{Type: MemoryBackend},
		{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "conti.db")},
	} {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			res, err := f.CreateBackend(ctx, cfg)
			require.NoError(t, err)
			require.NotNil(t, res.Backend)
			assert.NoError(t, res.Backend.Ping(ctx))

			users, err := res.Backend.ListUsersWithTemplates(ctx)
			require.NoError(t, err)
			assert.Empty(t, users)
			assert.NoError(t, res.Cleanup())
		})
	}

	_, err := f.CreateBackend(ctx, Config{Type: PostgresBackend})
	assert.Error(t, err)
}
