package settings_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectrean/servicekit/core/settings"
	"github.com/sectrean/servicekit/internal/testutils"
)

func Test_Parse(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, err := settings.Parse(map[string]string{})
		require.NoError(t, err)

		assert.Equal(t, 16, s.PasswordLog2Count)
		assert.Equal(t, []string{"en"}, s.SupportedLanguages)
		assert.Equal(t, slog.LevelInfo, s.LogLevel)
		assert.False(t, s.MaintenanceMode)
	})

	t.Run("overrides", func(t *testing.T) {
		s, err := settings.Parse(map[string]string{
			"CONFIG_ACTIVE_DIRECTORY": "/tmp/active",
			"SUPPORTED_LANGUAGES":     "en,de,fr",
			"MAINTENANCE_MODE":        "true",
			"LOG_LEVEL":               "DEBUG",
		})
		require.NoError(t, err)

		assert.Equal(t, "/tmp/active", s.ConfigActiveDirectory)
		assert.Equal(t, []string{"en", "de", "fr"}, s.SupportedLanguages)
		assert.True(t, s.MaintenanceMode)
		assert.Equal(t, slog.LevelDebug, s.LogLevel)
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := settings.Parse(map[string]string{"PASSWORD_LOG2_COUNT": "many"})
		testutils.LogError(t, err)

		assert.Error(t, err)
	})
}

func Test_Load(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("DATABASE_SLAVE_DSN=replica.db\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("DATABASE_SLAVE_DSN") })

	s, err := settings.Load(file, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "replica.db", s.DatabaseSlaveDSN)
}

func Test_Settings_ConfigDirectory(t *testing.T) {
	s := &settings.Settings{
		ConfigActiveDirectory:  "active",
		ConfigStagingDirectory: "staging",
	}

	dir, err := s.ConfigDirectory(settings.ConfigActive)
	require.NoError(t, err)
	assert.Equal(t, "active", dir)

	dir, err = s.ConfigDirectory(settings.ConfigStaging)
	require.NoError(t, err)
	assert.Equal(t, "staging", dir)

	_, err = s.ConfigDirectory("sync")
	assert.ErrorIs(t, err, settings.ErrUnknownDirectory)

	params := s.Parameters()
	assert.Equal(t, "active", params["config.directory.active"])
}
