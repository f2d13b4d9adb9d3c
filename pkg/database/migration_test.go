package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLatestVersion(t *testing.T) {
	t.Run("RepositoryMigrations", func(t *testing.T) {
		version, err := getLatestVersion(filepath.Join("..", "..", "db", "pg"))
		require.NoError(t, err)
		assert.Equal(t, 3, version)
	})

	t.Run("IgnoresDownFilesAndDirectories", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"000002_b.up.sql", "000010_c.down.sql", "000007_a.up.sql", "README.md"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
		}
		require.NoError(t, os.Mkdir(filepath.Join(dir, "000099_dir.up.sql"), 0o700))

		version, err := getLatestVersion(dir)
		require.NoError(t, err)
		assert.Equal(t, 7, version)
	})

	t.Run("EmptyFolder", func(t *testing.T) {
		_, err := getLatestVersion(t.TempDir())
		assert.Error(t, err)
	})

	t.Run("MissingFolder", func(t *testing.T) {
		_, err := getLatestVersion(filepath.Join(t.TempDir(), "missing"))
		assert.Error(t, err)
	})
}
