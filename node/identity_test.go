package node

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadIdentity(t *testing.T) {
	t.Run("ephemeral", func(t *testing.T) {
		key1, err := LoadIdentity("")
		require.NoError(t, err)
		key2, err := LoadIdentity("")
		require.NoError(t, err)

		assert.NotEqual(t, key1, key2)
	})

	t.Run("generate and reload", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "keys", "node.key")

		key1, err := LoadIdentity(path)
		require.NoError(t, err)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		key2, err := LoadIdentity(path)
		require.NoError(t, err)
		assert.Equal(t, key1, key2)
	})

	t.Run("invalid hex", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "node.key")
		require.NoError(t, os.WriteFile(path, []byte("not hex"), 0o600))

		_, err := LoadIdentity(path)
		assert.Error(t, err)
	})

	t.Run("invalid seed size", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "node.key")
		require.NoError(t, os.WriteFile(path, []byte("0102030405"), 0o600))

		_, err := LoadIdentity(path)
		assert.ErrorContains(t, err, "invalid seed size")
	})
}
