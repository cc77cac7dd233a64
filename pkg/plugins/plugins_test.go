package plugins

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildkeeper/pkg/logger"
	"guildkeeper/pkg/plugin"
	"guildkeeper/pkg/plugin/plugintest"
)

func TestBundledManifestsParse(t *testing.T) {
	names := Builtin()
	assert.ElementsMatch(t, []string{"admin", "greetings", "tags", "utility", "welcome"}, names)

	for _, name := range names {
		data, err := builtinFS.ReadFile("builtin/" + name + "/" + plugin.ManifestFile)
		require.NoError(t, err, name)
		m, err := plugin.ParseManifest(data)
		require.NoError(t, err, name)
		assert.Equal(t, name, m.Name)
		assert.NotEmpty(t, m.Version, name)
	}
}

func TestSeedKeepsExistingFolders(t *testing.T) {
	dir := t.TempDir()
	custom := filepath.Join(dir, "admin", plugin.ManifestFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(custom), 0755))
	require.NoError(t, os.WriteFile(custom, []byte("version: 9.9.9\n"), 0644))

	written, err := Seed(logger.NewNop(), dir, false)
	require.NoError(t, err)
	assert.NotContains(t, written, "admin")
	assert.Len(t, written, len(Builtin())-1)

	data, err := os.ReadFile(custom)
	require.NoError(t, err)
	assert.Equal(t, "version: 9.9.9\n", string(data))

	written, err = Seed(logger.NewNop(), dir, true)
	require.NoError(t, err)
	assert.Len(t, written, len(Builtin()))
}

func TestSeededDirectoryLoads(t *testing.T) {
	h := plugintest.New(t)
	require.NoError(t, Register(h.Catalog))
	_, err := Seed(logger.NewNop(), h.Config.Plugins.Dir, false)
	require.NoError(t, err)

	assert.Equal(t, len(Builtin()), h.Loader.LoadAll(context.Background()))

	for _, name := range []string{"ping", "help", "prefix", "welcome", "autorole", "tag", "tags", "hello", "rules"} {
		_, ok := h.Registry.Lookup(name)
		assert.True(t, ok, name)
	}

	info, ok := h.Loader.Get("greetings")
	require.True(t, ok)
	assert.Equal(t, "Canned replies defined without Go code", info.Description)
}

func TestRegisterTwiceFails(t *testing.T) {
	c := plugin.NewCatalog()
	require.NoError(t, Register(c))
	assert.Error(t, Register(c))
}
