package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langgraphsystem/rssnews/configs"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"run", "search", "ask", "serve", "migrate", "feeds", "config", "status"}
	got := map[string]bool{}
	for _, c := range root.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, got[name], "missing subcommand %s", name)
	}
}

func TestRunCommandHasModeFlag(t *testing.T) {
	root := NewRootCmd()
	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	assert.NotNil(t, run.Flags().Lookup("mode"))
}

func TestAskCommandHasDepthFlag(t *testing.T) {
	root := NewRootCmd()
	askCmd, _, err := root.Find([]string{"ask"})
	require.NoError(t, err)
	assert.NotNil(t, askCmd.Flags().Lookup("depth"))
}

func TestSearchCommandFlags(t *testing.T) {
	root := NewRootCmd()
	searchCmd, _, err := root.Find([]string{"search"})
	require.NoError(t, err)
	for _, f := range []string{"hours", "k", "lang", "sources"} {
		assert.NotNil(t, searchCmd.Flags().Lookup(f), f)
	}
}

func TestConfigInitWritesExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	root := NewRootCmd()
	root.SetArgs([]string{"config", "init", path})
	require.NoError(t, root.Execute())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, configs.ExampleConfig, data)
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0o644))

	root := NewRootCmd()
	root.SetArgs([]string{"config", "init", path})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}
