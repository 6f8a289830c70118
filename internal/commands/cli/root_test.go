package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRegistersCommands(t *testing.T) {
	root, err := NewRootCommand()
	require.NoError(t, err)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"keys", "pinblock", "emv", "send", "serve"} {
		assert.Contains(t, names, want)
	}
}

func TestRootRunsSubcommandWithConfigFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: debug\n"), 0o600))

	root, err := NewRootCommand()
	require.NoError(t, err)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{
		"--config", cfgPath,
		"pinblock", "create", "--pin", "1234", "--pan", "4111111111111111",
	})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "041225EEEEEEEEEE")
}
