package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrei-cloud/go_atalla/internal/config"
	"github.com/andrei-cloud/go_atalla/internal/hsm"
)

const (
	testMasterKey = "8CA64DE9C1B123A7B37A8B2C4D5E6F70"
	testAKB       = "1PDNE000,9180E21FCFF993766B7C92EBB4D123F09B8F9BB0ABB83B85,F47D2D6D454DAF12"
)

func writeConfig(t *testing.T, path, masterKey, directory string) {
	t.Helper()

	body := fmt.Sprintf("hsm:\n  master_key: %s\n  key_store: file\n  key_directory: %s\n", masterKey, directory)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestReloadRotatesKeys(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	keysPath := filepath.Join(dir, "keys.yaml")
	writeConfig(t, cfgPath, testMasterKey, keysPath)

	require.NoError(t, config.Initialize(cfgPath))
	ctx := context.Background()

	h, err := loadHSM(ctx, config.Get())
	require.NoError(t, err)
	assert.Empty(t, h.Snapshot().Keys)

	require.NoError(t, hsm.NewFileStore(keysPath).Put(ctx, "kpe", testAKB))
	require.NoError(t, reload(ctx, h))
	assert.Contains(t, h.Snapshot().Keys, "kpe")

	// The stored block does not verify under a different master key.
	writeConfig(t, cfgPath, "0123456789ABCDEFFEDCBA9876543210", keysPath)
	require.Error(t, reload(ctx, h))
	assert.Contains(t, h.Snapshot().Keys, "kpe")

	writeConfig(t, cfgPath, "XYZ", keysPath)
	require.Error(t, reload(ctx, h))
	assert.Equal(t, testMasterKey, fmt.Sprintf("%X", h.Snapshot().MasterKey))
}

func TestLoadHSMBadDirectory(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	keysPath := filepath.Join(dir, "keys.yaml")
	writeConfig(t, cfgPath, testMasterKey, keysPath)
	require.NoError(t, os.WriteFile(keysPath, []byte("keys: [oops"), 0o600))

	require.NoError(t, config.Initialize(cfgPath))
	_, err := loadHSM(context.Background(), config.Get())
	require.Error(t, err)
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewServeCommand()
	for _, name := range []string{"host", "port", "framing"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}
