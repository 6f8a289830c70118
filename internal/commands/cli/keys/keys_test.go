package keys

import (
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrei-cloud/go_atalla/pkg/akb"
	"github.com/andrei-cloud/go_atalla/pkg/cryptoutils"
)

const (
	testMasterKey = "8CA64DE9C1B123A7B37A8B2C4D5E6F70"
	clearKey      = "0123456789ABCDEFFEDCBA9876543210"

	// clearKey wrapped under testMasterKey with the default header.
	akbClear    = "1PDNE000,9180E21FCFF993766B7C92EBB4D123F09B8F9BB0ABB83B85,F47D2D6D454DAF12"
	akbTampered = "1PDNE000,9180E21FCFF993766B7C92EBB4D123F09B8F9BB0ABB83B85,F47D2D6D454DAF13"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewKeysCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func TestEncode(t *testing.T) {
	t.Parallel()

	out, err := run(t, "encode", "--mk", testMasterKey, "--key", clearKey)
	require.NoError(t, err)
	assert.Contains(t, out, "AKB: "+akbClear)
	assert.Contains(t, out, "Check Digits: 08D7")
}

func TestEncodeParity(t *testing.T) {
	t.Parallel()

	_, err := run(t, "encode", "--mk", testMasterKey, "--key", "00000000000000000000000000000000")
	require.ErrorContains(t, err, "parity")

	out, err := run(t, "encode", "--mk", testMasterKey, "--key", "00000000000000000000000000000000", "--force-parity")
	require.NoError(t, err)
	assert.Contains(t, out, "AKB: 1PDNE000,")
}

func TestEncodeBadInput(t *testing.T) {
	t.Parallel()

	_, err := run(t, "encode", "--mk", testMasterKey, "--key", "0123")
	require.Error(t, err)

	_, err = run(t, "encode", "--mk", "XYZ", "--key", clearKey)
	require.Error(t, err)

	_, err = run(t, "encode", "--mk", testMasterKey, "--key", clearKey, "--header", "1P,NE000")
	require.ErrorIs(t, err, akb.ErrInvalidHeader)
}

func TestCheck(t *testing.T) {
	t.Parallel()

	out, err := run(t, "check", "--mk", testMasterKey, "--akb", akbClear)
	require.NoError(t, err)
	assert.Contains(t, out, "MAC: valid")
	assert.Contains(t, out, "Key Length: 16 bytes")
	assert.Contains(t, out, "Check Digits: 08D7")
	assert.Contains(t, out, "Parity Valid: true")
	assert.Contains(t, out, "PIN encryption key")

	_, err = run(t, "check", "--mk", testMasterKey, "--akb", akbTampered)
	require.ErrorIs(t, err, akb.ErrMACMismatch)
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	out, err := run(t, "generate", "--mk", testMasterKey, "--header", "1VDNE000", "--length", "24", "--clear")
	require.NoError(t, err)

	m := regexp.MustCompile(`AKB: (\S+)`).FindStringSubmatch(out)
	require.Len(t, m, 2)
	kb, err := akb.Parse(m[1])
	require.NoError(t, err)
	assert.Equal(t, "1VDNE000", kb.Header)

	mk, err := hex.DecodeString(testMasterKey)
	require.NoError(t, err)
	key, err := akb.Decode(kb, mk)
	require.NoError(t, err)
	assert.Len(t, key, 24)
	assert.True(t, cryptoutils.CheckKeyParity(key))
	assert.Contains(t, out, "Clear Key: ")

	_, err = run(t, "generate", "--mk", testMasterKey, "--length", "12")
	require.Error(t, err)
}

func TestAddAndList(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "keys.yaml")

	out, err := run(t, "add", "--mk", testMasterKey, "--directory", dir, "--name", "kpe", "--akb", akbClear)
	require.NoError(t, err)
	assert.Contains(t, out, "Stored kpe (1PDNE000)")

	_, err = run(t, "add", "--mk", testMasterKey, "--directory", dir, "--name", "bad", "--akb", akbTampered)
	require.Error(t, err)

	raw, err := os.ReadFile(dir)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "bad")

	out, err = run(t, "list", "--mk", testMasterKey, "--directory", dir)
	require.NoError(t, err)
	assert.Regexp(t, `kpe\s+1PDNE000\s+08D7`, out)
}

func TestListWrongMasterKey(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "keys.yaml")
	_, err := run(t, "add", "--mk", testMasterKey, "--directory", dir, "--name", "kpe", "--akb", akbClear)
	require.NoError(t, err)

	_, err = run(t, "list", "--mk", clearKey, "--directory", dir)
	require.Error(t, err)
}
