package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/subpass/internal/config"
	"github.com/mrz1836/subpass/internal/keystore"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

func TestKeyImport_Hex(t *testing.T) {
	home := testHome(t, nil)
	withMockPrompts(t, []byte(testPassword), true)
	withUnlockCache(t, false)

	res := runCLI(t, home, "key", "import", "-o", "json")
	require.NoError(t, res.Err, res.Stderr)

	v := decodeJSON(t, res.Stdout)
	assert.Equal(t, testAddress, v["address"])
	assert.Equal(t, keystore.SourceHex, v["source"])

	path := filepath.Join(home, "signer.key.age")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	kf, err := keystore.Load(path)
	require.NoError(t, err)
	key, err := kf.Unlock(testPassword)
	require.NoError(t, err)
	key.Destroy()
}

func TestKeyImport_Mnemonic(t *testing.T) {
	home := testHome(t, nil)
	withMockPrompts(t, []byte(testPassword), true)
	withUnlockCache(t, false)
	withSecret(t, testMnemonic)

	res := runCLI(t, home, "key", "import", "--index", "1", "-o", "json")
	require.NoError(t, res.Err, res.Stderr)

	v := decodeJSON(t, res.Stdout)
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", v["address"])
	assert.Equal(t, keystore.SourceMnemonic, v["source"])
	assert.Equal(t, "m/44'/60'/0'/0/1", v["derivation_path"])
}

func TestKeyImport_MnemonicTypo(t *testing.T) {
	home := testHome(t, nil)
	withMockPrompts(t, []byte(testPassword), true)
	withUnlockCache(t, false)
	withSecret(t, "test test test test test test test test test test test junkk")

	res := runCLI(t, home, "key", "import", "-o", "json")
	require.Error(t, res.Err)
	assert.True(t, suberr.Is(res.Err, suberr.ErrInvalidMnemonic))
	assert.Contains(t, res.Stderr, `did you mean \"junk\"?`)
}

func TestKeyImport_InvalidHex(t *testing.T) {
	home := testHome(t, nil)
	withMockPrompts(t, []byte(testPassword), true)
	withUnlockCache(t, false)
	withSecret(t, "0xnothex")

	res := runCLI(t, home, "key", "import")
	require.Error(t, res.Err)
	assert.True(t, suberr.Is(res.Err, suberr.ErrInvalidInput))
	assert.NoFileExists(t, filepath.Join(home, "signer.key.age"))
}

func TestKeyImport_ExistingKey(t *testing.T) {
	_, home := newEnv(t)
	withSecret(t, testMnemonic)

	res := runCLI(t, home, "key", "import")
	require.Error(t, res.Err)
	assert.True(t, suberr.Is(res.Err, suberr.ErrKeyExists))

	res = runCLI(t, home, "key", "import", "--force", "--index", "1", "-o", "json")
	require.NoError(t, res.Err, res.Stderr)
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", decodeJSON(t, res.Stdout)["address"])
}

func TestKeyImport_PasswordFromEnvironment(t *testing.T) {
	home := testHome(t, nil)
	withMockPrompts(t, nil, true)
	withUnlockCache(t, false)
	t.Setenv(config.EnvKeyPassword, "from the environment")

	res := runCLI(t, home, "key", "import")
	require.NoError(t, res.Err, res.Stderr)
	assert.Contains(t, res.Stdout, "Imported key for "+testAddress)

	kf, err := keystore.Load(filepath.Join(home, "signer.key.age"))
	require.NoError(t, err)
	key, err := kf.Unlock("from the environment")
	require.NoError(t, err)
	key.Destroy()
}

func TestKeyAddress(t *testing.T) {
	_, home := newEnv(t)

	res := runCLI(t, home, "key", "address", "-o", "json")
	require.NoError(t, res.Err, res.Stderr)

	v := decodeJSON(t, res.Stdout)
	assert.Equal(t, testAddress, v["address"])
	assert.Equal(t, "ethereum:"+testAddress+"@31337", v["payment_uri"])

	res = runCLI(t, home, "key", "address", "-o", "text")
	require.NoError(t, res.Err)
	assert.Equal(t, testAddress+"\n", res.Stdout)
}

func TestKeyAddress_QR(t *testing.T) {
	_, home := newEnv(t)

	res := runCLI(t, home, "key", "address", "--qr", "-o", "text")
	require.NoError(t, res.Err, res.Stderr)
	// QR codes are only drawn on a terminal
	assert.Equal(t, testAddress+"\n\n", res.Stdout)
}

func TestKeyAddress_NoKey(t *testing.T) {
	home := testHome(t, nil)

	res := runCLI(t, home, "key", "address")
	require.Error(t, res.Err)
	assert.True(t, suberr.Is(res.Err, suberr.ErrKeyNotFound))
	assert.Equal(t, suberr.ExitNotFound, ExitCode(res.Err))
}

func TestKeyUnlockLock(t *testing.T) {
	_, home := newEnv(t)

	res := runCLI(t, home, "key", "unlock", "--ttl", "5m")
	require.NoError(t, res.Err, res.Stderr)
	assert.Contains(t, res.Stdout, "Unlocked "+testAddress)

	unlockFiles, err := filepath.Glob(filepath.Join(home, "unlock", "*"))
	require.NoError(t, err)
	assert.NotEmpty(t, unlockFiles)

	res = runCLI(t, home, "key", "lock", "-o", "json")
	require.NoError(t, res.Err, res.Stderr)
	v := decodeJSON(t, res.Stdout)
	assert.Equal(t, true, v["locked"])

	unlockFiles, err = filepath.Glob(filepath.Join(home, "unlock", "*"))
	require.NoError(t, err)
	assert.Empty(t, unlockFiles)
}

func TestKeyUnlock_WrongPassword(t *testing.T) {
	node := newFakeChain(t)
	home := testHome(t, node)
	importTestKey(t, home)
	withMockPrompts(t, []byte("wrong"), true)
	withUnlockCache(t, false)

	res := runCLI(t, home, "key", "unlock")
	require.Error(t, res.Err)
	assert.True(t, suberr.Is(res.Err, suberr.ErrDecryptionFailed))
}

func TestKeyUnlock_KeychainUnavailable(t *testing.T) {
	node := newFakeChain(t)
	home := testHome(t, node)
	importTestKey(t, home)
	withMockPrompts(t, []byte(testPassword), true)
	withUnlockCache(t, true)

	res := runCLI(t, home, "key", "unlock")
	require.Error(t, res.Err)
	assert.True(t, suberr.Is(res.Err, suberr.ErrAuthentication))

	// Locking without a keychain is a no-op
	res = runCLI(t, home, "key", "lock")
	require.NoError(t, res.Err)
}

func TestParseKeyMaterial(t *testing.T) {
	withMockPrompts(t, []byte("extra"), true)

	key, source, path, err := parseKeyMaterial("0x" + testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, keystore.SourceHex, source)
	assert.Empty(t, path)
	key.Destroy()

	key, source, path, err = parseKeyMaterial("1. test\n2. test " + testMnemonic[10:])
	require.NoError(t, err)
	assert.Equal(t, keystore.SourceMnemonic, source)
	assert.Equal(t, "m/44'/60'/0'/0/0", path)
	addr, err := keystore.AddressOf(key)
	require.NoError(t, err)
	assert.Equal(t, testAddress, addr.Hex())
	key.Destroy()

	importPassphrase = true
	t.Cleanup(resetFlags)
	key, _, _, err = parseKeyMaterial(testMnemonic)
	require.NoError(t, err)
	addr, err = keystore.AddressOf(key)
	require.NoError(t, err)
	assert.NotEqual(t, testAddress, addr.Hex(), "passphrase changes the derived account")
	key.Destroy()
}
