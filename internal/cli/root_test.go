package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/subpass/internal/config"
	"github.com/mrz1836/subpass/internal/output"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// errTestRandom is used for testing non-subpass error handling.
var errTestRandom = suberr.New("TEST_ERROR", "some random error")

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		name string
		info BuildInfo
		want string
	}{
		{
			name: "all fields populated",
			info: BuildInfo{Version: "v1.2.3", Commit: "abc1234", Date: "2024-01-15"},
			want: "v1.2.3 (commit: abc1234, built: 2024-01-15)",
		},
		{
			name: "all fields empty",
			info: BuildInfo{},
			want: "dev (commit: unknown, built: unknown)",
		},
		{
			name: "only version empty",
			info: BuildInfo{Commit: "def5678", Date: "2024-02-20"},
			want: "dev (commit: def5678, built: 2024-02-20)",
		},
		{
			name: "commit and date empty",
			info: BuildInfo{Version: "v4.0.0"},
			want: "v4.0.0 (commit: unknown, built: unknown)",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, formatVersion(tc.info))
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil error returns success", nil, suberr.ExitSuccess},
		{"general error", suberr.ErrGeneral, suberr.ExitGeneral},
		{"invalid input error", suberr.ErrInvalidInput, suberr.ExitInput},
		{"invalid config", suberr.ErrConfigInvalid, suberr.ExitInput},
		{"authentication error", suberr.ErrAuthentication, suberr.ExitAuth},
		{"decryption failed error", suberr.ErrDecryptionFailed, suberr.ExitAuth},
		{"connection error", suberr.ErrConnection, suberr.ExitAuth},
		{"key not found", suberr.ErrKeyNotFound, suberr.ExitNotFound},
		{"insufficient balance", suberr.ErrInsufficientBalance, suberr.ExitPermission},
		{"signature rejected", suberr.ErrSignatureRejected, suberr.ExitRejected},
		{"interrupted write", suberr.WithCause(suberr.ErrInterrupted, context.Canceled), suberr.ExitInterrupted},
		{"invalid mnemonic error", suberr.ErrInvalidMnemonic, suberr.ExitInput},
		{"non-subpass error returns general", errTestRandom, suberr.ExitGeneral},
		{
			"wrapped subpass error preserves exit code",
			suberr.WithDetails(suberr.ErrKeyNotFound, map[string]string{"path": "/tmp/x"}),
			suberr.ExitNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}

// saveGlobals saves all package-level globals and restores them on cleanup.
// NOT parallel: tests using it mutate package state.
func saveGlobals(t *testing.T) {
	t.Helper()
	origCfg, origLogger, origFormatter := cfg, logger, formatter
	origHomeDir, origOutputFormat, origVerbose := homeDir, outputFormat, verbose
	t.Cleanup(func() {
		cfg, logger, formatter = origCfg, origLogger, origFormatter
		homeDir, outputFormat, verbose = origHomeDir, origOutputFormat, origVerbose
	})
}

func TestInitGlobals_DefaultConfig(t *testing.T) {
	saveGlobals(t)
	tmpDir := t.TempDir()
	homeDir, outputFormat, verbose = tmpDir, "", false

	require.NoError(t, initGlobals(&bytes.Buffer{}))

	require.NotNil(t, cfg)
	require.NotNil(t, logger)
	require.NotNil(t, formatter)
	assert.Equal(t, tmpDir, cfg.Home)
	assert.Equal(t, config.DefaultRPCURL, cfg.Network.RPC)

	// Home-relative defaults follow the home directory
	assert.Equal(t, filepath.Join(tmpDir, "signer.key.age"), cfg.KeyFilePath())
	assert.Equal(t, filepath.Join(tmpDir, "subpass.log"), cfg.Logging.File)
	assert.Equal(t, filepath.Join(tmpDir, "unlock"), cfg.UnlockDir())
}

func TestInitGlobals_AutoFormatOffTerminal(t *testing.T) {
	saveGlobals(t)
	homeDir, outputFormat, verbose = t.TempDir(), "auto", false

	require.NoError(t, initGlobals(&bytes.Buffer{}))
	assert.Equal(t, output.FormatJSON, formatter.Format())
}

func TestInitGlobals_VerboseFlag(t *testing.T) {
	saveGlobals(t)
	homeDir, outputFormat, verbose = t.TempDir(), "", true

	require.NoError(t, initGlobals(&bytes.Buffer{}))
	assert.True(t, cfg.Output.Verbose)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestInitGlobals_Precedence(t *testing.T) {
	saveGlobals(t)
	tmpDir := t.TempDir()

	fileCfg := config.Defaults()
	fileCfg.Output.DefaultFormat = "json"
	fileCfg.Logging.Level = "off"
	fileCfg.Network.RPC = "https://file.example.com"
	require.NoError(t, config.Save(fileCfg, config.Path(tmpDir)))

	// File only
	homeDir, outputFormat, verbose = tmpDir, "", false
	require.NoError(t, initGlobals(&bytes.Buffer{}))
	assert.Equal(t, "https://file.example.com", cfg.Network.RPC)
	assert.Equal(t, output.FormatJSON, formatter.Format())

	// Environment beats the file
	t.Setenv(config.EnvRPC, "https://env.example.com")
	t.Setenv(config.EnvOutputFormat, "text")
	require.NoError(t, initGlobals(&bytes.Buffer{}))
	assert.Equal(t, "https://env.example.com", cfg.Network.RPC)
	assert.Equal(t, output.FormatText, formatter.Format())

	// Flags beat the environment
	outputFormat = "json"
	require.NoError(t, initGlobals(&bytes.Buffer{}))
	assert.Equal(t, output.FormatJSON, formatter.Format())
}

func TestInitGlobals_EnvHome(t *testing.T) {
	saveGlobals(t)
	tmpDir := t.TempDir()
	homeDir, outputFormat, verbose = "", "", false
	t.Setenv(config.EnvHome, tmpDir)

	require.NoError(t, initGlobals(&bytes.Buffer{}))
	assert.Equal(t, tmpDir, cfg.Home)
}

func TestInitGlobals_CorruptConfig(t *testing.T) {
	saveGlobals(t)
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(tmpDir), []byte("network: [unclosed"), 0o600))
	homeDir, outputFormat, verbose = tmpDir, "", false

	require.Error(t, initGlobals(&bytes.Buffer{}))
}

func TestCleanup_NilLogger(t *testing.T) {
	saveGlobals(t)
	logger = nil
	assert.NotPanics(t, func() { cleanup() })
}

func TestCleanup_LoggerCloseError(t *testing.T) {
	saveGlobals(t)

	testLogger, err := config.NewLogger(config.ParseLogLevel("debug"), filepath.Join(t.TempDir(), "test.log"))
	require.NoError(t, err)
	require.NoError(t, testLogger.Close())

	logger = testLogger
	assert.NotPanics(t, func() { cleanup() })
}

func TestExecute_Version(t *testing.T) {
	orig := buildInfo
	t.Cleanup(func() { SetBuildInfo(orig) })
	SetBuildInfo(BuildInfo{Version: "v1.0.0-test", Commit: "abc", Date: "2026-01-01"})

	res := runCLI(t, t.TempDir(), "version", "-o", "json")
	require.NoError(t, res.Err)

	v := decodeJSON(t, res.Stdout)
	assert.Equal(t, "v1.0.0-test", v["version"])
	assert.Equal(t, "abc", v["commit"])
	assert.NotEmpty(t, v["go_version"])

	res = runCLI(t, t.TempDir(), "version", "-o", "text")
	require.NoError(t, res.Err)
	assert.Equal(t, "subpass v1.0.0-test (commit: abc, built: 2026-01-01)\n", res.Stdout)
}

func TestExecute_UnknownCommand(t *testing.T) {
	res := runCLI(t, t.TempDir(), "renew")
	require.Error(t, res.Err)
	assert.NotEmpty(t, res.Stderr)
}

func TestExecute_ErrorFormatting(t *testing.T) {
	home := testHome(t, nil)

	res := runCLI(t, home, "key", "address", "-o", "text")
	require.Error(t, res.Err)
	assert.Contains(t, res.Stderr, "subpass key import")
	assert.Empty(t, res.Stdout)
}

func TestExecute_DebugLogHint(t *testing.T) {
	home := testHome(t, nil)

	res := runCLI(t, home, "key", "address", "-o", "text", "-v")
	require.Error(t, res.Err)
	assert.Contains(t, res.Stderr, "Debug log: "+filepath.Join(home, "subpass.log"))

	res = runCLI(t, home, "key", "address", "-o", "text")
	require.Error(t, res.Err)
	assert.NotContains(t, res.Stderr, "Debug log:")
}
