// -- cmd/root_test.go --
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The command tree binds the global viper instance, so these tests run
// serially and reset the shared state before each execution.
func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	viper.Reset()
	loaded = nil
	cfgFile = ""

	rootCmd := NewRootCommand()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "operant version")
}

func TestVersionFlag(t *testing.T) {
	out, _, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "operant version")
}

func TestRootWithoutArgsShowsHelp(t *testing.T) {
	out, _, err := executeCommand(t)
	require.NoError(t, err)
	assert.Contains(t, out, "computer-use")
	assert.Contains(t, out, "run")
	assert.Contains(t, out, "serve")
}

func TestInvalidEngineFlagFailsValidation(t *testing.T) {
	_, _, err := executeCommand(t, "--search-engine", "altavista", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine")
}

func TestFlagOverridesReachConfig(t *testing.T) {
	_, _, err := executeCommand(t,
		"--headless",
		"--search-engine", "bing",
		"--search-result-count", "5",
		"--log-level", "DEBUG",
		"version",
	)
	require.NoError(t, err)

	cfg := loadedConfig()
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "bing", cfg.Search.Engine)
	assert.Equal(t, 5, cfg.Search.ResultCount)
	assert.Equal(t, "DEBUG", cfg.Logger.Level)
}

func TestConfigFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operant.yaml")
	require.NoError(t, os.WriteFile(path, []byte("browser:\n  headless: true\nsearch:\n  engine: duckduckgo\n"), 0o644))

	_, _, err := executeCommand(t, "--config", path, "version")
	require.NoError(t, err)

	cfg := loadedConfig()
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "duckduckgo", cfg.Search.Engine)
}

func TestChangedFlagBeatsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operant.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  engine: duckduckgo\n"), 0o644))

	_, _, err := executeCommand(t, "--config", path, "--search-engine", "yahoo", "version")
	require.NoError(t, err)
	assert.Equal(t, "yahoo", loadedConfig().Search.Engine)
}

func TestSearchCommandRequiresQuery(t *testing.T) {
	_, _, err := executeCommand(t, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}
