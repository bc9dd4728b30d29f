package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	return viper.New()
}

func TestLoad_AppliesDefaultsWhenNothingSet(t *testing.T) {
	t.Setenv(masterKeyEnvVar, validKey(t))

	cfg, err := Load(newTestViper(), "")
	require.NoError(t, err)

	assert.Equal(t, "unified_storage.sqlite", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.False(t, cfg.StartScheduler)
	assert.False(t, cfg.BatchMode)
}

func TestLoad_FlagsOverrideDefaults(t *testing.T) {
	t.Setenv(masterKeyEnvVar, validKey(t))

	v := newTestViper()
	v.Set("db-path", "/tmp/custom.sqlite")
	v.Set("log-level", "debug")

	cfg, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.sqlite", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_EnvOverridesDefaultsButNotFlags(t *testing.T) {
	t.Setenv(masterKeyEnvVar, validKey(t))
	t.Setenv("DOCETL_LOG_LEVEL", "warn")
	t.Setenv("DOCETL_LOG_FORMAT", "text")

	v := newTestViper()
	v.Set("log-format", "json")

	cfg, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_ReadsConfigFile(t *testing.T) {
	t.Setenv(masterKeyEnvVar, validKey(t))

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db-path: /from/file.sqlite\nbatch-mode: true\n"), 0o644))

	cfg, err := Load(newTestViper(), path)
	require.NoError(t, err)

	assert.Equal(t, "/from/file.sqlite", cfg.DBPath)
	assert.True(t, cfg.BatchMode)
}

func TestLoad_MissingExplicitConfigFileIsAnError(t *testing.T) {
	t.Setenv(masterKeyEnvVar, validKey(t))

	_, err := Load(newTestViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_GeneratesAndExportsMasterKeyWhenUnset(t *testing.T) {
	os.Unsetenv(masterKeyEnvVar)

	cfg, err := Load(newTestViper(), "")
	require.NoError(t, err)

	assert.Len(t, cfg.MasterKey, 32)
	assert.NotEmpty(t, os.Getenv(masterKeyEnvVar))
}

func TestLoad_RejectsMalformedMasterKey(t *testing.T) {
	t.Setenv(masterKeyEnvVar, "not-valid-base64-key")

	_, err := Load(newTestViper(), "")
	assert.Error(t, err)
}

func TestLoad_RejectsWrongLengthMasterKey(t *testing.T) {
	t.Setenv(masterKeyEnvVar, base64.StdEncoding.EncodeToString([]byte("too-short")))

	_, err := Load(newTestViper(), "")
	assert.Error(t, err)
}

func validKey(t *testing.T) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString(make([]byte, 32))
}
