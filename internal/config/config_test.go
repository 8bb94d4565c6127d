package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	clearEnv(t, "VALIDATOR_ID", "STORE_BACKEND", "NUM_PRESHARDS", "CONFIG_FILE")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.StoreBackend)
	require.Equal(t, 64, cfg.NumPreshards)
	require.Equal(t, "0.0.0.0:18000", cfg.ListenAddr)
}

func TestValidateRejectsMissingValidatorID(t *testing.T) {
	clearEnv(t, "VALIDATOR_ID")
	cfg, err := Load()
	require.NoError(t, err)
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPowerOfTwoPreshards(t *testing.T) {
	t.Setenv("VALIDATOR_ID", "v1")
	t.Setenv("NUM_PRESHARDS", "100")
	cfg, err := Load()
	require.NoError(t, err)
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownStoreBackend(t *testing.T) {
	t.Setenv("VALIDATOR_ID", "v1")
	t.Setenv("STORE_BACKEND", "postgres")
	cfg, err := Load()
	require.NoError(t, err)
	require.Error(t, cfg.Validate())
}

func TestLoadAppliesYamlOverlayWithEnvSubstitution(t *testing.T) {
	t.Setenv("VALIDATOR_ID", "v1")
	t.Setenv("CUSTOM_STORE_DIR", "/var/lib/dan")

	path := filepath.Join(t.TempDir(), "dan.yaml")
	contents := "store_backend: goleveldb\nstore_dir: ${CUSTOM_STORE_DIR}\nnum_preshards: 16\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "goleveldb", cfg.StoreBackend)
	require.Equal(t, "/var/lib/dan", cfg.StoreDir)
	require.Equal(t, 16, cfg.NumPreshards)
}

func TestLoadYamlOverlayMissingFileErrors(t *testing.T) {
	t.Setenv("VALIDATOR_ID", "v1")
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	_, err := Load()
	require.Error(t, err)
}
