package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns Defaults plus the fields that have no sensible default.
func validConfig() Config {
	cfg := Defaults()
	cfg.Webhook.SigningSecret = "whsec_test"
	cfg.Chain.ManagerAddress = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	return cfg
}

func TestValidate_DefaultsPlusRequiredFields(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Webhook.SigningSecret = ""
	cfg.LogLevel = "verbose"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port must be 1-65535")
	assert.Contains(t, err.Error(), "signing_secret")
	assert.Contains(t, err.Error(), "log_level")
}

func TestValidate_ManagerAddressShape(t *testing.T) {
	cases := []struct {
		addr string
		ok   bool
	}{
		{"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
		{"0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa", true},
		{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false}, // no 0x prefix
		{"0xaaaa", false},                                     // too short
		{"0xgggggggggggggggggggggggggggggggggggggggg", false}, // non-hex
		{"", false},
	}
	for _, tc := range cases {
		cfg := validConfig()
		cfg.Chain.ManagerAddress = tc.addr
		err := cfg.Validate()
		if tc.ok {
			assert.NoError(t, err, tc.addr)
		} else {
			assert.Error(t, err, tc.addr)
		}
	}
}

func TestValidate_GenesisAddressOptional(t *testing.T) {
	cfg := validConfig()
	cfg.Chain.GenesisAddress = ""
	assert.NoError(t, cfg.Validate())

	cfg.Chain.GenesisAddress = "not-an-address"
	assert.Error(t, cfg.Validate())
}

func TestValidate_DSNSkipsHostChecks(t *testing.T) {
	cfg := validConfig()
	cfg.Database.DSN = "postgres://user:pass@db:5432/vaultsync"
	cfg.Database.Host = ""
	cfg.Database.Port = 0
	cfg.Database.Database = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidate_PoolBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Database.PoolMinConns = 20
	cfg.Database.PoolMaxConns = 10
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool_min_conns must not exceed pool_max_conns")
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[server]
port = 9090

[webhook]
signing_secret = "whsec_file"

[chain]
manager_address = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "whsec_file", cfg.Webhook.SigningSecret)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, int64(8453), cfg.Chain.ChainID)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[webhook]
signing_secret = "whsec_file"
`), 0o600))

	t.Setenv("VAULTSYNC_WEBHOOK_SIGNING_SECRET", "whsec_env")
	t.Setenv("VAULTSYNC_SERVER_PORT", "7070")
	t.Setenv("VAULTSYNC_NOTIFY_EVENTS", "invariant_violation, drift_detected")
	t.Setenv("VAULTSYNC_S3_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "whsec_env", cfg.Webhook.SigningSecret)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"invariant_violation", "drift_detected"}, cfg.Notify.Events)
	assert.True(t, cfg.S3.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
