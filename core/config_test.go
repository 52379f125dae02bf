package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Governance.ApprovalSecret = "test-secret"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "adaptive", cfg.Profile)
	assert.Equal(t, 3, cfg.Ranker.TopK)
}

func TestLoadConfigRejectsUnknownProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentkernel.toml")
	require.NoError(t, os.WriteFile(path, []byte(`profile = "bogus"`), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	var kerr *KernelError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, ErrorKindContractViolation, kerr.Kind)
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentkernel.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
profile = "strict"

[ranker]
base_weight = 0.7
memory_weight = 0.3
top_k = 5
`), 0o644))

	cfg, err := LoadConfig(path, func(c *Config) error {
		c.Governance.ApprovalSecret = "from-option"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "strict", cfg.Profile)
	assert.Equal(t, 5, cfg.Ranker.TopK)
	assert.Equal(t, "from-option", cfg.Governance.ApprovalSecret)
}

func TestLoadConfigMissingApprovalSecretFails(t *testing.T) {
	_, err := LoadConfig("")
	require.Error(t, err)
}

func TestWithStateRootOption(t *testing.T) {
	cfg, err := LoadConfig("", WithStateRoot("/tmp/custom"), func(c *Config) error {
		c.Governance.ApprovalSecret = "x"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom", cfg.StateRoot)
}
