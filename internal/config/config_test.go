package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "api-key", cfg.AuthMode)
	assert.Equal(t, "/safety/permit/pending-approvals", cfg.PendingListPath)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("PMS_BASE_URL", "fm.example.com")
	t.Setenv("PMS_TOKEN", "secret")
	t.Setenv("AUTH_MODE", "none")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.PMSEnabled())
	assert.Equal(t, "none", cfg.AuthMode)
	require.NoError(t, cfg.Validate())
}

func TestValidate_AuthModes(t *testing.T) {
	cfg := &Config{AuthMode: "api-key"}
	assert.Error(t, cfg.Validate())

	cfg.APIKey = "k"
	assert.NoError(t, cfg.Validate())

	cfg = &Config{AuthMode: "jwt"}
	assert.Error(t, cfg.Validate())
	cfg.JWTSecret = "s"
	assert.NoError(t, cfg.Validate())

	cfg = &Config{AuthMode: "bogus"}
	assert.Error(t, cfg.Validate())
}

func TestValidate_TLSPair(t *testing.T) {
	cfg := &Config{AuthMode: "none", TLSCert: "cert.pem"}
	assert.Error(t, cfg.Validate())
	cfg.TLSKey = "key.pem"
	assert.NoError(t, cfg.Validate())
}

func TestStoreAndSlackEnabled(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.StoreEnabled())
	assert.False(t, cfg.SlackEnabled())
	cfg.StorePath = "permitd.db"
	cfg.SlackBotToken = "xoxb-1"
	assert.True(t, cfg.StoreEnabled())
	assert.True(t, cfg.SlackEnabled())
}
