package auth_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := auth.DefaultConfig()

	assert.Equal(t, 24*time.Hour, cfg.ConfirmationExpiration)
	assert.Equal(t, 24*time.Hour, cfg.ResetPasswordExpiration)
	assert.Equal(t, 2, cfg.SimultaneousSessions)
	assert.True(t, cfg.SendEmailChangedNotification)
	assert.False(t, cfg.DeliverLater)
	assert.Equal(t, "email", cfg.EmailField)
	assert.Equal(t, 6, cfg.TokenLength)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*auth.Config)
	}{
		{"negative sessions", func(c *auth.Config) { c.SimultaneousSessions = -1 }},
		{"short token", func(c *auth.Config) { c.TokenLength = 2 }},
		{"long token", func(c *auth.Config) { c.TokenLength = 40 }},
		{"sub second expiration", func(c *auth.Config) { c.ConfirmationExpiration = time.Millisecond }},
		{"missing email field", func(c *auth.Config) { c.EmailField = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := auth.DefaultConfig()
			tt.mutate(&cfg)
			assert.True(t, auth.IsConfigurationError(cfg.Validate()))
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lifecycle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
confirmation_expiration: 2h
simultaneous_sessions: 5
send_email_changed_notification: false
token_length: 8
`), 0o600))

	cfg, err := auth.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.ConfirmationExpiration)
	assert.Equal(t, 24*time.Hour, cfg.ResetPasswordExpiration)
	assert.Equal(t, 5, cfg.SimultaneousSessions)
	assert.False(t, cfg.SendEmailChangedNotification)
	assert.Equal(t, 8, cfg.TokenLength)
	assert.Equal(t, "email", cfg.EmailField)
}

func TestLoadConfigWithoutPath(t *testing.T) {
	cfg, err := auth.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultConfig(), cfg)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := auth.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token_length: [oops"), 0o600))

	_, err := auth.LoadConfig(path)
	assert.True(t, auth.IsConfigurationError(err))
}

func TestMachinesRejectUnknownEmailField(t *testing.T) {
	cfg := auth.DefaultConfig()
	cfg.EmailField = "login"

	_, err := auth.NewConfirmations(cfg, auth.NewMemoryStore(), nil)
	assert.True(t, auth.IsConfigurationError(err))

	_, err = auth.NewRecoveries(cfg, auth.NewMemoryStore(), nil)
	assert.True(t, auth.IsConfigurationError(err))
}

func TestMachinesRequireStorage(t *testing.T) {
	_, err := auth.NewConfirmations(auth.DefaultConfig(), nil, nil)
	assert.True(t, auth.IsConfigurationError(err))

	_, err = auth.NewSessions(auth.DefaultConfig(), nil)
	assert.True(t, auth.IsConfigurationError(err))
}

func TestConfigZeroBoolIsExplicitFalse(t *testing.T) {
	tests := []struct {
		name     string
		cfg      auth.Config
		notified bool
	}{
		{
			name: "override on top of defaults",
			cfg: func() auth.Config {
				cfg := auth.DefaultConfig()
				cfg.SimultaneousSessions = 1
				return cfg
			}(),
			notified: true,
		},
		{
			name:     "literal config",
			cfg:      auth.Config{SimultaneousSessions: 1},
			notified: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.cfg)
			assert.Equal(t, 1, h.lifecycle.Config().SimultaneousSessions)
			assert.Equal(t, auth.DefaultTokenLength, h.lifecycle.Config().TokenLength)

			p := h.confirmed(t, "zero@example.com", "secret-password")
			p.Email = "zero-new@example.com"
			require.NoError(t, h.store.Save(context.Background(), p))

			assert.Equal(t, tt.notified, len(h.mailer.ByKind(auth.MessageEmailChanged)) == 1)
		})
	}
}
