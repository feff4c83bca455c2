package auth

import (
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfirmationExpiration is the default for Config.ConfirmationExpiration.
	DefaultConfirmationExpiration = 24 * time.Hour

	// DefaultResetPasswordExpiration is the default for Config.ResetPasswordExpiration.
	DefaultResetPasswordExpiration = 24 * time.Hour

	// DefaultSimultaneousSessions is the default for Config.SimultaneousSessions.
	DefaultSimultaneousSessions = 2

	// DefaultEmailField is the default for Config.EmailField.
	DefaultEmailField = "email"

	// DefaultTokenLength is the default for Config.TokenLength.
	DefaultTokenLength = 6
)

// Config holds the lifecycle policy. It is copied into every machine at
// construction and never mutated afterwards.
//
// Start from DefaultConfig and override fields. Zero durations, counts and
// strings are filled with defaults, but a zero bool is taken as an explicit
// false, so a literal Config{} disables SendEmailChangedNotification.
type Config struct {
	// ConfirmationExpiration tells how long a confirmation token remains valid.
	ConfirmationExpiration time.Duration `yaml:"confirmation_expiration" json:"confirmation_expiration"`

	// ResetPasswordExpiration tells how long a reset password token remains valid.
	ResetPasswordExpiration time.Duration `yaml:"reset_password_expiration" json:"reset_password_expiration"`

	// SimultaneousSessions caps the live session tokens per account.
	SimultaneousSessions int `yaml:"simultaneous_sessions" json:"simultaneous_sessions"`

	// SendEmailChangedNotification notifies the previous address on email change.
	SendEmailChangedNotification bool `yaml:"send_email_changed_notification" json:"send_email_changed_notification"`

	// DeliverLater hands mail to the deferred delivery queue.
	DeliverLater bool `yaml:"deliver_later" json:"deliver_later"`

	// EmailField is the storage column holding the account email.
	EmailField string `yaml:"email_field" json:"email_field"`

	// TokenLength is the number of digits in confirmation and reset tokens.
	TokenLength int `yaml:"token_length" json:"token_length"`
}

// DefaultConfig returns a Config with the package defaults.
func DefaultConfig() Config {
	return Config{
		ConfirmationExpiration:       DefaultConfirmationExpiration,
		ResetPasswordExpiration:      DefaultResetPasswordExpiration,
		SimultaneousSessions:         DefaultSimultaneousSessions,
		SendEmailChangedNotification: true,
		DeliverLater:                 false,
		EmailField:                   DefaultEmailField,
		TokenLength:                  DefaultTokenLength,
	}
}

// withDefaults fills zero values with defaults. Bools are left as given.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ConfirmationExpiration == 0 {
		c.ConfirmationExpiration = def.ConfirmationExpiration
	}
	if c.ResetPasswordExpiration == 0 {
		c.ResetPasswordExpiration = def.ResetPasswordExpiration
	}
	if c.SimultaneousSessions == 0 {
		c.SimultaneousSessions = def.SimultaneousSessions
	}
	if c.EmailField == "" {
		c.EmailField = def.EmailField
	}
	if c.TokenLength == 0 {
		c.TokenLength = def.TokenLength
	}
	return c
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.ConfirmationExpiration, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.ResetPasswordExpiration, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.SimultaneousSessions, validation.Required, validation.Min(1)),
		validation.Field(&c.EmailField, validation.Required),
		validation.Field(&c.TokenLength, validation.Required, validation.Min(4), validation.Max(18)),
	)
	if err != nil {
		return newConfigurationError("invalid lifecycle configuration", map[string]any{
			"cause": err.Error(),
		})
	}
	return nil
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read lifecycle configuration").
			WithMetadata(map[string]any{"path": path})
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, newConfigurationError("failed to parse lifecycle configuration", map[string]any{
			"path":  path,
			"cause": err.Error(),
		})
	}

	return cfg.withDefaults(), nil
}
