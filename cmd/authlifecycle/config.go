package main

import (
	"strings"

	auth "github.com/goliatone/go-auth-lifecycle"
	goerrors "github.com/goliatone/go-errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix selects the environment overrides. Nested keys are separated by
// a double underscore, e.g. AUTHLIFECYCLE_DATABASE__DSN.
const envPrefix = "AUTHLIFECYCLE_"

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"`
}

type MailConfig struct {
	From      string          `yaml:"from"`
	Transport string          `yaml:"transport"`
	Workers   int             `yaml:"workers"`
	Buffer    int             `yaml:"buffer"`
	SMTP      auth.SMTPConfig `yaml:"smtp"`
}

type AppConfig struct {
	Lifecycle auth.Config    `yaml:"lifecycle"`
	Database  DatabaseConfig `yaml:"database"`
	Mail      MailConfig     `yaml:"mail"`
	UseHashid bool           `yaml:"use_hashid"`
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Lifecycle: auth.DefaultConfig(),
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:authlifecycle.db?cache=shared&_fk=1",
		},
		Mail: MailConfig{
			From:      "no-reply@localhost",
			Transport: "log",
		},
	}
}

// loadAppConfig layers the YAML file and the environment on top of the defaults.
func loadAppConfig(path string) (AppConfig, error) {
	cfg := defaultAppConfig()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	transform := func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}
	if err := k.Load(env.Provider(envPrefix, ".", transform), nil); err != nil {
		return cfg, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load environment")
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return cfg, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode config")
	}

	if err := cfg.Lifecycle.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}
