package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config interface {
	EnvConfig
	ClientConfig
	StorageConfig
	OAuthConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetLogLevel() string
}

type ClientConfig interface {
	GetRequestTimeout() time.Duration
	GetExternalRequestTimeout() time.Duration
	GetRefreshTimeout() time.Duration
	GetExpiryBuffer() time.Duration
	GetUserAgent() string
	GetProactiveRefresh() bool
}

type StorageConfig interface {
	GetStoragePath() string
	GetStorageKey() string
}

type mainConfig struct {
	EnvVars `yaml:"app"`
	Client  `yaml:"client"`
	Storage `yaml:"storage"`
	OAuth   `yaml:"oauth"`
}

// New loads configuration from the environment only and panics when it is invalid.
func New() Config {
	return MustLoad("")
}

// MustLoad is Load that panics on error.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the YAML file at path (or CONFIG_PATH when path is empty) and
// overlays environment variables. With neither present only the environment is read.
func Load(path string) (Config, error) {
	var cfg mainConfig

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
