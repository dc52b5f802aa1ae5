package config

import (
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

type Client struct {
	RequestTimeout         time.Duration `yaml:"request_timeout"          env:"REQUEST_TIMEOUT"          env-default:"15s"`
	ExternalRequestTimeout time.Duration `yaml:"external_request_timeout" env:"EXTERNAL_REQUEST_TIMEOUT" env-default:"30s"`
	RefreshTimeout         time.Duration `yaml:"refresh_timeout"          env:"REFRESH_TIMEOUT"          env-default:"15s"`
	ExpiryBuffer           time.Duration `yaml:"expiry_buffer"            env:"EXPIRY_BUFFER"            env-default:"30s"`
	UserAgent              string        `yaml:"user_agent"               env:"USER_AGENT"               env-default:"go-auth-client"`
	ProactiveRefresh       bool          `yaml:"proactive_refresh"        env:"PROACTIVE_REFRESH"        env-default:"false"`
}

var _ ClientConfig = Client{}

// GetRequestTimeout is the per-attempt timeout for first-party API calls
func (c Client) GetRequestTimeout() time.Duration {
	return c.RequestTimeout
}

// GetExternalRequestTimeout is the timeout for third-party APIs (geo lookups etc.)
func (c Client) GetExternalRequestTimeout() time.Duration {
	return c.ExternalRequestTimeout
}

func (c Client) GetRefreshTimeout() time.Duration {
	return c.RefreshTimeout
}

func (c Client) GetExpiryBuffer() time.Duration {
	return c.ExpiryBuffer
}

func (c Client) GetUserAgent() string {
	return c.UserAgent
}

func (c Client) GetProactiveRefresh() bool {
	return c.ProactiveRefresh
}

func (c Client) validate() error {
	if c.RequestTimeout < 0 || c.ExternalRequestTimeout < 0 || c.RefreshTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", apperrors.ErrInvalidConfig)
	}
	if c.ExpiryBuffer < 0 {
		return fmt.Errorf("%w: EXPIRY_BUFFER must not be negative", apperrors.ErrInvalidConfig)
	}
	return nil
}

type Storage struct {
	Path string `yaml:"path" env:"STORAGE_PATH" env-default:"./data/credentials.json"`
	Key  string `yaml:"key"  env:"STORAGE_KEY"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetStoragePath() string {
	return s.Path
}

// GetStorageKey is the master secret the credential file is encrypted with.
// An empty key leaves the file unencrypted, which is only accepted in DEV.
func (s Storage) GetStorageKey() string {
	return s.Key
}

func (m mainConfig) validate() error {
	if err := m.EnvVars.validate(); err != nil {
		return err
	}
	if err := m.Client.validate(); err != nil {
		return err
	}
	if m.Storage.Key == "" && m.GetEnv() != "DEV" {
		return fmt.Errorf("%w: STORAGE_KEY is required outside DEV", apperrors.ErrInvalidConfig)
	}
	return nil
}
