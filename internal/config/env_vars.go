package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

type EnvVars struct {
	AppName  string `yaml:"name"      env:"APP_NAME"  env-default:"Go API Client"`
	Env      string `yaml:"env"       env:"ENV"       env-default:"DEV"`
	BaseURL  string `yaml:"base_url"  env:"BASE_URL"  env-default:"http://localhost:8080"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return strings.ToUpper(e.Env)
}

// GetBaseURL returns the API base URL every pipeline request is resolved against
// (e.g., "https://api.example.com/v1")
func (e EnvVars) GetBaseURL() string {
	return strings.TrimRight(e.BaseURL, "/")
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

func (e EnvVars) validate() error {
	u, err := url.Parse(e.GetBaseURL())
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: BASE_URL %q is not an absolute URL", apperrors.ErrInvalidConfig, e.BaseURL)
	}
	return nil
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
