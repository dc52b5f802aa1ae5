package config

type OAuthConfig interface {
	GetRefreshPath() string
	GetOAuthIssuer() string
	GetOAuthTokenURL() string
	GetOAuthClientID() string
	GetOAuthClientSecret() string
	UseOAuthRefresh() bool
}

type OAuth struct {
	RefreshPath  string `yaml:"refresh_path"  env:"REFRESH_PATH"        env-default:"/auth/refresh"`
	Issuer       string `yaml:"issuer"        env:"OAUTH_ISSUER"`
	TokenURL     string `yaml:"token_url"     env:"OAUTH_TOKEN_URL"`
	ClientID     string `yaml:"client_id"     env:"OAUTH_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"OAUTH_CLIENT_SECRET"`
}

var _ OAuthConfig = OAuth{}

// GetRefreshPath is the backend's JSON refresh endpoint, relative to the base URL
func (o OAuth) GetRefreshPath() string {
	return o.RefreshPath
}

func (o OAuth) GetOAuthIssuer() string {
	return o.Issuer
}

func (o OAuth) GetOAuthTokenURL() string {
	return o.TokenURL
}

func (o OAuth) GetOAuthClientID() string {
	return o.ClientID
}

func (o OAuth) GetOAuthClientSecret() string {
	return o.ClientSecret
}

// UseOAuthRefresh reports whether refreshes go through a standard OAuth2
// refresh_token grant instead of the backend's JSON refresh endpoint
func (o OAuth) UseOAuthRefresh() bool {
	return o.Issuer != "" || o.TokenURL != ""
}
