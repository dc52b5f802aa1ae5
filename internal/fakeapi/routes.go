package fakeapi

// Route path constants
const (
	// Auth Routes
	RouteAuthLogin     = "/auth/login"
	RouteAuthRegister  = "/auth/register"
	RouteAuthOTPVerify = "/auth/otp/verify"
	RouteAuthRefresh   = "/auth/refresh"
	RouteAuthLogout    = "/auth/logout"
	RouteAuthMe        = "/auth/me"

	// OAuth2 / OIDC Routes
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteWellKnownJWKS         = "/.well-known/jwks.json"
	RouteOAuth2Token           = "/oauth2/token"

	// API Routes
	RouteProjects = "/api/projects"
	RouteProject  = "/api/projects/{id}"
)
