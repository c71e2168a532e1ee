package oauth

// OnshapeConfig holds Onshape OAuth configuration.
// Scopes may be left empty: Onshape derives the grant from the OAuth app
// registration when no scope parameter is sent.
type OnshapeConfig struct {
	ClientID     string   `env:"ONSHAPE_OAUTH_CLIENT_ID,required"`
	ClientSecret string   `env:"ONSHAPE_OAUTH_CLIENT_SECRET,required"`
	RedirectURL  string   `env:"ONSHAPE_OAUTH_REDIRECT_URL,required"`
	Scopes       []string `env:"ONSHAPE_OAUTH_SCOPES" envSeparator:","`
}

// AtlassianConfig holds Atlassian OAuth (3LO) configuration.
type AtlassianConfig struct {
	ClientID     string   `env:"ATLASSIAN_OAUTH_CLIENT_ID,required"`
	ClientSecret string   `env:"ATLASSIAN_OAUTH_CLIENT_SECRET,required"`
	RedirectURL  string   `env:"ATLASSIAN_OAUTH_REDIRECT_URL,required"`
	Scopes       []string `env:"ATLASSIAN_OAUTH_SCOPES" envSeparator:","`
}
