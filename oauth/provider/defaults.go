package provider

import "golang.org/x/oauth2"

const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"
)

var googleOffline = map[string]string{
	"access_type": "offline",
	"prompt":      "consent",
}

func google(name string, scopes ...string) Config {
	return Config{
		Name:                 name,
		EnvPrefix:            "GOOGLE",
		AuthorizeURL:         googleAuthURL,
		TokenURL:             googleTokenURL,
		Scopes:               scopes,
		ExtraAuthorizeParams: googleOffline,
		AuthStyle:            oauth2.AuthStyleInParams,
	}
}

// Defaults returns the built-in provider table. Every call returns fresh copies.
func Defaults() []Config {
	table := []Config{
		google("gmail",
			"https://www.googleapis.com/auth/gmail.modify",
			"https://www.googleapis.com/auth/gmail.send",
		),
		google("google-calendar", "https://www.googleapis.com/auth/calendar"),
		google("google-drive", "https://www.googleapis.com/auth/drive"),
		google("google-docs", "https://www.googleapis.com/auth/documents"),
		google("google-sheets", "https://www.googleapis.com/auth/spreadsheets"),
		{
			Name:                 "github",
			EnvPrefix:            "GITHUB",
			AuthorizeURL:         "https://github.com/login/oauth/authorize",
			TokenURL:             "https://github.com/login/oauth/access_token",
			Scopes:               []string{"repo", "read:user", "read:org"},
			ExtraAuthorizeParams: map[string]string{"allow_signup": "true"},
			AuthStyle:            oauth2.AuthStyleInParams,
		},
		{
			Name:         "slack",
			EnvPrefix:    "SLACK",
			AuthorizeURL: "https://slack.com/oauth/v2/authorize",
			TokenURL:     "https://slack.com/api/oauth.v2.access",
			Scopes:       []string{"channels:read", "chat:write", "users:read"},
			ExtraAuthorizeParams: map[string]string{
				"user_scope": "channels:history search:read chat:write",
			},
			AuthStyle: oauth2.AuthStyleInParams,
		},
		{
			Name:         "x",
			EnvPrefix:    "X",
			AuthorizeURL: "https://twitter.com/i/oauth2/authorize",
			TokenURL:     "https://api.twitter.com/2/oauth2/token",
			Scopes:       []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
			PKCE:         true,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		{
			Name:         "clickup",
			EnvPrefix:    "CLICKUP",
			AuthorizeURL: "https://app.clickup.com/api",
			TokenURL:     "https://api.clickup.com/api/v2/oauth/token",
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		{
			Name:         "calendly",
			EnvPrefix:    "CALENDLY",
			AuthorizeURL: "https://auth.calendly.com/oauth/authorize",
			TokenURL:     "https://auth.calendly.com/oauth/token",
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		{
			Name:         "asana",
			EnvPrefix:    "ASANA",
			AuthorizeURL: "https://app.asana.com/-/oauth_authorize",
			TokenURL:     "https://app.asana.com/-/oauth_token",
			Scopes:       []string{"default"},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		{
			Name:                 "discord",
			EnvPrefix:            "DISCORD",
			AuthorizeURL:         "https://discord.com/oauth2/authorize",
			TokenURL:             "https://discord.com/api/oauth2/token",
			Scopes:               []string{"identify", "email", "guilds"},
			ExtraAuthorizeParams: map[string]string{"prompt": "consent"},
			AuthStyle:            oauth2.AuthStyleInParams,
		},
		{
			Name:         "hubspot",
			EnvPrefix:    "HUBSPOT",
			AuthorizeURL: "https://app.hubspot.com/oauth/authorize",
			TokenURL:     "https://api.hubapi.com/oauth/v1/token",
			Scopes:       []string{"oauth", "crm.objects.contacts.read", "crm.objects.contacts.write"},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		{
			Name:         "linkedin",
			EnvPrefix:    "LINKEDIN",
			AuthorizeURL: "https://www.linkedin.com/oauth/v2/authorization",
			TokenURL:     "https://www.linkedin.com/oauth/v2/accessToken",
			Scopes:       []string{"openid", "profile", "email", "w_member_social"},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
	}
	for i := range table {
		table[i] = table[i].clone()
	}
	return table
}
