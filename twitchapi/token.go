package twitchapi

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/endpoints"
)

// NewAppTokenSource returns a cached, auto-refreshing app access (client credentials)
// token source for Helix calls.
// NOTE: app tokens cannot be used for user-scoped endpoints.
func NewAppTokenSource(ctx context.Context, clientID, clientSecret string) oauth2.TokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     endpoints.Twitch.TokenURL,
	}
	return cfg.TokenSource(ctx)
}
