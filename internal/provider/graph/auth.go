package graph

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// graphScope requests the application permissions granted to the client.
const graphScope = "https://graph.microsoft.com/.default"

// newAuthClient returns an HTTP client that attaches a client-credentials
// bearer token to every request. Tokens are cached and refreshed by the
// oauth2 token source shortly before they expire.
func newAuthClient(tokenURL, clientID, clientSecret string, base *http.Client) *http.Client {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cfg.Client(ctx)
	client.Timeout = base.Timeout
	return client
}
