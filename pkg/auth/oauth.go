package auth

import (
	"context"
	"net/http"
	"sync"

	"github.com/Sternrassler/mailer-client/pkg/apierr"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCredentials obtains access tokens with the OAuth2 client credentials
// grant. Tokens are cached until they expire or Invalidate is called.
type ClientCredentials struct {
	config     clientcredentials.Config
	httpClient *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

// NewClientCredentials creates a provider for the given token endpoint.
// httpClient is used for token requests; nil means http.DefaultClient.
func NewClientCredentials(clientID, clientSecret, tokenURL string, scopes []string, httpClient *http.Client) *ClientCredentials {
	return &ClientCredentials{
		config: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
		},
		httpClient: httpClient,
	}
}

// Token returns a valid access token, fetching a new one when needed.
func (c *ClientCredentials) Token(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid() {
		return c.token, nil
	}

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	token, err := c.config.Token(ctx)
	if err != nil {
		return nil, &apierr.Error{
			Kind:    apierr.KindAuthentication,
			Message: "obtain access token",
			Err:     err,
		}
	}
	c.token = token
	return token, nil
}

// Apply implements Provider.
func (c *ClientCredentials) Apply(ctx context.Context, req *http.Request) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}
	token.SetAuthHeader(req)
	return nil
}

// Invalidate implements Provider. The next Apply fetches a new token.
func (c *ClientCredentials) Invalidate() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}
