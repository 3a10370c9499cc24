package fetcher

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuthOptions configures a client-credentials grant for raster
// endpoints that require bearer tokens.
type OAuthOptions struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// NewOAuthFetcher returns an HTTPFetcher whose requests carry tokens
// minted from the client-credentials grant. Token refresh is handled by
// the oauth2 transport; the fetcher's retry and rate limiting still
// apply on top.
func NewOAuthFetcher(ctx context.Context, auth OAuthOptions, opts HTTPOptions) (*HTTPFetcher, error) {
	if auth.TokenURL == "" {
		return nil, eris.New("oauth: token url is required")
	}
	if auth.ClientID == "" {
		return nil, eris.New("oauth: client id is required")
	}

	cfg := &clientcredentials.Config{
		ClientID:     auth.ClientID,
		ClientSecret: auth.ClientSecret,
		TokenURL:     auth.TokenURL,
		Scopes:       auth.Scopes,
	}

	f := NewHTTPFetcher(opts)

	// Hand the pooled transport to the oauth2 client so token requests
	// and downloads share connections.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: f.client.Transport})
	f.client = cfg.Client(ctx)
	f.client.Timeout = f.opts.Timeout

	return f, nil
}
