package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// TokenSource supplies OAuth2 access tokens. oauth2client.TokenManager
// implements it.
type TokenSource interface {
	GetTokenWithContext(ctx context.Context) (string, error)
}

// OAuth2Transport is an http.RoundTripper that automatically adds OAuth2
// Bearer tokens to outgoing HTTP requests.
//
// It wraps an existing transport (typically http.DefaultTransport) and
// injects the Authorization header before each request.
type OAuth2Transport struct {
	// Base is the underlying HTTP transport. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	// Source provides OAuth2 access tokens.
	Source TokenSource
}

// RoundTrip implements http.RoundTripper interface.
// It fetches a valid OAuth2 token and adds it as "Authorization: Bearer <token>"
// to the request headers before delegating to the base transport.
// The token fetch respects the request context's cancellation and deadline.
//
// Redirected requests only carry the token while they stay on the host of
// the first request in the chain.
func (t *OAuth2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Source == nil {
		return nil, fmt.Errorf("httpclient: TokenSource is nil")
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if !sameHost(req.URL, originURL(req)) {
		return base.RoundTrip(req)
	}

	token, err := t.Source.GetTokenWithContext(req.Context())
	if err != nil {
		return nil, fmt.Errorf("httpclient: failed to get token: %w", err)
	}

	// Clone the request to avoid modifying the original
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+token)

	return base.RoundTrip(reqClone)
}

// originURL walks the redirect chain back to the first request.
func originURL(req *http.Request) *url.URL {
	origin := req
	for origin.Response != nil && origin.Response.Request != nil {
		origin = origin.Response.Request
	}
	return origin.URL
}

func sameHost(a, b *url.URL) bool {
	if a == nil || b == nil {
		return a == b
	}
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

// NewOAuth2Transport creates a new OAuth2Transport with the given token source.
// The base transport defaults to http.DefaultTransport if not specified.
func NewOAuth2Transport(ts TokenSource, base http.RoundTripper) *OAuth2Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &OAuth2Transport{
		Base:   base,
		Source: ts,
	}
}
