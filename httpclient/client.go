package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Config is the read-only view of a Client's configuration.
type Config struct {
	// MaxRedirects is the number of redirects followed; 0 disables following.
	MaxRedirects int
	// Timeout bounds every call, including reading the response body.
	Timeout time.Duration
	// UserAgent is sent unless the caller supplies its own User-Agent header.
	UserAgent string
	// TransportOptions are the raw overrides applied after computed settings.
	TransportOptions map[TransportOption]any
	// ForceSSL3 pins the legacy TLS protocol version.
	ForceSSL3 bool
}

// Client executes single, fully buffered HTTP requests on behalf of OAuth
// services. It holds no per-request state and is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	settings   settings
	config     Config
	limiter    *rate.Limiter
	metrics    *Metrics
}

// RetrieveResponse sends one request to endpoint and returns the response
// body.
//
// The method is case-insensitive. GET requests must not carry a body, and
// other verbs apart from POST and PUT are sent without one. Header names in
// extraHeaders are matched case-insensitively and win over computed defaults,
// except Host and Connection which are always forced.
//
// Non-2xx responses are returned as ordinary bodies. Errors are
// ErrInvalidArgument (before any I/O), ErrRateLimited (the limiter wait was
// cut short, no I/O) or *TokenResponseError.
func (c *Client) RetrieveResponse(ctx context.Context, endpoint Endpoint, body Body, extraHeaders map[string]string, method string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := c.newRequest(ctx, endpoint, body, extraHeaders, method)
	if err != nil {
		return "", err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		statusCode := 0
		if resp != nil {
			// Returned alongside an error only by a refused redirect; the body is already closed.
			statusCode = resp.StatusCode
		}
		return "", c.fail(req.Method, transportFailure(statusCode, err))
	}
	defer resp.Body.Close()

	payload, err := c.readBody(resp.Body)
	if err != nil {
		code := classify(err)
		if code == CodeUnknown {
			code = CodeReadBody
		}
		return "", c.fail(req.Method, newTokenResponseError(resp.StatusCode, code, describe(err), err))
	}

	return string(payload), nil
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	cfg := c.config
	if c.config.TransportOptions != nil {
		cfg.TransportOptions = make(map[TransportOption]any, len(c.config.TransportOptions))
		for k, v := range c.config.TransportOptions {
			cfg.TransportOptions[k] = v
		}
	}
	return cfg
}

func (c *Client) readBody(r io.Reader) ([]byte, error) {
	limit := c.settings.maxResponseBytes
	if limit <= 0 {
		return io.ReadAll(r)
	}

	payload, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(payload)) > limit {
		return nil, errBodyTooLarge
	}
	return payload, nil
}

func (c *Client) fail(method string, err *TokenResponseError) error {
	if c.metrics != nil {
		c.metrics.observeFailure(method, err.Code)
	}
	return err
}

// redirectPolicy follows up to maxRedirects redirects. With maxRedirects <= 0
// the 3xx response itself is returned.
func redirectPolicy(maxRedirects int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if maxRedirects <= 0 {
			return http.ErrUseLastResponse
		}
		if len(via) > maxRedirects {
			return fmt.Errorf("%w (%d)", errTooManyRedirects, maxRedirects)
		}
		return nil
	}
}
