// Package httpclient is the HTTP transport used by OAuth services to exchange
// tokens and call protected endpoints.
//
// A Client turns an endpoint, a body, header overrides and a verb into one
// fully specified request, executes it exactly once and returns the buffered
// response body. Failures come back in two shapes only: ErrInvalidArgument for
// caller mistakes detected before any I/O, and *TokenResponseError for
// everything that happened after the request reached the transport.
//
// # Features
//
//   - Fluent Builder with timeout, redirect limit, user agent and TLS/mTLS
//   - Raw TransportOption overrides applied after every computed default
//   - Host and "Connection: close" forced on every request, no connection reuse
//   - Optional Bearer token injection, Prometheus metrics and rate limiting
//
// # Quick Start
//
//	client, err := httpclient.NewBuilder().
//	    WithTimeout(10 * time.Second).
//	    WithMaxRedirects(0).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	endpoint := httpclient.MustParseEndpoint("https://auth.example.com/oauth/v2/token")
//	body, err := client.RetrieveResponse(ctx, endpoint,
//	    httpclient.FormBody(map[string]string{"grant_type": "client_credentials"}),
//	    nil, "POST")
//
// Non-2xx responses are not errors: a 401 with an OAuth error document is
// returned as a body like any other, and interpreting it is the caller's job.
//
// A Client is safe for concurrent use.
package httpclient
