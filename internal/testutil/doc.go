// Package testutil provides test helpers for go-oauthhttp packages.
//
// It includes utilities to spin up IPv4-only local HTTP servers (avoiding IPv6 in sandboxes),
// record the requests they receive, stub transports, and generate certificates, keys and signed
// tokens for TLS and JWT tests.
//
// # Utilities
//
//   - NewLocalHTTPServer: start httptest server bound to 127.0.0.1, closed on cleanup
//   - RecordingServer: loopback server that records requests and answers a fixed response
//   - RoundTripFunc and StaticResponse: inline http.RoundTripper implementations
//   - WriteTestCACert / WriteTestCertAndKey: generate temporary CA and leaf certificates for tests
//   - GenerateTestKey, JWKSDocument, NewJWTClaims, SignToken: JWKS and JWT fixtures
package testutil
