// Package cli implements the oauthhttp command line tool.
//
// Commands:
//
//	fetch       send one request through the HTTP client adapter
//	token       obtain a client credentials access token
//	introspect  check an opaque token at an RFC 7662 endpoint
//	verify      verify a JWT against a JWKS endpoint
//
// Settings come from an optional YAML or TOML file (--config or
// OAUTHHTTP_CONFIG); flags that are set explicitly override the file.
package cli
