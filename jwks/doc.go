// Package jwks verifies JWT access tokens against a JSON Web Key Set.
//
// The key set is downloaded through an executor, by default an
// *httpclient.Client, and cached for the refresh interval. A token signed
// with an unknown key ID triggers one early refresh, rate limited so a flood
// of bad tokens cannot hammer the provider.
//
//	v, err := jwks.New(
//	    "https://auth.example.com/.well-known/jwks.json",
//	    "https://auth.example.com",
//	    "my-api",
//	)
//	claims, err := v.ValidateToken(ctx, token)
package jwks
