// Package introspection validates opaque OAuth2 access tokens with an RFC 7662
// token introspection endpoint.
//
// Requests go through an executor, by default an *httpclient.Client, so the
// introspection call gets the same redirect, timeout and TLS handling as
// every other call in the module:
//
//	v, err := introspection.New(
//	    "https://auth.example.com/oauth/v2/introspect",
//	    "https://auth.example.com",
//	    "my-api",
//	    "introspect-client",
//	    "secret",
//	)
//	claims, err := v.ValidateToken(ctx, token)
//
// Inactive tokens, issuer or audience mismatches and expired tokens are
// rejected. Endpoint error documents such as {"error":"invalid_client"} are
// reported as *oauth2.RetrieveError.
package introspection
