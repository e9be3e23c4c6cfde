// Package oauth2client provides an OAuth2 client-credentials token manager for gRPC and HTTP clients.
//
// Token requests go through an httpclient.Client (or any Executor), so they share its timeout,
// redirect, TLS and error semantics. Because the transport returns bodies regardless of status
// code, the manager classifies OAuth error documents itself and reports them as
// *oauth2.RetrieveError; transport failures surface as *httpclient.TokenResponseError.
//
// # Features
//
//   - Client-credentials flow with automatic caching and early refresh
//   - Credentials in the Authorization header or in the form body (oauth2.AuthStyle)
//   - Expiry from expires_in, or from the JWT exp claim when the server omits it
//   - oauth2.TokenSource implementation for use with golang.org/x/oauth2
//   - gRPC unary and stream client interceptors that inject Bearer tokens
//   - Optional logging (WithLogger, WithLoggingEnabled)
//
// # Quick Start
//
//	tm := oauth2client.NewTokenManager(
//	    ctx,
//	    "https://auth.example.com/oauth/v2/token",
//	    "client-id",
//	    "client-secret",
//	    "openid profile email",
//	    oauth2client.WithLoggingEnabled(),
//	)
//
//	conn, err := grpc.NewClient(
//	    "server:9090",
//	    grpc.WithUnaryInterceptor(tm.UnaryClientInterceptor()),
//	    grpc.WithStreamInterceptor(tm.StreamClientInterceptor()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	api, err := httpclient.NewBuilder().WithTokenSource(tm).Build()
//
// # Notes
//
//   - GetTokenWithContext is preferred; GetToken is kept for backward compatibility.
//   - TokenManager is safe for concurrent use and uses double-checked locking.
package oauth2client
