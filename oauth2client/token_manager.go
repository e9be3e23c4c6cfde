package oauth2client

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/AmmannChristian/go-oauthhttp/httpclient"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Logger is an interface for optional logging in TokenManager.
// Implementations can log token refresh events if desired.
type Logger interface {
	Printf(format string, args ...any)
}

// Executor performs the token endpoint request. *httpclient.Client implements it.
type Executor interface {
	RetrieveResponse(ctx context.Context, endpoint httpclient.Endpoint, body httpclient.Body, extraHeaders map[string]string, method string) (string, error)
}

// TokenManager manages OAuth2 tokens with automatic refresh.
// It uses the client credentials flow and is safe for concurrent access.
type TokenManager struct {
	config       *clientcredentials.Config
	executor     Executor
	executorErr  error
	token        *oauth2.Token
	mu           sync.RWMutex
	ctx          context.Context // fallback context for Token and GetToken
	expiryLeeway time.Duration
	logger       Logger // optional logger
}

// Option is a functional option for configuring TokenManager.
type Option func(*TokenManager)

// WithLogger sets a custom logger for token refresh events.
// If not set, no logging will occur.
func WithLogger(logger Logger) Option {
	return func(tm *TokenManager) {
		tm.logger = logger
	}
}

// WithLoggingEnabled enables logging using the default Go log package.
// This is a convenience option that sets the logger to log.Default().
func WithLoggingEnabled() Option {
	return func(tm *TokenManager) {
		tm.logger = log.Default()
	}
}

// WithExecutor sets the client used to call the token endpoint.
// Defaults to an httpclient.Client with default settings.
func WithExecutor(executor Executor) Option {
	return func(tm *TokenManager) {
		tm.executor = executor
	}
}

// WithExpiryLeeway sets how long before expiry a token is refreshed. Default is one minute.
func WithExpiryLeeway(leeway time.Duration) Option {
	return func(tm *TokenManager) {
		tm.expiryLeeway = leeway
	}
}

// NewTokenManager creates a new OAuth2 token manager using client credentials flow.
//
// Parameters:
//   - ctx: Context for token requests (used as fallback by Token and GetToken)
//   - tokenURL: OAuth2 token endpoint (e.g., "https://auth.example.com/oauth/v2/token")
//   - clientID: OAuth2 client identifier
//   - clientSecret: OAuth2 client secret
//   - scopes: Space-separated list of OAuth2 scopes (e.g., "openid profile email")
//   - opts: Optional configuration options (WithLogger, WithExecutor, ...)
func NewTokenManager(ctx context.Context, tokenURL, clientID, clientSecret, scopes string, opts ...Option) *TokenManager {
	// Split scopes by whitespace to avoid sending a single concatenated scope.
	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       strings.Fields(scopes),
	}

	return NewTokenManagerFromConfig(ctx, config, opts...)
}

// NewTokenManagerFromConfig creates a token manager from a clientcredentials
// configuration. EndpointParams are sent with every token request and
// AuthStyle selects where the client credentials go; oauth2.AuthStyleAutoDetect
// is treated as oauth2.AuthStyleInHeader.
func NewTokenManagerFromConfig(ctx context.Context, config *clientcredentials.Config, opts ...Option) *TokenManager {
	// Keep token requests independent from caller cancellations while preserving values.
	if ctx == nil {
		ctx = context.Background()
	} else {
		ctx = context.WithoutCancel(ctx)
	}

	tm := &TokenManager{
		config:       config,
		ctx:          ctx,
		expiryLeeway: time.Minute, // refresh a bit before expiry to avoid near-expiry races
	}

	// Apply options
	for _, opt := range opts {
		opt(tm)
	}

	if tm.executor == nil {
		client, err := httpclient.NewBuilder().Build()
		if err != nil {
			tm.executorErr = err
		} else {
			tm.executor = client
		}
	}

	return tm
}

// GetTokenWithContext returns a valid access token, fetching or refreshing if necessary.
// This method respects the provided context's cancellation and deadline.
// This method is thread-safe and uses double-checked locking to minimize lock contention.
//
// Parameters:
//   - ctx: Context for the token request (used for cancellation and deadlines)
//
// Returns:
//   - string: Valid access token
//   - error: Error if token fetch/refresh fails or context is cancelled
func (tm *TokenManager) GetTokenWithContext(ctx context.Context) (string, error) {
	token, err := tm.validToken(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// GetToken returns a valid access token using the manager's fallback context.
//
// Deprecated: Use GetTokenWithContext instead to properly handle context cancellation and deadlines.
func (tm *TokenManager) GetToken() (string, error) {
	return tm.GetTokenWithContext(tm.ctx)
}

// Token implements oauth2.TokenSource so a TokenManager can be used with
// oauth2.NewClient and oauth2.ReuseTokenSource. It returns a copy of the
// cached token.
func (tm *TokenManager) Token() (*oauth2.Token, error) {
	token, err := tm.validToken(tm.ctx)
	if err != nil {
		return nil, err
	}
	clone := *token
	return &clone, nil
}

// Invalidate drops the cached token so the next call fetches a new one,
// e.g. after a protected endpoint rejected it.
func (tm *TokenManager) Invalidate() {
	tm.mu.Lock()
	tm.token = nil
	tm.mu.Unlock()
}

func (tm *TokenManager) validToken(ctx context.Context) (*oauth2.Token, error) {
	// Use background context if nil
	if ctx == nil {
		ctx = context.Background()
	}

	// Fast path: check if we have a valid token without write lock
	tm.mu.RLock()
	if tm.tokenValid() {
		token := tm.token
		tm.mu.RUnlock()
		return token, nil
	}
	tm.mu.RUnlock()

	// Token is invalid or missing, fetch a new one
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine might have refreshed)
	if tm.tokenValid() {
		return tm.token, nil
	}

	token, err := tm.fetchToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("oauth2: failed to fetch token: %w", err)
	}

	tm.token = token

	// Log only if logger is configured
	if tm.logger != nil {
		if token.Expiry.IsZero() {
			tm.logger.Printf("oauth2: obtained new access token (no expiry)")
		} else {
			tm.logger.Printf("oauth2: obtained new access token (expires: %s)", token.Expiry.Format(time.RFC3339))
		}
	}

	return token, nil
}

// fetchToken performs the client credentials grant through the executor.
func (tm *TokenManager) fetchToken(ctx context.Context) (*oauth2.Token, error) {
	if tm.executorErr != nil {
		return nil, tm.executorErr
	}

	endpoint, err := httpclient.ParseEndpoint(tm.config.TokenURL)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if len(tm.config.Scopes) > 0 {
		form.Set("scope", strings.Join(tm.config.Scopes, " "))
	}
	for key, values := range tm.config.EndpointParams {
		form[key] = append([]string(nil), values...)
	}

	headers := map[string]string{"Accept": "application/json"}
	if tm.config.AuthStyle == oauth2.AuthStyleInParams {
		form.Set("client_id", tm.config.ClientID)
		if tm.config.ClientSecret != "" {
			form.Set("client_secret", tm.config.ClientSecret)
		}
	} else {
		headers["Authorization"] = basicAuth(tm.config.ClientID, tm.config.ClientSecret)
	}

	body, err := tm.executor.RetrieveResponse(ctx, endpoint, httpclient.FormValues(form), headers, http.MethodPost)
	if err != nil {
		return nil, err
	}

	return parseTokenResponse(body, time.Now())
}

// basicAuth encodes client credentials as required by RFC 6749 section 2.3.1.
func basicAuth(clientID, clientSecret string) string {
	credentials := url.QueryEscape(clientID) + ":" + url.QueryEscape(clientSecret)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))
}

// tokenValid reports whether the cached token is still usable with a small safety window.
func (tm *TokenManager) tokenValid() bool {
	if tm.token == nil {
		return false
	}
	// If expiry is known, consider the leeway window.
	if !tm.token.Expiry.IsZero() {
		if time.Until(tm.token.Expiry) <= tm.expiryLeeway {
			return false
		}
	}
	return tm.token.Valid()
}

// UnaryClientInterceptor returns a gRPC unary client interceptor that automatically
// adds OAuth2 Bearer tokens to request metadata.
//
// The interceptor adds the token as "authorization: Bearer <token>" to the outgoing
// request context metadata. If token fetch fails, the RPC call is aborted with an error.
// The interceptor respects the RPC context's cancellation and deadline.
//
// Usage:
//
//	conn, err := grpc.NewClient(
//	    "server:9090",
//	    grpc.WithUnaryInterceptor(tokenManager.UnaryClientInterceptor()),
//	)
func (tm *TokenManager) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		// Use the RPC context for token fetching to respect cancellation and deadlines
		token, err := tm.GetTokenWithContext(ctx)
		if err != nil {
			return fmt.Errorf("oauth2: failed to get token: %w", err)
		}

		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)

		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor that automatically
// adds OAuth2 Bearer tokens to request metadata.
//
// The interceptor adds the token as "authorization: Bearer <token>" to the outgoing
// request context metadata. If token fetch fails, stream creation is aborted with an error.
// The interceptor respects the RPC context's cancellation and deadline.
func (tm *TokenManager) StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		// Use the RPC context for token fetching to respect cancellation and deadlines
		token, err := tm.GetTokenWithContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("oauth2: failed to get token: %w", err)
		}

		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)

		return streamer(ctx, desc, cc, method, opts...)
	}
}
