package oauth2client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AmmannChristian/go-oauthhttp/httpclient"
	"github.com/AmmannChristian/go-oauthhttp/internal/testutil"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

type stubLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *stubLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf(format, args...))
}

func (l *stubLogger) getMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := make([]string, len(l.messages))
	copy(msgs, l.messages)
	return msgs
}

type recordedCall struct {
	endpoint string
	body     httpclient.Body
	headers  map[string]string
	method   string
}

// stubExecutor answers every token request with the same body or error.
type stubExecutor struct {
	mu    sync.Mutex
	calls []recordedCall
	count atomic.Int32
	body  string
	err   error
	delay time.Duration
}

func (s *stubExecutor) RetrieveResponse(ctx context.Context, endpoint httpclient.Endpoint, body httpclient.Body, headers map[string]string, method string) (string, error) {
	s.count.Add(1)
	s.mu.Lock()
	s.calls = append(s.calls, recordedCall{endpoint: endpoint.AbsoluteURI(), body: body, headers: headers, method: method})
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.body, s.err
}

func (s *stubExecutor) lastCall(t *testing.T) recordedCall {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		t.Fatal("no token request made")
	}
	return s.calls[len(s.calls)-1]
}

const validTokenBody = `{
	"access_token": "mock-access-token",
	"token_type": "Bearer",
	"expires_in": 3600
}`

func TestNewTokenManager(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		scopes     string
		wantScopes []string
	}{
		{name: "basic configuration", scopes: "openid profile", wantScopes: []string{"openid", "profile"}},
		{name: "empty scopes", scopes: "", wantScopes: nil},
		{name: "extra whitespace", scopes: "  openid   email ", wantScopes: []string{"openid", "email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := NewTokenManager(ctx, "https://auth.example.com/token", "test-client", "test-secret", tt.scopes)

			if tm.config.ClientID != "test-client" {
				t.Errorf("unexpected client id: %s", tm.config.ClientID)
			}
			if len(tm.config.Scopes) != len(tt.wantScopes) {
				t.Fatalf("expected scopes %v, got %v", tt.wantScopes, tm.config.Scopes)
			}
			for i := range tt.wantScopes {
				if tm.config.Scopes[i] != tt.wantScopes[i] {
					t.Errorf("expected scopes %v, got %v", tt.wantScopes, tm.config.Scopes)
				}
			}
			if tm.expiryLeeway != time.Minute {
				t.Errorf("expected default leeway 1m, got %v", tm.expiryLeeway)
			}
			if tm.executor == nil {
				t.Error("expected default executor")
			}
		})
	}
}

func TestGetTokenWithContext_FetchesAndCaches(t *testing.T) {
	exec := &stubExecutor{body: validTokenBody}
	tm := NewTokenManager(context.Background(), "https://auth.example.com/token", "client", "secret", "openid profile", WithExecutor(exec))

	for i := 0; i < 3; i++ {
		token, err := tm.GetTokenWithContext(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "mock-access-token" {
			t.Errorf("unexpected token: %s", token)
		}
	}

	if n := exec.count.Load(); n != 1 {
		t.Errorf("expected a single token request, got %d", n)
	}

	call := exec.lastCall(t)
	if call.method != http.MethodPost {
		t.Errorf("expected POST, got %s", call.method)
	}
	if call.endpoint != "https://auth.example.com/token" {
		t.Errorf("unexpected endpoint: %s", call.endpoint)
	}
	if !call.body.IsStructured() {
		t.Error("token request must use a form body")
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("client:secret"))
	if call.headers["Authorization"] != want {
		t.Errorf("unexpected Authorization header: %s", call.headers["Authorization"])
	}
}

func TestGetTokenWithContext_RefreshesWithinLeeway(t *testing.T) {
	exec := &stubExecutor{body: `{"access_token":"short","expires_in":30}`}
	tm := NewTokenManager(context.Background(), "https://auth.example.com/token", "client", "secret", "", WithExecutor(exec))

	for i := 0; i < 2; i++ {
		if _, err := tm.GetTokenWithContext(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if n := exec.count.Load(); n != 2 {
		t.Errorf("expected a refresh for a token inside the leeway window, got %d requests", n)
	}
}

func TestGetTokenWithContext_OverRealTransport(t *testing.T) {
	server := testutil.NewRecordingServer(t, http.StatusOK, validTokenBody)
	client, err := httpclient.NewBuilder().Build()
	if err != nil {
		t.Fatalf("build client: %v", err)
	}

	config := &clientcredentials.Config{
		ClientID:       "client",
		ClientSecret:   "s3cr3t",
		TokenURL:       server.URL + "/token",
		Scopes:         []string{"read", "write"},
		EndpointParams: url.Values{"audience": {"my-api"}},
		AuthStyle:      oauth2.AuthStyleInParams,
	}
	tm := NewTokenManagerFromConfig(context.Background(), config, WithExecutor(client))

	token, err := tm.GetTokenWithContext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "mock-access-token" {
		t.Errorf("unexpected token: %s", token)
	}

	got := server.Last(t)
	form, err := url.ParseQuery(got.Body)
	if err != nil {
		t.Fatalf("parse form: %v", err)
	}

	checks := map[string]string{
		"grant_type":    "client_credentials",
		"scope":         "read write",
		"audience":      "my-api",
		"client_id":     "client",
		"client_secret": "s3cr3t",
	}
	for key, want := range checks {
		if form.Get(key) != want {
			t.Errorf("form %s: expected %q, got %q", key, want, form.Get(key))
		}
	}
	if got.Header.Get("Authorization") != "" {
		t.Error("credentials in params must not also be sent as basic auth")
	}
	if got.Header.Get("Accept") != "application/json" {
		t.Errorf("unexpected Accept header: %s", got.Header.Get("Accept"))
	}
}

func TestGetTokenWithContext_OAuthErrorBody(t *testing.T) {
	server := testutil.NewRecordingServer(t, http.StatusUnauthorized, `{"error":"invalid_client","error_description":"bad secret"}`)
	tm := NewTokenManager(context.Background(), server.URL+"/token", "client", "wrong", "")

	_, err := tm.GetTokenWithContext(context.Background())

	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		t.Fatalf("expected *oauth2.RetrieveError, got %T: %v", err, err)
	}
	if retrieveErr.ErrorCode != "invalid_client" {
		t.Errorf("unexpected error code: %s", retrieveErr.ErrorCode)
	}
	if retrieveErr.ErrorDescription != "bad secret" {
		t.Errorf("unexpected description: %s", retrieveErr.ErrorDescription)
	}
}

func TestGetTokenWithContext_TransportFailure(t *testing.T) {
	exec := &stubExecutor{err: &httpclient.TokenResponseError{StatusCode: 0, Code: httpclient.CodeConnection, Message: "transport error [connection]: refused"}}
	tm := NewTokenManager(context.Background(), "https://auth.example.com/token", "client", "secret", "", WithExecutor(exec))

	_, err := tm.GetTokenWithContext(context.Background())

	var tre *httpclient.TokenResponseError
	if !errors.As(err, &tre) {
		t.Fatalf("expected *httpclient.TokenResponseError, got %T: %v", err, err)
	}
	if !strings.HasPrefix(err.Error(), "oauth2: failed to fetch token: ") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestGetTokenWithContext_InvalidTokenURL(t *testing.T) {
	exec := &stubExecutor{body: validTokenBody}
	tm := NewTokenManager(context.Background(), "not a url", "client", "secret", "", WithExecutor(exec))

	if _, err := tm.GetTokenWithContext(context.Background()); err == nil {
		t.Fatal("expected error for invalid token URL")
	}
	if exec.count.Load() != 0 {
		t.Error("no request should be made for an invalid token URL")
	}
}

func TestGetTokenWithContext_Concurrent(t *testing.T) {
	exec := &stubExecutor{body: validTokenBody, delay: 20 * time.Millisecond}
	tm := NewTokenManager(context.Background(), "https://auth.example.com/token", "client", "secret", "", WithExecutor(exec))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tm.GetTokenWithContext(context.Background()); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := exec.count.Load(); n != 1 {
		t.Errorf("expected a single token request, got %d", n)
	}
}

func TestTokenManager_Logging(t *testing.T) {
	logger := &stubLogger{}
	exec := &stubExecutor{body: validTokenBody}
	tm := NewTokenManager(context.Background(), "https://auth.example.com/token", "client", "secret", "", WithExecutor(exec), WithLogger(logger))

	if _, err := tm.GetTokenWithContext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := logger.getMessages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "obtained new access token") {
		t.Errorf("unexpected log messages: %v", msgs)
	}
}

func TestTokenManager_WithLoggingEnabled(t *testing.T) {
	tm := NewTokenManager(context.Background(), "https://auth.example.com/token", "client", "secret", "", WithLoggingEnabled())
	if tm.logger == nil {
		t.Error("expected default logger")
	}
}

func TestTokenManager_TokenSource(t *testing.T) {
	exec := &stubExecutor{body: `{"access_token":"abc","token_type":"Bearer","expires_in":3600,"id_token":"xyz"}`}
	tm := NewTokenManager(context.Background(), "https://auth.example.com/token", "client", "secret", "", WithExecutor(exec))

	var source oauth2.TokenSource = tm
	token, err := source.Token()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.AccessToken != "abc" || token.Type() != "Bearer" {
		t.Errorf("unexpected token: %+v", token)
	}
	if token.Extra("id_token") != "xyz" {
		t.Errorf("expected extra id_token, got %v", token.Extra("id_token"))
	}

	token.AccessToken = "mutated"
	if again, _ := tm.GetToken(); again != "abc" {
		t.Errorf("cached token must not be affected by callers, got %s", again)
	}
}

func TestTokenManager_Invalidate(t *testing.T) {
	exec := &stubExecutor{body: validTokenBody}
	tm := NewTokenManager(context.Background(), "https://auth.example.com/token", "client", "secret", "", WithExecutor(exec))

	if _, err := tm.GetTokenWithContext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tm.Invalidate()
	if _, err := tm.GetTokenWithContext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := exec.count.Load(); n != 2 {
		t.Errorf("expected a fetch after invalidation, got %d requests", n)
	}
}

func TestUnaryClientInterceptor(t *testing.T) {
	exec := &stubExecutor{body: validTokenBody}
	tm := NewTokenManager(context.Background(), "https://auth.example.com/token", "client", "secret", "", WithExecutor(exec))

	interceptor := tm.UnaryClientInterceptor()
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, ok := metadata.FromOutgoingContext(ctx)
		if !ok {
			t.Fatal("metadata not found in context")
		}
		if got := md.Get("authorization"); len(got) != 1 || got[0] != "Bearer mock-access-token" {
			t.Errorf("unexpected authorization metadata: %v", got)
		}
		return nil
	}

	if err := interceptor(context.Background(), "/test.Service/Method", nil, nil, nil, invoker); err != nil {
		t.Fatalf("interceptor failed: %v", err)
	}
}

func TestUnaryClientInterceptor_TokenError(t *testing.T) {
	exec := &stubExecutor{err: errors.New("down")}
	tm := NewTokenManager(context.Background(), "https://auth.example.com/token", "client", "secret", "", WithExecutor(exec))

	invoked := false
	invoker := func(context.Context, string, interface{}, interface{}, *grpc.ClientConn, ...grpc.CallOption) error {
		invoked = true
		return nil
	}

	if err := tm.UnaryClientInterceptor()(context.Background(), "/test.Service/Method", nil, nil, nil, invoker); err == nil {
		t.Fatal("expected error")
	}
	if invoked {
		t.Error("invoker must not be called when the token fetch fails")
	}
}

func TestStreamClientInterceptor(t *testing.T) {
	exec := &stubExecutor{body: validTokenBody}
	tm := NewTokenManager(context.Background(), "https://auth.example.com/token", "client", "secret", "", WithExecutor(exec))

	streamer := func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		md, ok := metadata.FromOutgoingContext(ctx)
		if !ok {
			t.Fatal("metadata not found in context")
		}
		if got := md.Get("authorization"); len(got) != 1 || got[0] != "Bearer mock-access-token" {
			t.Errorf("unexpected authorization metadata: %v", got)
		}
		return nil, nil
	}

	if _, err := tm.StreamClientInterceptor()(context.Background(), &grpc.StreamDesc{}, nil, "/test.Service/Stream", streamer); err != nil {
		t.Fatalf("interceptor failed: %v", err)
	}
}
