package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/AmmannChristian/go-oauthhttp/internal/testutil"
)

type failingTokenSource struct{}

func (failingTokenSource) GetTokenWithContext(context.Context) (string, error) {
	return "", errors.New("token endpoint unavailable")
}

func TestNewOAuth2Transport(t *testing.T) {
	transport := NewOAuth2Transport(staticTokenSource("tok"), nil)

	if transport.Source == nil {
		t.Error("Source not set correctly")
	}
	if transport.Base == nil {
		t.Error("Base should default to a transport")
	}
}

func TestOAuth2Transport_RoundTrip(t *testing.T) {
	base := testutil.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("Authorization"); got != "Bearer mock-access-token" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("success")),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	})

	client := &http.Client{Transport: NewOAuth2Transport(staticTokenSource("mock-access-token"), base)}

	req, err := http.NewRequest(http.MethodGet, "https://api.example.com", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if req.Header.Get("Authorization") != "" {
		t.Error("original request must not be modified")
	}
}

func TestOAuth2Transport_TokenFailureIsTransportError(t *testing.T) {
	client := newTestClient(t, NewBuilder().
		WithBaseTransport(testutil.StaticResponse(http.StatusOK, "ok")).
		WithTokenSource(failingTokenSource{}))

	_, err := client.RetrieveResponse(context.Background(), mustEndpoint(t, "https://api.example.com"), NoBody, nil, "GET")
	tre := asTokenResponseError(t, err)

	if !strings.Contains(tre.Error(), "token endpoint unavailable") {
		t.Errorf("expected token failure in message, got %s", tre.Error())
	}
}

func TestOAuth2Transport_NilSource(t *testing.T) {
	transport := &OAuth2Transport{}

	req, _ := http.NewRequest(http.MethodGet, "https://api.example.com", nil)
	if _, err := transport.RoundTrip(req); err == nil {
		t.Error("expected error for nil TokenSource")
	}
}

func TestOAuth2Transport_RedirectKeepsTokenOnOriginHost(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string]string{}
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.URL.Path] = r.Header.Get("Authorization")
		mu.Unlock()
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.URL.Path] = r.Header.Get("Authorization")
		mu.Unlock()
		_, _ = w.Write([]byte("final"))
	})
	origin := testutil.NewLocalHTTPServer(t, mux)

	client := newTestClient(t, NewBuilder().WithTokenSource(staticTokenSource("secret-token")))
	body, err := client.RetrieveResponse(context.Background(), mustEndpoint(t, origin.URL+"/start"), NoBody, nil, "GET")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "final" {
		t.Fatalf("expected final body, got %q", body)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, path := range []string{"/start", "/final"} {
		if got := seen[path]; got != "Bearer secret-token" {
			t.Errorf("%s: expected bearer token, got %q", path, got)
		}
	}
}

func TestOAuth2Transport_RedirectDropsTokenForOtherHost(t *testing.T) {
	var (
		mu   sync.Mutex
		got  string
		hits int
	)
	target := testutil.NewLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = r.Header.Get("Authorization")
		hits++
		mu.Unlock()
		_, _ = w.Write([]byte("elsewhere"))
	}))
	origin := testutil.NewLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret-token" {
			t.Errorf("origin expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		http.Redirect(w, r, target.URL+"/collect", http.StatusFound)
	}))

	client := newTestClient(t, NewBuilder().WithTokenSource(staticTokenSource("secret-token")))
	body, err := client.RetrieveResponse(context.Background(), mustEndpoint(t, origin.URL+"/start"), NoBody, nil, "GET")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "elsewhere" {
		t.Fatalf("expected redirect target body, got %q", body)
	}

	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Fatalf("expected one request at the redirect target, got %d", hits)
	}
	if got != "" {
		t.Errorf("redirect target received Authorization %q", got)
	}
}
