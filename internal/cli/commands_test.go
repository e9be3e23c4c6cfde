package cli

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/AmmannChristian/go-oauthhttp/internal/testutil"
)

const (
	testIssuer   = "https://auth.example.com"
	testAudience = "my-api"
)

func TestToken_PrintsAccessToken(t *testing.T) {
	server := testutil.NewRecordingServer(t, http.StatusOK,
		`{"access_token":"abc123","token_type":"Bearer","expires_in":600,"scope":"openid profile"}`)

	stdout, stderr, code := execute(t, "token",
		"--token-url", server.URL+"/token",
		"--client-id", "svc",
		"--client-secret", "s3cret",
		"--scope", "openid,profile",
		"--auth-style", "params",
	)
	if code != ExitSuccess {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if stdout != "abc123\n" {
		t.Errorf("stdout = %q", stdout)
	}

	req := server.Last(t)
	for _, want := range []string{"grant_type=client_credentials", "client_id=svc", "client_secret=s3cret", "scope=openid+profile"} {
		if !strings.Contains(req.Body, want) {
			t.Errorf("body %q missing %q", req.Body, want)
		}
	}
	if req.Header.Get("Authorization") != "" {
		t.Error("credentials should not be sent in a header with auth-style params")
	}
}

func TestToken_JSON(t *testing.T) {
	server := testutil.NewRecordingServer(t, http.StatusOK,
		`{"access_token":"abc123","token_type":"bearer","expires_in":600,"scope":"openid profile"}`)

	stdout, stderr, code := execute(t, "--json", "token", "--token-url", server.URL, "--client-id", "svc")
	if code != ExitSuccess {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}

	var doc struct {
		AccessToken string   `json:"access_token"`
		TokenType   string   `json:"token_type"`
		Expiry      string   `json:"expiry"`
		Scope       []string `json:"scope"`
	}
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if doc.AccessToken != "abc123" || doc.TokenType != "Bearer" || doc.Expiry == "" || len(doc.Scope) != 2 {
		t.Errorf("doc = %+v", doc)
	}
	if !strings.HasPrefix(server.Last(t).Header.Get("Authorization"), "Basic ") {
		t.Error("expected Basic client authentication by default")
	}
}

func TestToken_EndpointError(t *testing.T) {
	server := testutil.NewRecordingServer(t, http.StatusUnauthorized,
		`{"error":"invalid_client","error_description":"unknown client"}`)

	_, stderr, code := execute(t, "token", "--token-url", server.URL, "--client-id", "svc")
	if code != ExitFailure {
		t.Errorf("exit code = %d, want %d", code, ExitFailure)
	}
	if !strings.Contains(stderr, "error [invalid_client]") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestIntrospect_ActiveToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	server := testutil.NewRecordingServer(t, http.StatusOK,
		`{"active":true,"sub":"user-1","iss":"`+testIssuer+`","aud":"`+testAudience+`","scope":"read","exp":`+strconv.FormatInt(exp, 10)+`}`)

	args := []string{"introspect", "opaque",
		"--url", server.URL, "--issuer", testIssuer, "--audience", testAudience,
		"--client-id", "rs", "--client-secret", "rs-secret"}

	stdout, stderr, code := execute(t, args...)
	if code != ExitSuccess {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	for _, want := range []string{"token is active", "subject:", "user-1", "read"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout %q missing %q", stdout, want)
		}
	}

	stdout, _, code = execute(t, append([]string{"--json"}, args...)...)
	if code != ExitSuccess {
		t.Fatalf("json exit code = %d", code)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if doc["sub"] != "user-1" {
		t.Errorf("doc = %v", doc)
	}
}

func TestIntrospect_Raw(t *testing.T) {
	server := testutil.NewRecordingServer(t, http.StatusOK, `{"active":false}`)

	stdout, stderr, code := execute(t, "introspect", "opaque", "--raw",
		"--url", server.URL, "--issuer", testIssuer, "--audience", testAudience,
		"--client-id", "rs", "--client-secret", "rs-secret")
	if code != ExitSuccess {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, `"active": false`) {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestIntrospect_InactiveToken(t *testing.T) {
	server := testutil.NewRecordingServer(t, http.StatusOK, `{"active":false}`)

	_, stderr, code := execute(t, "introspect", "opaque",
		"--url", server.URL, "--issuer", testIssuer, "--audience", testAudience,
		"--client-id", "rs", "--client-secret", "rs-secret")
	if code != ExitFailure {
		t.Errorf("exit code = %d, want %d", code, ExitFailure)
	}
	if !strings.Contains(stderr, "inactive") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestIntrospect_MissingSettings(t *testing.T) {
	_, stderr, code := execute(t, "introspect", "opaque")
	if code != ExitConfigError {
		t.Errorf("exit code = %d, want %d", code, ExitConfigError)
	}
	if !strings.Contains(stderr, "introspection URL is required") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestVerify_ValidToken(t *testing.T) {
	key := testutil.GenerateTestKey(t)
	server := testutil.NewRecordingServer(t, http.StatusOK, testutil.JWKSDocument(t, &key.PublicKey))

	claims := testutil.NewJWTClaims(testIssuer, testAudience, "user-42")
	claims["scope"] = "read write"
	token := testutil.SignToken(t, key, claims)

	cfgPath := writeConfig(t, "oauthhttp.yaml", "jwks:\n  url: "+server.URL+"\n  issuer: "+testIssuer+"\n  audience: "+testAudience+"\n")

	stdout, stderr, code := execute(t, "--config", cfgPath, "verify", token)
	if code != ExitSuccess {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	for _, want := range []string{"token is valid", "user-42", "read write"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout %q missing %q", stdout, want)
		}
	}
	if got := server.Last(t).Method; got != http.MethodGet {
		t.Errorf("JWKS fetched with %s", got)
	}
}

func TestVerify_WrongAudience(t *testing.T) {
	key := testutil.GenerateTestKey(t)
	server := testutil.NewRecordingServer(t, http.StatusOK, testutil.JWKSDocument(t, &key.PublicKey))
	token := testutil.SignToken(t, key, testutil.NewJWTClaims(testIssuer, "other-api", "user-42"))

	_, stderr, code := execute(t, "verify", token,
		"--jwks-url", server.URL, "--issuer", testIssuer, "--audience", testAudience)
	if code != ExitFailure {
		t.Errorf("exit code = %d, want %d", code, ExitFailure)
	}
	if !strings.Contains(stderr, "invalid audience") {
		t.Errorf("stderr = %q", stderr)
	}
}
