package oauth2client

import (
	"errors"
	"testing"
	"time"

	"github.com/AmmannChristian/go-oauthhttp/internal/testutil"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

func TestParseTokenResponse(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		body       string
		wantToken  string
		wantExpiry time.Time
		wantCode   string
		wantErr    error
	}{
		{
			name:       "json with expires_in",
			body:       `{"access_token":"abc","token_type":"Bearer","expires_in":3600}`,
			wantToken:  "abc",
			wantExpiry: now.Add(time.Hour),
		},
		{
			name:       "quoted expires_in",
			body:       `{"access_token":"abc","expires_in":"60"}`,
			wantToken:  "abc",
			wantExpiry: now.Add(time.Minute),
		},
		{
			name:      "no expiry",
			body:      `{"access_token":"abc"}`,
			wantToken: "abc",
		},
		{
			name:       "form encoded",
			body:       "access_token=abc&token_type=bearer&expires_in=120",
			wantToken:  "abc",
			wantExpiry: now.Add(2 * time.Minute),
		},
		{
			name:     "json error",
			body:     `{"error":"invalid_grant","error_description":"expired","error_uri":"https://docs"}`,
			wantCode: "invalid_grant",
		},
		{
			name:     "form error",
			body:     "error=unauthorized_client",
			wantCode: "unauthorized_client",
		},
		{
			name:     "html page",
			body:     "<html><body>Bad Gateway</body></html>",
			wantCode: "invalid_response",
		},
		{
			name:    "missing access token",
			body:    `{"token_type":"Bearer"}`,
			wantErr: ErrMissingAccessToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := parseTokenResponse(tt.body, now)

			if tt.wantCode != "" {
				var retrieveErr *oauth2.RetrieveError
				if !errors.As(err, &retrieveErr) {
					t.Fatalf("expected *oauth2.RetrieveError, got %T: %v", err, err)
				}
				if retrieveErr.ErrorCode != tt.wantCode {
					t.Errorf("expected code %s, got %s", tt.wantCode, retrieveErr.ErrorCode)
				}
				if string(retrieveErr.Body) != tt.body {
					t.Errorf("expected raw body to be kept, got %s", retrieveErr.Body)
				}
				return
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if token.AccessToken != tt.wantToken {
				t.Errorf("expected token %s, got %s", tt.wantToken, token.AccessToken)
			}
			if !token.Expiry.Equal(tt.wantExpiry) {
				t.Errorf("expected expiry %v, got %v", tt.wantExpiry, token.Expiry)
			}
		})
	}
}

func TestParseTokenResponse_JWTExpiryFallback(t *testing.T) {
	key := testutil.GenerateTestKey(t)
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)

	accessToken := testutil.SignToken(t, key, jwt.MapClaims{
		"sub": "service-account",
		"exp": exp.Unix(),
	})

	token, err := parseTokenResponse(`{"access_token":"`+accessToken+`","token_type":"Bearer"}`, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !token.Expiry.Equal(exp) {
		t.Errorf("expected expiry from exp claim %v, got %v", exp, token.Expiry)
	}
}
