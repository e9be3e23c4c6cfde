package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AmmannChristian/go-oauthhttp/httpclient"
	"github.com/golang-jwt/jwt/v5"
)

// ErrEmptyToken is returned when a blank token is presented for validation.
var ErrEmptyToken = errors.New("validator: token is empty")

// TokenValidator validates an access token and returns its claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*TokenClaims, error)
}

// TokenClaims represents the claims extracted from a validated token.
type TokenClaims struct {
	Subject  string    // Subject (sub) - user or client identifier
	Issuer   string    // Issuer (iss) - token issuer
	Audience []string  // Audience (aud) - intended recipients
	Expiry   time.Time // Expiry time (exp)
	IssuedAt time.Time // Issued at (iat)
	Scopes   []string  // Scopes - extracted from "scope" or "scp" claim
	Email    string    // Email - optional user email
}

// HasScope reports whether scope was granted.
func (c *TokenClaims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	return Contains(c.Scopes, scope)
}

// Logger is an interface for optional logging in validators.
type Logger interface {
	Printf(format string, args ...any)
}

// Executor performs a single HTTP exchange. *httpclient.Client implements it.
type Executor interface {
	RetrieveResponse(ctx context.Context, endpoint httpclient.Endpoint, body httpclient.Body, extraHeaders map[string]string, method string) (string, error)
}

// ExtractScopes extracts scopes from claims.
// Supports both "scope" and "scp" claims, as a space-separated string or an array.
func ExtractScopes(claims jwt.MapClaims) []string {
	for _, key := range []string{"scope", "scp"} {
		switch value := claims[key].(type) {
		case string:
			return strings.Fields(value)
		case []interface{}:
			scopes := make([]string, 0, len(value))
			for _, s := range value {
				if str, ok := s.(string); ok {
					scopes = append(scopes, str)
				}
			}
			return scopes
		}
	}

	return []string{}
}

// ExtractAudience normalizes an aud claim to a slice.
func ExtractAudience(rawAudience interface{}) []string {
	switch value := rawAudience.(type) {
	case string:
		if value == "" {
			return []string{}
		}
		return []string{value}
	case []interface{}:
		audience := make([]string, 0, len(value))
		for _, audienceValue := range value {
			if audienceString, ok := audienceValue.(string); ok {
				audience = append(audience, audienceString)
			}
		}
		return audience
	case []string:
		return append([]string(nil), value...)
	default:
		return []string{}
	}
}

// ClaimString returns the trimmed string value of key, or "".
func ClaimString(claims map[string]interface{}, key string) string {
	value, ok := claims[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// FirstNonEmpty returns the first non-empty value.
func FirstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

// ParseUnixTimeClaim converts a numeric date claim in any of the encodings
// seen in introspection responses.
func ParseUnixTimeClaim(raw interface{}) (time.Time, error) {
	switch value := raw.(type) {
	case float64:
		return time.Unix(int64(value), 0), nil
	case int64:
		return time.Unix(value, 0), nil
	case int:
		return time.Unix(int64(value), 0), nil
	case json.Number:
		number, err := value.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(number, 0), nil
	case string:
		number, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(number, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected type %T", raw)
	}
}

// Contains checks if a string slice contains a specific value.
func Contains(slice []string, value string) bool {
	for _, item := range slice {
		if item == value {
			return true
		}
	}
	return false
}
