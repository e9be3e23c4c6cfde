package introspection

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/AmmannChristian/go-oauthhttp/httpclient"
	"github.com/AmmannChristian/go-oauthhttp/internal/validator"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

// TokenClaims represents the claims of an active token.
// This is an alias for the shared validator.TokenClaims type.
type TokenClaims = validator.TokenClaims

// Logger is an interface for optional logging in Validator.
type Logger = validator.Logger

// Executor performs the introspection request.
type Executor = validator.Executor

// ErrInactiveToken is returned when the endpoint reports active=false.
var ErrInactiveToken = errors.New("introspection: token is inactive")

// Validator validates opaque tokens via token introspection.
type Validator struct {
	endpoint      httpclient.Endpoint
	issuer        string
	audience      string
	clientID      string
	clientSecret  string
	tokenTypeHint string
	executor      Executor
	logger        Logger
	now           func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithExecutor sets the executor used for introspection calls.
func WithExecutor(executor Executor) Option {
	return func(v *Validator) {
		v.executor = executor
	}
}

// WithLogger sets an optional logger.
func WithLogger(logger Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithTokenTypeHint overrides the token_type_hint parameter. An empty hint
// omits the parameter.
func WithTokenTypeHint(hint string) Option {
	return func(v *Validator) {
		v.tokenTypeHint = hint
	}
}

// New creates a validator for the introspection endpoint at introspectionURL.
//
// Parameters:
//   - introspectionURL: RFC 7662 introspection endpoint URL
//   - issuer: expected iss when the endpoint reports one
//   - audience: expected aud when the endpoint reports one
//   - clientID, clientSecret: credentials sent with HTTP Basic auth
func New(introspectionURL, issuer, audience, clientID, clientSecret string, opts ...Option) (*Validator, error) {
	if introspectionURL == "" {
		return nil, errors.New("introspection: introspection URL is required")
	}
	if issuer == "" {
		return nil, errors.New("introspection: issuer is required")
	}
	if audience == "" {
		return nil, errors.New("introspection: audience is required")
	}
	if clientID == "" {
		return nil, errors.New("introspection: client ID is required")
	}
	if clientSecret == "" {
		return nil, errors.New("introspection: client secret is required")
	}

	endpoint, err := httpclient.ParseEndpoint(introspectionURL)
	if err != nil {
		return nil, fmt.Errorf("introspection: %w", err)
	}

	v := &Validator{
		endpoint:      endpoint,
		issuer:        issuer,
		audience:      audience,
		clientID:      clientID,
		clientSecret:  clientSecret,
		tokenTypeHint: "access_token",
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(v)
	}

	if v.executor == nil {
		client, err := httpclient.NewBuilder().Build()
		if err != nil {
			return nil, fmt.Errorf("introspection: %w", err)
		}
		v.executor = client
	}

	return v, nil
}

// ValidateToken introspects tokenString and returns its claims when the token
// is active and matches the configured issuer and audience.
func (v *Validator) ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error) {
	raw, err := v.Introspect(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	if active, ok := raw["active"].(bool); !ok || !active {
		return nil, ErrInactiveToken
	}

	claims, err := v.buildClaims(raw)
	if err != nil {
		return nil, err
	}

	if v.logger != nil {
		v.logger.Printf("introspection: token for subject %s with scopes %v", claims.Subject, claims.Scopes)
	}

	return claims, nil
}

// Introspect returns the decoded introspection response without applying any
// policy. Endpoint error documents are returned as *oauth2.RetrieveError.
func (v *Validator) Introspect(ctx context.Context, tokenString string) (map[string]interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(tokenString) == "" {
		return nil, validator.ErrEmptyToken
	}

	form := url.Values{}
	form.Set("token", tokenString)
	if v.tokenTypeHint != "" {
		form.Set("token_type_hint", v.tokenTypeHint)
	}

	headers := map[string]string{
		"Accept":        "application/json",
		"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(url.QueryEscape(v.clientID)+":"+url.QueryEscape(v.clientSecret))),
	}

	body, err := v.executor.RetrieveResponse(ctx, v.endpoint, httpclient.FormValues(form), headers, "POST")
	if err != nil {
		return nil, fmt.Errorf("introspection: request failed: %w", err)
	}

	return decodeResponse(body)
}

func decodeResponse(body string) (map[string]interface{}, error) {
	if !gjson.Valid(body) || !gjson.Parse(body).IsObject() {
		return nil, &oauth2.RetrieveError{
			Body:      []byte(body),
			ErrorCode: "invalid_response",
		}
	}

	if code := gjson.Get(body, "error"); code.Exists() {
		return nil, &oauth2.RetrieveError{
			Body:             []byte(body),
			ErrorCode:        code.String(),
			ErrorDescription: gjson.Get(body, "error_description").String(),
			ErrorURI:         gjson.Get(body, "error_uri").String(),
		}
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("introspection: invalid response: %w", err)
	}

	return raw, nil
}

func (v *Validator) buildClaims(raw map[string]interface{}) (*TokenClaims, error) {
	issuer := v.issuer
	if tokenIssuer := validator.ClaimString(raw, "iss"); tokenIssuer != "" {
		if tokenIssuer != v.issuer {
			return nil, fmt.Errorf("introspection: invalid issuer: expected %s, got %s", v.issuer, tokenIssuer)
		}
		issuer = tokenIssuer
	}

	audience := validator.ExtractAudience(raw["aud"])
	if len(audience) > 0 && !validator.Contains(audience, v.audience) {
		return nil, fmt.Errorf("introspection: invalid audience: expected %s in %v", v.audience, audience)
	}
	if len(audience) == 0 {
		audience = []string{v.audience}
	}

	subject := validator.FirstNonEmpty(
		validator.ClaimString(raw, "sub"),
		validator.ClaimString(raw, "client_id"),
		validator.ClaimString(raw, "username"),
	)
	if subject == "" {
		return nil, errors.New("introspection: invalid subject claim: empty")
	}

	var expiry time.Time
	if expRaw, ok := raw["exp"]; ok {
		parsed, err := validator.ParseUnixTimeClaim(expRaw)
		if err != nil {
			return nil, fmt.Errorf("introspection: invalid expiry claim: %w", err)
		}
		if !parsed.After(v.now()) {
			return nil, errors.New("introspection: token has expired")
		}
		expiry = parsed
	}

	var issuedAt time.Time
	if iatRaw, ok := raw["iat"]; ok {
		parsed, err := validator.ParseUnixTimeClaim(iatRaw)
		if err != nil {
			return nil, fmt.Errorf("introspection: invalid issued at claim: %w", err)
		}
		issuedAt = parsed
	}

	return &TokenClaims{
		Subject:  subject,
		Issuer:   issuer,
		Audience: audience,
		Expiry:   expiry,
		IssuedAt: issuedAt,
		Scopes:   validator.ExtractScopes(jwt.MapClaims(raw)),
		Email: validator.FirstNonEmpty(
			validator.ClaimString(raw, "email"),
			validator.ClaimString(raw, "username"),
		),
	}, nil
}
