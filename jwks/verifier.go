package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AmmannChristian/go-oauthhttp/httpclient"
	"github.com/AmmannChristian/go-oauthhttp/internal/validator"
	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultRefreshInterval is how long a downloaded key set is trusted.
	DefaultRefreshInterval = time.Hour
	// DefaultRefreshRateLimit is the minimum gap between refreshes caused by
	// unknown key IDs, and between retries after a failed refresh.
	DefaultRefreshRateLimit = 5 * time.Minute
)

// TokenClaims represents the claims extracted from a validated JWT.
// This is an alias for the shared validator.TokenClaims type.
type TokenClaims = validator.TokenClaims

// Logger is an interface for optional logging in Verifier.
type Logger = validator.Logger

// Executor fetches the JWKS document.
type Executor = validator.Executor

var validMethods = []string{
	jwt.SigningMethodRS256.Name,
	jwt.SigningMethodRS384.Name,
	jwt.SigningMethodRS512.Name,
	jwt.SigningMethodES256.Name,
	jwt.SigningMethodES384.Name,
	jwt.SigningMethodES512.Name,
}

// Verifier validates JWTs against a cached JWKS.
type Verifier struct {
	endpoint         httpclient.Endpoint
	issuer           string
	audience         string
	executor         Executor
	logger           Logger
	refreshInterval  time.Duration
	refreshRateLimit time.Duration
	now              func() time.Time

	// refreshMu serialises downloads; mu guards the fields below it.
	refreshMu   sync.Mutex
	mu          sync.RWMutex
	keys        *keyfunc.JWKS
	fetchedAt   time.Time
	attemptedAt time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithExecutor sets the executor used to download the key set.
func WithExecutor(executor Executor) Option {
	return func(v *Verifier) {
		v.executor = executor
	}
}

// WithLogger sets an optional logger.
func WithLogger(logger Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// WithRefreshInterval sets how long a key set is cached. Zero keeps the default.
func WithRefreshInterval(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.refreshInterval = d
		}
	}
}

// WithRefreshRateLimit sets the minimum gap between unknown-kid refreshes
// and between retries of a failed refresh while a stale key set is cached.
func WithRefreshRateLimit(d time.Duration) Option {
	return func(v *Verifier) {
		v.refreshRateLimit = d
	}
}

// New creates a verifier for tokens issued by issuer for audience. No request
// is made until the first validation or an explicit Refresh.
func New(jwksURL, issuer, audience string, opts ...Option) (*Verifier, error) {
	if jwksURL == "" {
		return nil, errors.New("jwks: JWKS URL is required")
	}
	if issuer == "" {
		return nil, errors.New("jwks: issuer is required")
	}
	if audience == "" {
		return nil, errors.New("jwks: audience is required")
	}

	endpoint, err := httpclient.ParseEndpoint(jwksURL)
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}

	v := &Verifier{
		endpoint:         endpoint,
		issuer:           issuer,
		audience:         audience,
		refreshInterval:  DefaultRefreshInterval,
		refreshRateLimit: DefaultRefreshRateLimit,
		now:              time.Now,
	}

	for _, opt := range opts {
		opt(v)
	}

	if v.executor == nil {
		client, err := httpclient.NewBuilder().Build()
		if err != nil {
			return nil, fmt.Errorf("jwks: %w", err)
		}
		v.executor = client
	}

	return v, nil
}

// Refresh downloads the key set now.
func (v *Verifier) Refresh(ctx context.Context) error {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	_, err := v.fetch(ctx)
	return err
}

// KeyIDs returns the key IDs of the cached key set.
func (v *Verifier) KeyIDs() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.keys == nil {
		return nil
	}
	return v.keys.KIDs()
}

// ValidateToken verifies the signature of tokenString and checks its issuer,
// audience, subject, expiry and issued-at claims.
func (v *Verifier) ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(tokenString) == "" {
		return nil, validator.ErrEmptyToken
	}

	keys, err := v.keySet(ctx)
	if err != nil {
		return nil, err
	}

	token, err := v.parse(tokenString, keys)
	if err != nil && errors.Is(err, keyfunc.ErrKIDNotFound) {
		if refreshed, ok := v.refreshUnknownKID(ctx, keys); ok {
			token, err = v.parse(tokenString, refreshed)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("jwks: token validation failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("jwks: failed to extract token claims")
	}

	tokenClaims, err := v.buildClaims(claims)
	if err != nil {
		return nil, err
	}

	if v.logger != nil {
		v.logger.Printf("jwks: validated token for subject %s with scopes %v", tokenClaims.Subject, tokenClaims.Scopes)
	}

	return tokenClaims, nil
}

func (v *Verifier) parse(tokenString string, keys *keyfunc.JWKS) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenString, keys.Keyfunc,
		jwt.WithValidMethods(validMethods),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is invalid")
	}
	return token, nil
}

func (v *Verifier) buildClaims(claims jwt.MapClaims) (*TokenClaims, error) {
	iss, err := claims.GetIssuer()
	if err != nil || iss != v.issuer {
		return nil, fmt.Errorf("jwks: invalid issuer: expected %s, got %s", v.issuer, iss)
	}

	aud, err := claims.GetAudience()
	if err != nil {
		return nil, fmt.Errorf("jwks: invalid audience claim: %w", err)
	}
	if !validator.Contains(aud, v.audience) {
		return nil, fmt.Errorf("jwks: invalid audience: expected %s in %v", v.audience, aud)
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("jwks: invalid subject claim: %w", err)
	}
	if sub == "" {
		return nil, errors.New("jwks: invalid subject claim: empty")
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("jwks: invalid expiry claim: %w", err)
	}
	if exp == nil {
		return nil, errors.New("jwks: invalid expiry claim: missing")
	}

	iat, err := claims.GetIssuedAt()
	if err != nil {
		return nil, fmt.Errorf("jwks: invalid issued at claim: %w", err)
	}
	if iat == nil {
		return nil, errors.New("jwks: invalid issued at claim: missing")
	}

	email, _ := claims["email"].(string)

	return &TokenClaims{
		Subject:  sub,
		Issuer:   iss,
		Audience: aud,
		Expiry:   exp.Time,
		IssuedAt: iat.Time,
		Scopes:   validator.ExtractScopes(claims),
		Email:    email,
	}, nil
}

// keySet returns the cached key set, downloading it when missing or stale.
// A stale set is still used if the download fails, and no new download is
// attempted for refreshRateLimit after a failure.
func (v *Verifier) keySet(ctx context.Context) (*keyfunc.JWKS, error) {
	if keys, ok := v.cachedKeySet(); ok {
		return keys, nil
	}

	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	if keys, ok := v.cachedKeySet(); ok {
		return keys, nil
	}

	v.mu.RLock()
	stale := v.keys
	v.mu.RUnlock()

	fresh, err := v.fetch(ctx)
	if err != nil {
		if stale != nil {
			if v.logger != nil {
				v.logger.Printf("jwks: refresh failed, using cached key set: %v", err)
			}
			return stale, nil
		}
		return nil, err
	}
	return fresh, nil
}

// cachedKeySet reports the cached keys when they are fresh, or stale but
// inside the retry backoff of a failed refresh.
func (v *Verifier) cachedKeySet() (*keyfunc.JWKS, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.keys == nil {
		return nil, false
	}
	now := v.now()
	if now.Sub(v.fetchedAt) < v.refreshInterval {
		return v.keys, true
	}
	if v.attemptedAt.After(v.fetchedAt) && now.Sub(v.attemptedAt) < v.refreshRateLimit {
		return v.keys, true
	}
	return nil, false
}

// refreshUnknownKID downloads the key set once for a token whose kid is not
// in seen. It returns false when the refresh is rate limited or fails.
func (v *Verifier) refreshUnknownKID(ctx context.Context, seen *keyfunc.JWKS) (*keyfunc.JWKS, bool) {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	v.mu.RLock()
	current, attemptedAt := v.keys, v.attemptedAt
	v.mu.RUnlock()

	if current != nil && current != seen {
		return current, true
	}
	if v.now().Sub(attemptedAt) < v.refreshRateLimit {
		return nil, false
	}

	if v.logger != nil {
		v.logger.Printf("jwks: unknown key ID, refreshing key set")
	}
	keys, err := v.fetch(ctx)
	if err != nil {
		return nil, false
	}
	return keys, true
}

// fetch downloads and installs the key set. Callers hold refreshMu.
func (v *Verifier) fetch(ctx context.Context) (*keyfunc.JWKS, error) {
	v.mu.Lock()
	v.attemptedAt = v.now()
	v.mu.Unlock()

	body, err := v.executor.RetrieveResponse(ctx, v.endpoint, httpclient.NoBody,
		map[string]string{"Accept": "application/json"}, "GET")
	if err != nil {
		return nil, fmt.Errorf("jwks: failed to fetch JWKS: %w", err)
	}

	keys, err := keyfunc.NewJSON(json.RawMessage(body))
	if err != nil {
		return nil, fmt.Errorf("jwks: invalid JWKS document: %w", err)
	}

	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = v.now()
	v.mu.Unlock()

	if v.logger != nil {
		v.logger.Printf("jwks: loaded %d keys from %s", keys.Len(), v.endpoint.AbsoluteURI())
	}

	return keys, nil
}
