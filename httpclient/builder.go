package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds a call when WithTimeout is not used.
	DefaultTimeout = 15 * time.Second
	// DefaultMaxRedirects is the redirect limit when WithMaxRedirects is not used.
	DefaultMaxRedirects = 5
	// DefaultUserAgent is sent when WithUserAgent is not used.
	DefaultUserAgent = "go-oauthhttp"
)

// Builder provides a fluent interface for constructing a Client
// with optional OAuth2 authentication and TLS/mTLS support.
type Builder struct {
	// OAuth2 configuration
	tokenSource TokenSource

	// TLS configuration
	tlsEnabled    bool
	tlsCAFile     string
	tlsCertFile   string
	tlsKeyFile    string
	tlsSkipVerify bool
	forceSSL3     bool

	// HTTP client configuration
	timeout          time.Duration
	maxRedirects     int
	userAgent        string
	baseTransport    http.RoundTripper
	transportOptions map[TransportOption]any
	http2            bool
	requestID        bool

	// Instrumentation
	registerer prometheus.Registerer
	rateLimit  rate.Limit
	rateBurst  int
}

// NewBuilder creates a new client builder.
func NewBuilder() *Builder {
	return &Builder{
		timeout:      DefaultTimeout,
		maxRedirects: DefaultMaxRedirects,
		userAgent:    DefaultUserAgent,
	}
}

// WithTokenSource injects "Authorization: Bearer" headers obtained from ts
// into every request.
func (b *Builder) WithTokenSource(ts TokenSource) *Builder {
	b.tokenSource = ts
	return b
}

// WithTLS enables TLS for the connection.
//
// Parameters:
//   - caFile: Path to CA certificate for server verification (optional, uses system roots if empty)
//   - certFile: Path to client certificate for mTLS (optional, must be paired with keyFile)
//   - keyFile: Path to client private key for mTLS (optional, must be paired with certFile)
func (b *Builder) WithTLS(caFile, certFile, keyFile string) *Builder {
	b.tlsEnabled = true
	b.tlsCAFile = caFile
	b.tlsCertFile = certFile
	b.tlsKeyFile = keyFile
	return b
}

// WithInsecureSkipVerify disables TLS certificate verification (NOT RECOMMENDED for production).
// This should only be used for testing or development purposes.
func (b *Builder) WithInsecureSkipVerify() *Builder {
	b.tlsSkipVerify = true
	return b
}

// WithForceSSL3 pins the connection to the oldest protocol version the
// runtime can negotiate. crypto/tls has no SSLv3, so this means TLS 1.0.
// Only use it against legacy servers that cannot negotiate anything newer.
func (b *Builder) WithForceSSL3(force bool) *Builder {
	b.forceSSL3 = force
	return b
}

// WithTimeout sets the total timeout of a call.
// Default is 15 seconds; 0 disables the timeout.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeout = timeout
	return b
}

// WithMaxRedirects sets how many redirects are followed. 0 disables
// following and returns the 3xx response as-is.
func (b *Builder) WithMaxRedirects(n int) *Builder {
	b.maxRedirects = n
	return b
}

// WithoutRedirects disables automatic redirect following.
func (b *Builder) WithoutRedirects() *Builder {
	b.maxRedirects = 0
	return b
}

// WithUserAgent sets the User-Agent sent with every request.
func (b *Builder) WithUserAgent(userAgent string) *Builder {
	b.userAgent = userAgent
	return b
}

// WithBaseTransport sets a custom base transport.
// Transport-level options only take effect when it is an *http.Transport,
// which is cloned before use.
func (b *Builder) WithBaseTransport(transport http.RoundTripper) *Builder {
	b.baseTransport = transport
	return b
}

// WithTransportOptions sets raw overrides applied after every computed
// setting. See TransportOption for the identifiers and accepted values.
func (b *Builder) WithTransportOptions(opts map[TransportOption]any) *Builder {
	b.transportOptions = make(map[TransportOption]any, len(opts))
	for k, v := range opts {
		b.transportOptions[k] = v
	}
	return b
}

// WithHTTP2 enables HTTP/2 negotiation over TLS.
func (b *Builder) WithHTTP2() *Builder {
	b.http2 = true
	return b
}

// WithRequestID adds a random X-Request-Id header to every request unless
// the caller supplies one.
func (b *Builder) WithRequestID() *Builder {
	b.requestID = true
	return b
}

// WithMetrics registers request metrics on reg.
func (b *Builder) WithMetrics(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// WithRateLimit limits calls to limit per second with the given burst.
// Waiting for the limiter happens before any I/O and honours the context.
func (b *Builder) WithRateLimit(limit rate.Limit, burst int) *Builder {
	b.rateLimit = limit
	b.rateBurst = burst
	return b
}

// Build constructs the Client with the configured options.
//
// Returns:
//   - *Client: Configured client, safe for concurrent use
//   - error: Error if configuration is invalid
func (b *Builder) Build() (*Client, error) {
	if b.maxRedirects < 0 {
		return nil, errors.New("httpclient: max redirects must not be negative")
	}
	if b.timeout < 0 {
		return nil, errors.New("httpclient: timeout must not be negative")
	}

	s := settings{
		timeout:      b.timeout,
		maxRedirects: b.maxRedirects,
		userAgent:    b.userAgent,
		requestID:    b.requestID,
	}

	transport, httpTransport, err := b.buildTransport()
	if err != nil {
		return nil, err
	}

	// Raw overrides go last so they can replace any computed value.
	applyTransportOptions(b.transportOptions, &s, httpTransport)

	var metrics *Metrics
	if b.registerer != nil {
		metrics, err = NewMetrics(b.registerer)
		if err != nil {
			return nil, err
		}
		transport = metrics.instrument(transport)
	}

	// Wrap with OAuth2 transport if a token source is set
	if b.tokenSource != nil {
		transport = NewOAuth2Transport(b.tokenSource, transport)
	}

	client := &Client{
		httpClient: &http.Client{
			Transport:     transport,
			Timeout:       s.timeout,
			CheckRedirect: redirectPolicy(s.maxRedirects),
		},
		settings: s,
		config: Config{
			MaxRedirects:     s.maxRedirects,
			Timeout:          s.timeout,
			UserAgent:        s.userAgent,
			TransportOptions: b.transportOptions,
			ForceSSL3:        b.forceSSL3,
		},
		metrics: metrics,
	}

	if b.rateLimit > 0 {
		burst := b.rateBurst
		if burst < 1 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(b.rateLimit, burst)
	}

	return client, nil
}

// buildTransport returns the round tripper to use and, when it is one we
// own, the *http.Transport behind it.
func (b *Builder) buildTransport() (http.RoundTripper, *http.Transport, error) {
	base := b.baseTransport
	if base == nil {
		base = http.DefaultTransport
	}

	httpTransport, ok := base.(*http.Transport)
	if !ok {
		// Custom round tripper (e.g., a test stub): used as-is.
		return base, nil, nil
	}

	httpTransport = httpTransport.Clone()
	// Every call is an isolated session.
	httpTransport.DisableKeepAlives = true

	if b.tlsEnabled || b.tlsSkipVerify {
		tlsConfig, err := b.buildTLSConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("httpclient: TLS config failed: %w", err)
		}
		httpTransport.TLSClientConfig = tlsConfig
	} else {
		// Set secure TLS defaults even when TLS is not explicitly configured
		httpTransport.TLSClientConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	if b.forceSSL3 {
		httpTransport.TLSClientConfig.MinVersion = tls.VersionTLS10 // #nosec G402
		httpTransport.TLSClientConfig.MaxVersion = tls.VersionTLS10
	}

	if b.http2 {
		if _, err := http2.ConfigureTransports(httpTransport); err != nil {
			return nil, nil, fmt.Errorf("httpclient: HTTP/2 setup failed: %w", err)
		}
	}

	return httpTransport, httpTransport, nil
}

// buildTLSConfig constructs the TLS configuration for the client.
func (b *Builder) buildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: b.tlsSkipVerify, // #nosec G402
	}

	// Load CA certificate for server verification
	if b.tlsCAFile != "" {
		caCert, err := os.ReadFile(b.tlsCAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}

		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = certPool
	}

	// Load client certificate for mTLS (if both cert and key are provided)
	if b.tlsCertFile != "" && b.tlsKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(b.tlsCertFile, b.tlsKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	} else if b.tlsCertFile != "" || b.tlsKeyFile != "" {
		return nil, errors.New("both TLS cert and key files must be provided for mTLS")
	}

	return tlsConfig, nil
}
