package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AmmannChristian/go-oauthhttp/httpclient"
	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for files that are neither YAML nor TOML.
var ErrUnsupportedFormat = errors.New("config: unsupported file format")

// Config is the top-level configuration document.
type Config struct {
	Client        ClientConfig        `yaml:"client" toml:"client"`
	OAuth2        OAuth2Config        `yaml:"oauth2" toml:"oauth2"`
	Introspection IntrospectionConfig `yaml:"introspection" toml:"introspection"`
	JWKS          JWKSConfig          `yaml:"jwks" toml:"jwks"`
}

// ClientConfig configures the HTTP client adapter. Durations are strings
// such as "10s".
type ClientConfig struct {
	MaxRedirects     *int           `yaml:"max_redirects" toml:"max_redirects"`
	Timeout          string         `yaml:"timeout" toml:"timeout"`
	UserAgent        string         `yaml:"user_agent" toml:"user_agent"`
	ForceSSL3        bool           `yaml:"force_ssl3" toml:"force_ssl3"`
	HTTP2            bool           `yaml:"http2" toml:"http2"`
	RequestID        bool           `yaml:"request_id" toml:"request_id"`
	RateLimit        float64        `yaml:"rate_limit" toml:"rate_limit"`
	RateBurst        int            `yaml:"rate_burst" toml:"rate_burst"`
	TLS              TLSConfig      `yaml:"tls" toml:"tls"`
	TransportOptions map[string]any `yaml:"transport_options" toml:"transport_options"`
}

// TLSConfig configures server verification and client certificates.
type TLSConfig struct {
	CAFile             string `yaml:"ca_file" toml:"ca_file"`
	CertFile           string `yaml:"cert_file" toml:"cert_file"`
	KeyFile            string `yaml:"key_file" toml:"key_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" toml:"insecure_skip_verify"`
}

// OAuth2Config configures the client credentials flow.
type OAuth2Config struct {
	TokenURL       string            `yaml:"token_url" toml:"token_url"`
	ClientID       string            `yaml:"client_id" toml:"client_id"`
	ClientSecret   string            `yaml:"client_secret" toml:"client_secret"`
	Scopes         []string          `yaml:"scopes" toml:"scopes"`
	AuthStyle      string            `yaml:"auth_style" toml:"auth_style"`
	EndpointParams map[string]string `yaml:"endpoint_params" toml:"endpoint_params"`
	ExpiryLeeway   string            `yaml:"expiry_leeway" toml:"expiry_leeway"`
}

// IntrospectionConfig configures an RFC 7662 introspection validator.
type IntrospectionConfig struct {
	URL          string `yaml:"url" toml:"url"`
	Issuer       string `yaml:"issuer" toml:"issuer"`
	Audience     string `yaml:"audience" toml:"audience"`
	ClientID     string `yaml:"client_id" toml:"client_id"`
	ClientSecret string `yaml:"client_secret" toml:"client_secret"`
}

// JWKSConfig configures a JWKS verifier.
type JWKSConfig struct {
	URL             string `yaml:"url" toml:"url"`
	Issuer          string `yaml:"issuer" toml:"issuer"`
	Audience        string `yaml:"audience" toml:"audience"`
	RefreshInterval string `yaml:"refresh_interval" toml:"refresh_interval"`
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	return Parse(data, filepath.Ext(path))
}

// Parse decodes data in the format named by ext (".yaml", ".yml" or ".toml").
func Parse(data []byte, ext string) (*Config, error) {
	expanded := []byte(os.ExpandEnv(string(data)))

	cfg := &Config{}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse config file: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Client.MaxRedirects != nil && *c.Client.MaxRedirects < 0 {
		return errors.New("client.max_redirects must not be negative")
	}
	if c.Client.RateLimit < 0 {
		return errors.New("client.rate_limit must not be negative")
	}
	if (c.Client.TLS.CertFile == "") != (c.Client.TLS.KeyFile == "") {
		return errors.New("client.tls.cert_file and client.tls.key_file must be set together")
	}
	for name := range c.Client.TransportOptions {
		if _, err := httpclient.ParseTransportOption(name); err != nil {
			return fmt.Errorf("client.transport_options: %w", err)
		}
	}
	for field, value := range map[string]string{
		"client.timeout":        c.Client.Timeout,
		"oauth2.expiry_leeway":  c.OAuth2.ExpiryLeeway,
		"jwks.refresh_interval": c.JWKS.RefreshInterval,
	} {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	if _, err := parseAuthStyle(c.OAuth2.AuthStyle); err != nil {
		return fmt.Errorf("oauth2.auth_style: %w", err)
	}

	return nil
}

// Builder returns an httpclient.Builder configured from c.
func (c ClientConfig) Builder() (*httpclient.Builder, error) {
	b := httpclient.NewBuilder()

	// An explicit "0s" disables the timeout; an empty value keeps the default.
	if c.Timeout != "" {
		timeout, err := parseDuration(c.Timeout)
		if err != nil {
			return nil, fmt.Errorf("config: client.timeout: %w", err)
		}
		b.WithTimeout(timeout)
	}
	if c.MaxRedirects != nil {
		b.WithMaxRedirects(*c.MaxRedirects)
	}
	if c.UserAgent != "" {
		b.WithUserAgent(c.UserAgent)
	}
	if c.TLS.CAFile != "" || c.TLS.CertFile != "" {
		b.WithTLS(c.TLS.CAFile, c.TLS.CertFile, c.TLS.KeyFile)
	}
	if c.TLS.InsecureSkipVerify {
		b.WithInsecureSkipVerify()
	}
	b.WithForceSSL3(c.ForceSSL3)
	if c.HTTP2 {
		b.WithHTTP2()
	}
	if c.RequestID {
		b.WithRequestID()
	}
	if c.RateLimit > 0 {
		burst := c.RateBurst
		if burst <= 0 {
			burst = 1
		}
		b.WithRateLimit(rate.Limit(c.RateLimit), burst)
	}

	opts, err := c.transportOptions()
	if err != nil {
		return nil, err
	}
	if len(opts) > 0 {
		b.WithTransportOptions(opts)
	}

	return b, nil
}

func (c ClientConfig) transportOptions() (map[httpclient.TransportOption]any, error) {
	opts := make(map[httpclient.TransportOption]any, len(c.TransportOptions))
	for name, value := range c.TransportOptions {
		opt, err := httpclient.ParseTransportOption(name)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		opts[opt] = value
	}
	return opts, nil
}

// ClientCredentials returns the clientcredentials configuration for o.
func (o OAuth2Config) ClientCredentials() (*clientcredentials.Config, error) {
	if o.TokenURL == "" {
		return nil, errors.New("config: oauth2.token_url is required")
	}
	if o.ClientID == "" {
		return nil, errors.New("config: oauth2.client_id is required")
	}

	style, err := parseAuthStyle(o.AuthStyle)
	if err != nil {
		return nil, fmt.Errorf("config: oauth2.auth_style: %w", err)
	}

	cfg := &clientcredentials.Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		TokenURL:     o.TokenURL,
		Scopes:       o.Scopes,
		AuthStyle:    style,
	}
	if len(o.EndpointParams) > 0 {
		cfg.EndpointParams = make(map[string][]string, len(o.EndpointParams))
		for k, v := range o.EndpointParams {
			cfg.EndpointParams[k] = []string{v}
		}
	}

	return cfg, nil
}

// Leeway returns the parsed expiry leeway, or zero when unset.
func (o OAuth2Config) Leeway() time.Duration {
	d, _ := parseDuration(o.ExpiryLeeway)
	return d
}

// Interval returns the parsed refresh interval, or zero when unset.
func (j JWKSConfig) Interval() time.Duration {
	d, _ := parseDuration(j.RefreshInterval)
	return d
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", value)
	}
	return d, nil
}

func parseAuthStyle(value string) (oauth2.AuthStyle, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return oauth2.AuthStyleAutoDetect, nil
	case "header", "basic":
		return oauth2.AuthStyleInHeader, nil
	case "params", "post":
		return oauth2.AuthStyleInParams, nil
	default:
		return 0, fmt.Errorf("unknown auth style %q", value)
	}
}
