package httpclient

import (
	"crypto/tls"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TransportOption identifies a low-level setting that can be overridden
// through Builder.WithTransportOptions.
//
// Options are applied verbatim after every computed setting, so they can
// override any default. Values are not validated: a value of the wrong type
// is ignored, and a well-typed value can still produce requests the remote
// end rejects.
type TransportOption int

const (
	// OptTimeout overrides the total request timeout (time.Duration, seconds as int, or a duration string).
	OptTimeout TransportOption = iota + 1
	// OptMaxRedirects overrides the redirect limit (int).
	OptMaxRedirects
	// OptUserAgent overrides the User-Agent default (string).
	OptUserAgent
	// OptHeaders sets headers after all computed ones, including Host and Connection
	// (http.Header or map[string]string).
	OptHeaders
	// OptProxyURL routes requests through a proxy (string or *url.URL).
	OptProxyURL
	// OptInsecureSkipVerify disables certificate verification (bool).
	OptInsecureSkipVerify
	// OptTLSMinVersion sets the minimum TLS version (uint16 or "1.0".."1.3").
	// Integers outside the uint16 range are ignored like values of the wrong
	// type; in-range values are passed to crypto/tls unchecked.
	OptTLSMinVersion
	// OptTLSMaxVersion sets the maximum TLS version, with the same value rules
	// as OptTLSMinVersion.
	OptTLSMaxVersion
	// OptDisableCompression disables transparent gzip (bool).
	OptDisableCompression
	// OptResponseHeaderTimeout bounds the wait for response headers (duration).
	OptResponseHeaderTimeout
	// OptTLSHandshakeTimeout bounds the TLS handshake (duration).
	OptTLSHandshakeTimeout
	// OptMaxResponseBytes caps the buffered response body; 0 means unlimited (int64).
	OptMaxResponseBytes
)

var optionNames = map[TransportOption]string{
	OptTimeout:               "timeout",
	OptMaxRedirects:          "max_redirects",
	OptUserAgent:             "user_agent",
	OptHeaders:               "headers",
	OptProxyURL:              "proxy_url",
	OptInsecureSkipVerify:    "insecure_skip_verify",
	OptTLSMinVersion:         "tls_min_version",
	OptTLSMaxVersion:         "tls_max_version",
	OptDisableCompression:    "disable_compression",
	OptResponseHeaderTimeout: "response_header_timeout",
	OptTLSHandshakeTimeout:   "tls_handshake_timeout",
	OptMaxResponseBytes:      "max_response_bytes",
}

// String returns the snake_case name of the option.
func (o TransportOption) String() string {
	if name, ok := optionNames[o]; ok {
		return name
	}
	return "TransportOption(" + strconv.Itoa(int(o)) + ")"
}

// ParseTransportOption maps a snake_case option name to its identifier.
func ParseTransportOption(name string) (TransportOption, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for opt, n := range optionNames {
		if n == normalized {
			return opt, nil
		}
	}
	return 0, fmt.Errorf("httpclient: unknown transport option %q", name)
}

// settings is the resolved, immutable per-client configuration.
type settings struct {
	timeout          time.Duration
	maxRedirects     int
	userAgent        string
	headers          http.Header
	maxResponseBytes int64
	requestID        bool
}

// applyTransportOptions overrides s and, when it is an *http.Transport, t.
// It runs after every computed setting.
func applyTransportOptions(opts map[TransportOption]any, s *settings, t *http.Transport) {
	for opt, value := range opts {
		switch opt {
		case OptTimeout:
			if d, ok := asDuration(value, time.Second); ok {
				s.timeout = d
			}
		case OptMaxRedirects:
			if n, ok := asInt64(value); ok {
				s.maxRedirects = int(n)
			}
		case OptUserAgent:
			if ua, ok := value.(string); ok {
				s.userAgent = ua
			}
		case OptHeaders:
			if h, ok := asHeader(value); ok {
				s.headers = h
			}
		case OptMaxResponseBytes:
			if n, ok := asInt64(value); ok {
				s.maxResponseBytes = n
			}
		default:
			if t != nil {
				applyToTransport(opt, value, t)
			}
		}
	}
}

func applyToTransport(opt TransportOption, value any, t *http.Transport) {
	switch opt {
	case OptProxyURL:
		if u, ok := asURL(value); ok {
			t.Proxy = http.ProxyURL(u)
		}
	case OptInsecureSkipVerify:
		if b, ok := value.(bool); ok {
			tlsConfig(t).InsecureSkipVerify = b // #nosec G402
		}
	case OptTLSMinVersion:
		if v, ok := asTLSVersion(value); ok {
			tlsConfig(t).MinVersion = v
		}
	case OptTLSMaxVersion:
		if v, ok := asTLSVersion(value); ok {
			tlsConfig(t).MaxVersion = v
		}
	case OptDisableCompression:
		if b, ok := value.(bool); ok {
			t.DisableCompression = b
		}
	case OptResponseHeaderTimeout:
		if d, ok := asDuration(value, time.Second); ok {
			t.ResponseHeaderTimeout = d
		}
	case OptTLSHandshakeTimeout:
		if d, ok := asDuration(value, time.Second); ok {
			t.TLSHandshakeTimeout = d
		}
	}
}

func tlsConfig(t *http.Transport) *tls.Config {
	if t.TLSClientConfig == nil {
		t.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return t.TLSClientConfig
}

// asDuration accepts a time.Duration, a duration string, or a bare number
// interpreted in unit.
func asDuration(value any, unit time.Duration) (time.Duration, bool) {
	switch v := value.(type) {
	case time.Duration:
		return v, true
	case string:
		d, err := time.ParseDuration(v)
		return d, err == nil
	}
	if n, ok := asInt64(value); ok {
		return time.Duration(n) * unit, true
	}
	return 0, false
}

func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint16:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func asHeader(value any) (http.Header, bool) {
	switch v := value.(type) {
	case http.Header:
		return v.Clone(), true
	case map[string]string:
		h := make(http.Header, len(v))
		for k, val := range v {
			h.Set(k, val)
		}
		return h, true
	case map[string]any:
		h := make(http.Header, len(v))
		for k, val := range v {
			if s, ok := val.(string); ok {
				h.Set(k, s)
			}
		}
		return h, true
	}
	return nil, false
}

func asURL(value any) (*url.URL, bool) {
	switch v := value.(type) {
	case *url.URL:
		return v, v != nil
	case string:
		u, err := url.Parse(v)
		return u, err == nil
	}
	return nil, false
}

func asTLSVersion(value any) (uint16, bool) {
	if s, ok := value.(string); ok {
		switch strings.TrimPrefix(strings.ToLower(s), "tls") {
		case "1.0", "10":
			return tls.VersionTLS10, true
		case "1.1", "11":
			return tls.VersionTLS11, true
		case "1.2", "12":
			return tls.VersionTLS12, true
		case "1.3", "13":
			return tls.VersionTLS13, true
		}
		return 0, false
	}
	if n, ok := asInt64(value); ok && n >= 0 && n <= math.MaxUint16 {
		return uint16(n), true
	}
	return 0, false
}
