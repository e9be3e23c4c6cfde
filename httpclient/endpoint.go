package httpclient

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Endpoint is the target of a single request.
type Endpoint interface {
	// AbsoluteURI returns the full request URI including scheme and host.
	AbsoluteURI() string
	// Host returns the host component sent in the Host header.
	Host() string
}

// URLEndpoint is an immutable Endpoint backed by a parsed URL.
type URLEndpoint struct {
	u *url.URL
}

// ParseEndpoint parses raw into an Endpoint. Only absolute http and https
// URIs with a host are accepted.
func ParseEndpoint(raw string) (URLEndpoint, error) {
	if strings.TrimSpace(raw) == "" {
		return URLEndpoint{}, errors.New("httpclient: endpoint is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return URLEndpoint{}, fmt.Errorf("httpclient: invalid endpoint: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return URLEndpoint{}, fmt.Errorf("httpclient: unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return URLEndpoint{}, errors.New("httpclient: endpoint has no host")
	}

	return URLEndpoint{u: u}, nil
}

// MustParseEndpoint is like ParseEndpoint but panics on error.
func MustParseEndpoint(raw string) URLEndpoint {
	e, err := ParseEndpoint(raw)
	if err != nil {
		panic(err)
	}
	return e
}

// AbsoluteURI implements Endpoint.
func (e URLEndpoint) AbsoluteURI() string {
	if e.u == nil {
		return ""
	}
	return e.u.String()
}

// Host implements Endpoint. The port is kept when the URI carries one.
func (e URLEndpoint) Host() string {
	if e.u == nil {
		return ""
	}
	return e.u.Host
}

// String returns the absolute URI.
func (e URLEndpoint) String() string {
	return e.AbsoluteURI()
}
