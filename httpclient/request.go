package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)

// newRequest builds the outgoing request. It performs no I/O and returns
// ErrInvalidArgument for caller-contract violations.
func (c *Client) newRequest(ctx context.Context, endpoint Endpoint, body Body, extraHeaders map[string]string, method string) (*http.Request, error) {
	if endpoint == nil {
		return nil, fmt.Errorf("%w: endpoint is required", ErrInvalidArgument)
	}

	method = normalizeMethod(method)
	overrides := normalizeHeaders(extraHeaders)

	if method == http.MethodGet && !body.IsEmpty() {
		return nil, fmt.Errorf("%w: no body expected for %q request", ErrInvalidArgument, method)
	}

	header := make(http.Header)
	if c.settings.userAgent != "" {
		header.Set("User-Agent", c.settings.userAgent)
	}
	if c.settings.requestID {
		header.Set("X-Request-Id", uuid.NewString())
	}

	sendsBody := method == http.MethodPost || method == http.MethodPut
	if sendsBody {
		if body.IsStructured() {
			header.Set("Content-Type", contentTypeForm)
		} else {
			header.Set("Content-Type", contentTypeJSON)
		}
	}

	// Caller values win over computed defaults.
	for key, values := range overrides {
		header[key] = values
	}

	// Host and Connection are always forced.
	header.Set("Host", endpoint.Host())
	header.Set("Connection", "close")

	var payload io.Reader
	if sendsBody {
		encoded := body.encode()
		if !body.IsStructured() && len(encoded) > 0 {
			header.Set("Content-Length", strconv.Itoa(len(encoded)))
		}
		if len(encoded) > 0 {
			payload = bytes.NewReader(encoded)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.AbsoluteURI(), payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	for key, values := range c.settings.headers {
		header[key] = append([]string(nil), values...)
	}

	req.Header = header
	req.Host = header.Get("Host")
	req.Close = strings.EqualFold(header.Get("Connection"), "close")
	// net/http writes Host from req.Host and ignores the header map entry.
	req.Header.Del("Host")

	return req, nil
}

// normalizeMethod uppercases method. An empty method defaults to POST.
func normalizeMethod(method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return http.MethodPost
	}
	return method
}

// normalizeHeaders canonicalizes header names so every lookup is
// case-insensitive. Later duplicates in differing case replace earlier ones
// in map iteration order, which Go leaves unspecified.
func normalizeHeaders(headers map[string]string) http.Header {
	normalized := make(http.Header, len(headers))
	for key, value := range headers {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		normalized.Set(key, value)
	}
	return normalized
}
