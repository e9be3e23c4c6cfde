package httpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

// ErrInvalidArgument is returned for caller-contract violations detected
// before any network I/O, such as a body attached to a GET request.
var ErrInvalidArgument = errors.New("httpclient: invalid argument")

// ErrRateLimited is returned when the client-side rate limiter gives up
// before the request is sent, because the context ended or its deadline
// would pass first. It wraps the limiter's error.
var ErrRateLimited = errors.New("httpclient: rate limit wait aborted")

// FallbackMessage is used when the transport fails without a description.
const FallbackMessage = "Failed to request resource."

var (
	errTooManyRedirects = errors.New("stopped after maximum redirects")
	errBodyTooLarge     = errors.New("response body exceeds limit")
)

// ErrorCode classifies a transport failure.
type ErrorCode string

// Transport failure classes.
const (
	CodeTimeout          ErrorCode = "timeout"
	CodeDNS              ErrorCode = "dns"
	CodeTLS              ErrorCode = "tls"
	CodeConnection       ErrorCode = "connection"
	CodeTooManyRedirects ErrorCode = "too_many_redirects"
	CodeReadBody         ErrorCode = "read_body"
	CodeBodyTooLarge     ErrorCode = "body_too_large"
	CodeUnknown          ErrorCode = "unknown"
)

// TokenResponseError is the uniform failure for any request that reached
// the transport. StatusCode is 0 when no response was received.
type TokenResponseError struct {
	StatusCode int
	Code       ErrorCode
	Message    string

	err error
}

// Error implements error.
func (e *TokenResponseError) Error() string {
	return e.Message
}

// Unwrap returns the underlying transport error, if any.
func (e *TokenResponseError) Unwrap() error {
	return e.err
}

// Timeout reports whether the failure was a timeout.
func (e *TokenResponseError) Timeout() bool {
	return e.Code == CodeTimeout
}

// newTokenResponseError builds the error from the transport description,
// falling back to FallbackMessage when the transport gave none.
func newTokenResponseError(statusCode int, code ErrorCode, description string, cause error) *TokenResponseError {
	msg := FallbackMessage
	if description != "" {
		msg = fmt.Sprintf("transport error [%s]: %s", code, description)
	}

	return &TokenResponseError{
		StatusCode: statusCode,
		Code:       code,
		Message:    msg,
		err:        cause,
	}
}

// transportFailure classifies err and wraps it into a TokenResponseError.
func transportFailure(statusCode int, err error) *TokenResponseError {
	return newTokenResponseError(statusCode, classify(err), describe(err), err)
}

// describe strips the *url.Error envelope so the description carries only
// what the transport reported.
func describe(err error) string {
	if err == nil {
		return ""
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}

	return err.Error()
}

func classify(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	switch {
	case errors.Is(err, errTooManyRedirects):
		return CodeTooManyRedirects
	case errors.Is(err, errBodyTooLarge):
		return CodeBodyTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CodeDNS
	}

	if isTLSError(err) {
		return CodeTLS
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return CodeConnection
	}

	return CodeUnknown
}

func isTLSError(err error) bool {
	var (
		recordErr    tls.RecordHeaderError
		verifyErr    *tls.CertificateVerificationError
		alertErr     tls.AlertError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)

	return errors.As(err, &recordErr) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &alertErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}
