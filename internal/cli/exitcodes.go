package cli

import (
	"errors"
	"fmt"

	"github.com/AmmannChristian/go-oauthhttp/httpclient"
)

// Exit codes for the oauthhttp CLI
const (
	// ExitSuccess indicates the command completed
	ExitSuccess = 0

	// ExitFailure indicates a rejected token or any other failure
	ExitFailure = 1

	// ExitConfigError indicates an unreadable or invalid configuration
	ExitConfigError = 3

	// ExitNetworkError indicates a transport failure
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// exitError attaches an exit code to an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func configError(err error) error {
	return &exitError{code: ExitConfigError, err: err}
}

func usageError(format string, args ...any) error {
	return &exitError{code: ExitUsageError, err: fmt.Errorf(format, args...)}
}

// exitCode maps err to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}

	var tre *httpclient.TokenResponseError
	if errors.As(err, &tre) {
		return ExitNetworkError
	}

	if errors.Is(err, httpclient.ErrInvalidArgument) {
		return ExitUsageError
	}

	return ExitFailure
}
