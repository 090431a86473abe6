package provider

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"ci-tracker/src/pool"
	"ci-tracker/src/retry"
)

var (
	ErrAuthFailed     = errors.New("authentication failed")
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrNetworkTimeout = errors.New("network timeout")
	// ErrMalformedResponse means the upstream answered with a body we could not decode.
	ErrMalformedResponse = errors.New("malformed response")
)

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Unwrap maps well known status codes to the package sentinels.
func (e *HTTPError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthFailed
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return ErrNetworkTimeout
	}
	return nil
}

// CheckResponse returns nil for 2xx responses. Otherwise it drains the body
// into an HTTPError; authentication failures are marked fatal so they are
// not retried.
func CheckResponse(providerName string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := &HTTPError{Provider: providerName, StatusCode: resp.StatusCode, Body: string(body)}
	if errors.Is(err, ErrAuthFailed) {
		return retry.Fatal(err)
	}
	return err
}

// UserError wraps errors with user-friendly messages
type UserError struct {
	Message string
	Hint    string
	Err     error
}

func (e *UserError) Error() string {
	msg := e.Message
	if e.Hint != "" {
		msg += "\n\nHint: " + e.Hint
	}
	if e.Err != nil {
		msg += fmt.Sprintf("\n\nDetails: %v", e.Err)
	}
	return msg
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// WrapError converts API errors to user-friendly messages
func WrapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrAuthFailed) {
		return &UserError{
			Message: "Authentication failed",
			Hint:    "Check that your API tokens are valid and have the correct permissions.\n  - Buildkite: Set BUILDKITE_TOKEN\n  - GitHub: Set GITHUB_TOKEN\n  - S3: Configure AWS credentials (AWS_PROFILE or AWS_ACCESS_KEY_ID)",
			Err:     err,
		}
	}

	if errors.Is(err, ErrRateLimited) {
		return &UserError{
			Message: "Rate limited by an upstream API",
			Hint:    "Lower the concurrency settings or rerun with the cached flags so fewer requests are made.",
			Err:     err,
		}
	}

	if errors.Is(err, pool.ErrTooManyErrors) {
		return &UserError{
			Message: "Too many upstream failures, the run was aborted",
			Hint:    "The previous ledger and snapshot were left untouched. Check network access and rerun.",
			Err:     err,
		}
	}

	return err
}
