package registryinspector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// RegistryError is implemented by every error kind returned from registry
// operations. Use errors.As with the concrete types to tell them apart.
type RegistryError interface {
	error
	registryError()
}

// AuthError reports that a pull token could not be obtained.
type AuthError struct {
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("token request failed: %s", e.Err)
	case e.Message != "":
		return fmt.Sprintf("token request failed: %d %s - %s", e.Status, http.StatusText(e.Status), e.Message)
	default:
		return fmt.Sprintf("token request failed: %d %s", e.Status, http.StatusText(e.Status))
	}
}

func (e *AuthError) Unwrap() error { return e.Err }

// HTTPError reports a non-2xx response from a registry endpoint.
type HTTPError struct {
	Operation string
	Status    int
	Body      string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s failed: %d %s", e.Operation, e.Status, http.StatusText(e.Status))
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += " - " + body
	}
	return msg
}

// TimeoutError reports that a connect or read deadline was exceeded.
type TimeoutError struct {
	Operation string
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %s", e.Operation, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ParseError reports a response body or header that is not in the expected format.
type ParseError struct {
	Operation string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: response is not in the expected format: %s", e.Operation, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RequestError reports any other failure to complete a request.
type RequestError struct {
	Operation string
	Err       error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: request failed: %s", e.Operation, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// LayerError wraps the failure to resolve the size of one layer.
type LayerError struct {
	Digest string
	Err    error
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("layer %s: %s", e.Digest, e.Err)
}

func (e *LayerError) Unwrap() error { return e.Err }

func (*AuthError) registryError()    {}
func (*HTTPError) registryError()    {}
func (*TimeoutError) registryError() {}
func (*ParseError) registryError()   {}
func (*RequestError) registryError() {}
func (*LayerError) registryError()   {}

// IsNotFound reports whether err carries a 404 response for the repository
// or tag. A missing layer blob does not count.
func IsNotFound(err error) bool {
	var layerErr *LayerError
	if errors.As(err, &layerErr) {
		return false
	}
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound
}

// IsTimeout reports whether err is a connect or read timeout.
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

// transportError classifies an error returned by the HTTP client.
func transportError(operation string, err error) error {
	var regErr RegistryError
	if errors.As(err, &regErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Operation: operation, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Operation: operation, Err: err}
	}
	return &RequestError{Operation: operation, Err: err}
}
