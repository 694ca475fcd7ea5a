package registryinspector

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Auth defines the interface for applying authentication to HTTP requests
type Auth interface {
	Apply(req *http.Request)
}

// Refresher is implemented by Auth values that can obtain fresh credentials
// after the registry rejected req with 401 Unauthorized.
// Refresh reports whether req should be repeated.
type Refresher interface {
	Refresh(ctx context.Context, req *http.Request) (bool, error)
}

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// BasicAuth implements HTTP Basic Authentication
type BasicAuth struct {
	Username string
	Password string
}

func (b BasicAuth) Apply(req *http.Request) {
	req.SetBasicAuth(b.Username, b.Password)
}

// BearerAuth implements HTTP Bearer Token Authentication
type BearerAuth struct {
	Token string
}

func (b BearerAuth) Apply(req *http.Request) {
	if b.Token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+b.Token)
}

// Timeouts bounds every registry call.
// Connect applies to dialing, Read to tag and manifest calls, Probe to blob HEAD requests.
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Probe   time.Duration
}

// DefaultTimeouts returns the timeouts used when a field is left zero.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect: 3 * time.Second,
		Read:    10 * time.Second,
		Probe:   5 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Connect <= 0 {
		t.Connect = d.Connect
	}
	if t.Read <= 0 {
		t.Read = d.Read
	}
	if t.Probe <= 0 {
		t.Probe = d.Probe
	}
	return t
}

// Client wraps http.Client with registry-specific configuration
type Client struct {
	http.Client
	BaseURL      string
	Auth         Auth
	Timeouts     Timeouts
	RetryBackoff time.Duration // Initial backoff duration for retries
	MaxAttempts  int           // Maximum number of retry attempts (0 = no retries)
	Logger       Logger        // Optional logger (nil = no logging)
}

// NewClient returns a Client for the registry at baseURL whose transport
// enforces the connect timeout. Redirects are followed.
func NewClient(baseURL string, timeouts Timeouts) *Client {
	timeouts = timeouts.withDefaults()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   timeouts.Connect,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = timeouts.Connect

	return &Client{
		Client:   http.Client{Transport: transport},
		BaseURL:  baseURL,
		Timeouts: timeouts,
	}
}

// Do applies auth before performing the request with retry logic.
// A 401 response is repeated once if the configured Auth can refresh its credentials.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.Auth != nil {
		c.Auth.Apply(req)
	}
	resp, err := c.doWithRetry(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	refresher, ok := c.Auth.(Refresher)
	if !ok {
		return resp, nil
	}
	refreshed, err := refresher.Refresh(req.Context(), req)
	if err != nil {
		c.closeBody(resp.Body)
		return nil, err
	}
	if !refreshed {
		return resp, nil
	}
	c.closeBody(resp.Body)

	c.logDebug("Repeating registry request with refreshed credentials",
		"method", req.Method,
		"url", req.URL.String(),
	)
	retry := req.Clone(req.Context())
	c.Auth.Apply(retry)
	return c.doWithRetry(retry)
}

// retryState holds the state for a retry attempt
type retryState struct {
	lastResp *http.Response
	lastErr  error
}

// doWithRetry executes the request with exponential backoff retry logic
func (c *Client) doWithRetry(req *http.Request) (*http.Response, error) {
	maxAttempts := c.maxAttempts()
	backoff := c.backoff()
	state := &retryState{}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.Client.Do(req)

		if shouldReturnImmediately(resp, err) {
			return resp, nil
		}

		c.updateRetryState(state, resp, err)

		if shouldRetry(attempt, maxAttempts) {
			sleepDuration := getRetryDelay(state.lastResp, attempt, backoff)
			c.logRetryAttempt(req, attempt, maxAttempts, state.lastErr, sleepDuration, state.lastResp)
			if err := sleepContext(req.Context(), sleepDuration); err != nil {
				state.lastErr = err
				break
			}
		}
	}

	return c.handleMaxRetriesExceeded(req, maxAttempts, state)
}

// sleepContext waits for d or until ctx is done, whichever comes first
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// shouldReturnImmediately checks if we should return the response without retrying
func shouldReturnImmediately(resp *http.Response, err error) bool {
	if err != nil {
		return false
	}
	return !isRetryableStatus(resp.StatusCode)
}

// updateRetryState updates the retry state with the latest response/error
func (c *Client) updateRetryState(state *retryState, resp *http.Response, err error) {
	if err == nil {
		// Close previous response body if exists
		if state.lastResp != nil {
			c.closeBody(state.lastResp.Body)
		}
		state.lastResp = resp
		state.lastErr = fmt.Errorf("retryable status code: %d", resp.StatusCode)
	} else {
		state.lastErr = err
	}
}

// shouldRetry determines if another retry attempt should be made
func shouldRetry(attempt, maxAttempts int) bool {
	return attempt < maxAttempts
}

// getRetryDelay calculates the delay before the next retry attempt
func getRetryDelay(resp *http.Response, attempt int, backoff time.Duration) time.Duration {
	if resp != nil {
		if retryAfter := parseRetryAfter(resp); retryAfter > 0 {
			return retryAfter
		}
	}
	return calculateBackoff(attempt, backoff)
}

// logRetryAttempt logs the retry attempt with appropriate context
func (c *Client) logRetryAttempt(req *http.Request, attempt, maxAttempts int, err error, sleepDuration time.Duration, resp *http.Response) {
	if resp != nil && parseRetryAfter(resp) > 0 {
		c.logRetryWithRetryAfter(req, attempt, maxAttempts, err, sleepDuration)
	} else {
		c.logRetry(req, attempt, maxAttempts, err, c.backoff())
	}
}

// handleMaxRetriesExceeded handles the case when all retry attempts are exhausted
func (c *Client) handleMaxRetriesExceeded(req *http.Request, maxAttempts int, state *retryState) (*http.Response, error) {
	// A single attempt is the fail-fast default; only report exhaustion when retries were configured.
	if maxAttempts > 1 {
		c.logMaxRetriesExceeded(req, maxAttempts, state.lastErr)
	}

	// If we have a response with a retryable status, return it instead of error
	if state.lastResp != nil {
		return state.lastResp, nil
	}

	if maxAttempts == 1 {
		return nil, state.lastErr
	}
	return nil, fmt.Errorf("max retries exceeded: %w", state.lastErr)
}

// maxAttempts returns the maximum number of attempts (at least 1)
func (c *Client) maxAttempts() int {
	if c.MaxAttempts <= 0 {
		return 1
	}
	return c.MaxAttempts
}

// backoff returns the initial backoff duration with default fallback
func (c *Client) backoff() time.Duration {
	if c.RetryBackoff <= 0 {
		return 100 * time.Millisecond
	}
	return c.RetryBackoff
}

// readTimeout bounds tag-list and manifest calls
func (c *Client) readTimeout() time.Duration {
	return c.Timeouts.withDefaults().Read
}

// probeTimeout bounds blob metadata probes
func (c *Client) probeTimeout() time.Duration {
	return c.Timeouts.withDefaults().Probe
}

// isRetryableStatus returns true if the status code warrants a retry
func isRetryableStatus(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}

// calculateBackoff returns the backoff duration for the given attempt using exponential backoff
func calculateBackoff(attempt int, baseBackoff time.Duration) time.Duration {
	exp := max(attempt-1, 0)
	return baseBackoff * time.Duration(1<<exp)
}

// parseRetryAfter parses the Retry-After header and returns the duration to wait.
// Returns 0 if the header is not present or cannot be parsed.
// Supports both delay-seconds (e.g., "120") and HTTP-date (e.g., "Wed, 21 Oct 2015 07:28:00 GMT")
func parseRetryAfter(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	// Try parsing as seconds
	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	// Try parsing as HTTP-date
	if t, err := http.ParseTime(retryAfter); err == nil {
		if duration := time.Until(t); duration > 0 {
			return duration
		}
	}

	return 0
}

// logRetry logs a retry attempt if a logger is configured
func (c *Client) logRetry(req *http.Request, attempt, maxAttempts int, err error, backoff time.Duration) {
	sleepDuration := calculateBackoff(attempt, backoff)
	c.logWarn("Retrying registry request",
		"method", req.Method,
		"url", req.URL.String(),
		"attempt", attempt+1,
		"max_attempts", maxAttempts,
		"reason", err.Error(),
		"backoff", sleepDuration.String(),
	)
}

// logRetryWithRetryAfter logs a retry attempt with Retry-After header if a logger is configured
func (c *Client) logRetryWithRetryAfter(req *http.Request, attempt, maxAttempts int, err error, retryAfter time.Duration) {
	c.logWarn("Retrying registry request",
		"method", req.Method,
		"url", req.URL.String(),
		"attempt", attempt+1,
		"max_attempts", maxAttempts,
		"reason", err.Error(),
		"retry_after", retryAfter.String(),
		"source", "Retry-After header",
	)
}

// logMaxRetriesExceeded logs when max retries are exceeded if a logger is configured
func (c *Client) logMaxRetriesExceeded(req *http.Request, maxAttempts int, err error) {
	c.logError("Registry request max retries exceeded",
		"method", req.Method,
		"url", req.URL.String(),
		"attempts", maxAttempts,
		"last_error", err.Error(),
	)
}

// closeBody closes the response body and logs any error if a logger is configured
func (c *Client) closeBody(body io.Closer) {
	if err := body.Close(); err != nil {
		c.logDebug("Failed to close response body", "error", err.Error())
	}
}

// logDebug logs a debug message if a logger is configured
func (c *Client) logDebug(msg string, args ...any) {
	if c.Logger != nil {
		c.Logger.Debug(msg, args...)
	}
}

// logWarn logs a warning message if a logger is configured
func (c *Client) logWarn(msg string, args ...any) {
	if c.Logger != nil {
		c.Logger.Warn(msg, args...)
	}
}

// logError logs an error message if a logger is configured
func (c *Client) logError(msg string, args ...any) {
	if c.Logger != nil {
		c.Logger.Error(msg, args...)
	}
}
