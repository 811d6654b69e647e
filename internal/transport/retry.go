package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

// RetryPolicy controls how transient failures are retried.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy is used when the config does not override it.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond}
}

// retryableError is a transient HTTP failure whose retries ran out.
type retryableError struct {
	statusCode int
	body       []byte
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.statusCode, excerpt(string(e.body), maxExcerpt))
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// retryableStatus reports whether a response status may be retried for the
// given method. Writes are only retried when the server says it did not
// process the request.
func retryableStatus(method string, status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return idempotent(method)
	}
	return false
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := p.BaseDelay << (attempt - 1)
	jitter := time.Duration(rand.Int64N(int64(base/2 + 1)))
	return base + jitter
}

// doWithRetry executes an HTTP request with exponential backoff. Network
// failures are retried for idempotent methods only.
func doWithRetry(ctx context.Context, client *http.Client, method string, buildReq func() (*http.Request, error), policy RetryPolicy, logger *slog.Logger) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := policy.backoff(attempt)
			logger.Warn("retrying request", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, err
			}
			if attempt < policy.MaxRetries && idempotent(method) {
				logger.Warn("request failed, will retry", "error", err)
				continue
			}
			return nil, err
		}

		if retryableStatus(method, resp.StatusCode) {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			resp.Body.Close()
			lastErr = &retryableError{statusCode: resp.StatusCode, body: body}
			if attempt < policy.MaxRetries {
				logger.Warn("transient server error, will retry", "status", resp.StatusCode)
				continue
			}
			return nil, lastErr
		}

		return resp, nil
	}

	return nil, lastErr
}
