// Package transport performs authenticated calls against the backend and
// classifies every outcome into a domain.ActionResult.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"secopsmcp/internal/auth"
	"secopsmcp/internal/domain"
	"secopsmcp/internal/metrics"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Request is a provider-agnostic backend call. Path is relative to the
// client's base URL and may carry its own query string.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	JSON   any
	Form   url.Values
	// Anonymous skips the session header (token acquisition).
	Anonymous bool
}

// Options configures a Client.
type Options struct {
	BaseURL            string
	HTTPClient         *http.Client
	Retry              RetryPolicy
	RateLimitPerMinute int
	UserAgent          string
	Logger             *slog.Logger
}

// Client talks to one backend base URL.
type Client struct {
	baseURL   string
	http      *http.Client
	retry     RetryPolicy
	limiter   *rate.Limiter
	userAgent string
	logger    *slog.Logger
}

func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewHTTPClient(DefaultTimeout, false)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "secopsmcp"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		http:      opts.HTTPClient,
		retry:     opts.Retry,
		userAgent: opts.UserAgent,
		logger:    opts.Logger,
	}
	if opts.RateLimitPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RateLimitPerMinute)), 1)
	}
	return c
}

// Configured reports whether a base URL was supplied.
func (c *Client) Configured() bool { return c != nil && c.baseURL != "" }

func (c *Client) BaseURL() string { return c.baseURL }

// Get is shorthand for a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) domain.ActionResult {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Do sends r and classifies the response. It never returns a Go error: every
// failure is a classified result.
func (c *Client) Do(ctx context.Context, r Request) domain.ActionResult {
	if !c.Configured() {
		return domain.Fail(domain.ConfigurationMissing, "backend base URL is not configured", nil)
	}
	if r.Method == "" {
		r.Method = http.MethodGet
	}

	target, err := c.resolve(r.Path, r.Query)
	if err != nil {
		return domain.Fail(domain.Unexpected, "invalid request path: "+err.Error(), nil)
	}

	var body []byte
	contentType := ""
	switch {
	case r.JSON != nil:
		body, err = json.Marshal(r.JSON)
		if err != nil {
			return domain.Fail(domain.Unexpected, "encode request body: "+err.Error(), nil)
		}
		contentType = "application/json"
	case r.Form != nil:
		body = []byte(r.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	var session *auth.Session
	if !r.Anonymous {
		session = auth.FromContext(ctx)
	}
	requestID := uuid.NewString()

	build := func() (*http.Request, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, r.Method, target, rd)
		if err != nil {
			return nil, err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-ID", requestID)
		session.Apply(req.Header)
		return req, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return transportFailure(err)
		}
	}

	start := time.Now()
	resp, err := doWithRetry(ctx, c.http, r.Method, build, c.retry, c.logger)
	if err != nil {
		var re *retryableError
		if errors.As(err, &re) {
			metrics.RecordBackendResponse(re.statusCode)
			return Classify(re.statusCode, re.body)
		}
		metrics.RecordBackendResponse(0)
		c.logger.Warn("backend request failed", "method", r.Method, "path", r.Path, "request_id", requestID, "err", err)
		return transportFailure(err)
	}
	defer resp.Body.Close()
	metrics.RecordBackendResponse(resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return transportFailure(err)
	}

	c.logger.Debug("backend request done",
		"method", r.Method, "path", r.Path, "status", resp.StatusCode,
		"request_id", requestID, "elapsed", time.Since(start))
	return Classify(resp.StatusCode, data)
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func transportFailure(err error) domain.ActionResult {
	return domain.Fail(domain.TransportError, err.Error(), map[string]any{
		"error":  domain.TransportError.Code(),
		"detail": err.Error(),
	})
}
