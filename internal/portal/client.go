// Package portal talks to the NTULearn web portal: login, course listing, content scraping and downloads.
package portal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fclairamb/ntlsync/internal/apperrors"
	"github.com/fclairamb/ntlsync/internal/tree"
	"github.com/fclairamb/ntlsync/internal/version"
)

const (
	// SessionCookie is the cookie carrying the portal session token.
	SessionCookie = "BbRouter"

	// HTTP client configuration.
	defaultHTTPTimeout = 60 * time.Second

	// Rate limiting configuration (~4 requests/second).
	defaultRateInterval = 250 * time.Millisecond

	defaultMaxRetries     = 3
	defaultInitialBackoff = time.Second

	// HTTP status codes.
	httpStatusBadRequest = 400 // First status code indicating an error
)

// Client is an NTULearn client with rate limiting. It holds the session once logged in.
type Client struct {
	httpClient     *http.Client
	jar            http.CookieJar
	rateLimiter    *rate.Limiter
	baseURL        string
	maxRetries     int
	initialBackoff time.Duration
	session        string
	logger         *slog.Logger
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. Its cookie jar is replaced by the client's.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = l
	}
}

// WithBaseURL sets a custom portal URL (useful for testing).
func WithBaseURL(u string) ClientOption {
	return func(client *Client) {
		client.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the timeout of every HTTP request.
func WithTimeout(d time.Duration) ClientOption {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// WithRateInterval sets the minimum delay between two requests. Zero disables rate limiting.
func WithRateInterval(d time.Duration) ClientOption {
	return func(client *Client) {
		client.rateLimiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithMaxRetries sets how many times a throttled request is attempted.
func WithMaxRetries(n int) ClientOption {
	return func(client *Client) {
		client.maxRetries = n
	}
}

// WithBackoff sets the delay before the first retry. It doubles on every attempt.
func WithBackoff(d time.Duration) ClientOption {
	return func(client *Client) {
		client.initialBackoff = d
	}
}

// WithSession reuses an existing BbRouter token instead of logging in.
func WithSession(token string) ClientOption {
	return func(client *Client) {
		client.session = token
	}
}

// NewClient creates a new portal client.
func NewClient(opts ...ClientOption) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	client := &Client{
		httpClient:     &http.Client{Timeout: defaultHTTPTimeout},
		jar:            jar,
		rateLimiter:    rate.NewLimiter(rate.Every(defaultRateInterval), 1),
		baseURL:        tree.DefaultBaseURL,
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(client)
	}
	client.httpClient.Jar = jar

	if client.session != "" {
		if err := client.setSession(client.session); err != nil {
			return nil, err
		}
	}

	return client, nil
}

// BaseURL returns the portal URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Session returns the BbRouter token, empty before login.
func (c *Client) Session() string {
	return c.session
}

func (c *Client) setSession(token string) error {
	u, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	c.jar.SetCookies(u, []*http.Cookie{{Name: SessionCookie, Value: token, Path: "/"}})
	c.session = token
	return nil
}

// sessionCookie reads the BbRouter cookie currently held for the portal.
func (c *Client) sessionCookie() string {
	u, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return ""
	}
	for _, cookie := range c.jar.Cookies(u) {
		if cookie.Name == SessionCookie {
			return cookie.Value
		}
	}
	return ""
}

func (c *Client) requireSession() error {
	if !strings.Contains(c.session, "user") {
		return apperrors.ErrNotAuthenticated
	}
	return nil
}

// request describes an HTTP call. A non-nil form is sent url-encoded.
type request struct {
	method  string
	url     string
	query   url.Values
	form    url.Values
	headers map[string]string
}

// response is a fully read HTTP response. URL is the location after redirects.
type response struct {
	StatusCode    int
	URL           *url.URL
	Header        http.Header
	ContentLength int64
	Body          []byte
}

func (c *Client) newRequest(ctx context.Context, r request) (*http.Request, error) {
	target := r.url
	if len(r.query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + r.query.Encode()
	}

	var body io.Reader
	if r.form != nil {
		body = strings.NewReader(r.form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", "ntlsync/"+version.Version)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if r.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// send performs r with rate limiting and retries on throttling. The caller closes the body.
//
//nolint:funlen // HTTP client with retry logic and error handling
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	c.logger.DebugContext(ctx, "portal request", "method", r.method, "url", r.url)
	startTime := time.Now()
	backoff := c.initialBackoff

	attempts := max(c.maxRetries, 1)
	for attempt := range attempts {
		// Wait for rate limiter
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		// Bodies are consumed by each attempt.
		req, err := c.newRequest(ctx, r)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("do request: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			_, _ = io.Copy(io.Discard, resp.Body)
			if closeErr := resp.Body.Close(); closeErr != nil {
				c.logger.WarnContext(ctx, "failed to close response body", "error", closeErr)
			}
			c.logger.WarnContext(ctx, "throttled, backing off",
				"url", r.url, "status", resp.StatusCode, "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				continue
			}
		}

		if resp.StatusCode >= httpStatusBadRequest {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			_ = resp.Body.Close()
			return nil, apperrors.NewHTTPError(resp.StatusCode, strings.TrimSpace(string(body)))
		}

		c.logger.DebugContext(ctx, "portal response",
			"method", r.method, "url", resp.Request.URL.String(), "status", resp.StatusCode,
			"duration", time.Since(startTime))
		return resp, nil
	}

	return nil, apperrors.ErrMaxRetriesExceeded
}

const maxErrorBody = 4096

// do performs r and reads the whole response.
func (c *Client) do(ctx context.Context, r request) (*response, error) {
	resp, err := c.send(ctx, r)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if closeErr := resp.Body.Close(); closeErr != nil {
		c.logger.WarnContext(ctx, "failed to close response body", "error", closeErr)
	}
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &response{
		StatusCode:    resp.StatusCode,
		URL:           resp.Request.URL,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
		Body:          body,
	}, nil
}

// page fetches a portal page the way the portal's own scripts do.
func (c *Client) page(ctx context.Context, path string, query url.Values) (*response, error) {
	return c.do(ctx, request{
		method: http.MethodGet,
		url:    c.baseURL + path,
		query:  query,
		headers: map[string]string{
			"X-Requested-With": "XMLHttpRequest",
		},
	})
}
