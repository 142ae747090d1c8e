// Package overpass talks to Overpass API interpreters over HTTP.
package overpass

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/streetblock/internal/core/domain"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "streetblock/1.0"
	maxErrorBody     = 512
)

// StatusError is a non-200 answer from an interpreter. 429 and 504 are the
// usual signs of throttling.
type StatusError struct {
	Endpoint domain.Endpoint
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("overpass %s: status %d: %s", e.Endpoint, e.Code, e.Body)
}

// Client posts Overpass QL programs and decodes the JSON answer. It
// implements ports.OverpassClient.
type Client struct {
	http      *fasthttp.Client
	timeout   time.Duration
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each request. The context deadline wins when earlier.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header. Public interpreters ask for one
// that identifies the application.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithDial replaces the dialer, e.g. with an in-memory listener in tests.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = dial }
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: &fasthttp.Client{
			Name:                "streetblock",
			MaxConnsPerHost:     16,
			MaxIdleConnDuration: 30 * time.Second,
			ReadBufferSize:      16 * 1024,
		},
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query sends q to endpoint as the "data" form field. fasthttp has no
// context support, so cancellation is honoured through the deadline only.
func (c *Client) Query(ctx context.Context, endpoint domain.Endpoint, q string) (domain.FeatureCollection, error) {
	if err := ctx.Err(); err != nil {
		return domain.FeatureCollection{}, err
	}
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(endpoint.String())
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.Header.SetUserAgent(c.userAgent)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	req.SetBodyString(url.Values{"data": {q}}.Encode())

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return domain.FeatureCollection{}, fmt.Errorf("overpass %s: %w", endpoint, err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		body := resp.Body()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return domain.FeatureCollection{}, &StatusError{Endpoint: endpoint, Code: code, Body: string(body)}
	}
	return Decode(resp.Body())
}
