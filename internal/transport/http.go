package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/example/calendar-aggregator/internal/logging"
)

// HTTPClient talks to the upstream API over HTTP with bearer authentication.
// A client-side rate limiter keeps burst navigation (rapid window changes in
// a calendar view) from tripping the API's own limits.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// HTTPClientOptions configures an HTTPClient.
type HTTPClientOptions struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	RatePerSecond float64
	RateBurst     int
	Logger        *slog.Logger
}

// NewHTTPClient builds a client for the given API endpoint.
func NewHTTPClient(opts HTTPClientOptions) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  opts.Logger,
	}
}

// Get issues a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string, query url.Values) (*Envelope, error) {
	return c.send(ctx, http.MethodGet, path, query, nil)
}

// Post issues a POST request with a JSON body.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.send(ctx, http.MethodPost, path, nil, body)
}

// Put issues an update. The upstream API does not accept the PUT verb
// directly; updates travel as POST with an X-HTTP-Method-Override header.
func (c *HTTPClient) Put(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.send(ctx, "PUT", path, nil, body)
}

// Delete issues a DELETE request.
func (c *HTTPClient) Delete(ctx context.Context, path string, query url.Values) (*Envelope, error) {
	return c.send(ctx, http.MethodDelete, path, query, nil)
}

func (c *HTTPClient) send(ctx context.Context, method, path string, query url.Values, body any) (*Envelope, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Message: "rate limiter wait aborted", Err: err}
		}
	}

	override := ""
	if method == "PUT" {
		method = http.MethodPost
		override = "PUT"
	}

	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Message: "encode request body", Err: err}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &Error{Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if override != "" {
		req.Header.Set("X-HTTP-Method-Override", override)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: "read response body", Err: err}
	}

	logging.ComponentLogger(ctx, c.logger, "transport", "",
		"method", method, "path", path).DebugContext(ctx, "request completed",
		"status", resp.StatusCode, "duration", time.Since(start))

	envelope := &Envelope{}
	if decodeErr := json.Unmarshal(raw, envelope); decodeErr != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil, &Error{StatusCode: resp.StatusCode, Message: "malformed response body", Err: decodeErr}
		}
		// Non-2xx with an unparseable body still yields a structured failure.
		return nil, &Error{StatusCode: resp.StatusCode, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := envelope.Message
		if message == "" {
			message = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return nil, &Error{StatusCode: resp.StatusCode, Message: message}
	}

	if !envelope.Success {
		message := envelope.Message
		if message == "" {
			message = "unexpected response structure"
		}
		return nil, &Error{StatusCode: resp.StatusCode, Message: message}
	}

	return envelope, nil
}
