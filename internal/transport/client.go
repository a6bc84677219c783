// Package transport dispatches signed command requests over HTTP and decodes
// the response envelope. Connection-level failures on read-only commands are
// retried with backoff; everything else surfaces immediately as a classified
// error.
package transport

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/cloudrift-io/cloudstack-client/internal/constants"
	"github.com/cloudrift-io/cloudstack-client/pkg/cloudstack"
)

type commandKey struct{}

// Client sends one signed exchange per call. Safety of concurrent use follows
// from the underlying http.Client.
type Client struct {
	endpoint string
	method   string

	retryClient *retryablehttp.Client

	headers   map[string]string
	userAgent string

	logger   cloudstack.Logger
	debug    bool
	recorder cloudstack.TraceRecorder
}

// Option configures the transport client.
type Option func(*Client)

// WithMethod selects the HTTP verb: "get" (query string) or "post" (form body).
func WithMethod(method string) Option {
	return func(c *Client) { c.method = strings.ToLower(method) }
}

// WithRetry sets the connection-failure retry budget and backoff bounds.
func WithRetry(max int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.retryClient.RetryMax = max
		c.retryClient.RetryWaitMin = waitMin
		c.retryClient.RetryWaitMax = waitMax
	}
}

// WithHTTPClient replaces the underlying HTTP client, typically to install
// TLS configuration.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.retryClient.HTTPClient = httpClient }
}

// WithHeaders sets headers applied to every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) { c.userAgent = userAgent }
}

// WithLogger sets the logger for debug output.
func WithLogger(logger cloudstack.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithDebug enables request/response debug logging.
func WithDebug(debug bool) Option {
	return func(c *Client) { c.debug = debug }
}

// WithTraceRecorder installs the diagnostic side channel.
func WithTraceRecorder(recorder cloudstack.TraceRecorder) Option {
	return func(c *Client) { c.recorder = recorder }
}

// NewClient creates a transport client for the given endpoint URL.
func NewClient(endpoint string, opts ...Option) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.RetryWaitMin = constants.DefaultRetryWaitMin
	retryClient.RetryWaitMax = constants.DefaultRetryWaitMax
	retryClient.CheckRetry = checkRetry
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = nil

	client := &Client{
		endpoint:    endpoint,
		method:      "get",
		retryClient: retryClient,
		headers:     make(map[string]string),
		userAgent:   "cloudstack-client/1.0",
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// checkRetry retries connection-level failures only, and only for commands
// that cannot mutate state (names starting with "list" or "queryAsync").
// A received response, whatever its status, is never retried here.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err == nil {
		return false, nil
	}

	if command, ok := ctx.Value(commandKey{}).(string); ok && commandRetryable(command) {
		return true, nil
	}

	return false, err
}

func commandRetryable(command string) bool {
	return strings.HasPrefix(command, "list") || strings.HasPrefix(command, "queryAsync")
}

// Response is one decoded exchange.
type Response struct {
	Status  int
	Header  http.Header
	Body    []byte
	Payload map[string]any
	XML     *etree.Element
}

// Send performs one signed exchange: it transmits the already-signed
// parameter map and returns the decoded envelope contents. Cancellation and
// deadlines come from ctx.
func (c *Client) Send(
	ctx context.Context,
	command string,
	values map[string]string,
	headers map[string]string,
	format cloudstack.Format,
) (*Response, error) {
	form := url.Values{}
	for k, v := range values {
		form.Set(k, v)
	}

	encoded := form.Encode()

	ctx = context.WithValue(ctx, commandKey{}, command)

	req, err := c.newRequest(ctx, encoded)
	if err != nil {
		return nil, &cloudstack.TransportError{URL: c.endpoint, Err: err}
	}

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	req.Header.Set("User-Agent", c.userAgent)

	requestBody := ""
	if c.method == "post" {
		requestBody = encoded
	}

	requestID := uuid.NewString()
	c.traceRequest(req, requestBody, requestID)

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Request", map[string]interface{}{
			"method":  req.Method,
			"url":     req.URL.String(),
			"command": command,
		})
	}

	resp, err := c.retryClient.Do(req)
	if err != nil {
		return nil, &cloudstack.TransportError{URL: c.endpoint, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &cloudstack.TransportError{URL: c.endpoint, Err: err}
	}

	c.traceResponse(resp, body, requestID)

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Response", map[string]interface{}{
			"status":  resp.StatusCode,
			"command": command,
			"bytes":   len(body),
		})
	}

	return c.decode(resp, body, format)
}

func (c *Client) newRequest(ctx context.Context, encoded string) (*retryablehttp.Request, error) {
	if c.method == "post" {
		req, err := retryablehttp.NewRequestWithContext(
			ctx, http.MethodPost, c.endpoint, []byte(encoded))
		if err != nil {
			return nil, err
		}

		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		return req, nil
	}

	requestURL := c.endpoint
	if encoded != "" {
		requestURL += "?" + encoded
	}

	return retryablehttp.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
}

func (c *Client) traceRequest(req *retryablehttp.Request, body, requestID string) {
	if c.recorder == nil {
		return
	}

	c.recorder.Record(cloudstack.TraceEvent{
		Kind:      cloudstack.TraceRequest,
		RequestID: requestID,
		Time:      time.Now(),
		Method:    req.Method,
		URL:       req.URL.String(),
		Headers:   req.Header.Clone(),
		Body:      body,
	})
}

func (c *Client) traceResponse(resp *http.Response, body []byte, requestID string) {
	if c.recorder == nil {
		return
	}

	c.recorder.Record(cloudstack.TraceEvent{
		Kind:      cloudstack.TraceResponse,
		RequestID: requestID,
		Time:      time.Now(),
		Status:    resp.StatusCode,
		Headers:   resp.Header.Clone(),
		Body:      string(body),
	})
}
