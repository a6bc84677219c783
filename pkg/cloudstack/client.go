package cloudstack

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Static errors for err113 compliance.
var (
	ErrConfigRequired   = errors.New("config is required")
	ErrEndpointRequired = errors.New("API endpoint is required")
	ErrAPIKeyRequired   = errors.New("API key is required")
	ErrSecretRequired   = errors.New("API secret is required")
	ErrInvalidMethod    = errors.New("method must be \"get\" or \"post\"")
)

// Client is the entry point to the CloudStack management API. The command
// vocabulary is open-ended: any command name the endpoint understands is a
// valid argument to Invoke.
type Client interface {
	// Invoke sends one named command with the given arguments and returns the
	// unwrapped response payload. Options select pagination (FetchList),
	// asynchronous job resolution (FetchResult), per-call headers, the page
	// size, and the wire format.
	Invoke(ctx context.Context, command string, args map[string]any, opts ...InvokeOption) (*Result, error)
}

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Config represents client configuration for building a cloudstack.Client.
//
// The engine performs no file or environment lookups itself; resolve
// settings externally (see cmd/cs for an ini/env resolver) and hand the
// resulting value to csclient.New. A Config is read-only after construction,
// so one client may be shared freely between goroutines.
//
// # Request expiration
//
// When Expiration is zero the default window (10 minutes) is applied and
// every request carries "expires" and "signatureVersion=3" fields inside the
// signed parameter set. A negative Expiration disables expiration signing
// entirely.
//
// # TLS
//
// CABundle points at a PEM bundle used instead of the system roots.
// SkipTLSVerify disables verification altogether; do not use it in
// production. ClientCert/ClientKey configure a client certificate.
type Config struct {
	// Endpoint: full URL of the management API (e.g. "https://cloud.example.com/client/api").
	Endpoint string
	// APIKey: public key sent as the apiKey parameter on every request.
	APIKey string
	// Secret: shared secret used to HMAC-sign every request. Never transmitted.
	Secret string

	// Method: "get" (parameters in the query string, default) or "post"
	// (form-encoded body).
	Method string
	// Timeout: per-request timeout. Defaults to 10s.
	Timeout time.Duration
	// Retry: transport-level retry budget for read-only commands. Defaults to 0.
	Retry int
	// PollInterval: delay between asynchronous job polls. Defaults to 2s.
	PollInterval time.Duration
	// JobTimeout: overall deadline for resolving an asynchronous job.
	// Zero means effectively unbounded.
	JobTimeout time.Duration
	// Expiration: request-expiration window (see above).
	Expiration time.Duration
	// FetchResult: resolve asynchronous jobs on every call, as if the
	// FetchResult option were always passed.
	FetchResult bool

	// CABundle: path to a PEM CA bundle for server verification.
	CABundle string
	// SkipTLSVerify: disable TLS verification.
	SkipTLSVerify bool
	// ClientCert: path to a PEM client certificate.
	ClientCert string
	// ClientKey: path to the PEM key for ClientCert. Defaults to ClientCert
	// when empty (combined PEM file).
	ClientKey string

	// Headers: default headers attached to every request. Per-call headers
	// passed via WithHeaders take precedence.
	Headers map[string]string
	// UserAgent overrides the default User-Agent header.
	UserAgent string

	// Trace: when true, every outgoing request and incoming response is
	// emitted to the trace recorder. Tracing never alters control flow.
	Trace bool
	// TraceRecorder receives trace events when Trace is set. Defaults to a
	// writer recorder on stderr.
	TraceRecorder TraceRecorder

	// Debug: enables verbose request/response logging when a Logger is provided.
	Debug bool
	// Logger: optional structured logger used by the transport layer.
	Logger Logger

	// HTTPClient: optional reusable transport session. When nil a pooled
	// client is constructed from the TLS settings above. Must be safe for
	// concurrent use.
	HTTPClient *http.Client
}
