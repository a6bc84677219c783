package cloudstack

import (
	"net/http"
	"time"

	"github.com/beevik/etree"
)

// JobStatus is the lifecycle state of an asynchronous job as reported by
// queryAsyncJobResult. Pending is the only non-terminal state.
type JobStatus int

const (
	JobPending JobStatus = 0
	JobSuccess JobStatus = 1
	JobFailure JobStatus = 2
)

// Format selects the wire format of the response document.
type Format string

const (
	// FormatJSON requests a JSON response (the default). The engine adds a
	// "response=json" parameter and unwraps the single-key envelope object.
	FormatJSON Format = "json"

	// FormatXML leaves the endpoint on its XML default. The envelope is the
	// document root, exposed on Result.XML as a navigable element tree.
	FormatXML Format = "xml"
)

// Result is the outcome of a successful Invoke.
//
// For a plain command Payload holds the unwrapped envelope contents; in
// fetch-list mode Items holds the accumulated list elements across all
// pages; in fetch-result mode Payload holds the finished job's result. In
// XML mode XML holds the envelope root element instead.
type Result struct {
	// Status is the HTTP status code of the (last) response.
	Status int
	// Payload is the unwrapped envelope contents (JSON mode).
	Payload map[string]any
	// Items is the accumulated list in fetch-list mode.
	Items []any
	// XML is the envelope root element (XML mode).
	XML *etree.Element
}

// InvokeOptions carries the per-call knobs of Invoke. Construct via the
// InvokeOption helpers rather than directly.
type InvokeOptions struct {
	FetchList   bool
	FetchResult bool
	PageSize    int
	Headers     map[string]string
	Format      Format
}

// InvokeOption mutates the per-call options of Invoke.
type InvokeOption func(*InvokeOptions)

// FetchList drives the pagination loop: all pages of a listing command are
// aggregated into Result.Items.
func FetchList() InvokeOption {
	return func(o *InvokeOptions) { o.FetchList = true }
}

// FetchResult resolves asynchronous commands: when the payload carries a job
// identifier the call blocks (or suspends, under a cancellable context) until
// the job reaches a terminal state.
func FetchResult() InvokeOption {
	return func(o *InvokeOptions) { o.FetchResult = true }
}

// WithPageSize overrides the default page size (500) in fetch-list mode.
func WithPageSize(n int) InvokeOption {
	return func(o *InvokeOptions) { o.PageSize = n }
}

// WithHeaders adds per-call headers, overriding default headers of the same name.
func WithHeaders(headers map[string]string) InvokeOption {
	return func(o *InvokeOptions) {
		if o.Headers == nil {
			o.Headers = make(map[string]string, len(headers))
		}

		for k, v := range headers {
			o.Headers[k] = v
		}
	}
}

// WithFormat selects the wire format.
func WithFormat(format Format) InvokeOption {
	return func(o *InvokeOptions) { o.Format = format }
}

// ApplyInvokeOptions folds a list of options into a resolved InvokeOptions value.
func ApplyInvokeOptions(opts []InvokeOption) InvokeOptions {
	options := InvokeOptions{Format: FormatJSON}
	for _, opt := range opts {
		opt(&options)
	}

	return options
}

// TraceEventKind distinguishes request events from response events.
type TraceEventKind string

const (
	TraceRequest  TraceEventKind = "request"
	TraceResponse TraceEventKind = "response"
)

// TraceEvent is one entry on the diagnostic side channel. Request and
// response events of the same exchange share a RequestID.
type TraceEvent struct {
	Kind      TraceEventKind `json:"kind"`
	RequestID string         `json:"request_id"`
	Time      time.Time      `json:"time"`

	// Request fields
	Method string `json:"method,omitempty"`
	URL    string `json:"url,omitempty"`

	// Response fields
	Status int `json:"status,omitempty"`

	Headers http.Header `json:"headers,omitempty"`
	Body    string      `json:"body,omitempty"`
}

// TraceRecorder receives trace events. Implementations must never fail a
// request: errors are swallowed by the transport layer.
type TraceRecorder interface {
	Record(event TraceEvent)
}
