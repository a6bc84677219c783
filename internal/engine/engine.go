// Package engine implements the command execution pipeline: argument
// normalization, credential and expiry injection, signing, dispatch, and the
// pagination and job-polling loops layered on top of single exchanges.
package engine

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cloudrift-io/cloudstack-client/internal/constants"
	"github.com/cloudrift-io/cloudstack-client/internal/params"
	"github.com/cloudrift-io/cloudstack-client/internal/transport"
	"github.com/cloudrift-io/cloudstack-client/pkg/cloudstack"
)

// Engine executes logical commands against one endpoint. It is safe for
// concurrent use; within a single call, pages and job polls run sequentially.
type Engine struct {
	transport *transport.Client
	signer    *params.Signer
	apiKey    string

	timeout      time.Duration
	pollInterval time.Duration
	jobTimeout   time.Duration
	expiration   time.Duration

	fetchResult bool

	logger cloudstack.Logger
}

// Options carries the construction parameters of an Engine. All durations
// must already be resolved to their effective values; a negative Expiration
// disables the expires parameter entirely.
type Options struct {
	Transport    *transport.Client
	Signer       *params.Signer
	APIKey       string
	Timeout      time.Duration
	PollInterval time.Duration
	JobTimeout   time.Duration
	Expiration   time.Duration
	FetchResult  bool
	Logger       cloudstack.Logger
}

// New creates an Engine.
func New(opts Options) *Engine {
	return &Engine{
		transport:    opts.Transport,
		signer:       opts.Signer,
		apiKey:       opts.APIKey,
		timeout:      opts.Timeout,
		pollInterval: opts.PollInterval,
		jobTimeout:   opts.JobTimeout,
		expiration:   opts.Expiration,
		fetchResult:  opts.FetchResult,
		logger:       opts.Logger,
	}
}

// Invoke executes one logical command: arguments are normalized, credentials
// and the expiry window are injected, and the signed request is dispatched.
// In fetch-list mode all pages are aggregated; in fetch-result mode a
// returned job identifier is polled to completion.
func (e *Engine) Invoke(
	ctx context.Context,
	command string,
	args map[string]any,
	opts ...cloudstack.InvokeOption,
) (*cloudstack.Result, error) {
	options := cloudstack.ApplyInvokeOptions(opts)

	values, err := params.Normalize(args)
	if err != nil {
		return nil, err
	}

	pageGiven := hasKey(values, "page")

	setValue(values, "apiKey", e.apiKey)
	setValue(values, "command", command)

	if options.Format == cloudstack.FormatJSON {
		setValue(values, "response", "json")
	}

	if options.FetchList || pageGiven {
		pageSize := options.PageSize
		if pageSize <= 0 {
			pageSize = constants.DefaultPageSize
		}

		setDefault(values, "pagesize", strconv.Itoa(pageSize))
	}

	// The expiry window is fixed once per logical command so that every page
	// of a listing shares the same expires value. A caller-provided expires
	// wins.
	e.injectExpires(values)

	if options.FetchList {
		return e.fetchAllPages(ctx, command, values, options)
	}

	resp, err := e.send(ctx, command, values, options.Headers, options.Format)
	if err != nil {
		return nil, err
	}

	if options.Format == cloudstack.FormatXML {
		return &cloudstack.Result{Status: resp.Status, XML: resp.XML}, nil
	}

	fetchResult := e.fetchResult || options.FetchResult
	if jobID, ok := resp.Payload["jobid"].(string); ok && fetchResult {
		return e.pollJob(ctx, jobID, options.Headers)
	}

	return &cloudstack.Result{Status: resp.Status, Payload: resp.Payload}, nil
}

// fetchAllPages walks the page sequence, accumulating the single non-count
// list of each page. The walk ends when a page has no single non-count key
// or when the accumulated length reaches the advertised count.
func (e *Engine) fetchAllPages(
	ctx context.Context,
	command string,
	values map[string]string,
	options cloudstack.InvokeOptions,
) (*cloudstack.Result, error) {
	var (
		items  []any
		status int
	)

	for page := 1; ; page++ {
		setValue(values, "page", strconv.Itoa(page))

		resp, err := e.send(ctx, command, values, options.Headers, cloudstack.FormatJSON)
		if err != nil {
			return nil, err
		}

		status = resp.Status

		listKey, ok := singleListKey(resp.Payload)
		if !ok {
			break
		}

		pageItems, ok := resp.Payload[listKey].([]any)
		if !ok {
			break
		}

		items = append(items, pageItems...)

		count := constants.DefaultPageSize
		if c, ok := toInt(resp.Payload["count"]); ok {
			count = c
		}

		if len(items) >= count {
			break
		}
	}

	return &cloudstack.Result{Status: status, Items: items}, nil
}

// send performs one signed exchange, re-signing the parameter map first. The
// per-request timeout bounds each exchange independently.
func (e *Engine) send(
	ctx context.Context,
	command string,
	values map[string]string,
	headers map[string]string,
	format cloudstack.Format,
) (*transport.Response, error) {
	e.signer.Attach(values)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)

		defer cancel()
	}

	return e.transport.Send(ctx, command, values, headers, format)
}

// injectExpires stamps the request with its validity window unless the
// caller supplied one or expiry is disabled.
func (e *Engine) injectExpires(values map[string]string) {
	if e.expiration < 0 || hasKey(values, "expires") {
		return
	}

	setValue(values, "signatureVersion", constants.SignatureVersion)
	setValue(values, "expires",
		time.Now().UTC().Add(e.expiration).Format(constants.ExpiresFormat))
}

// setValue writes key, displacing any existing key that matches
// case-insensitively.
func setValue(values map[string]string, key, value string) {
	for k := range values {
		if strings.EqualFold(k, key) {
			delete(values, k)
		}
	}

	values[key] = value
}

// setDefault writes key only when no case-insensitive match exists.
func setDefault(values map[string]string, key, value string) {
	if !hasKey(values, key) {
		values[key] = value
	}
}

func hasKey(values map[string]string, key string) bool {
	for k := range values {
		if strings.EqualFold(k, key) {
			return true
		}
	}

	return false
}

// singleListKey returns the only non-count key of a page payload.
func singleListKey(payload map[string]any) (string, bool) {
	var (
		found string
		n     int
	)

	for key := range payload {
		if key == "count" {
			continue
		}

		found = key
		n++
	}

	return found, n == 1
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}

		return n, true
	default:
		return 0, false
	}
}
