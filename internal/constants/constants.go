package constants

import "time"

// Engine defaults mirroring the protocol's conventional values.
const (
	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultPageSize is the page size used when fetch-list mode does not
	// override it. Also the count fallback when a page omits the count field.
	DefaultPageSize = 500

	// DefaultPollInterval is the delay between asynchronous job polls.
	DefaultPollInterval = 2 * time.Second

	// DefaultExpiration is the request-expiration window.
	DefaultExpiration = 10 * time.Minute
)

// Signing constants.
const (
	// ExpiresFormat renders the expires parameter (UTC, numeric zone, no colon).
	ExpiresFormat = "2006-01-02T15:04:05-0700"

	// SignatureVersion marks requests carrying an expiry timestamp.
	SignatureVersion = "3"
)

// Job polling limits.
const (
	// MaxConsecutivePollFailures bounds the transient-failure tolerance of
	// the job poller: after more than this many consecutive unexpected
	// errors the last one is surfaced.
	MaxConsecutivePollFailures = 10

	// MinPollAttemptTimeout is the floor applied to the per-attempt timeout
	// so the final poll near the deadline still gets a chance to complete.
	MinPollAttemptTimeout = 1 * time.Second

	// JobTimeoutStatusCode is the synthetic status attached to job-timeout
	// errors for callers that inspect status codes.
	JobTimeoutStatusCode = 408
)

// Retry wait bounds for the transport layer.
const (
	// DefaultRetryWaitMin is the minimum backoff between transport retries.
	DefaultRetryWaitMin = 500 * time.Millisecond

	// DefaultRetryWaitMax is the maximum backoff between transport retries.
	DefaultRetryWaitMax = 10 * time.Second
)
