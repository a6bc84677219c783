package cloudstack

import (
	"errors"
	"fmt"
)

// The engine classifies every failure into one of five kinds so that callers
// (e.g. a CLI) can format distinct messages and exit codes:
//
//   - *TransportError: the connection could not be established or completed
//   - *ProtocolError: a well-formed HTTP response with a malformed or
//     unexpected envelope
//   - *APIError: a non-200 status with a parsed error envelope
//   - *JobError: a terminal job status indicating failure
//   - *JobTimeoutError: the deadline elapsed while the job remained pending
//
// Argument values of an unsupported type surface as *UnsupportedTypeError
// before any network activity.

// TransportError wraps a connection-level failure. Read-only commands
// (names starting with "list" or "queryAsync") are retried up to the
// configured budget before one of these surfaces.
type TransportError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

// Unwrap returns the underlying connection error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a response the engine could not interpret: wrong
// content type, unparseable body, or an envelope without exactly one
// top-level key. It carries enough context to diagnose a misconfigured
// endpoint.
type ProtocolError struct {
	Endpoint    string
	StatusCode  int
	ContentType string
	Reason      string
	Body        []byte
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.StatusCode != 0 && e.StatusCode != 200 {
		return fmt.Sprintf("HTTP %d: %s (make sure endpoint URL %q is correct)",
			e.StatusCode, e.Reason, e.Endpoint)
	}

	return e.Reason
}

// APIError reports a non-200 response whose envelope parsed cleanly. Detail
// holds the unwrapped error payload exactly as the remote side sent it.
type APIError struct {
	StatusCode int
	ErrorCode  int
	ErrorText  string
	Detail     map[string]any
	Body       []byte
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.ErrorText != "" {
		return fmt.Sprintf("HTTP %d response from CloudStack: %s (error code %d)",
			e.StatusCode, e.ErrorText, e.ErrorCode)
	}

	return fmt.Sprintf("HTTP %d response from CloudStack", e.StatusCode)
}

// JobError reports an asynchronous job that finished in a failure state.
// Result holds the job's error payload.
type JobError struct {
	JobID      string
	Status     JobStatus
	ResultCode int
	Result     map[string]any
}

// Error implements the error interface.
func (e *JobError) Error() string {
	if text, ok := e.Result["errortext"].(string); ok {
		return fmt.Sprintf("job %s failed: %s", e.JobID, text)
	}

	return fmt.Sprintf("job %s failed (result code %d)", e.JobID, e.ResultCode)
}

// JobTimeoutError reports that the job deadline elapsed while the job was
// still pending. StatusCode carries a synthetic 408 for callers that inspect
// status codes.
type JobTimeoutError struct {
	JobID       string
	StatusCode  int
	LastPayload map[string]any
}

// Error implements the error interface.
func (e *JobTimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for async job result: %s", e.JobID)
}

// UnsupportedTypeError reports an argument value the normalizer cannot
// encode. It is raised before any network activity.
type UnsupportedTypeError struct {
	Key   string
	Value any
}

// Error implements the error interface.
func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported argument type %T for %q", e.Value, e.Key)
}

// IsTransportError checks whether err is a connection-level failure.
func IsTransportError(err error) bool {
	target := &TransportError{}

	return errors.As(err, &target)
}

// IsProtocolError checks whether err is a malformed-envelope failure.
func IsProtocolError(err error) bool {
	target := &ProtocolError{}

	return errors.As(err, &target)
}

// IsAPIError checks whether err is a remote API error, optionally extracting it.
func IsAPIError(err error) (*APIError, bool) {
	target := &APIError{}
	if errors.As(err, &target) {
		return target, true
	}

	return nil, false
}

// IsJobFailure checks whether err reports a failed asynchronous job.
func IsJobFailure(err error) bool {
	target := &JobError{}

	return errors.As(err, &target)
}

// IsJobTimeout checks whether err reports an expired job deadline.
func IsJobTimeout(err error) bool {
	target := &JobTimeoutError{}

	return errors.As(err, &target)
}

// IsInputError checks whether err reports an unsupported argument value.
func IsInputError(err error) bool {
	target := &UnsupportedTypeError{}

	return errors.As(err, &target)
}
