package engine

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cloudrift-io/cloudstack-client/internal/constants"
	"github.com/cloudrift-io/cloudstack-client/pkg/cloudstack"
)

var errJobPending = errors.New("job still pending")

// pollJob queries queryAsyncJobResult at the poll interval until the job
// reaches a terminal state, the job timeout elapses, or ctx is cancelled.
// Up to MaxConsecutivePollFailures consecutive connection-level failures are
// tolerated; classified protocol and API errors abort immediately.
func (e *Engine) pollJob(
	ctx context.Context,
	jobID string,
	headers map[string]string,
) (*cloudstack.Result, error) {
	var (
		deadline    time.Time
		lastPayload map[string]any
		lastStatus  int
		failures    int
		result      map[string]any
	)

	if e.jobTimeout > 0 {
		deadline = time.Now().Add(e.jobTimeout)
	}

	operation := func() error {
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return backoff.Permanent(&cloudstack.JobTimeoutError{
				JobID:       jobID,
				StatusCode:  constants.JobTimeoutStatusCode,
				LastPayload: lastPayload,
			})
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.pollAttemptTimeout(deadline))
		defer cancel()

		values := map[string]string{"jobid": jobID}
		setValue(values, "apiKey", e.apiKey)
		setValue(values, "command", "queryAsyncJobResult")
		setValue(values, "response", "json")
		e.injectExpires(values)
		e.signer.Attach(values)

		resp, err := e.transport.Send(
			attemptCtx, "queryAsyncJobResult", values, headers, cloudstack.FormatJSON)
		if err != nil {
			if !cloudstack.IsTransportError(err) {
				return backoff.Permanent(err)
			}

			failures++
			if failures > constants.MaxConsecutivePollFailures {
				return backoff.Permanent(err)
			}

			return err
		}

		failures = 0
		lastPayload = resp.Payload
		lastStatus = resp.Status

		status, ok := toInt(resp.Payload["jobstatus"])
		if !ok {
			// Treated like a dropped poll: tolerated a bounded number of times.
			failures++

			err := &cloudstack.ProtocolError{
				StatusCode: resp.Status,
				Reason:     "job status missing from poll response",
				Body:       resp.Body,
			}
			if failures > constants.MaxConsecutivePollFailures {
				return backoff.Permanent(err)
			}

			return err
		}

		if cloudstack.JobStatus(status) == cloudstack.JobPending {
			return errJobPending
		}

		resultCode, _ := toInt(resp.Payload["jobresultcode"])
		rawResult, hasResult := resp.Payload["jobresult"]
		jobResult := wrapJobResult(rawResult)

		if resultCode != 0 || cloudstack.JobStatus(status) != cloudstack.JobSuccess {
			return backoff.Permanent(&cloudstack.JobError{
				JobID:      jobID,
				Status:     cloudstack.JobStatus(status),
				ResultCode: resultCode,
				Result:     jobResult,
			})
		}

		if !hasResult {
			return backoff.Permanent(&cloudstack.ProtocolError{
				StatusCode: resp.Status,
				Reason:     "job finished without a result",
				Body:       resp.Body,
			})
		}

		result = jobResult

		return nil
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(e.pollInterval), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// Cancellation suspends rather than fails: the last known job
			// payload travels with the context error so the caller can
			// resume or report progress.
			return &cloudstack.Result{Status: lastStatus, Payload: lastPayload}, err
		}

		return nil, err
	}

	return &cloudstack.Result{Status: lastStatus, Payload: result}, nil
}

// wrapJobResult normalizes a job result to a map. The result is almost
// always an object, but some commands report a bare scalar; those are kept
// under a "jobresult" key rather than rejected.
func wrapJobResult(raw any) map[string]any {
	if raw == nil {
		return nil
	}

	if m, ok := raw.(map[string]any); ok {
		return m
	}

	return map[string]any{"jobresult": raw}
}

// pollAttemptTimeout bounds one poll exchange: the per-request timeout,
// shrunk to the time remaining before the job deadline, but never below the
// floor that lets a final poll complete.
func (e *Engine) pollAttemptTimeout(deadline time.Time) time.Duration {
	timeout := e.timeout
	if timeout <= 0 {
		timeout = constants.DefaultTimeout
	}

	if !deadline.IsZero() {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	if timeout < constants.MinPollAttemptTimeout {
		timeout = constants.MinPollAttemptTimeout
	}

	return timeout
}
