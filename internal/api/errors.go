// Package api provides the client for the LinkMesh analysis engine.
package api

import (
	"errors"
	"fmt"
)

// ErrJobNotFound indicates the engine has no job with the requested id.
var ErrJobNotFound = errors.New("job not found")

// ErrNoResults indicates force-complete found no result file to promote.
var ErrNoResults = errors.New("no result file available")

// SubmissionError reports a rejected or unreachable analysis submission.
// It is one of the two user-visible error classes; the workflow surfaces it
// and returns to the configuration step so the run can be retried without
// re-uploading.
type SubmissionError struct {
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submission failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("submission failed: %s", e.Reason)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// StatusError carries a non-2xx engine response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("engine returned status %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a missing-job or missing-resource error.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrJobNotFound) {
		return true
	}
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == 404
}
