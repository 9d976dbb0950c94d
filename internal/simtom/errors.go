package simtom

import (
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// ValidationError reports invalid request parameters. It is raised before
// any network I/O and is never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(format string, v ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, v...)}
}

// APIError reports a failed call against the simtom API after all retries
// were exhausted, or a response that produced no usable records.
type APIError struct {
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// httpError carries an HTTP status code for retry classification.
type httpError struct {
	statusCode int
	message    string
}

func (e *httpError) Error() string { return e.message }

// isRetriableError classifies errors for retry decisions:
//   - httpError 429, 500-504 → retry
//   - httpError other (4xx) → never retry
//   - everything else (network, io) → retry
func isRetriableError(err error) bool {
	var he *httpError
	if errors.As(err, &he) {
		return he.statusCode == 429 || (he.statusCode >= 500 && he.statusCode <= 504)
	}
	return true
}

// classifyResponse checks an HTTP response and returns an appropriate error:
//   - 2xx → nil
//   - anything else → httpError carrying the status for classification
func classifyResponse(resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}
	return &httpError{
		statusCode: code,
		message:    fmt.Sprintf("HTTP %d: %s", code, resp.Status()),
	}
}
