package atlassian

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// APIError is a typed non-2xx response from the Atlassian API. Retryable
// and RetryAfter let callers decide on retries without inspecting status
// codes at every call site.
type APIError struct {
	Status     int
	Retryable  bool
	RetryAfter time.Duration
	Body       string
}

func (e *APIError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("atlassian: API returned %d (retryable): %s", e.Status, e.Body)
	}
	return fmt.Sprintf("atlassian: API returned %d: %s", e.Status, e.Body)
}

// newAPIError builds an APIError from a non-2xx response. Rate limits and
// server errors are retryable; client errors are not.
func newAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	e := &APIError{
		Status:    resp.StatusCode,
		Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		Body:      string(body),
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	return e
}
