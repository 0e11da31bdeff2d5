package nessie

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is the normalized failure returned for every request. Status is
// zero when the request never produced an HTTP response.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
	Err    error
}

func (e *APIError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("api %s %s: %v", e.Method, e.Path, e.Err)
	case e.Body != "":
		return fmt.Sprintf("api %s %s returned status %d: %s", e.Method, e.Path, e.Status, e.Body)
	default:
		return fmt.Sprintf("api %s %s returned status %d", e.Method, e.Path, e.Status)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status, zero for transport failures.
func (e *APIError) StatusCode() int { return e.Status }

// ResponseText returns the response body sent with an error status.
func (e *APIError) ResponseText() string { return e.Body }

// Transport reports whether the failure happened before any response.
func (e *APIError) Transport() bool { return e.Status == 0 }

// IsUnauthorized reports whether err is a 401 or 403 from the server.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}
