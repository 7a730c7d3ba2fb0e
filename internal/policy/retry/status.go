package retry

import (
	"fmt"
	"net/http"
)

// StatusError reports a non-success HTTP status from a source.
type StatusError struct {
	Code int
	URL  string
}

// NewStatusError wraps an HTTP status code.
func NewStatusError(code int, url string) *StatusError {
	return &StatusError{Code: code, URL: url}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Is reports rate limiting and server errors as ErrTransient.
func (e *StatusError) Is(target error) bool {
	return target == ErrTransient && TransientStatus(e.Code)
}

// TransientStatus reports whether an HTTP status is worth retrying.
func TransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= http.StatusInternalServerError
}
