package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for a 404 response. It is not reported.
	ErrNotFound = errors.New("not found")
	// ErrUnreachable is returned when the gateway could not be contacted.
	ErrUnreachable = errors.New("unable to connect to server")
	// ErrUnauthorized is returned when a request is rejected again after a
	// successful login within the same call.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrLoginAborted is returned when the user ends input at a login prompt.
	ErrLoginAborted = errors.New("login aborted")
	// ErrLoginFailed is returned when the gateway rejects the credentials.
	ErrLoginFailed = errors.New("login failed")
	// ErrBadResponse is returned when a response body cannot be decoded.
	ErrBadResponse = errors.New("unexpected response")
)

// StatusError is returned for any response status other than 200, 401 and
// 404.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed: %d - %s", e.Method, e.URL, e.StatusCode, e.Body)
}
