package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoCredentials is returned when a request is attempted before credentials are stored.
	ErrNoCredentials = errors.New("no server credentials configured")
	// ErrForbidden matches RemoteErrors with status 403.
	ErrForbidden = errors.New("user does not have permission for this operation")
	// ErrNotFound matches RemoteErrors with status 404.
	ErrNotFound = errors.New("resource not found on remote server")
)

// TransportError is a failure where no response was received from the remote server
// (connection refused, DNS, TLS, cancelled context). Always retryable by the caller.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteError is an HTTP error status returned by the sync protocol (or the proxy on its behalf).
type RemoteError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *RemoteError) Error() string {
	if e.StatusCode == http.StatusForbidden {
		return ErrForbidden.Error()
	}
	if e.Message == "" {
		return fmt.Sprintf("remote server returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("remote server returned %d: %s", e.StatusCode, e.Message)
}

// Is lets callers test for well-known statuses with errors.Is.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// IsRetryable reports whether err is a transport-level failure the caller may simply retry.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

const maxMessageLength = 500

// remoteMessage extracts a human readable message from an error response body.
func remoteMessage(body []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, key := range []string{"message", "errorMessage", "error"} {
			raw, ok := fields[key]
			if !ok {
				continue
			}
			var msg string
			if json.Unmarshal(raw, &msg) == nil && msg != "" {
				return msg
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxMessageLength {
		msg = msg[:maxMessageLength] + "..."
	}
	return msg
}
