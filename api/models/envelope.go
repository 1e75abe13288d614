// api/models/envelope.go
package models

import "errors"

// Envelope is the uniform response body of the proxy.
type Envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// SuccessMessage is the message of every forwarded response below 400.
const SuccessMessage = "success"

// Errors attached to the gin context and mapped to responses by the error middleware.
var (
	ErrNoServerURL         = errors.New("no server url provided")
	ErrInvalidServerURL    = errors.New("server url must be an absolute http or https url")
	ErrUpstreamUnreachable = errors.New("remote server unreachable")
	ErrUpstreamTimeout     = errors.New("remote server timed out")
	ErrRateLimited         = errors.New("too many requests")
)
