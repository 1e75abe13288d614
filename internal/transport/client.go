// Package transport issues requests to an ODK-X sync server, either directly or through the
// dashboard proxy, attaching authentication headers and unwrapping response envelopes.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Annany2002/odkx-manager/internal/auth"
	"github.com/Annany2002/odkx-manager/internal/logger"
)

const (
	// SyncRoot is the path segment of the sync protocol on the remote server.
	SyncRoot = "odktables"
	// ProxyPrefix is where the proxy accepts sync protocol requests.
	ProxyPrefix = "/api/odktables"
	// ServerURLHeader names the real remote origin for the proxy.
	ServerURLHeader = "odkserverurl"
	// VersionHeader is attached to write requests.
	VersionHeader   = "X-OpenDataKit-Version"
	ProtocolVersion = "2.0"
)

var customLog = logger.NewLogger()

// Doer abstracts the ability to execute HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Credentials identify the remote server and the basic auth token ("user:pass" base64).
type Credentials struct {
	ServerURL string
	Token     string
}

// CredentialSource supplies the current credentials for each request.
type CredentialSource interface {
	Current() (Credentials, bool)
}

// ErrorHandler is notified of every failed request before the error is returned.
type ErrorHandler func(err error)

// Options configure a Client.
type Options struct {
	// ProxyURL is the base URL of the dashboard proxy. Empty means requests go directly to
	// the remote origin.
	ProxyURL string
	HTTP     Doer
	OnError  ErrorHandler
	Logger   logrus.FieldLogger
}

// Client is the transport adapter.
type Client struct {
	creds    CredentialSource
	http     Doer
	proxyURL string
	onError  ErrorHandler
	log      logrus.FieldLogger
}

// Request describes one call relative to the sync protocol root.
type Request struct {
	Method string
	// Path below the sync root, e.g. "default/tables".
	Path  string
	Query url.Values
	// Body is JSON encoded unless it is a []byte or io.Reader.
	Body        any
	ContentType string
	Header      map[string]string
}

// NewClient creates a transport client.
func NewClient(creds CredentialSource, opts Options) *Client {
	c := &Client{
		creds:    creds,
		http:     opts.HTTP,
		proxyURL: strings.TrimRight(opts.ProxyURL, "/"),
		onError:  opts.OnError,
		log:      opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 60 * time.Second}
	}
	if c.log == nil {
		c.log = customLog
	}
	return c
}

// Proxied reports whether requests are sent through the proxy.
func (c *Client) Proxied() bool {
	return c.proxyURL != ""
}

// Do sends the request and decodes the unwrapped JSON payload into out (if non-nil).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	payload, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return c.fail(fmt.Errorf("failed to decode response of %s %s: %w", req.Method, req.Path, err))
	}
	return nil
}

// Send issues the request and returns the unwrapped payload. Non-JSON bodies are returned raw.
func (c *Client) Send(ctx context.Context, req Request) ([]byte, error) {
	creds, ok := c.creds.Current()
	if !ok || creds.ServerURL == "" {
		return nil, c.fail(ErrNoCredentials)
	}

	endpoint, err := c.resolveEndpoint(creds.ServerURL, req.Path, req.Query)
	if err != nil {
		return nil, c.fail(err)
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	body, contentType, err := encodeBody(req.Body, req.ContentType)
	if err != nil {
		return nil, c.fail(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, c.fail(fmt.Errorf("failed to build request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", auth.BasicAuthHeader(creds.Token))
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.Proxied() {
		httpReq.Header.Set(ServerURLHeader, strings.TrimRight(creds.ServerURL, "/"))
	}
	if method == http.MethodPut || method == http.MethodPost {
		httpReq.Header.Set(VersionHeader, ProtocolVersion)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}
	c.log.WithFields(logrus.Fields{
		"method":  method,
		"url":     endpoint,
		"headers": redactHeaders(httpReq.Header),
	}).Debug("Transport: sending request")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.WithFields(logrus.Fields{"method": method, "url": endpoint}).Debugf("Transport: request failed: %v", err)
		return nil, c.fail(&TransportError{Method: method, URL: endpoint, Err: err})
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(&TransportError{Method: method, URL: endpoint, Err: fmt.Errorf("failed to read response: %w", err)})
	}

	c.log.WithFields(logrus.Fields{
		"method":   method,
		"url":      endpoint,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Transport: response received")

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, c.fail(&RemoteError{StatusCode: resp.StatusCode, Message: remoteMessage(raw), Body: raw})
	}

	if !isJSON(resp.Header.Get("Content-Type"), raw) {
		return raw, nil
	}

	payload, err := unwrapEnvelope(raw)
	if err != nil {
		return nil, c.fail(err)
	}
	return payload, nil
}

func (c *Client) fail(err error) error {
	if c.onError != nil {
		c.onError(err)
	}
	return err
}

// resolveEndpoint scopes path under the sync root, either at the proxy or at the remote origin.
func (c *Client) resolveEndpoint(serverURL, path string, query url.Values) (string, error) {
	base := strings.TrimRight(serverURL, "/") + "/" + SyncRoot
	if c.Proxied() {
		base = c.proxyURL + ProxyPrefix
	}
	if _, err := url.Parse(base); err != nil {
		return "", fmt.Errorf("invalid server url '%s': %w", serverURL, err)
	}

	endpoint := base + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint += sep + query.Encode()
	}
	return endpoint, nil
}

func encodeBody(body any, contentType string) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, contentType, nil
	case []byte:
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return bytes.NewReader(b), contentType, nil
	case io.Reader:
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return b, contentType, nil
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		if contentType == "" {
			contentType = "application/json"
		}
		return bytes.NewReader(encoded), contentType, nil
	}
}

func isJSON(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "json") {
		return true
	}
	if contentType == "" {
		trimmed := bytes.TrimSpace(body)
		return len(trimmed) > 0 && json.Valid(trimmed)
	}
	return false
}

// redactHeaders flattens h for logging with credentials masked.
func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		key := strings.ToLower(k)
		if key == "authorization" || strings.Contains(key, "token") {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = strings.Join(v, ", ")
	}
	return out
}

// envelope is the uniform {status, message, data} wrapper written by the proxy.
type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// unwrapEnvelope returns the nested data of an envelope, or raw when there is none.
func unwrapEnvelope(raw []byte) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		// arrays (e.g. the app name list) and scalars are never wrapped
		return raw, nil
	}
	_, hasStatus := fields["status"]
	_, hasMessage := fields["message"]
	if !hasStatus && !hasMessage {
		return raw, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return raw, nil
	}
	if env.Status >= http.StatusBadRequest {
		return nil, &RemoteError{StatusCode: env.Status, Message: env.Message, Body: raw}
	}
	if env.Status == http.StatusNotModified {
		return raw, nil
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return raw, nil
	}
	return data, nil
}

// StaticCredentials is a fixed CredentialSource.
type StaticCredentials Credentials

// Current implements CredentialSource.
func (s StaticCredentials) Current() (Credentials, bool) {
	return Credentials(s), s.ServerURL != ""
}
