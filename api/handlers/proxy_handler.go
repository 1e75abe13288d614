// api/handlers/proxy_handler.go
package handlers

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/odkx-manager/api/middleware"
	"github.com/Annany2002/odkx-manager/api/models"
	"github.com/Annany2002/odkx-manager/config"
	"github.com/Annany2002/odkx-manager/internal/logger"
	"github.com/Annany2002/odkx-manager/internal/transport"
)

var (
	customLog = logger.NewLogger()

	// forwardedHeaders are copied from the incoming request to the remote server.
	forwardedHeaders = []string{"Authorization", "Content-Type", "Accept", transport.VersionHeader}
)

// ProxyHandler forwards sync protocol requests to the server named by the odkserverurl header.
type ProxyHandler struct {
	Client *http.Client
	Cfg    *config.Config
}

// NewProxyHandler creates a ProxyHandler with an HTTP client built from cfg.
func NewProxyHandler(cfg *config.Config) *ProxyHandler {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyInsecureTLS {
		customLog.Warnln("Proxy: TLS verification toward remote servers is disabled")
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &ProxyHandler{
		Client: &http.Client{Transport: tr, Timeout: cfg.ProxyTimeout},
		Cfg:    cfg,
	}
}

// Forward handles ANY /api/odktables/*path.
func (h *ProxyHandler) Forward(c *gin.Context) {
	serverURL := c.GetString(middleware.ServerURLKey)
	target := serverURL + "/" + transport.SyncRoot + remotePath(c)
	if c.Request.URL.RawQuery != "" {
		target += "?" + c.Request.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target, c.Request.Body)
	if err != nil {
		customLog.Warnf("Proxy: failed to build request for %s: %v", target, err)
		_ = c.Error(fmt.Errorf("%w: %v", models.ErrUpstreamUnreachable, err))
		return
	}
	req.ContentLength = c.Request.ContentLength
	for _, name := range forwardedHeaders {
		if v := c.GetHeader(name); v != "" {
			req.Header.Set(name, v)
		}
	}

	res, err := h.Client.Do(req)
	if err != nil {
		customLog.Warnf("Proxy: %s %s failed: %v", c.Request.Method, target, err)
		if isTimeout(err) {
			_ = c.Error(fmt.Errorf("%w: %v", models.ErrUpstreamTimeout, err))
			return
		}
		_ = c.Error(fmt.Errorf("%w: %v", models.ErrUpstreamUnreachable, err))
		return
	}
	defer res.Body.Close()

	contentType := res.Header.Get("Content-Type")
	if res.StatusCode < http.StatusBadRequest && !isJSONContent(contentType) {
		// Files are passed through untouched.
		c.DataFromReader(res.StatusCode, res.ContentLength, contentType, res.Body, nil)
		return
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		customLog.Warnf("Proxy: failed to read response of %s: %v", target, err)
		_ = c.Error(fmt.Errorf("%w: %v", models.ErrUpstreamUnreachable, err))
		return
	}

	env := models.Envelope{Status: res.StatusCode, Message: models.SuccessMessage, Data: decodeBody(body)}
	if res.StatusCode >= http.StatusBadRequest {
		env.Message = fmt.Sprintf("Request failed with status code %d", res.StatusCode)
		customLog.Infof("Proxy: %s %s returned %d", c.Request.Method, target, res.StatusCode)
	}
	c.JSON(res.StatusCode, env)
}

// remotePath is the escaped request path below the proxy prefix.
func remotePath(c *gin.Context) string {
	p := strings.TrimPrefix(c.Request.URL.EscapedPath(), transport.ProxyPrefix)
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func isJSONContent(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// decodeBody returns body as raw JSON, or as a string when it is not JSON.
func decodeBody(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	return string(body)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
