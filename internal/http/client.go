// Package http configures the HTTP transport shared by the engine client.
package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"
	"time"

	"golang.org/x/net/http2"

	"github.com/linkmesh/linkmesh/internal/config"
)

// NewClient creates the HTTP client used for all engine requests.
//
// Key features:
//   - Proxy support from the environment (HTTP_PROXY, HTTPS_PROXY, NO_PROXY)
//   - Connection reuse across the submit/poll/results call pattern
//   - HTTP/2 support with runtime toggle (DISABLE_HTTP2 env var)
//
// The overall client timeout comes from cfg.RequestTimeout; a zero config
// falls back to no client-level timeout and per-call context deadlines.
func NewClient(cfg *config.Config) *nethttp.Client {
	tr := &nethttp.Transport{
		Proxy:               nethttp.ProxyFromEnvironment,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	_ = http2.ConfigureTransport(tr)

	// Runtime toggle for HTTP/2 (useful for debugging or proxy compatibility).
	if os.Getenv("DISABLE_HTTP2") == "true" {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	client := &nethttp.Client{Transport: tr}
	if cfg != nil {
		client.Timeout = cfg.RequestTimeout
	}
	return client
}
