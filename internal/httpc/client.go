// Package httpc builds the HTTP clients used by the generation and
// synthesis providers. Use it instead of http.DefaultClient, which has no
// timeouts.
package httpc

import (
	"net"
	"net/http"
	"time"
)

const (
	connectTimeout = 10 * time.Second
	keepAlive      = 30 * time.Second
	idleTimeout    = 90 * time.Second

	// headerTimeout applies even to clients without an overall timeout.
	headerTimeout = 30 * time.Second
)

// NewClient creates an HTTP client with the given overall timeout.
// Zero means no overall limit, which streamed bodies need; callers then
// bound the request with a context.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: keepAlive,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       idleTimeout,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
			ResponseHeaderTimeout: headerTimeout,
		},
	}
}
