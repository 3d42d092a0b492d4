// Package httputil provides the shared HTTP client used for acme-dns API
// calls. One pooled transport avoids TIME_WAIT socket accumulation when the
// check command probes many endpoints.
package httputil

import (
	"net/http"
	"sync"
	"time"
)

var (
	defaultClient     *http.Client
	defaultClientOnce sync.Once
)

// DefaultClient returns a shared HTTP client with pooled connections.
// The client is safe for concurrent use.
func DefaultClient() *http.Client {
	defaultClientOnce.Do(func() {
		defaultClient = newClient(30 * time.Second)
	})
	return defaultClient
}

// NewClientWithTimeout creates an HTTP client with the specified timeout.
// The client shares the default transport for connection reuse.
func NewClientWithTimeout(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: DefaultClient().Transport,
	}
}

// newClient creates an HTTP client with tuned transport settings.
func newClient(timeout time.Duration) *http.Client {
	// Clone the default transport to get sensible defaults
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = 10
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	transport.ForceAttemptHTTP2 = true
	transport.ResponseHeaderTimeout = 30 * time.Second
	transport.ExpectContinueTimeout = 1 * time.Second

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
