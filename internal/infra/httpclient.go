package infra

import (
	"net"
	"net/http"
	"time"
)

// NewProviderHTTPClient returns the keep-alive client shared by every job that
// talks to the music provider. maxConns bounds the per-host pool.
func NewProviderHTTPClient(maxConns int, timeout time.Duration) *http.Client {
	if maxConns <= 0 {
		maxConns = 32
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxConns * 2,
		MaxIdleConnsPerHost:   maxConns,
		MaxConnsPerHost:       maxConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// WithoutRedirects returns a copy of client that reports redirects to the
// caller instead of following them. The transport is shared.
func WithoutRedirects(client *http.Client) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &c
}
