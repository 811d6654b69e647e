package transport

import (
	"net"
	"net/http"
	"time"
)

// DefaultTimeout bounds every backend call end to end.
const DefaultTimeout = 120 * time.Second

// NewHTTPClient returns a client for backend calls. With keepAlive off each
// request dials its own connection and closes it when the body is drained, so
// concurrent invocations never share a socket.
func NewHTTPClient(timeout time.Duration, keepAlive bool) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DisableKeepAlives: !keepAlive,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if keepAlive {
		transport.MaxIdleConns = 20
		transport.MaxIdleConnsPerHost = 10
		transport.IdleConnTimeout = 90 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
