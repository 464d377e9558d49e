// Package httpclient builds the HTTP client used to reach the model API.
package httpclient

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// APIKeyHeader is the header the Gemini REST API reads its key from.
const APIKeyHeader = "x-goog-api-key"

// CustomPingInterval returns a client whose HTTP/2 connections send a PING
// after interval without reads, so dead connections are noticed before
// the request timeout fires.
func CustomPingInterval(interval time.Duration) (*http.Client, error) {
	t1 := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// configures t1 in place so HTTP/2 still goes through the proxy
	t2, err := http2.ConfigureTransports(t1)
	if err != nil {
		return nil, err
	}
	t2.ReadIdleTimeout = interval
	t2.PingTimeout = interval / 2
	return &http.Client{
		Transport: t1,
	}, nil
}

// WithAPIKey returns a copy of c whose requests carry apiKey. Supplying a
// custom client to the SDK disables its own key handling, so the key has
// to travel with the transport.
func WithAPIKey(c *http.Client, apiKey string) *http.Client {
	next := c.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	clone := *c
	clone.Transport = &apiKeyTransport{key: apiKey, next: next}
	return &clone
}

type apiKeyTransport struct {
	key  string
	next http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.key == "" || req.Header.Get(APIKeyHeader) != "" {
		return t.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set(APIKeyHeader, t.key)
	return t.next.RoundTrip(req)
}
