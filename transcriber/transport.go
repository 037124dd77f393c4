package transcriber

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"time"

	"murmur/log"
)

// geminiEndpoint is the host the SDK talks to for the Gemini API backend.
const geminiEndpoint = "https://generativelanguage.googleapis.com/"

// newHTTPClient returns the keep-alive client shared by every call, so a
// warmed connection is reused by the first request of a session.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        4,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

// warmConnection opens (or reuses) a connection to endpoint with a HEAD
// request and returns how long the TLS handshake took. Zero means the
// connection was already warm or the request failed.
func warmConnection(ctx context.Context, client *http.Client, endpoint string) (time.Duration, error) {
	var tlsStart time.Time
	var tlsDuration time.Duration

	trace := &httptrace.ClientTrace{
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone:  func(_ tls.ConnectionState, _ error) { tlsDuration = time.Since(tlsStart) },
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodHead, endpoint, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return tlsDuration, nil
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return u.Host
}

// Warm pre-establishes the connection to the inference endpoint. Failures
// are logged and otherwise ignored.
func (g *Gemini) Warm(ctx context.Context) {
	d, err := warmConnection(ctx, g.http, g.endpoint)
	if err != nil {
		log.Warnf("warm connection: %v", err)
		return
	}
	log.Warm(hostOf(g.endpoint), d)
}
