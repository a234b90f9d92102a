package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/cenk/backoff"
	"github.com/rs/dnscache"
)

const (
	userAgent = "release-cache/1.0"

	// fallbackMaxRetries bounds retries within a single in-process attempt.
	// Transport-chain fallback is handled by the caller, not here.
	fallbackMaxRetries = 2
)

// httpTransport is the in-process last-resort download transport. It keeps a
// DNS cache so repeated attempts against the same host skip resolution.
type httpTransport struct {
	client        *http.Client
	retryInterval time.Duration
}

func newHTTPTransport(timeout time.Duration) *httpTransport {
	resolver := &dnscache.Resolver{}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			resolver.Refresh(true)
		}
	}()

	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}

	return &httpTransport{
		retryInterval: 500 * time.Millisecond,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
					}
					return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
				},
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// get downloads rawURL into destination with bounded retries. Client errors
// are permanent; server errors and rate limits are retried.
func (t *httpTransport) get(ctx context.Context, rawURL, destination string) error {
	op := func() error {
		return t.doGet(ctx, rawURL, destination)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.retryInterval

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, fallbackMaxRetries), ctx))
}

func (t *httpTransport) doGet(ctx context.Context, rawURL, destination string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Fall through to the body copy below.
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode))
	}

	out, err := os.Create(destination)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("creating %s: %w", destination, err))
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(destination)
		return fmt.Errorf("writing %s: %w", destination, err)
	}
	return out.Close()
}
