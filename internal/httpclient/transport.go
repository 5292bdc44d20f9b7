// Package httpclient builds the outbound HTTP client used for upstream calls.
package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultDialTimeout         = 5 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
	defaultIdleConnTimeout     = 90 * time.Second
)

// Options configures the outbound client.
type Options struct {
	// DenyPrivate rejects connections whose peer is a loopback, private or
	// link-local address.
	DenyPrivate bool
	DialTimeout time.Duration
}

// New returns an instrumented client. The client sets no overall timeout;
// callers bound requests with their context.
func New(opts Options) *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(NewTransport(opts))}
}

// NewTransport returns the uninstrumented transport behind New.
func NewTransport(opts Options) *http.Transport {
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}

	dial := dialer.DialContext
	if opts.DenyPrivate {
		dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if err := checkPeer(conn, addr); err != nil {
				conn.Close()
				return nil, err
			}
			return conn, nil
		}
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dial,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
	}
}

func checkPeer(conn net.Conn, addr string) error {
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("failed to parse remote IP for %q", addr)
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return fmt.Errorf("access to private IP %s is denied", ip)
	}
	return nil
}
