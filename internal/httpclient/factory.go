// Package httpclient builds the HTTP clients used to dispatch generated URLs.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/CodeMonkeyCybersecurity/x9/internal/config"
	"github.com/CodeMonkeyCybersecurity/x9/internal/logger"
)

// ClientConfig configures a dispatch client.
type ClientConfig struct {
	Timeout time.Duration
	// BlockPrivate refuses connections that resolve to loopback, link-local
	// or RFC 1918 addresses.
	BlockPrivate    bool
	FollowRedirects bool
	MaxRedirects    int
}

func DefaultConfig() ClientConfig {
	return ClientConfig{
		Timeout:         15 * time.Second,
		BlockPrivate:    true,
		FollowRedirects: false,
		MaxRedirects:    0,
	}
}

// FromDispatch derives a client configuration from the dispatch settings.
// Responses are only counted, so redirects are never followed.
func FromDispatch(c config.DispatchConfig) ClientConfig {
	cfg := DefaultConfig()
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	cfg.BlockPrivate = !c.AllowPrivate
	return cfg
}

func NewClient(cfg ClientConfig) *http.Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cfg.BlockPrivate {
				if err := validateAddress(ctx, addr); err != nil {
					return nil, fmt.Errorf("private address blocked: %w", err)
				}
			}
			var dialer net.Dialer
			return dialer.DialContext(ctx, network, addr)
		},

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}

	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
		return client
	}

	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if cfg.MaxRedirects > 0 && len(via) >= cfg.MaxRedirects {
			return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
		}
		if cfg.BlockPrivate {
			if err := validateURL(req.Context(), req.URL); err != nil {
				return fmt.Errorf("private address blocked on redirect: %w", err)
			}
		}
		return nil
	}
	return client
}

func validateAddress(ctx context.Context, addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("%s resolves to %s", host, ip)
		}
	}
	return nil
}

func validateURL(ctx context.Context, u *url.URL) error {
	if u.Hostname() == "" {
		return fmt.Errorf("redirect without host")
	}
	return validateAddress(ctx, u.Hostname())
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() ||
		ip.IsUnspecified()
}

// DoWithContext sends req bound to ctx and reports cancellation distinctly.
func DoWithContext(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, err
	}
	return resp, nil
}

// CloseBody drains and closes a response body so the connection can be
// reused. Close failures are logged, not returned.
func CloseBody(resp *http.Response, log *logger.Logger) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	if err := resp.Body.Close(); err != nil && log != nil {
		log.Warnw("Failed to close response body",
			"error", err,
			"component", "httpclient",
		)
	}
}
