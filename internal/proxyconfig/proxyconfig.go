// Package proxyconfig builds an outbound HTTP transport from a user's
// proxy settings: an http/https/socks5 proxy URL with optional
// credentials, bypass-local and wildcard bypass-list matching, and a test
// probe against the allocation domain.
package proxyconfig

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opennow/client/internal/config"
)

const testTimeout = 10 * time.Second

// BuildURL assembles the proxy's dial URL
// (scheme://[user:pass@]host:port).
func BuildURL(p config.ProxySettings) (*url.URL, error) {
	scheme := p.Type
	if scheme == "" {
		scheme = "http"
	}
	hostport := fmt.Sprintf("%s:%d", p.Host, p.Port)
	raw := scheme + "://" + hostport
	if p.Username != "" {
		userinfo := url.UserPassword(p.Username, p.Password)
		raw = scheme + "://" + userinfo.String() + "@" + hostport
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("proxyconfig: parse proxy url: %w", err)
	}
	return u, nil
}

// ShouldBypass reports whether host should skip the proxy, checking
// bypass-local first (localhost/127.0.0.1/*.local) and then the configured
// bypass list, honoring a "*." wildcard prefix.
func ShouldBypass(p config.ProxySettings, host string) bool {
	if p.BypassLocal && (host == "localhost" || host == "127.0.0.1" || strings.HasSuffix(host, ".local")) {
		return true
	}
	for _, entry := range p.BypassList {
		if entry == host {
			return true
		}
		if strings.HasPrefix(entry, "*.") && strings.HasSuffix(host, entry[1:]) {
			return true
		}
	}
	return false
}

// NewHTTPClient returns an *http.Client configured per p. If p is disabled,
// it returns a plain client with the given timeout and no proxy.
func NewHTTPClient(p config.ProxySettings, timeout time.Duration) (*http.Client, error) {
	if !p.Enabled {
		return &http.Client{Timeout: timeout}, nil
	}
	proxyURL, err := BuildURL(p)
	if err != nil {
		return nil, err
	}
	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			if ShouldBypass(p, req.URL.Hostname()) {
				return nil, nil
			}
			return proxyURL, nil
		},
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// Test builds a client from p and issues a GET against target, reporting
// whether the proxy is usable. Only a 2xx status counts as success.
func Test(ctx context.Context, p config.ProxySettings, target string) error {
	client, err := NewHTTPClient(p, testTimeout)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("proxyconfig: build test request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("proxyconfig: test request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("proxyconfig: proxy test returned status %d", resp.StatusCode)
	}
	return nil
}
