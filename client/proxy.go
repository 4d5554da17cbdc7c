package client

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/proxy"

	"github.com/ytget/ytstream/internal/logger"
)

// configureProxy routes tr through proxyURL. socks5 proxies are dialed with
// x/net/proxy; http and https proxies use Transport.Proxy. Hosts matching a
// noProxy pattern (exact or with * wildcards) connect directly.
func configureProxy(tr *http.Transport, proxyURL string, noProxy []string) error {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("failed to parse proxy URL: %w", err)
	}

	switch u.Scheme {
	case "socks5", "socks5h":
		direct := newDialer()
		dialer, err := proxy.FromURL(u, direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		tr.Proxy = nil
		tr.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				host = addr
			}
			if bypass(host, noProxy) {
				return direct.DialContext(ctx, network, addr)
			}
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
	case "http", "https":
		tr.Proxy = func(req *http.Request) (*url.URL, error) {
			if bypass(req.URL.Hostname(), noProxy) {
				return nil, nil
			}
			return u, nil
		}
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", u.Scheme)
	}

	logger.WithComponent(logger.ComponentClient).Info("proxy configured", map[string]interface{}{
		"proxy":    u.Redacted(),
		"no_proxy": strings.Join(noProxy, ","),
	})
	return nil
}

func bypass(host string, noProxy []string) bool {
	for _, pattern := range noProxy {
		if matchHost(host, pattern) {
			return true
		}
	}
	return false
}

func matchHost(host, pattern string) bool {
	if strings.Contains(pattern, "*") {
		expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$"
		matched, _ := regexp.MatchString(expr, host)
		return matched
	}
	return host == pattern
}
