// package dialer opens the raw streams requests are written to: plain
// TCP, TLS, or a CONNECT tunnel through an http(s) proxy.
package dialer

import (
	"context"
	"crypto/tls"
	"net/url"

	"golang.org/x/net/http/httpproxy"

	"github.com/frankli0324/go-fetch/internal/http"
)

type Dialer = http.Dialer

var _ Dialer = (*CoreDialer)(nil)

// ProxyFunc picks the proxy URL for r. An empty result dials directly.
type ProxyFunc func(ctx context.Context, r *http.Request) (string, error)

// CoreDialer holds connection settings only, never connections, so it can
// be swapped out of a client at any time.
type CoreDialer struct {
	ResolveConfig *ResolveConfig
	TLSConfig     *tls.Config

	GetProxy    ProxyFunc
	ProxyConfig *ProxyConfig

	// applied to every connection unless the request carries its own
	// *SocketOptions as transport options
	Socket *SocketOptions
}

func (d *CoreDialer) Clone() *CoreDialer {
	return &CoreDialer{
		ResolveConfig: d.ResolveConfig.Clone(),
		TLSConfig:     d.TLSConfig.Clone(),
		GetProxy:      d.GetProxy,
		ProxyConfig:   d.ProxyConfig.Clone(),
		Socket:        d.Socket.Clone(),
	}
}

// StaticProxy sends every request through proxy.
func StaticProxy(proxy string) ProxyFunc {
	return func(context.Context, *http.Request) (string, error) {
		return proxy, nil
	}
}

// EnvironmentProxy picks proxies from HTTP_PROXY, HTTPS_PROXY and NO_PROXY
// (or their lowercase forms), read once when called.
func EnvironmentProxy() ProxyFunc {
	return proxyFromConfig(httpproxy.FromEnvironment())
}

func proxyFromConfig(cfg *httpproxy.Config) ProxyFunc {
	pick := cfg.ProxyFunc()
	return func(_ context.Context, r *http.Request) (string, error) {
		u, err := url.Parse(r.URL())
		if err != nil {
			return "", err
		}
		proxy, err := pick(u)
		if err != nil || proxy == nil {
			return "", err
		}
		return proxy.String(), nil
	}
}
