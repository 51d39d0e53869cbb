package dialer

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/url"

	"github.com/frankli0324/go-fetch/internal/headers"
	"github.com/frankli0324/go-fetch/internal/http"
	"github.com/frankli0324/go-fetch/internal/transport"
)

type ProxyConfig struct {
	TLSConfig      *tls.Config    // the [*tls.Config] to use with proxy, if nil, *[CoreDialer.TLSConfig] will be used
	ResolveLocally bool           `yaml:"resolve_locally"`
	ResolveConfig  *ResolveConfig `yaml:"resolve"` // overrides the resolver config for dialer for proxy
}

func (c *ProxyConfig) Clone() *ProxyConfig {
	if c == nil {
		return nil
	}
	return &ProxyConfig{
		TLSConfig:      c.TLSConfig.Clone(),
		ResolveLocally: c.ResolveLocally,
		ResolveConfig:  c.ResolveConfig.Clone(),
	}
}

var ErrUnsupportedProxy = errors.New("unsupported proxy scheme")

// ProxyError is returned when the proxy refuses to open a tunnel.
type ProxyError struct {
	Status int
	Body   string
}

func (e *ProxyError) Error() string {
	return fmt.Sprintf("proxy server returned error. status:%d, body:%s", e.Status, e.Body)
}

func (d *CoreDialer) tryDialProxy(ctx context.Context, r *http.PreparedRequest) (net.Conn, error) {
	if d.GetProxy != nil {
		proxy, perr := d.GetProxy(ctx, r.Request)
		if perr != nil {
			return nil, perr
		}
		if proxy != "" {
			proxyU, perr := url.Parse(proxy)
			if perr != nil {
				return nil, perr
			}
			return d.DialContextOverProxy(ctx, r.Addr, proxyU)
		}
	}
	return nil, nil
}

// DialContextOverProxy creates a tunnel to the remote host:port over an
// http(s) proxy with CONNECT.
// This part of logic may be reused when wrapping *[CoreDialer] into
// a new custom [Dialer]
func (d *CoreDialer) DialContextOverProxy(ctx context.Context, remote string, proxy *url.URL) (net.Conn, error) {
	if proxy.Scheme != "http" && proxy.Scheme != "https" { // TODO: socks5 via CONNECT-less handshake
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProxy, proxy.Scheme)
	}
	hp := proxy.Host
	if proxy.Port() == "" {
		port := "80"
		if proxy.Scheme == "https" {
			port = "443"
		}
		hp = net.JoinHostPort(proxy.Hostname(), port)
	}

	var zeroDialer net.Dialer
	conn, err := zeroDialer.DialContext(ctx, "tcp", hp)
	if err != nil {
		return nil, err
	}

	var pcfg ProxyConfig
	if d.ProxyConfig != nil {
		pcfg = *d.ProxyConfig
	}
	if proxy.Scheme == "https" {
		tlsCfg := pcfg.TLSConfig
		if tlsCfg == nil {
			tlsCfg = d.TLSConfig
		}
		c := tls.Client(conn, d.tlsConfig(tlsCfg, proxy.Hostname()))
		if err := c.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		conn = c
	}

	addr, port, err := net.SplitHostPort(remote)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if pcfg.ResolveLocally {
		dnsCfg := pcfg.ResolveConfig.Merge(d.ResolveConfig)
		if res, ok := dnsCfg.StaticHosts[addr]; ok {
			addr = res
		} else {
			ips, err := d.lookup(ctx, dnsCfg, addr)
			if err != nil {
				conn.Close()
				return nil, err
			}
			addr = ips[rand.Intn(len(ips))].String()
		}
	}

	target := net.JoinHostPort(addr, port)
	h := headers.New()
	if auth := basicAuth(proxy.User); auth != "" {
		h.Set("Proxy-Authorization", auth)
	}
	if err := transport.WriteHead(conn, transport.RequestHead{
		Method: "CONNECT", Target: target, Host: remote,
		ContentLength: -1, Header: h,
	}); err != nil {
		conn.Close()
		return nil, err
	}

	br := bufio.NewReader(conn)
	head, err := transport.ReadHead(br)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if head.Status != 200 {
		s, _ := io.ReadAll(io.LimitReader(br, 1024))
		conn.Close()
		return nil, &ProxyError{head.Status, string(s)}
	}
	if br.Buffered() > 0 {
		// the tunnel already carries bytes from the remote
		return &bufferedConn{conn, br}, nil
	}
	return conn, nil
}

type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// basicAuth encodes the decoded credentials of u, so reserved characters
// in a password reach the proxy as typed rather than percent-escaped.
func basicAuth(u *url.Userinfo) string {
	if u == nil {
		return ""
	}
	password, _ := u.Password()
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(u.Username()+":"+password))
}
