package dialer

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"slices"

	"github.com/frankli0324/go-fetch/internal/http"
)

func (d *CoreDialer) socketOptions(r *http.PreparedRequest) *SocketOptions {
	if o, ok := r.TransportOptions().(*SocketOptions); ok && o != nil {
		return o
	}
	return d.Socket
}

func (d *CoreDialer) Dial(ctx context.Context, r *http.PreparedRequest) (io.ReadWriteCloser, error) {
	conn, err := d.tryDialProxy(ctx, r)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		if conn, err = d.dialDirect(ctx, r); err != nil {
			return nil, err
		}
	}
	if r.U.Scheme == "https" {
		host, _, _ := net.SplitHostPort(r.Addr)
		c := tls.Client(conn, d.tlsConfig(d.TLSConfig, host))
		if err := c.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		conn = c
	}
	return conn, nil
}

func (d *CoreDialer) dialDirect(ctx context.Context, r *http.PreparedRequest) (net.Conn, error) {
	opts := d.socketOptions(r)
	dialer, err := opts.netDialer()
	if err != nil {
		return nil, err
	}

	network, dst := d.ResolveConfig.tcpNetwork(), r.Addr
	if d.ResolveConfig != nil {
		host, port, _ := net.SplitHostPort(r.Addr)
		if static, ok := d.ResolveConfig.StaticHosts[host]; ok {
			dst = net.JoinHostPort(static, port)
		}
		if dns := d.ResolveConfig.CustomDNSServer; dns != "" {
			dialer.Resolver = resolverFor(dns)
		}
	}

	conn, err := dialer.DialContext(ctx, network, dst)
	if err != nil {
		return nil, err
	}
	if err := opts.afterDial(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// tlsConfig clones base for a connection to serverName. Only HTTP/1.1 is
// spoken over the connection, so h2 is never offered through ALPN.
func (d *CoreDialer) tlsConfig(base *tls.Config, serverName string) *tls.Config {
	config := base.Clone()
	if config == nil {
		config = &tls.Config{}
	}
	if config.ServerName == "" {
		config.ServerName = serverName
	}
	config.NextProtos = slices.DeleteFunc(slices.Clone(config.NextProtos), func(p string) bool {
		return p == "h2"
	})
	return config
}
