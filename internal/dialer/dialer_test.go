package dialer

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"io"
	"net"
	stdhttp "net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http/httpproxy"

	"github.com/frankli0324/go-fetch/internal/http"
)

func prepare(t *testing.T, u string, opts ...http.RequestOption) *http.PreparedRequest {
	t.Helper()
	r, err := http.NewRequest(u, opts...)
	require.NoError(t, err)
	pr, err := r.Prepare(http.DefaultHeaders{})
	require.NoError(t, err)
	return pr
}

// echo accepts a single connection and echoes one line back.
func echo(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		conn.Write([]byte(line))
	}()
	return ln
}

func roundTrip(t *testing.T, rw io.ReadWriter) {
	t.Helper()
	_, err := rw.Write([]byte("ping\n"))
	require.NoError(t, err)
	line, err := bufio.NewReader(rw).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ping\n", line)
}

func TestDialStaticHosts(t *testing.T) {
	ln := echo(t)
	_, port, _ := net.SplitHostPort(ln.Addr().String())

	d := &CoreDialer{ResolveConfig: &ResolveConfig{
		StaticHosts: map[string]string{"example.test": "127.0.0.1"},
		Network:     "ip4",
	}}
	conn, err := d.Dial(context.Background(), prepare(t, "http://example.test:"+port+"/"))
	require.NoError(t, err)
	defer conn.Close()
	roundTrip(t, conn)
}

func TestDialSocketOptions(t *testing.T) {
	ln := echo(t)
	d := &CoreDialer{Socket: &SocketOptions{
		DisableNoDelay: true,
		ReuseAddr:      true,
		RecvBuffer:     64 * 1024,
		SendBuffer:     64 * 1024,
		LocalAddr:      "127.0.0.1",
	}}
	conn, err := d.Dial(context.Background(), prepare(t, "http://"+ln.Addr().String()+"/"))
	require.NoError(t, err)
	defer conn.Close()
	roundTrip(t, conn)
}

func TestDialRequestSocketOptions(t *testing.T) {
	ln := echo(t)
	d := &CoreDialer{Socket: &SocketOptions{}}
	pr := prepare(t, "http://"+ln.Addr().String()+"/",
		http.WithTransportOptions(&SocketOptions{LocalAddr: "not-an-address:port"}))
	_, err := d.Dial(context.Background(), pr)
	assert.Error(t, err, "request options take precedence over the dialer's")
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = (&CoreDialer{}).Dial(context.Background(), prepare(t, "http://"+addr+"/"))
	assert.Error(t, err)
}

// connectProxy serves a single CONNECT and then echoes a line through
// the tunnel.
func connectProxy(t *testing.T, wantAuth string, status int) (net.Listener, <-chan *stdhttp.Request) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	reqs := make(chan *stdhttp.Request, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		br := bufio.NewReader(conn)
		req, err := stdhttp.ReadRequest(br)
		if err != nil {
			return
		}
		reqs <- req
		if req.Header.Get("Proxy-Authorization") != wantAuth || status != 200 {
			conn.Write([]byte("HTTP/1.1 407 Proxy Authentication Required\r\nContent-Length: 6\r\n\r\ndenied"))
			return
		}
		conn.Write([]byte("HTTP/1.1 200 Connection established\r\n\r\n"))
		line, _ := br.ReadString('\n')
		conn.Write([]byte(line))
	}()
	return ln, reqs
}

func TestDialOverProxy(t *testing.T) {
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte("user:pass"))
	ln, reqs := connectProxy(t, auth, 200)

	d := &CoreDialer{GetProxy: func(ctx context.Context, r *http.Request) (string, error) {
		return "http://user:pass@" + ln.Addr().String(), nil
	}}
	conn, err := d.Dial(context.Background(), prepare(t, "http://target.test:8080/x"))
	require.NoError(t, err)
	defer conn.Close()

	req := <-reqs
	assert.Equal(t, "CONNECT", req.Method)
	assert.Equal(t, "target.test:8080", req.Host)
	roundTrip(t, conn)
}

func TestDialOverProxyEscapedCredentials(t *testing.T) {
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte("user@corp:p@ss:w%rd"))
	ln, reqs := connectProxy(t, auth, 200)

	d := &CoreDialer{GetProxy: StaticProxy("http://user%40corp:p%40ss%3Aw%25rd@" + ln.Addr().String())}
	conn, err := d.Dial(context.Background(), prepare(t, "http://target.test/"))
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, auth, (<-reqs).Header.Get("Proxy-Authorization"))
	roundTrip(t, conn)
}

func TestBasicAuth(t *testing.T) {
	assert.Empty(t, basicAuth(nil))
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("only:")), basicAuth(url.User("only")))
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("a:b:c")), basicAuth(url.UserPassword("a", "b:c")))
}

func TestDialOverProxyResolveLocally(t *testing.T) {
	ln, reqs := connectProxy(t, "", 200)
	d := &CoreDialer{
		ResolveConfig: &ResolveConfig{StaticHosts: map[string]string{"target.test": "10.0.0.7"}},
		ProxyConfig:   &ProxyConfig{ResolveLocally: true},
		GetProxy: func(ctx context.Context, r *http.Request) (string, error) {
			return "http://" + ln.Addr().String(), nil
		},
	}
	conn, err := d.Dial(context.Background(), prepare(t, "http://target.test/"))
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "10.0.0.7:80", (<-reqs).RequestURI)
}

func TestDialProxyRefused(t *testing.T) {
	ln, _ := connectProxy(t, "", 407)
	d := &CoreDialer{GetProxy: func(ctx context.Context, r *http.Request) (string, error) {
		return "http://" + ln.Addr().String(), nil
	}}
	_, err := d.Dial(context.Background(), prepare(t, "http://target.test/"))
	var pe *ProxyError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, 407, pe.Status)
	assert.Equal(t, "denied", pe.Body)
}

func TestDialProxyErrors(t *testing.T) {
	boom := errors.New("boom")
	d := &CoreDialer{GetProxy: func(ctx context.Context, r *http.Request) (string, error) {
		return "", boom
	}}
	_, err := d.Dial(context.Background(), prepare(t, "http://target.test/"))
	assert.ErrorIs(t, err, boom)

	d.GetProxy = func(ctx context.Context, r *http.Request) (string, error) {
		return "socks5://127.0.0.1:1080", nil
	}
	_, err = d.Dial(context.Background(), prepare(t, "http://target.test/"))
	assert.ErrorIs(t, err, ErrUnsupportedProxy)
}

func TestResolveConfigMerge(t *testing.T) {
	var nilCfg *ResolveConfig
	assert.Nil(t, nilCfg.Merge(nil))

	fallback := &ResolveConfig{
		CustomDNSServer: "1.1.1.1:53",
		Network:         "ip6",
		StaticHosts:     map[string]string{"a": "1", "b": "2"},
	}
	m := (&ResolveConfig{Network: "ip4", StaticHosts: map[string]string{"a": "9"}}).Merge(fallback)
	assert.Equal(t, &ResolveConfig{
		CustomDNSServer: "1.1.1.1:53",
		Network:         "ip4",
		StaticHosts:     map[string]string{"a": "9", "b": "2"},
	}, m)
	assert.Equal(t, "2", fallback.StaticHosts["b"])
	assert.Len(t, fallback.StaticHosts, 2)

	assert.Equal(t, fallback, nilCfg.Merge(fallback))
	assert.Equal(t, "tcp6", fallback.tcpNetwork())
	assert.Equal(t, "tcp", nilCfg.tcpNetwork())
}

func TestTLSConfigStripsH2(t *testing.T) {
	base := &tls.Config{NextProtos: []string{"h2", "http/1.1"}}
	cfg := (&CoreDialer{}).tlsConfig(base, "example.com")
	assert.Equal(t, []string{"http/1.1"}, cfg.NextProtos)
	assert.Equal(t, "example.com", cfg.ServerName)
	assert.Equal(t, []string{"h2", "http/1.1"}, base.NextProtos)
	assert.Empty(t, base.ServerName)

	cfg = (&CoreDialer{}).tlsConfig(nil, "example.com")
	assert.Equal(t, "example.com", cfg.ServerName)
}

func TestCloneIsDeep(t *testing.T) {
	d := &CoreDialer{
		ResolveConfig: &ResolveConfig{StaticHosts: map[string]string{"a": "1"}},
		ProxyConfig:   &ProxyConfig{ResolveLocally: true},
		Socket:        &SocketOptions{ReuseAddr: true},
	}
	c := d.Clone()
	c.ResolveConfig.StaticHosts["a"] = "2"
	c.Socket.ReuseAddr = false
	assert.Equal(t, "1", d.ResolveConfig.StaticHosts["a"])
	assert.True(t, d.Socket.ReuseAddr)
	assert.True(t, c.ProxyConfig.ResolveLocally)
}

func TestProxyFuncs(t *testing.T) {
	ctx := context.Background()
	r := prepare(t, "https://api.example.test/v1").Request

	proxy, err := StaticProxy("http://p.test:3128")(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, "http://p.test:3128", proxy)

	pick := proxyFromConfig(&httpproxy.Config{
		HTTPProxy:  "http://plain.test:3128",
		HTTPSProxy: "http://secure.test:3128",
		NoProxy:    "internal.test",
	})
	proxy, err = pick(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, "http://secure.test:3128", proxy)

	proxy, err = pick(ctx, prepare(t, "http://api.example.test/").Request)
	require.NoError(t, err)
	assert.Equal(t, "http://plain.test:3128", proxy)

	proxy, err = pick(ctx, prepare(t, "http://internal.test/").Request)
	require.NoError(t, err)
	assert.Empty(t, proxy)
}

func TestResolverFor(t *testing.T) {
	assert.Same(t, net.DefaultResolver, resolverFor(""))
	r := resolverFor("192.0.2.53:53")
	assert.True(t, r.PreferGo)
	assert.NotNil(t, r.Dial)
}
