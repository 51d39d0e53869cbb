package internal_test

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankli0324/go-fetch/internal"
	"github.com/frankli0324/go-fetch/internal/config"
	"github.com/frankli0324/go-fetch/internal/fetcherr"
	"github.com/frankli0324/go-fetch/internal/http"
)

var ctx = context.Background()

type seen struct {
	Method string
	Path   string
	Body   string
	Header stdhttp.Header
	Close  bool
	CL     int64
}

// recorder serves routes and records every request it gets.
type recorder struct {
	mu   sync.Mutex
	reqs []seen
}

func (rec *recorder) server(t *testing.T, routes map[string]stdhttp.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		b, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.reqs = append(rec.reqs, seen{r.Method, r.URL.Path, string(b), r.Header.Clone(), r.Close, r.ContentLength})
		rec.mu.Unlock()
		if h, ok := routes[r.URL.Path]; ok {
			h(w, r)
			return
		}
		stdhttp.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (rec *recorder) all() []seen {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]seen(nil), rec.reqs...)
}

func redirectTo(code int, loc string) stdhttp.HandlerFunc {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if loc != "" {
			w.Header().Set("Location", loc)
		}
		w.WriteHeader(code)
	}
}

func text(s string) stdhttp.HandlerFunc {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		io.WriteString(w, s)
	}
}

func TestFetchBasic(t *testing.T) {
	var rec recorder
	srv := rec.server(t, map[string]stdhttp.HandlerFunc{
		"/hello": func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			w.Header().Set("X-Reply", "1")
			w.Header().Add("Set-Cookie", "a=1")
			w.Header().Add("Set-Cookie", "b=2")
			io.WriteString(w, "hello")
		},
	})

	resp, err := (&internal.Client{}).Fetch(ctx, srv.URL+"/hello")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status())
	assert.Equal(t, "OK", resp.StatusText())
	assert.True(t, resp.OK())
	assert.Equal(t, srv.URL+"/hello", resp.URL())
	assert.Equal(t, []string{"a=1", "b=2"}, resp.Headers().All("set-cookie"))
	body, err := resp.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", body)

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, "GET", got[0].Method)
	assert.Equal(t, "*/*", got[0].Header.Get("Accept"))
	assert.Equal(t, http.DefaultUserAgent, got[0].Header.Get("User-Agent"))
	assert.Equal(t, "gzip,deflate", got[0].Header.Get("Accept-Encoding"))
	assert.True(t, got[0].Close)
}

func TestFetchPostBodies(t *testing.T) {
	cases := []struct {
		name   string
		body   interface{}
		wantCL int64
		wantCT string
	}{
		{"text", "data", 4, "text/plain;charset=UTF-8"},
		{"bytes", []byte("data"), 4, ""},
		{"stream", io.MultiReader(strings.NewReader("da"), strings.NewReader("ta")), -1, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var rec recorder
			srv := rec.server(t, map[string]stdhttp.HandlerFunc{"/": text("ok")})
			resp, err := (&internal.Client{}).Fetch(ctx, srv.URL+"/",
				http.WithMethod("post"), http.WithBody(c.body))
			require.NoError(t, err)
			assert.Equal(t, 200, resp.Status())

			got := rec.all()
			require.Len(t, got, 1)
			assert.Equal(t, "POST", got[0].Method)
			assert.Equal(t, "data", got[0].Body)
			assert.Equal(t, c.wantCL, got[0].CL)
			assert.Equal(t, c.wantCT, got[0].Header.Get("Content-Type"))
		})
	}
}

func TestFetchBodilessPost(t *testing.T) {
	var rec recorder
	srv := rec.server(t, map[string]stdhttp.HandlerFunc{"/": text("ok")})
	_, err := (&internal.Client{}).Fetch(ctx, srv.URL+"/", http.WithMethod("POST"))
	require.NoError(t, err)
	assert.Equal(t, "0", rec.all()[0].Header.Get("Content-Length"))
}

func TestFetchRedirectPostToGet(t *testing.T) {
	var rec recorder
	srv := rec.server(t, map[string]stdhttp.HandlerFunc{
		"/":     redirectTo(302, "/next"),
		"/next": text("landed"),
	})
	resp, err := (&internal.Client{}).Fetch(ctx, srv.URL+"/",
		http.WithMethod("POST"), http.WithBody("data"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/next", resp.URL())
	body, err := resp.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "landed", body)

	got := rec.all()
	require.Len(t, got, 2)
	assert.Equal(t, "POST", got[0].Method)
	assert.Equal(t, "GET", got[1].Method)
	assert.Empty(t, got[1].Body)
	assert.Empty(t, got[1].Header.Get("Content-Length"))
}

func TestFetchRedirectReplaysStream(t *testing.T) {
	for _, code := range []int{307, 308} {
		t.Run(stdhttp.StatusText(code), func(t *testing.T) {
			var rec recorder
			srv := rec.server(t, map[string]stdhttp.HandlerFunc{
				"/":     redirectTo(code, "/next"),
				"/next": text("ok"),
			})
			payload := bytes.Repeat([]byte("0123456789"), 10000)
			resp, err := (&internal.Client{}).Fetch(ctx, srv.URL+"/",
				http.WithMethod("PUT"), http.WithBody(io.NopCloser(bytes.NewReader(payload))))
			require.NoError(t, err)
			assert.Equal(t, 200, resp.Status())

			got := rec.all()
			require.Len(t, got, 2)
			for _, r := range got {
				assert.Equal(t, "PUT", r.Method)
				assert.Equal(t, string(payload), r.Body)
			}
		})
	}
}

func TestFetchRedirectErrors(t *testing.T) {
	var rec recorder
	srv := rec.server(t, map[string]stdhttp.HandlerFunc{
		"/moved":    redirectTo(301, "/"),
		"/loop":     redirectTo(302, "/loop"),
		"/nowhere":  redirectTo(302, ""),
		"/unparsed": redirectTo(302, "http://[::1"),
	})
	cl := &internal.Client{}

	_, err := cl.Fetch(ctx, srv.URL+"/moved", http.WithRedirect(http.RedirectError))
	assert.ErrorIs(t, err, fetcherr.ErrNoRedirect)

	_, err = cl.Fetch(ctx, srv.URL+"/loop", http.WithFollow(3))
	assert.ErrorIs(t, err, fetcherr.ErrMaxRedirect)
	assert.Len(t, rec.all(), 1+4)

	_, err = cl.Fetch(ctx, srv.URL+"/loop", http.WithFollow(0))
	assert.ErrorIs(t, err, fetcherr.ErrMaxRedirect)

	_, err = cl.Fetch(ctx, srv.URL+"/nowhere")
	assert.ErrorIs(t, err, fetcherr.ErrInvalidRedirect)

	_, err = cl.Fetch(ctx, srv.URL+"/unparsed")
	assert.ErrorIs(t, err, fetcherr.ErrInvalidRedirect)
}

func TestFetchManualRedirect(t *testing.T) {
	var rec recorder
	srv := rec.server(t, map[string]stdhttp.HandlerFunc{
		"/a/b": redirectTo(302, "../next?q=1"),
	})
	resp, err := (&internal.Client{}).Fetch(ctx, srv.URL+"/a/b", http.WithRedirect(http.RedirectManual))
	require.NoError(t, err)
	assert.Equal(t, 302, resp.Status())
	loc, _ := resp.Headers().Get("location")
	assert.Equal(t, srv.URL+"/next?q=1", loc)
	assert.Len(t, rec.all(), 1)
}

func encoded(t *testing.T, coding string, payload string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch coding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "deflate":
		w = zlib.NewWriter(&buf)
	case "raw-deflate":
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
		w = fw
	}
	_, err := io.WriteString(w, payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFetchDecodes(t *testing.T) {
	const payload = "a body that went through a content coding"
	cases := []struct {
		name, coding, header string
	}{
		{"gzip", "gzip", "gzip"},
		{"x-gzip", "gzip", "x-gzip"},
		{"zlib", "deflate", "deflate"},
		{"raw deflate", "raw-deflate", "deflate"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			wire := encoded(t, c.coding, payload)
			srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
				w.Header().Set("Content-Encoding", c.header)
				w.Write(wire)
			}))
			defer srv.Close()

			resp, err := (&internal.Client{}).Fetch(ctx, srv.URL)
			require.NoError(t, err)
			body, err := resp.Text(ctx)
			require.NoError(t, err)
			assert.Equal(t, payload, body)

			resp, err = (&internal.Client{}).Fetch(ctx, srv.URL, http.WithCompress(false))
			require.NoError(t, err)
			raw, err := resp.Bytes(ctx)
			require.NoError(t, err)
			assert.Equal(t, wire, raw)
		})
	}
}

func TestFetchTruncatedEncodedBody(t *testing.T) {
	wire := encoded(t, "gzip", strings.Repeat("cut short ", 1000))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		stdhttp.ReadRequest(bufio.NewReader(conn))
		fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\nContent-Encoding: gzip\r\nContent-Length: %d\r\n\r\n", len(wire))
		conn.Write(wire[:len(wire)/2])
	}()

	resp, err := (&internal.Client{}).Fetch(ctx, "http://"+ln.Addr().String()+"/")
	require.NoError(t, err)
	_, err = resp.Bytes(ctx)
	assert.ErrorIs(t, err, fetcherr.ErrSystem)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFetchUnsupportedEncodingPassesThrough(t *testing.T) {
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		w.Header().Set("Content-Encoding", "br")
		io.WriteString(w, "not really brotli")
	}))
	defer srv.Close()

	resp, err := (&internal.Client{}).Fetch(ctx, srv.URL)
	require.NoError(t, err)
	body, err := resp.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "not really brotli", body)
}

func TestFetchHeadSkipsDecoding(t *testing.T) {
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Length", "20")
	}))
	defer srv.Close()

	resp, err := (&internal.Client{}).Fetch(ctx, srv.URL, http.WithMethod("HEAD"))
	require.NoError(t, err)
	body, err := resp.Bytes(ctx)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestFetchRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := (&internal.Client{}).Fetch(ctx, srv.URL, http.WithTimeout(50*time.Millisecond))
	assert.ErrorIs(t, err, fetcherr.ErrRequestTimeout)
	assert.ErrorContains(t, err, "network timeout at: "+srv.URL)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetchBodyTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		w.Header().Set("Content-Length", "100")
		io.WriteString(w, "partial")
		w.(stdhttp.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	resp, err := (&internal.Client{}).Fetch(ctx, srv.URL, http.WithTimeout(100*time.Millisecond))
	require.NoError(t, err)
	_, err = resp.Text(ctx)
	assert.ErrorIs(t, err, fetcherr.ErrBodyTimeout)
}

func TestFetchMaxSize(t *testing.T) {
	srv := httptest.NewServer(text("01234567890"))
	defer srv.Close()

	resp, err := (&internal.Client{}).Fetch(ctx, srv.URL, http.WithMaxSize(10))
	require.NoError(t, err)
	b, err := resp.Bytes(ctx)
	assert.ErrorIs(t, err, fetcherr.ErrMaxSize)
	assert.Nil(t, b)

	_, err = resp.Bytes(ctx)
	assert.ErrorIs(t, err, fetcherr.ErrBodyReused)
}

func TestFetchSystemError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = (&internal.Client{}).Fetch(ctx, "http://"+addr+"/")
	assert.ErrorIs(t, err, fetcherr.ErrSystem)
	var opErr *net.OpError
	assert.True(t, errors.As(err, &opErr), "cause should be kept, got %v", err)
}

func TestFetchContextCanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err := (&internal.Client{}).Fetch(cctx, srv.URL)
	assert.ErrorIs(t, err, fetcherr.ErrSystem)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchUnsupportedScheme(t *testing.T) {
	for _, u := range []string{"ftp://example.com/file", "/relative", "mailto:someone@example.com"} {
		_, err := (&internal.Client{}).Fetch(ctx, u)
		assert.ErrorIs(t, err, fetcherr.ErrUnsupportedScheme, u)
	}
}

func TestFetchConstructionError(t *testing.T) {
	_, err := (&internal.Client{}).Fetch(ctx, "http://example.com", http.WithBody("x"))
	assert.ErrorIs(t, err, fetcherr.ErrConstruction)
	assert.ErrorIs(t, err, fetcherr.ErrBodyProhibited)
}

func TestFetchUsedRequestBody(t *testing.T) {
	req, err := http.NewRequest("http://127.0.0.1:1/", http.WithMethod("POST"),
		http.WithBody(strings.NewReader("once")))
	require.NoError(t, err)
	_, err = req.Text(ctx)
	require.NoError(t, err)

	_, err = (&internal.Client{}).Fetch(ctx, req)
	assert.ErrorIs(t, err, fetcherr.ErrBodyReused)
}

func TestFetchSeedsFromRequest(t *testing.T) {
	var rec recorder
	srv := rec.server(t, map[string]stdhttp.HandlerFunc{"/": text("ok")})
	req, err := http.NewRequest(srv.URL+"/", http.WithMethod("PATCH"),
		http.WithHeaders(map[string]string{"X-Seed": "1"}), http.WithBody("seeded"))
	require.NoError(t, err)

	_, err = (&internal.Client{}).Fetch(ctx, req, http.WithHeaders(map[string]string{"X-Override": "2"}))
	require.NoError(t, err)
	got := rec.all()[0]
	assert.Equal(t, "PATCH", got.Method)
	assert.Equal(t, "seeded", got.Body)
	assert.Empty(t, got.Header.Get("X-Seed"))
	assert.Equal(t, "2", got.Header.Get("X-Override"))
}

func TestMiddlewareOrder(t *testing.T) {
	srv := httptest.NewServer(text("ok"))
	defer srv.Close()

	var order []string
	mw := func(name string) internal.Middleware {
		return func(next internal.Handler) internal.Handler {
			return func(ctx context.Context, req *http.PreparedRequest) (*http.Response, error) {
				order = append(order, name)
				req.Header.Set("X-"+name, "1")
				return next(ctx, req)
			}
		}
	}
	cl := &internal.Client{}
	cl.Use(mw("first"), mw("second"))
	_, err := cl.Fetch(ctx, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestMiddlewareRunsPerHop(t *testing.T) {
	var rec recorder
	srv := rec.server(t, map[string]stdhttp.HandlerFunc{
		"/":     redirectTo(301, "/next"),
		"/next": text("ok"),
	})
	hops := 0
	cl, err := internal.New(internal.WithMiddleware(func(next internal.Handler) internal.Handler {
		return func(ctx context.Context, req *http.PreparedRequest) (*http.Response, error) {
			hops++
			return next(ctx, req)
		}
	}))
	require.NoError(t, err)
	_, err = cl.Fetch(ctx, srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, 2, hops)
}

func TestClientWithConfig(t *testing.T) {
	var rec recorder
	srv := rec.server(t, map[string]stdhttp.HandlerFunc{
		"/":  redirectTo(302, "/b"),
		"/b": text("ok"),
	})
	cfg := config.Default()
	cfg.UserAgent = "configured/2.0"
	cfg.Headers = map[string]string{"X-Env": "test"}
	cfg.Follow = 0
	cfg.Throttle = config.Throttle{RPS: 100, Burst: 1}

	var logs bytes.Buffer
	cl, err := internal.New(
		internal.WithConfig(cfg),
		internal.WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
	)
	require.NoError(t, err)

	_, err = cl.Fetch(ctx, srv.URL+"/")
	assert.ErrorIs(t, err, fetcherr.ErrMaxRedirect)
	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, "configured/2.0", got[0].Header.Get("User-Agent"))
	assert.Equal(t, "test", got[0].Header.Get("X-Env"))
	assert.Contains(t, logs.String(), "exchange=")
	assert.Contains(t, logs.String(), "kind=max-redirect")

	_, err = internal.New(internal.WithConfig(&config.Config{Follow: -1}))
	assert.Error(t, err)
}

func TestNewRejectsBadThrottle(t *testing.T) {
	_, err := internal.New(internal.WithThrottle(0, 1))
	assert.ErrorIs(t, err, internal.ErrMustNotBeZero)
}

func TestFetchWithTransportOptionsDialer(t *testing.T) {
	srv := httptest.NewServer(text("via agent"))
	defer srv.Close()

	dialed := 0
	agent := dialerFunc(func(ctx context.Context, r *http.PreparedRequest) (io.ReadWriteCloser, error) {
		dialed++
		return net.Dial("tcp", srv.Listener.Addr().String())
	})
	resp, err := (&internal.Client{}).Fetch(ctx, "http://elsewhere.test/", http.WithTransportOptions(agent))
	require.NoError(t, err)
	body, err := resp.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "via agent", body)
	assert.Equal(t, 1, dialed)
}

type dialerFunc func(ctx context.Context, r *http.PreparedRequest) (io.ReadWriteCloser, error)

func (f dialerFunc) Dial(ctx context.Context, r *http.PreparedRequest) (io.ReadWriteCloser, error) {
	return f(ctx, r)
}

var _ http.Dialer = dialerFunc(nil)
