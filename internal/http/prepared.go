package http

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/frankli0324/go-fetch/internal/body"
	"github.com/frankli0324/go-fetch/internal/fetcherr"
	"github.com/frankli0324/go-fetch/internal/headers"
)

// DefaultHeaders are filled in by [Request.Prepare] for every header the
// caller did not set. Extra headers are applied the same way.
type DefaultHeaders struct {
	Accept         string
	UserAgent      string
	AcceptEncoding string
	Extra          map[string]string
}

const DefaultUserAgent = "go-fetch/1.0 (+https://github.com/frankli0324/go-fetch)"

func StandardHeaders() DefaultHeaders {
	return DefaultHeaders{
		Accept:         "*/*",
		UserAgent:      DefaultUserAgent,
		AcceptEncoding: "gzip,deflate",
	}
}

// PreparedRequest is what a transport needs to put r on the wire.
type PreparedRequest struct {
	*Request

	U          *url.URL
	Addr       string // punycoded host:port to connect to
	Header     *headers.Headers // without Host, Content-Length
	HeaderHost string

	// -1 when unknown, in which case a present payload is sent chunked
	ContentLength int64
	// the request's own source unless replaced, e.g. by a fork
	Payload body.Source
}

// Prepare validates the target and computes the headers sent on the wire.
func (r *Request) Prepare(d DefaultHeaders) (*PreparedRequest, error) {
	u, err := url.Parse(r.url)
	if err != nil {
		return nil, fetcherr.Wrap(fetcherr.KindUnsupportedScheme, err, "only absolute URLs are supported: %v", err)
	}
	if !u.IsAbs() || u.Hostname() == "" {
		return nil, fetcherr.New(fetcherr.KindUnsupportedScheme, "only absolute URLs are supported: %s", r.url)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fetcherr.New(fetcherr.KindUnsupportedScheme, "only HTTP(S) protocols are supported: %s", r.url)
	}
	host, err := httpguts.PunycodeHostPort(u.Host)
	if err != nil {
		return nil, fetcherr.Wrap(fetcherr.KindUnsupportedScheme, err, "invalid host %q: %v", u.Host, err)
	}
	addr := net.JoinHostPort((&url.URL{Host: host}).Hostname(), portOf(u))

	h := r.headers.Clone()
	// user defined headers has higher priority
	if v := h.All("host"); len(v) != 0 {
		host = v[0]
	}
	h.Delete("host")

	cl := int64(-1)
	if v, ok := h.Get("content-length"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cl = n
		}
	}
	h.Delete("content-length")
	src := r.Source()
	if src.IsNone() {
		// a declared length without a payload would leave the server
		// waiting for bytes that never come
		cl = -1
		if r.method == "POST" || r.method == "PUT" {
			cl = 0
		}
	} else if n, ok := src.TotalBytes(); ok {
		cl = n
	}

	setDefault(h, "Accept", d.Accept)
	setDefault(h, "User-Agent", d.UserAgent)
	if r.compress {
		setDefault(h, "Accept-Encoding", d.AcceptEncoding)
	}
	if r.transportOptions == nil {
		setDefault(h, "Connection", "close")
	}
	for k, v := range d.Extra {
		setDefault(h, k, v)
	}

	return &PreparedRequest{
		Request: r, U: u, Addr: addr,
		Header: h, HeaderHost: host,
		ContentLength: cl, Payload: src,
	}, nil
}

func setDefault(h *headers.Headers, name, value string) {
	if value != "" && !h.Has(name) {
		h.Set(name, value)
	}
}

// RequestURI is the request target written on the request line.
func (r *PreparedRequest) RequestURI() string {
	uri := r.U.RequestURI()
	if uri == "" {
		uri = "/"
	}
	return uri
}

// Port returns the explicit port or the scheme default.
func (r *PreparedRequest) Port() string {
	return portOf(r.U)
}

func portOf(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if strings.EqualFold(u.Scheme, "https") {
		return "443"
	}
	return "80"
}
