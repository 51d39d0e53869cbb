package http

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/frankli0324/go-fetch/internal/body"
	"github.com/frankli0324/go-fetch/internal/fetcherr"
	"github.com/frankli0324/go-fetch/internal/headers"
	"github.com/frankli0324/go-fetch/internal/validate"
)

// Dialer opens the raw stream a request is written to.
type Dialer interface {
	Dial(ctx context.Context, r *PreparedRequest) (io.ReadWriteCloser, error)
}

type Request struct {
	body.Body

	url              string
	method           string
	headers          *headers.Headers
	redirect         RedirectMode
	follow           int
	hopCount         int
	compress         bool
	timeout          time.Duration
	maxSize          int64
	transportOptions interface{}
}

func (r *Request) URL() string                   { return r.url }
func (r *Request) Method() string                { return r.method }
func (r *Request) Headers() *headers.Headers     { return r.headers }
func (r *Request) Redirect() RedirectMode        { return r.redirect }
func (r *Request) Follow() int                   { return r.follow }
func (r *Request) HopCount() int                 { return r.hopCount }
func (r *Request) Compress() bool                { return r.compress }
func (r *Request) Timeout() time.Duration        { return r.timeout }
func (r *Request) MaxSize() int64                { return r.maxSize }
func (r *Request) TransportOptions() interface{} { return r.transportOptions }

// Defaults seed every request before its input and options are applied.
type Defaults struct {
	Method   string
	Redirect RedirectMode
	Follow   int
	Compress bool
	Timeout  time.Duration
	MaxSize  int64
}

func DefaultRequest() Defaults {
	return Defaults{
		Method:   "GET",
		Redirect: RedirectFollow,
		Follow:   20,
		Compress: true,
	}
}

// NewRequest builds a request for input, which is either a *Request whose
// fields seed the new one, a URL string, a *url.URL or a fmt.Stringer.
func NewRequest(input interface{}, opts ...RequestOption) (*Request, error) {
	return NewRequestWithDefaults(DefaultRequest(), input, opts...)
}

func NewRequestWithDefaults(d Defaults, input interface{}, opts ...RequestOption) (*Request, error) {
	r, err := newRequest(d, input, opts)
	if err != nil {
		return nil, fetcherr.Construct("Request", err)
	}
	return r, nil
}

func newRequest(d Defaults, input interface{}, opts []RequestOption) (*Request, error) {
	p := params{
		Method:   d.Method,
		Redirect: d.Redirect,
		Follow:   d.Follow,
		Compress: d.Compress,
		Timeout:  d.Timeout,
		MaxSize:  d.MaxSize,
	}
	used := false
	switch in := input.(type) {
	case nil:
		return nil, fetcherr.ErrArgumentRequired
	case *Request:
		if in == nil {
			return nil, fetcherr.ErrArgumentRequired
		}
		p.seed(in)
		used = in.BodyUsed()
	case string:
		p.URL = in
	case *url.URL:
		p.URL = in.String()
	case fmt.Stringer:
		p.URL = in.String()
	default:
		return nil, fmt.Errorf("%w: unsupported input %T", fetcherr.ErrBadType, input)
	}
	for _, opt := range opts {
		opt(&p)
	}
	// a replaced body starts unused
	used = used && !p.bodySet

	p.Method = strings.ToUpper(p.Method)
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %w", fetcherr.ErrInvalidInit, err)
	}

	h, err := headers.From(p.Headers)
	if err != nil {
		return nil, err
	}
	src := body.Normalize(p.Body)
	if !src.IsNone() {
		if p.Method == "GET" || p.Method == "HEAD" {
			return nil, fetcherr.ErrBodyProhibited
		}
		if ct, ok := src.ContentType(); ok && !h.Has("Content-Type") {
			if err := h.Append("Content-Type", ct); err != nil {
				return nil, err
			}
		}
	}

	r := &Request{
		url:              p.URL,
		method:           p.Method,
		headers:          h,
		redirect:         p.Redirect,
		follow:           p.Follow,
		hopCount:         p.HopCount,
		compress:         p.Compress,
		timeout:          p.Timeout,
		maxSize:          p.MaxSize,
		transportOptions: p.TransportOptions,
	}
	r.Init(src, body.Limits{MaxSize: r.maxSize, Timeout: r.timeout, URL: r.url}, r.contentType)
	if used {
		r.MarkUsed()
	}
	return r, nil
}

func (r *Request) contentType() string {
	ct, _ := r.headers.Get("Content-Type")
	return ct
}

// Clone returns a copy of r whose body can be read independently of r's.
func (r *Request) Clone() (*Request, error) {
	src, err := r.CloneSource()
	if err != nil {
		return nil, err
	}
	return NewRequest(r, WithBody(src))
}

func (r *Request) String() string {
	return r.method + " " + r.url
}
