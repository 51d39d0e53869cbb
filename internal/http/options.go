package http

import (
	"time"
)

// params is the merged view of defaults, the seeding request and the
// explicit options. It is validated as a whole before a request is built.
type params struct {
	URL              string        `name:"url" validate:"required"`
	Method           string        `name:"method" validate:"required,token"`
	Headers          interface{}   `name:"headers" validate:"-"`
	Body             interface{}   `name:"body" validate:"-"`
	Redirect         RedirectMode  `name:"redirect" validate:"oneof=follow error manual"`
	Follow           int           `name:"follow" validate:"gte=0"`
	HopCount         int           `name:"hopCount" validate:"gte=0"`
	Compress         bool          `name:"compress"`
	Timeout          time.Duration `name:"timeout" validate:"gte=0"`
	MaxSize          int64         `name:"size" validate:"gte=0"`
	TransportOptions interface{}   `name:"agent" validate:"-"`

	bodySet bool
}

func (p *params) seed(r *Request) {
	p.URL = r.url
	p.Method = r.method
	p.Headers = r.headers
	p.Body = r.Source()
	p.Redirect = r.redirect
	p.Follow = r.follow
	p.HopCount = r.hopCount
	p.Compress = r.compress
	p.Timeout = r.timeout
	p.MaxSize = r.maxSize
	p.TransportOptions = r.transportOptions
}

// RequestOption overrides a single field of the request being built.
type RequestOption func(*params)

func WithURL(u string) RequestOption {
	return func(p *params) { p.URL = u }
}

func WithMethod(m string) RequestOption {
	return func(p *params) { p.Method = m }
}

// WithHeaders replaces the headers with init, in any shape accepted by
// [headers.Headers.Fill].
func WithHeaders(init interface{}) RequestOption {
	return func(p *params) { p.Headers = init }
}

// WithBody replaces the body. Strings, byte slices, blobs, multipart forms
// and readers are kept as is, nil removes the body, and anything else is
// sent as its fmt.Sprint form.
func WithBody(b interface{}) RequestOption {
	return func(p *params) { p.Body, p.bodySet = b, true }
}

func WithRedirect(mode RedirectMode) RequestOption {
	return func(p *params) { p.Redirect = mode }
}

func WithCompress(on bool) RequestOption {
	return func(p *params) { p.Compress = on }
}

// WithFollow caps the number of redirects followed.
func WithFollow(n int) RequestOption {
	return func(p *params) { p.Follow = n }
}

// WithTimeout bounds both the wait for response headers once connected
// and the read of the response body. Zero disables both.
func WithTimeout(d time.Duration) RequestOption {
	return func(p *params) { p.Timeout = d }
}

// WithMaxSize caps the response body size in bytes. Zero is unbounded.
func WithMaxSize(n int64) RequestOption {
	return func(p *params) { p.MaxSize = n }
}

// WithTransportOptions passes opts through to the transport untouched.
func WithTransportOptions(opts interface{}) RequestOption {
	return func(p *params) { p.TransportOptions = opts }
}

// WithHopCount is used when following redirects.
func WithHopCount(n int) RequestOption {
	return func(p *params) { p.HopCount = n }
}
