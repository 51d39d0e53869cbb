// package fetch is a fetch-style HTTP/1.1 client: one call takes a URL or
// a [Request], follows redirects, decompresses the payload and hands back
// a [Response] whose body is read exactly once.
//
//	resp, err := fetch.Fetch(ctx, "https://example.com/", fetch.WithTimeout(5*time.Second))
//	if err != nil {
//		// errors.Is(err, fetch.ErrRequestTimeout) ...
//	}
//	text, err := resp.Text(ctx)
package fetch

import (
	"context"

	"github.com/frankli0324/go-fetch/internal"
	"github.com/frankli0324/go-fetch/internal/body"
	"github.com/frankli0324/go-fetch/internal/headers"
	"github.com/frankli0324/go-fetch/internal/http"
)

type Client = internal.Client
type Option = internal.Option
type Handler = internal.Handler
type Middleware = internal.Middleware

type Request = http.Request
type RequestOption = http.RequestOption

// Response is a fetched or constructed response. Its payload is read once
// through Bytes, Text, JSON, Blob or TextConverted; a payload that is not
// going to be read is released with Close, which frees the connection.
type Response = http.Response

type ResponseInit = http.ResponseInit
type PreparedRequest = http.PreparedRequest
type Defaults = http.Defaults
type DefaultHeaders = http.DefaultHeaders
type Headers = headers.Headers
type RedirectMode = http.RedirectMode

// Blob is an in-memory payload with a media type, as returned by
// [Response.Blob].
type Blob = body.MemBlob

// BlobData and MultipartData are the payload capabilities a body may
// implement besides plain readers.
type BlobData = body.BlobData
type MultipartData = body.MultipartData

const (
	RedirectFollow = http.RedirectFollow
	RedirectError  = http.RedirectError
	RedirectManual = http.RedirectManual
)

const DefaultUserAgent = http.DefaultUserAgent

// DefaultClient is used by [Fetch].
var DefaultClient = &Client{}

// Fetch is DefaultClient.Fetch.
func Fetch(ctx context.Context, input interface{}, opts ...RequestOption) (*Response, error) {
	return DefaultClient.Fetch(ctx, input, opts...)
}

// New builds a [Client], see [WithConfig] and friends.
func New(opts ...Option) (*Client, error) {
	return internal.New(opts...)
}

// NewRequest builds a request from a URL (string, *url.URL or
// fmt.Stringer) or from another *Request, whose fields seed the new one.
func NewRequest(input interface{}, opts ...RequestOption) (*Request, error) {
	return http.NewRequest(input, opts...)
}

// NewResponse wraps b, which may be nil, a string, []byte, [BlobData],
// [MultipartData] or an io.Reader.
func NewResponse(b interface{}, init ResponseInit) (*Response, error) {
	return http.NewResponse(b, init)
}

// NewHeaders builds a header multimap from init: a map of names to one or
// more values, a slice of [name, value] pairs, an iter.Seq2 of pairs or
// another *Headers. A nil init gives an empty multimap.
func NewHeaders(init interface{}) (*Headers, error) {
	return headers.From(init)
}

var (
	WithURL              = http.WithURL
	WithMethod           = http.WithMethod
	WithHeaders          = http.WithHeaders
	WithBody             = http.WithBody
	WithRedirect         = http.WithRedirect
	WithCompress         = http.WithCompress
	WithFollow           = http.WithFollow
	WithTimeout          = http.WithTimeout
	WithMaxSize          = http.WithMaxSize
	WithTransportOptions = http.WithTransportOptions
)

var (
	WithConfig         = internal.WithConfig
	WithDefaults       = internal.WithDefaults
	WithDefaultHeaders = internal.WithDefaultHeaders
	WithLogger         = internal.WithLogger
	WithTracer         = internal.WithTracer
	WithMetrics        = internal.WithMetrics
	WithThrottle       = internal.WithThrottle
	WithDialer         = internal.WithDialer
	WithTransport      = internal.WithTransport
	WithMiddleware     = internal.WithMiddleware
)
