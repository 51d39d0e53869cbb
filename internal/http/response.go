package http

import (
	"net/http"
	"time"

	"github.com/frankli0324/go-fetch/internal/body"
	"github.com/frankli0324/go-fetch/internal/fetcherr"
	"github.com/frankli0324/go-fetch/internal/headers"
)

type ResponseInit struct {
	URL        string
	Status     int // 200 if zero
	StatusText string
	Headers    interface{}
	MaxSize    int64
	Timeout    time.Duration
}

// Response is a status, headers and a payload read at most once. A
// fetched response holds its connection until the payload is read to the
// end or the response is closed with Close.
type Response struct {
	body.Body

	url        string
	status     int
	statusText string
	headers    *headers.Headers
	maxSize    int64
	timeout    time.Duration
}

func (r *Response) URL() string               { return r.url }
func (r *Response) Status() int               { return r.status }
func (r *Response) StatusText() string        { return r.statusText }
func (r *Response) Headers() *headers.Headers { return r.headers }
func (r *Response) MaxSize() int64            { return r.maxSize }
func (r *Response) Timeout() time.Duration    { return r.timeout }

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.status >= 200 && r.status < 300
}

// NewResponse wraps b, in any shape accepted by [WithBody], into a
// response. MaxSize and Timeout bound the later read of a streamed b.
func NewResponse(b interface{}, init ResponseInit) (*Response, error) {
	h, err := headers.From(init.Headers)
	if err != nil {
		return nil, fetcherr.Construct("Response", err)
	}
	r := &Response{
		url:        init.URL,
		status:     init.Status,
		statusText: init.StatusText,
		headers:    h,
		maxSize:    init.MaxSize,
		timeout:    init.Timeout,
	}
	if r.status == 0 {
		r.status = http.StatusOK
	}
	if r.statusText == "" {
		r.statusText = http.StatusText(r.status)
	}
	r.Init(body.Normalize(b), body.Limits{MaxSize: r.maxSize, Timeout: r.timeout, URL: r.url}, r.contentType)
	return r, nil
}

func (r *Response) contentType() string {
	ct, _ := r.headers.Get("Content-Type")
	return ct
}

// Clone returns a copy of r whose body can be read independently of r's.
func (r *Response) Clone() (*Response, error) {
	src, err := r.CloneSource()
	if err != nil {
		return nil, err
	}
	return NewResponse(src, ResponseInit{
		URL:        r.url,
		Status:     r.status,
		StatusText: r.statusText,
		Headers:    r.headers,
		MaxSize:    r.maxSize,
		Timeout:    r.timeout,
	})
}
