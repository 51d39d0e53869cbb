package internal

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/frankli0324/go-fetch/internal/body"
	"github.com/frankli0324/go-fetch/internal/decode"
	"github.com/frankli0324/go-fetch/internal/dialer"
	"github.com/frankli0324/go-fetch/internal/fetcherr"
	"github.com/frankli0324/go-fetch/internal/http"
	"github.com/frankli0324/go-fetch/internal/redirect"
	"github.com/frankli0324/go-fetch/internal/transport"
)

// Handler performs a single hop. The returned response still carries the
// raw, undecoded payload of the hop.
type Handler = func(ctx context.Context, req *http.PreparedRequest) (*http.Response, error)
type Middleware func(next Handler) Handler

// Client drives fetches. The zero value is ready to use and dials with a
// default [dialer.CoreDialer].
type Client struct {
	middlewares []Middleware
	dialer      http.Dialer
	transport   transport.Transport

	defaults *http.Defaults
	headers  *http.DefaultHeaders

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *Metrics
}

var defaultDialer = &dialer.CoreDialer{}

// Use appends mw to the end of the chain. The last "Use"d mw executes first
func (c *Client) Use(mws ...Middleware) {
	c.middlewares = append(c.middlewares, mws...)
}

// UseDialer replaces the dialer with the one returned by fn, which is
// handed the current dialer to wrap.
func (c *Client) UseDialer(fn func(http.Dialer) http.Dialer) {
	c.dialer = fn(c.currentDialer())
}

func (c *Client) currentDialer() http.Dialer {
	if c.dialer != nil {
		return c.dialer
	}
	return defaultDialer
}

func (c *Client) dial(ctx context.Context, r *http.PreparedRequest) (io.ReadWriteCloser, error) {
	return c.currentDialer().Dial(ctx, r)
}

func (c *Client) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

func (c *Client) trace() trace.Tracer {
	if c.tracer != nil {
		return c.tracer
	}
	return noopTracer
}

func (c *Client) requestDefaults() http.Defaults {
	if c.defaults != nil {
		return *c.defaults
	}
	return http.DefaultRequest()
}

func (c *Client) defaultHeaders() http.DefaultHeaders {
	if c.headers != nil {
		return *c.headers
	}
	return http.StandardHeaders()
}

func (c *Client) handler() Handler {
	var next Handler = c.roundTrip
	for _, mw := range c.middlewares {
		next = mw(next)
	}
	return next
}

// Fetch builds a request from input and opts on top of the client's
// defaults, and drives it through redirects until a final response. The
// response body is decoded according to its Content-Encoding and is read
// through the accessors of [http.Response]. The body stays tied to ctx,
// and one that is never read must be released with Close.
func (c *Client) Fetch(ctx context.Context, input interface{}, opts ...http.RequestOption) (*http.Response, error) {
	req, err := http.NewRequestWithDefaults(c.requestDefaults(), input, opts...)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger := c.log().With("exchange", id)
	ctx, span := c.startExchange(ctx, id, req)
	done := c.metrics.start()

	resp, err := c.do(ctx, logger, req)
	if err != nil {
		logger.Warn("fetch failed", "url", req.URL(), "kind", fetcherr.KindOf(err), "error", err)
	} else {
		logger.Debug("fetch done", "url", resp.URL(), "status", resp.Status())
	}
	done(err)
	endSpan(span, err)
	return resp, err
}

func (c *Client) do(ctx context.Context, logger *slog.Logger, req *http.Request) (*http.Response, error) {
	// a forked body stays with the last request until it is either sent
	// or dropped
	defer func() { req.Source().Close() }()

	handle, headers := c.handler(), c.defaultHeaders()
	for {
		pr, err := req.Prepare(headers)
		if err != nil {
			return nil, err
		}
		if pr.Payload, err = payload(req); err != nil {
			return nil, err
		}

		logger.Debug("hop start", "method", pr.Method(), "url", pr.URL(), "hop", pr.HopCount())
		resp, err := handle(ctx, pr)
		if err != nil {
			return nil, err
		}
		c.metrics.hop(pr.Method(), resp.Status())
		logger.Debug("hop done", "url", pr.URL(), "status", resp.Status())

		if !redirect.IsRedirect(resp.Status()) {
			return c.decoded(logger, req, resp)
		}
		if req.Redirect() == http.RedirectManual {
			if loc, ok := resp.Headers().Get("location"); ok {
				if abs, err := redirect.ResolveLocation(req.URL(), loc); err == nil {
					resp.Headers().Set("Location", abs)
				}
			}
			return c.decoded(logger, req, resp)
		}

		next, err := redirect.Decide(req, resp)
		resp.Close()
		if err != nil {
			return nil, err
		}
		logger.Debug("following redirect", "status", resp.Status(), "from", req.URL(), "to", next.URL())
		if next.Source().IsNone() {
			req.Source().Close()
		}
		req = next
	}
}

// payload is what gets written for req. While redirects are followed a
// live body is forked, so that a 307/308 can send it again.
func payload(req *http.Request) (body.Source, error) {
	if req.BodyUsed() {
		return body.NoSource, fetcherr.New(fetcherr.KindBodyReused, "body used already for: %s", req.URL())
	}
	switch req.Source().Kind() {
	case body.Stream, body.Multipart:
		if req.Redirect() == http.RedirectFollow {
			return req.CloneSource()
		}
		return req.Take()
	}
	return req.Source(), nil
}


// decoded returns resp, or a copy of it whose payload is decompressed.
// Unsupported codings are passed through untouched.
func (c *Client) decoded(logger *slog.Logger, req *http.Request, resp *http.Response) (*http.Response, error) {
	coding, hasEncoding := resp.Headers().Get("content-encoding")
	if !decode.ShouldDecode(req.Compress(), req.Method(), resp.Status(), hasEncoding) {
		return resp, nil
	}
	src, err := resp.Take()
	if err != nil {
		return nil, err
	}
	rc, err := src.Reader()
	if err != nil {
		return nil, err
	}
	if rc, err = decode.Decode(rc, coding); err != nil {
		logger.Debug("passing through payload", "coding", coding, "error", err)
	}
	return http.NewResponse(body.FromStream(rc), http.ResponseInit{
		URL:        resp.URL(),
		Status:     resp.Status(),
		StatusText: resp.StatusText(),
		Headers:    resp.Headers(),
		MaxSize:    resp.MaxSize(),
		Timeout:    resp.Timeout(),
	})
}
