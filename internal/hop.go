package internal

import (
	"context"
	"io"
	"time"

	"github.com/frankli0324/go-fetch/internal/body"
	"github.com/frankli0324/go-fetch/internal/fetcherr"
	"github.com/frankli0324/go-fetch/internal/http"
	"github.com/frankli0324/go-fetch/internal/transport"
)

func (c *Client) currentTransport() transport.Transport {
	if c.transport != nil {
		return c.transport
	}
	return &transport.HTTP1{Dial: c.dial}
}

// roundTrip sends pr and waits for the response head. It settles on the
// first of: a transport error, the connection timer (armed once the
// socket is up), the response head, or ctx. Every path but the response
// head aborts the exchange.
func (c *Client) roundTrip(ctx context.Context, pr *http.PreparedRequest) (resp *http.Response, err error) {
	ctx, span := c.startHop(ctx, pr)
	defer func() { endSpan(span, err) }()

	ex := c.currentTransport().Open(ctx, pr)
	sendErr := make(chan error, 1)
	go send(ex, pr.Payload, sendErr)

	var timeout <-chan time.Time
	for {
		select {
		case ev, ok := <-ex.Events():
			if !ok {
				// only a finished context closes the exchange this early
				return nil, systemError(pr, causeOf(ctx, transport.ErrAborted))
			}
			switch ev.Kind {
			case transport.EventSocket:
				if d := pr.Timeout(); d > 0 {
					t := time.NewTimer(d)
					defer t.Stop()
					timeout = t.C
				}
			case transport.EventHeaders:
				resp, err = http.NewResponse(body.FromStream(transport.Body(ex)), http.ResponseInit{
					URL:        pr.URL(),
					Status:     ev.Head.Status,
					StatusText: ev.Head.StatusText,
					Headers:    ev.Head.Header,
					MaxSize:    pr.MaxSize(),
					Timeout:    pr.Timeout(),
				})
				if err != nil {
					ex.Abort()
				}
				return resp, err
			case transport.EventError:
				ex.Abort()
				return nil, systemError(pr, causeOf(ctx, ev.Err))
			}
		case err := <-sendErr:
			ex.Abort()
			return nil, systemError(pr, causeOf(ctx, err))
		case <-timeout:
			ex.Abort()
			return nil, fetcherr.New(fetcherr.KindRequestTimeout, "network timeout at: %s", pr.URL())
		case <-ctx.Done():
			ex.Abort()
			return nil, systemError(pr, context.Cause(ctx))
		}
	}
}

// causeOf prefers the reason ctx ended over err, which the exchange
// teardown may have produced.
func causeOf(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return err
}

func systemError(pr *http.PreparedRequest, err error) error {
	return fetcherr.Wrap(fetcherr.KindSystem, err, "request to %s failed, reason: %v", pr.URL(), err)
}

// send writes the request payload, then ends it. Failures reading the
// payload are reported on errc.
func send(ex transport.Exchange, src body.Source, errc chan<- error) {
	if src.IsNone() {
		ex.Close()
		return
	}
	rc, err := src.Reader()
	if err != nil {
		errc <- err
		return
	}
	defer rc.Close()
	if _, err := io.Copy(ex, rc); err != nil {
		errc <- err
		return
	}
	ex.Close()
}
