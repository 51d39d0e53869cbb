package internal

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/frankli0324/go-fetch/internal/fetcherr"
	"github.com/frankli0324/go-fetch/internal/headers"
	"github.com/frankli0324/go-fetch/internal/http"
)

const tracerName = "github.com/frankli0324/go-fetch"

var noopTracer = noop.NewTracerProvider().Tracer(tracerName)

// headerCarrier lets the global propagator write into request headers.
type headerCarrier struct{ h *headers.Headers }

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) Get(key string) string {
	v, _ := c.h.Get(key)
	return v
}

// Set drops values the header validation rejects, a malformed trace
// header must not fail the request.
func (c headerCarrier) Set(key, value string) {
	_ = c.h.Set(key, value)
}

func (c headerCarrier) Keys() []string {
	return slices.Collect(c.h.Keys())
}

func (c *Client) startExchange(ctx context.Context, id string, req *http.Request) (context.Context, trace.Span) {
	return c.trace().Start(ctx, "fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("fetch.exchange", id),
			attribute.String("http.request.method", req.Method()),
			attribute.String("url.full", req.URL()),
			attribute.String("fetch.redirect", string(req.Redirect())),
		))
}

func (c *Client) startHop(ctx context.Context, pr *http.PreparedRequest) (context.Context, trace.Span) {
	ctx, span := c.trace().Start(ctx, "fetch.hop",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", pr.Method()),
			attribute.String("url.full", pr.URL()),
			attribute.String("server.address", pr.Addr),
			attribute.Int("fetch.hop", pr.HopCount()),
		))
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{pr.Header})
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if kind := fetcherr.KindOf(err); kind != "" {
			span.SetAttributes(attribute.String("fetch.error.kind", string(kind)))
		}
	}
	span.End()
}
