package internal

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/frankli0324/go-fetch/internal/config"
	"github.com/frankli0324/go-fetch/internal/http"
	"github.com/frankli0324/go-fetch/internal/transport"
)

// Option configures a [Client] built by [New].
type Option func(*Client) error

// New builds a client from opts. A zero value Client is just as usable,
// New only adds the options that need validation.
func New(opts ...Option) (*Client, error) {
	c := &Client{}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}
	return c, nil
}

// WithConfig threads cfg into the client: request defaults, default
// headers, the dialer and, when configured, a throttle.
func WithConfig(cfg *config.Config) Option {
	return func(c *Client) error {
		if cfg == nil {
			return errors.New("nil config")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		d, h := cfg.RequestDefaults(), cfg.DefaultHeaders()
		c.defaults, c.headers = &d, &h
		c.dialer = cfg.Dialer()
		if cfg.Throttle.RPS > 0 {
			return WithThrottle(cfg.Throttle.RPS, cfg.Throttle.Burst)(c)
		}
		return nil
	}
}

func WithDefaults(d http.Defaults) Option {
	return func(c *Client) error {
		c.defaults = &d
		return nil
	}
}

func WithDefaultHeaders(h http.DefaultHeaders) Option {
	return func(c *Client) error {
		c.headers = &h
		return nil
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = l
		return nil
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Client) error {
		c.tracer = t
		return nil
	}
}

// WithMetrics registers the client's collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Client) error {
		m, err := NewMetrics(reg)
		if err != nil {
			return err
		}
		c.metrics = m
		return nil
	}
}

// WithThrottle limits every hop to rps requests per second, with bursts
// of up to burst requests.
func WithThrottle(rps, burst int) Option {
	return func(c *Client) error {
		mw, err := Throttle(rps, burst, c.log)
		if err != nil {
			return fmt.Errorf("configuring throttle: %w", err)
		}
		c.Use(mw)
		return nil
	}
}

func WithDialer(d http.Dialer) Option {
	return func(c *Client) error {
		c.dialer = d
		return nil
	}
}

func WithTransport(t transport.Transport) Option {
	return func(c *Client) error {
		c.transport = t
		return nil
	}
}

// WithMiddleware is [Client.Use] as an option.
func WithMiddleware(mws ...Middleware) Option {
	return func(c *Client) error {
		c.Use(mws...)
		return nil
	}
}
