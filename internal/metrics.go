package internal

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/frankli0324/go-fetch/internal/fetcherr"
)

// Metrics are the collectors of one client. A nil *Metrics records
// nothing.
type Metrics struct {
	exchanges *prometheus.CounterVec
	hops      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inflight  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. Metrics
// already registered by another client on reg are shared.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gofetch",
			Name:      "exchanges_total",
			Help:      "Fetch calls by outcome, either ok or the error kind.",
		}, []string{"outcome"}),
		hops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gofetch",
			Name:      "hops_total",
			Help:      "Transport round-trips by method and response status.",
		}, []string{"method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gofetch",
			Name:      "exchange_duration_seconds",
			Help:      "Time until a fetch call settles, excluding body reads.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gofetch",
			Name:      "exchanges_inflight",
			Help:      "Fetch calls that have not settled yet.",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var ok [4]bool
	m.exchanges, ok[0] = register(reg, m.exchanges)
	m.hops, ok[1] = register(reg, m.hops)
	m.duration, ok[2] = register(reg, m.duration)
	m.inflight, ok[3] = register(reg, m.inflight)
	if ok != [4]bool{true, true, true, true} {
		return nil, errors.New("metrics: collector registered with a conflicting type")
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, bool) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(C)
			return existing, ok
		}
		return c, false
	}
	return c, true
}

func (m *Metrics) start() func(err error) {
	if m == nil {
		return func(error) {}
	}
	m.inflight.Inc()
	begin := time.Now()
	return func(err error) {
		m.inflight.Dec()
		outcome := "ok"
		if err != nil {
			outcome = string(fetcherr.KindOf(err))
			if outcome == "" {
				outcome = "other"
			}
		}
		m.exchanges.WithLabelValues(outcome).Inc()
		m.duration.WithLabelValues(outcome).Observe(time.Since(begin).Seconds())
	}
}

func (m *Metrics) hop(method string, status int) {
	if m == nil {
		return
	}
	m.hops.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
