// Package metrics holds the Prometheus collectors of the daemon.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
	"github.com/MrSnakeDoc/balmgr/internal/reconcile"
)

const namespace = "balmgr"

// Result labels.
const (
	ResultOK           = "ok"
	ResultParse        = "parse"
	ResultUnsupported  = "unsupported"
	ResultNotFound     = "not_found"
	ResultInvariant    = "invariant"
	ResultTransport    = "transport"
	ResultVerification = "verification"
	ResultAggregate    = "aggregate"
	ResultCanceled     = "canceled"
	ResultOther        = "other"
)

type Metrics struct {
	PollsTotal            *prometheus.CounterVec
	PollDuration          *prometheus.HistogramVec
	EditsTotal            *prometheus.CounterVec
	GarbageCollectedTotal *prometheus.CounterVec
	Compliance            *prometheus.GaugeVec
}

func New() *Metrics {
	return &Metrics{
		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Balancer-manager polls by endpoint and result.",
		}, []string{"endpoint", "result"}),
		PollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of a fetch, parse and reconcile cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		EditsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edits_total",
			Help:      "Route edits by endpoint and result.",
		}, []string{"endpoint", "result"}),
		GarbageCollectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "garbage_collected_total",
			Help:      "Clusters and routes dropped from the live model.",
		}, []string{"endpoint", "kind"}),
		Compliance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "compliant",
			Help:      "1 when the endpoint matches its profile, 0 otherwise.",
		}, []string{"endpoint"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.PollsTotal, m.PollDuration, m.EditsTotal, m.GarbageCollectedTotal, m.Compliance}
}

// Register adds every collector to reg. Collectors already registered are
// kept, so Register may be called more than once with the same registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservePoll(endpoint string, d time.Duration, err error) {
	m.PollsTotal.WithLabelValues(endpoint, Classify(err)).Inc()
	m.PollDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) ObserveEdit(endpoint string, err error) {
	m.EditsTotal.WithLabelValues(endpoint, Classify(err)).Inc()
}

func (m *Metrics) ObserveGC(endpoint string, res reconcile.Result) {
	m.GarbageCollectedTotal.WithLabelValues(endpoint, "cluster").Add(float64(len(res.RemovedClusters)))
	m.GarbageCollectedTotal.WithLabelValues(endpoint, "route").Add(float64(len(res.RemovedRoutes)))
}

func (m *Metrics) SetCompliance(endpoint string, compliant bool) {
	v := 0.0
	if compliant {
		v = 1
	}
	m.Compliance.WithLabelValues(endpoint).Set(v)
}

// Classify maps an error returned by the balancer client to a result label.
func Classify(err error) string {
	var (
		pe  *domain.ParseError
		uve *domain.UnsupportedVersionError
		nfe *domain.NotFoundError
		ive *domain.InvariantViolationError
		te  *domain.TransportError
		ve  *domain.VerificationError
		ae  *domain.AggregateError
	)
	switch {
	case err == nil:
		return ResultOK
	case errors.As(err, &ae):
		return ResultAggregate
	case errors.As(err, &ive):
		return ResultInvariant
	case errors.As(err, &nfe):
		return ResultNotFound
	case errors.As(err, &uve):
		return ResultUnsupported
	case errors.As(err, &ve):
		return ResultVerification
	case errors.As(err, &pe):
		return ResultParse
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ResultCanceled
	case errors.As(err, &te):
		return ResultTransport
	default:
		return ResultOther
	}
}
