// Package metrics wires the daemon's Prometheus counters/gauges, exposed
// by the Lifecycle Supervisor's /metrics endpoint (spec §8, SUPPLEMENTED
// FEATURES) and recorded by the router, reconciler, and sweeper.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every counter/gauge the daemon records, grounded on the
// teacher's internal/app/metrics registration pattern (one struct of
// promauto-registered collectors, constructed once at startup).
type Metrics struct {
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	httpInFlight          prometheus.Gauge

	reconcilerTicks       *prometheus.CounterVec
	reconcilerLastBlock   prometheus.Gauge
	eventsProcessed       *prometheus.CounterVec

	sweeperTicks          *prometheus.CounterVec
	agreementsClosed      prometheus.Counter

	resourcesActive       prometheus.Gauge
}

func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "providerd_http_requests_total",
			Help: "Total operator-pipe HTTP requests processed, by method/path/status.",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "providerd_http_request_duration_seconds",
			Help: "Operator-pipe HTTP request latency.",
		}, []string{"method", "path"}),

		httpInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "providerd_http_in_flight_requests",
			Help: "Operator-pipe HTTP requests currently being served.",
		}),

		reconcilerTicks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "providerd_reconciler_ticks_total",
			Help: "Reconciler loop ticks, by outcome.",
		}, []string{"outcome"}),

		reconcilerLastBlock: factory.NewGauge(prometheus.GaugeOpts{
			Name: "providerd_reconciler_last_processed_block",
			Help: "Last block number the reconciler has advanced its cursor to.",
		}),

		eventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "providerd_events_processed_total",
			Help: "Agreement events applied, by event name and outcome.",
		}, []string{"event", "outcome"}),

		sweeperTicks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "providerd_sweeper_ticks_total",
			Help: "Balance sweeper ticks, by outcome.",
		}, []string{"outcome"}),

		agreementsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "providerd_agreements_force_closed_total",
			Help: "Agreements force-closed by the balance sweeper for zero balance.",
		}),

		resourcesActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "providerd_resources_active",
			Help: "Currently active local resources.",
		}),
	}
}

func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

func (m *Metrics) RecordHTTPRequest(method, path, status string, seconds float64) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

func (m *Metrics) RecordReconcilerTick(outcome string) { m.reconcilerTicks.WithLabelValues(outcome).Inc() }
func (m *Metrics) SetLastProcessedBlock(block uint64)  { m.reconcilerLastBlock.Set(float64(block)) }
func (m *Metrics) RecordEvent(event, outcome string)   { m.eventsProcessed.WithLabelValues(event, outcome).Inc() }

func (m *Metrics) RecordSweeperTick(outcome string) { m.sweeperTicks.WithLabelValues(outcome).Inc() }
func (m *Metrics) RecordForceClose()                { m.agreementsClosed.Inc() }

func (m *Metrics) SetActiveResources(n int) { m.resourcesActive.Set(float64(n)) }
