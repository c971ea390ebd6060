package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RecordsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agcrm_records_written_total",
			Help: "Agency and client writes by entity and operation",
		},
		[]string{"entity", "op"}, // agency|client , create|update
	)

	ReportsServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agcrm_reports_total",
			Help: "Top-client reports computed by kind",
		},
		[]string{"kind"}, // per_agency|global
	)

	OutboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agcrm_outbox_published_total",
			Help: "Outbox events handed to Kafka by result",
		},
		[]string{"result"}, // ok|error
	)

	RelayBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agcrm_relay_breaker_state",
			Help: "Relay circuit breaker state: 0 closed, 1 open, 2 half-open",
		},
	)

	RelayBreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agcrm_relay_breaker_transitions_total",
			Help: "Relay circuit breaker state changes by target state",
		},
		[]string{"to"}, // closed|open|half_open
	)

	BillEventsProjected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agcrm_bill_events_projected_total",
			Help: "Client bill events written to ClickHouse",
		},
	)
)

var registerOnce sync.Once

// MustRegister registers all collectors once; later calls are no-ops.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			RecordsWritten,
			ReportsServed,
			OutboxPublished,
			RelayBreakerState,
			RelayBreakerTransitions,
			BillEventsProjected,
		)
	})
}
