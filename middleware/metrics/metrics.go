// Package metrics records Prometheus metrics for commands, query dispatch and
// event store calls.
//
//	m := metrics.New(metrics.WithMetricsServiceName("values"))
//	_ = m.Register(prometheus.DefaultRegisterer)
//
//	store := cqrs.New(m.WrapEventStore(adapter))
//	fw := cqrs.NewFramework(store, newAgg, services,
//		[]cqrs.Query[Event]{metrics.ObserveQuery(m, "values", valueQuery)},
//		cqrs.WithMiddleware(m.CommandMiddleware()))
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label names.
const (
	LabelCommandType   = "command_type"
	LabelAggregateType = "aggregate_type"
	LabelEventType     = "event_type"
	LabelQuery         = "query"
	LabelOperation     = "operation"
	LabelStatus        = "status"
	LabelErrorType     = "error_type"
	LabelService       = "service"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Event store operations, used as the operation label.
const (
	OperationAppend          = "append"
	OperationLoad            = "load"
	OperationGetStreamInfo   = "get_stream_info"
	OperationGetLastPosition = "get_last_position"
)

// Metrics owns the collectors. Every series carries the service label.
type Metrics struct {
	namespace   string
	subsystem   string
	serviceName string

	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	commandsInFlight *prometheus.GaugeVec

	eventStoreOperationsTotal   *prometheus.CounterVec
	eventStoreOperationDuration *prometheus.HistogramVec
	eventsAppendedTotal         *prometheus.CounterVec
	eventsLoadedTotal           *prometheus.CounterVec

	queryDispatchTotal    *prometheus.CounterVec
	queryDuration         *prometheus.HistogramVec
	eventsDispatchedTotal *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec
}

type MetricsOption func(*Metrics)

// WithNamespace replaces the default "cqrs" namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(m *Metrics) { m.namespace = namespace }
}

func WithSubsystem(subsystem string) MetricsOption {
	return func(m *Metrics) { m.subsystem = subsystem }
}

// WithMetricsServiceName sets the service label, "unknown" by default.
func WithMetricsServiceName(name string) MetricsOption {
	return func(m *Metrics) { m.serviceName = name }
}

// New builds the collectors. Nothing is registered until Register or
// MustRegister is called.
func New(opts ...MetricsOption) *Metrics {
	m := &Metrics{namespace: "cqrs", serviceName: "unknown"}
	for _, opt := range opts {
		opt(m)
	}

	svc := LabelService
	m.commandsTotal = m.counter("commands_total", "Commands executed.", svc, LabelCommandType, LabelStatus)
	m.commandDuration = m.histogram("command_duration_seconds", "Command execution time.", svc, LabelCommandType)
	m.commandsInFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "commands_in_flight",
		Help:      "Commands currently executing.",
	}, []string{svc, LabelCommandType})

	m.eventStoreOperationsTotal = m.counter("eventstore_operations_total", "Event store calls.", svc, LabelOperation, LabelStatus)
	m.eventStoreOperationDuration = m.histogram("eventstore_operation_duration_seconds", "Event store call time.", svc, LabelOperation)
	m.eventsAppendedTotal = m.counter("events_appended_total", "Events appended.", svc, LabelEventType)
	m.eventsLoadedTotal = m.counter("events_loaded_total", "Events loaded.", svc)

	m.queryDispatchTotal = m.counter("query_dispatch_total", "Envelope batches handed to queries.", svc, LabelQuery, LabelStatus)
	m.queryDuration = m.histogram("query_dispatch_duration_seconds", "Query dispatch time.", svc, LabelQuery)
	m.eventsDispatchedTotal = m.counter("events_dispatched_total", "Committed events handed to queries.", svc, LabelAggregateType, LabelEventType)

	m.errorsTotal = m.counter("errors_total", "Errors by type.", svc, LabelErrorType)
	return m
}

func (m *Metrics) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Metrics) histogram(name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, labels)
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.commandsTotal, m.commandDuration, m.commandsInFlight,
		m.eventStoreOperationsTotal, m.eventStoreOperationDuration, m.eventsAppendedTotal, m.eventsLoadedTotal,
		m.queryDispatchTotal, m.queryDuration, m.eventsDispatchedTotal,
		m.errorsTotal,
	}
}

// MustRegister registers with the default registry and panics on failure.
func (m *Metrics) MustRegister() {
	prometheus.MustRegister(m.Collectors()...)
}

// Register stops at the first collector the registry refuses.
func (m *Metrics) Register(registry prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordError counts an error under a caller-chosen type.
func (m *Metrics) RecordError(errorType string) {
	m.errorsTotal.WithLabelValues(m.serviceName, errorType).Inc()
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

func (m *Metrics) CommandsTotal() *prometheus.CounterVec     { return m.commandsTotal }
func (m *Metrics) CommandDuration() *prometheus.HistogramVec { return m.commandDuration }
func (m *Metrics) CommandsInFlight() *prometheus.GaugeVec    { return m.commandsInFlight }
func (m *Metrics) EventStoreOperationsTotal() *prometheus.CounterVec {
	return m.eventStoreOperationsTotal
}
func (m *Metrics) EventsAppendedTotal() *prometheus.CounterVec   { return m.eventsAppendedTotal }
func (m *Metrics) EventsLoadedTotal() *prometheus.CounterVec     { return m.eventsLoadedTotal }
func (m *Metrics) QueryDispatchTotal() *prometheus.CounterVec    { return m.queryDispatchTotal }
func (m *Metrics) EventsDispatchedTotal() *prometheus.CounterVec { return m.eventsDispatchedTotal }
func (m *Metrics) ErrorsTotal() *prometheus.CounterVec           { return m.errorsTotal }
