package metrics

import (
	"context"
	"time"

	"github.com/AshkanYarmoradi/go-cqrs/adapters"
)

// EventStoreMiddleware is an adapter that measures the adapter it wraps.
type EventStoreMiddleware struct {
	adapter adapters.EventStoreAdapter
	metrics *Metrics
}

var _ adapters.EventStoreAdapter = (*EventStoreMiddleware)(nil)

func (m *Metrics) WrapEventStore(adapter adapters.EventStoreAdapter) *EventStoreMiddleware {
	return &EventStoreMiddleware{adapter: adapter, metrics: m}
}

func (em *EventStoreMiddleware) Unwrap() adapters.EventStoreAdapter { return em.adapter }

// track returns a func that records operation's duration and outcome.
func (em *EventStoreMiddleware) track(operation string) func(error) {
	start := time.Now()
	return func(err error) {
		m := em.metrics
		m.eventStoreOperationDuration.WithLabelValues(m.serviceName, operation).Observe(time.Since(start).Seconds())
		m.eventStoreOperationsTotal.WithLabelValues(m.serviceName, operation, status(err)).Inc()
		if err != nil {
			m.errorsTotal.WithLabelValues(m.serviceName, operation+"_error").Inc()
		}
	}
}

func (em *EventStoreMiddleware) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	done := em.track(OperationAppend)
	stored, err := em.adapter.Append(ctx, streamID, events, expectedVersion)
	done(err)
	if err == nil {
		for _, e := range events {
			em.metrics.eventsAppendedTotal.WithLabelValues(em.metrics.serviceName, e.Type).Inc()
		}
	}
	return stored, err
}

func (em *EventStoreMiddleware) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	done := em.track(OperationLoad)
	events, err := em.adapter.Load(ctx, streamID, fromVersion)
	done(err)
	if err == nil {
		em.metrics.eventsLoadedTotal.WithLabelValues(em.metrics.serviceName).Add(float64(len(events)))
	}
	return events, err
}

func (em *EventStoreMiddleware) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	done := em.track(OperationGetStreamInfo)
	info, err := em.adapter.GetStreamInfo(ctx, streamID)
	done(err)
	return info, err
}

func (em *EventStoreMiddleware) GetLastPosition(ctx context.Context) (uint64, error) {
	done := em.track(OperationGetLastPosition)
	pos, err := em.adapter.GetLastPosition(ctx)
	done(err)
	return pos, err
}

// Initialize and Close are passed through unmeasured.
func (em *EventStoreMiddleware) Initialize(ctx context.Context) error {
	return em.adapter.Initialize(ctx)
}
func (em *EventStoreMiddleware) Close() error { return em.adapter.Close() }
