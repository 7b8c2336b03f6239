package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cqrs "github.com/AshkanYarmoradi/go-cqrs"
	"github.com/AshkanYarmoradi/go-cqrs/adapters/memory"
	"github.com/AshkanYarmoradi/go-cqrs/examples/myaggregate"
	"github.com/AshkanYarmoradi/go-cqrs/publisher"
)

type fakeWriter struct {
	mu       sync.Mutex
	topic    string
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type fakeWriters struct {
	mu      sync.Mutex
	writers map[string]*fakeWriter
	errs    map[string]error
}

func newFakeWriters() *fakeWriters {
	return &fakeWriters{writers: map[string]*fakeWriter{}, errs: map[string]error{}}
}

func (f *fakeWriters) factory(topic string) MessageWriter {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWriter{topic: topic, err: f.errs[topic]}
	f.writers[topic] = w
	return w
}

func headerMap(msg kafkago.Message) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func envelope(seq int64, payload myaggregate.Event) cqrs.EventEnvelope[myaggregate.Event] {
	return cqrs.EventEnvelope[myaggregate.Event]{
		EventID:       "evt-" + string(rune('0'+seq)),
		AggregateID:   "agg-1",
		AggregateType: myaggregate.AggregateType,
		Sequence:      seq,
		Payload:       payload,
		Metadata:      cqrs.Metadata{CorrelationID: "corr-1"},
		Timestamp:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestPublisher_Dispatch(t *testing.T) {
	writers := newFakeWriters()
	pub := New[myaggregate.Event]("values", WithWriterFactory(writers.factory))

	err := pub.Dispatch(context.Background(), "agg-1", []cqrs.EventEnvelope[myaggregate.Event]{
		envelope(1, myaggregate.CommandAFiredEvent{Value: "x"}),
		envelope(2, myaggregate.ValueClearedEvent{}),
	})
	require.NoError(t, err)

	require.Contains(t, writers.writers, "values")
	msgs := writers.writers["values"].messages
	require.Len(t, msgs, 2)

	assert.Equal(t, "agg-1", string(msgs[0].Key))
	assert.JSONEq(t, `{"value":"x"}`, string(msgs[0].Value))
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), msgs[0].Time)

	headers := headerMap(msgs[0])
	assert.Equal(t, "CommandAFiredEvent", headers[publisher.HeaderEventType])
	assert.Equal(t, "1.0", headers[publisher.HeaderEventVersion])
	assert.Equal(t, myaggregate.AggregateType, headers[publisher.HeaderAggregateType])
	assert.Equal(t, "1", headers[publisher.HeaderSequence])
	assert.Equal(t, "corr-1", headers[publisher.HeaderCorrelationID])
	assert.Equal(t, publisher.ContentTypeJSON, headers[publisher.HeaderContentType])

	assert.Equal(t, "ValueClearedEvent", headerMap(msgs[1])[publisher.HeaderEventType])
	assert.Equal(t, "2", headerMap(msgs[1])[publisher.HeaderSequence])
}

func TestPublisher_DispatchEmpty(t *testing.T) {
	writers := newFakeWriters()
	pub := New[myaggregate.Event]("values", WithWriterFactory(writers.factory))

	require.NoError(t, pub.Dispatch(context.Background(), "agg-1", nil))
	assert.Empty(t, writers.writers, "no writer is created")
}

func TestPublisher_TopicFunc(t *testing.T) {
	writers := newFakeWriters()
	pub := New[cqrs.DomainEvent]("unused",
		WithWriterFactory(writers.factory),
		WithTopicFunc(func(aggregateType string) string { return "events." + aggregateType }))

	envs := []cqrs.EventEnvelope[cqrs.DomainEvent]{
		{AggregateID: "o-1", AggregateType: "Order", Sequence: 1, Payload: myaggregate.ValueClearedEvent{}},
		{AggregateID: "o-1", AggregateType: "Invoice", Sequence: 1, Payload: myaggregate.ValueClearedEvent{}},
	}
	require.NoError(t, pub.Dispatch(context.Background(), "o-1", envs))

	assert.Len(t, writers.writers["events.Order"].messages, 1)
	assert.Len(t, writers.writers["events.Invoice"].messages, 1)
	assert.NotContains(t, writers.writers, "unused")
}

func TestPublisher_WriterReused(t *testing.T) {
	var created int
	writer := &fakeWriter{}
	pub := New[myaggregate.Event]("values", WithWriterFactory(func(string) MessageWriter {
		created++
		return writer
	}))

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, pub.Dispatch(context.Background(), "agg-1",
			[]cqrs.EventEnvelope[myaggregate.Event]{envelope(i, myaggregate.ValueClearedEvent{})}))
	}

	assert.Equal(t, 1, created)
	assert.Len(t, writer.messages, 3)
}

func TestPublisher_WriteErrors(t *testing.T) {
	boom := errors.New("broker down")
	writers := newFakeWriters()
	writers.errs["events.Order"] = boom
	pub := New[cqrs.DomainEvent]("unused",
		WithWriterFactory(writers.factory),
		WithTopicFunc(func(aggregateType string) string { return "events." + aggregateType }))

	err := pub.Dispatch(context.Background(), "o-1", []cqrs.EventEnvelope[cqrs.DomainEvent]{
		{AggregateID: "o-1", AggregateType: "Order", Sequence: 1, Payload: myaggregate.ValueClearedEvent{}},
		{AggregateID: "o-1", AggregateType: "Invoice", Sequence: 1, Payload: myaggregate.ValueClearedEvent{}},
	})

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "events.Order")
	assert.Len(t, writers.writers["events.Invoice"].messages, 1, "remaining topics are still attempted")
}

func TestPublisher_Close(t *testing.T) {
	writers := newFakeWriters()
	pub := New[myaggregate.Event]("values", WithWriterFactory(writers.factory))
	envs := []cqrs.EventEnvelope[myaggregate.Event]{envelope(1, myaggregate.ValueClearedEvent{})}

	require.NoError(t, pub.Dispatch(context.Background(), "agg-1", envs))
	require.NoError(t, pub.Close())

	assert.True(t, writers.writers["values"].closed)
	assert.ErrorIs(t, pub.Dispatch(context.Background(), "agg-1", envs), ErrClosed)
}

func TestPublisher_DefaultWriter(t *testing.T) {
	pub := New[myaggregate.Event]("values", WithBrokers("k1:9092", "k2:9092"), WithBatchTimeout(time.Second))

	w, err := pub.writer("values")
	require.NoError(t, err)

	kw, ok := w.(*kafkago.Writer)
	require.True(t, ok)
	assert.Equal(t, "values", kw.Topic)
	assert.NotNil(t, kw.Addr)
	assert.Equal(t, time.Second, kw.BatchTimeout)
	assert.IsType(t, &kafkago.Hash{}, kw.Balancer)
}

func TestPublisher_WithFramework(t *testing.T) {
	ctx := context.Background()
	writers := newFakeWriters()
	pub := New[myaggregate.Event]("values", WithWriterFactory(writers.factory))
	store := cqrs.New(memory.NewAdapter())

	fw := myaggregate.NewFramework(store, myaggregate.Services{}, []cqrs.Query[myaggregate.Event]{pub})

	_, err := fw.Execute(ctx, "agg-1", myaggregate.CommandA{Value: "x"})
	require.NoError(t, err)
	_, err = fw.Execute(ctx, "agg-1", myaggregate.ClearValue{})
	require.NoError(t, err)

	msgs := writers.writers["values"].messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "1", headerMap(msgs[0])[publisher.HeaderSequence])
	assert.Equal(t, "2", headerMap(msgs[1])[publisher.HeaderSequence])
	assert.NotEmpty(t, headerMap(msgs[0])[publisher.HeaderEventID])
}
