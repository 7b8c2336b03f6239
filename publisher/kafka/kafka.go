// Package kafka forwards committed events to Kafka topics using
// github.com/segmentio/kafka-go.
//
// A Publisher is a cqrs.Query, so it is registered with a framework like any
// other query:
//
//	pub := kafka.New[myaggregate.Event]("my-aggregate-events",
//		kafka.WithBrokers("kafka-1:9092", "kafka-2:9092"))
//	defer pub.Close()
//
//	fw := myaggregate.NewFramework(store, services, []cqrs.Query[myaggregate.Event]{pub})
//
// Every message is keyed by the aggregate ID so the events of one aggregate
// land on the same partition in commit order.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/multierr"

	cqrs "github.com/AshkanYarmoradi/go-cqrs"
	"github.com/AshkanYarmoradi/go-cqrs/publisher"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("cqrs/kafka: publisher closed")

// MessageWriter is the part of *kafkago.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// TopicFunc picks the topic for the events of one aggregate type.
type TopicFunc func(aggregateType string) string

// Option configures a Publisher.
type Option func(*config)

type config struct {
	brokers      []string
	balancer     kafkago.Balancer
	batchTimeout time.Duration
	transport    kafkago.RoundTripper
	topicFunc    TopicFunc
	newWriter    func(topic string) MessageWriter
	serializer   cqrs.Serializer
	logger       cqrs.Logger
}

// WithBrokers sets the Kafka broker addresses.
func WithBrokers(brokers ...string) Option {
	return func(c *config) {
		c.brokers = brokers
	}
}

// WithBalancer sets the message balancer (partitioner).
func WithBalancer(balancer kafkago.Balancer) Option {
	return func(c *config) {
		c.balancer = balancer
	}
}

// WithBatchTimeout sets the batch timeout of the writers.
func WithBatchTimeout(d time.Duration) Option {
	return func(c *config) {
		c.batchTimeout = d
	}
}

// WithTransport sets the transport of the writers, e.g. for TLS or SASL.
func WithTransport(transport kafkago.RoundTripper) Option {
	return func(c *config) {
		c.transport = transport
	}
}

// WithTopicFunc routes events to a topic chosen per aggregate type
// instead of the fixed topic given to New.
func WithTopicFunc(fn TopicFunc) Option {
	return func(c *config) {
		c.topicFunc = fn
	}
}

// WithWriterFactory replaces the kafka-go writer. Used in tests.
func WithWriterFactory(fn func(topic string) MessageWriter) Option {
	return func(c *config) {
		c.newWriter = fn
	}
}

// WithSerializer sets the payload encoding. Defaults to JSON.
func WithSerializer(s cqrs.Serializer) Option {
	return func(c *config) {
		c.serializer = s
	}
}

// WithLogger sets the logger.
func WithLogger(l cqrs.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Publisher publishes committed event envelopes to Kafka.
type Publisher[E cqrs.DomainEvent] struct {
	cfg     config
	mu      sync.RWMutex
	writers map[string]MessageWriter
	closed  bool
}

var _ cqrs.Query[cqrs.DomainEvent] = (*Publisher[cqrs.DomainEvent])(nil)

// New creates a publisher writing to topic.
func New[E cqrs.DomainEvent](topic string, opts ...Option) *Publisher[E] {
	cfg := config{
		brokers:      []string{"localhost:9092"},
		balancer:     &kafkago.Hash{},
		batchTimeout: 10 * time.Millisecond,
		topicFunc:    func(string) string { return topic },
		serializer:   cqrs.NewJSONSerializer(),
		logger:       cqrs.NopLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.newWriter == nil {
		cfg.newWriter = cfg.kafkaWriter
	}

	return &Publisher[E]{
		cfg:     cfg,
		writers: make(map[string]MessageWriter),
	}
}

func (c config) kafkaWriter(topic string) MessageWriter {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(c.brokers...),
		Topic:                  topic,
		Balancer:               c.balancer,
		BatchTimeout:           c.batchTimeout,
		Transport:              c.transport,
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Dispatch writes one message per envelope. Envelopes are grouped by topic
// and every topic is attempted; failures are combined into one error.
func (p *Publisher[E]) Dispatch(ctx context.Context, aggregateID string, envelopes []cqrs.EventEnvelope[E]) error {
	if len(envelopes) == 0 {
		return nil
	}

	grouped := make(map[string][]kafkago.Message)
	var order []string
	for _, env := range envelopes {
		msg, err := p.message(env)
		if err != nil {
			return err
		}
		topic := p.cfg.topicFunc(env.AggregateType)
		if _, ok := grouped[topic]; !ok {
			order = append(order, topic)
		}
		grouped[topic] = append(grouped[topic], msg)
	}

	var errs error
	for _, topic := range order {
		w, err := p.writer(topic)
		if err != nil {
			return err
		}
		if err := w.WriteMessages(ctx, grouped[topic]...); err != nil {
			p.cfg.logger.Error("Kafka publish failed", "topic", topic, "aggregateID", aggregateID, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("cqrs/kafka: write to topic %s: %w", topic, err))
			continue
		}
		p.cfg.logger.Debug("Published events", "topic", topic, "aggregateID", aggregateID, "count", len(grouped[topic]))
	}
	return errs
}

func (p *Publisher[E]) message(env cqrs.EventEnvelope[E]) (kafkago.Message, error) {
	value, err := p.cfg.serializer.Serialize(env.Payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("cqrs/kafka: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(env.AggregateID),
		Value: value,
		Time:  env.Timestamp,
	}
	for k, v := range publisher.Headers(env) {
		msg.Headers = append(msg.Headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	if _, ok := p.cfg.serializer.(*cqrs.JSONSerializer); ok {
		msg.Headers = append(msg.Headers, kafkago.Header{Key: publisher.HeaderContentType, Value: []byte(publisher.ContentTypeJSON)})
	}
	return msg, nil
}

// writer returns or creates the writer for topic.
func (p *Publisher[E]) writer(topic string) (MessageWriter, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrClosed
	}
	if w, ok := p.writers[topic]; ok {
		p.mu.RUnlock()
		return w, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if w, ok := p.writers[topic]; ok {
		return w, nil
	}

	w := p.cfg.newWriter(topic)
	p.writers[topic] = w
	return w, nil
}

// Close flushes and closes every writer. Dispatch fails afterwards.
func (p *Publisher[E]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var errs error
	for topic, w := range p.writers {
		errs = multierr.Append(errs, w.Close())
		delete(p.writers, topic)
	}
	return errs
}
