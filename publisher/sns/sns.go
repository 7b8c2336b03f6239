// Package sns forwards committed events to an AWS SNS topic.
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	pub := sns.New[myaggregate.Event](topicARN, sns.WithSNSClient(awssns.NewFromConfig(cfg)))
//
// Event metadata travels as SNS message attributes. On FIFO topics
// (ARNs ending in ".fifo") the message group is the aggregate ID and the
// deduplication ID is the event ID, so subscribers see each aggregate's
// events once and in order.
package sns

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/multierr"

	cqrs "github.com/AshkanYarmoradi/go-cqrs"
	"github.com/AshkanYarmoradi/go-cqrs/publisher"
)

// ErrNoClient is returned by Dispatch when no SNS client is configured.
var ErrNoClient = errors.New("cqrs/sns: client not configured")

// SNSClient defines the subset of the SNS API used by the publisher.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Option configures a Publisher.
type Option func(*config)

type config struct {
	client     SNSClient
	fifo       bool
	serializer cqrs.Serializer
	logger     cqrs.Logger
}

// WithSNSClient sets the SNS client.
func WithSNSClient(client SNSClient) Option {
	return func(c *config) {
		c.client = client
	}
}

// WithFIFO forces FIFO message fields on or off regardless of the topic ARN.
func WithFIFO(fifo bool) Option {
	return func(c *config) {
		c.fifo = fifo
	}
}

// WithSerializer sets the message body encoding. Defaults to JSON.
// SNS bodies are strings, so binary serializers are unsuitable.
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

// Publisher publishes committed event envelopes to one SNS topic.
type Publisher[E cqrs.DomainEvent] struct {
	topicARN string
	cfg      config
}

var _ cqrs.Query[cqrs.DomainEvent] = (*Publisher[cqrs.DomainEvent])(nil)

// New creates a publisher for topicARN.
func New[E cqrs.DomainEvent](topicARN string, opts ...Option) *Publisher[E] {
	cfg := config{
		fifo:       strings.HasSuffix(topicARN, ".fifo"),
		serializer: cqrs.NewJSONSerializer(),
		logger:     cqrs.NopLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Publisher[E]{topicARN: topicARN, cfg: cfg}
}

// TopicARN returns the destination topic.
func (p *Publisher[E]) TopicARN() string {
	return p.topicARN
}

// Dispatch publishes one message per envelope, in order. Every envelope is
// attempted; failures are combined into one error.
func (p *Publisher[E]) Dispatch(ctx context.Context, aggregateID string, envelopes []cqrs.EventEnvelope[E]) error {
	if len(envelopes) == 0 {
		return nil
	}
	if p.cfg.client == nil {
		return ErrNoClient
	}

	var errs error
	for _, env := range envelopes {
		input, err := p.input(env)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if _, err := p.cfg.client.Publish(ctx, input); err != nil {
			p.cfg.logger.Error("SNS publish failed", "topic", p.topicARN, "aggregateID", aggregateID, "sequence", env.Sequence, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("cqrs/sns: publish %s #%d to %s: %w", env.Payload.EventType(), env.Sequence, p.topicARN, err))
		}
	}
	return errs
}

func (p *Publisher[E]) input(env cqrs.EventEnvelope[E]) (*sns.PublishInput, error) {
	body, err := p.cfg.serializer.Serialize(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("cqrs/sns: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn:          aws.String(p.topicARN),
		Message:           aws.String(string(body)),
		Subject:           aws.String(env.Payload.EventType()),
		MessageAttributes: make(map[string]types.MessageAttributeValue),
	}
	for k, v := range publisher.Headers(env) {
		input.MessageAttributes[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	if p.cfg.fifo {
		input.MessageGroupId = aws.String(env.AggregateID)
		dedup := env.EventID
		if dedup == "" {
			dedup = fmt.Sprintf("%s-%d", env.AggregateID, env.Sequence)
		}
		input.MessageDeduplicationId = aws.String(dedup)
	}
	return input, nil
}
