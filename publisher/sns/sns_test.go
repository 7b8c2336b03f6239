package sns

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cqrs "github.com/AshkanYarmoradi/go-cqrs"
	"github.com/AshkanYarmoradi/go-cqrs/adapters/memory"
	"github.com/AshkanYarmoradi/go-cqrs/examples/myaggregate"
	"github.com/AshkanYarmoradi/go-cqrs/publisher"
)

const (
	topicARN     = "arn:aws:sns:us-east-1:123456789:values"
	fifoTopicARN = "arn:aws:sns:us-east-1:123456789:values.fifo"
)

// mockSNSClient implements SNSClient for testing.
type mockSNSClient struct {
	publishCalls []*sns.PublishInput
	failOn       map[int]error
}

func (m *mockSNSClient) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.publishCalls = append(m.publishCalls, params)
	if err := m.failOn[len(m.publishCalls)]; err != nil {
		return nil, err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-123")}, nil
}

func attribute(t *testing.T, input *sns.PublishInput, key string) string {
	t.Helper()
	attr, ok := input.MessageAttributes[key]
	require.True(t, ok, "missing attribute %q", key)
	assert.Equal(t, "String", aws.ToString(attr.DataType))
	return aws.ToString(attr.StringValue)
}

func envelopes() []cqrs.EventEnvelope[myaggregate.Event] {
	return []cqrs.EventEnvelope[myaggregate.Event]{
		{
			EventID:       "evt-1",
			AggregateID:   "agg-1",
			AggregateType: myaggregate.AggregateType,
			Sequence:      1,
			Payload:       myaggregate.CommandAFiredEvent{Value: "x"},
			Metadata:      cqrs.Metadata{TenantID: "acme"},
		},
		{
			EventID:       "evt-2",
			AggregateID:   "agg-1",
			AggregateType: myaggregate.AggregateType,
			Sequence:      2,
			Payload:       myaggregate.ValueClearedEvent{},
		},
	}
}

func TestNew(t *testing.T) {
	assert.False(t, New[myaggregate.Event](topicARN).cfg.fifo)
	assert.True(t, New[myaggregate.Event](fifoTopicARN).cfg.fifo)
	assert.True(t, New[myaggregate.Event](topicARN, WithFIFO(true)).cfg.fifo)
	assert.Equal(t, topicARN, New[myaggregate.Event](topicARN).TopicARN())
}

func TestPublisher_Dispatch(t *testing.T) {
	mock := &mockSNSClient{}
	p := New[myaggregate.Event](topicARN, WithSNSClient(mock))

	require.NoError(t, p.Dispatch(context.Background(), "agg-1", envelopes()))
	require.Len(t, mock.publishCalls, 2)

	call := mock.publishCalls[0]
	assert.Equal(t, topicARN, aws.ToString(call.TopicArn))
	assert.JSONEq(t, `{"value":"x"}`, aws.ToString(call.Message))
	assert.Equal(t, "CommandAFiredEvent", aws.ToString(call.Subject))
	assert.Equal(t, "CommandAFiredEvent", attribute(t, call, publisher.HeaderEventType))
	assert.Equal(t, "1.0", attribute(t, call, publisher.HeaderEventVersion))
	assert.Equal(t, myaggregate.AggregateType, attribute(t, call, publisher.HeaderAggregateType))
	assert.Equal(t, "agg-1", attribute(t, call, publisher.HeaderAggregateID))
	assert.Equal(t, "acme", attribute(t, call, publisher.HeaderTenantID))
	assert.Nil(t, call.MessageGroupId)
	assert.Nil(t, call.MessageDeduplicationId)

	assert.Equal(t, "2", attribute(t, mock.publishCalls[1], publisher.HeaderSequence))
}

func TestPublisher_DispatchFIFO(t *testing.T) {
	mock := &mockSNSClient{}
	p := New[myaggregate.Event](fifoTopicARN, WithSNSClient(mock))

	envs := envelopes()
	envs[1].EventID = ""
	require.NoError(t, p.Dispatch(context.Background(), "agg-1", envs))

	assert.Equal(t, "agg-1", aws.ToString(mock.publishCalls[0].MessageGroupId))
	assert.Equal(t, "evt-1", aws.ToString(mock.publishCalls[0].MessageDeduplicationId))
	assert.Equal(t, "agg-1-2", aws.ToString(mock.publishCalls[1].MessageDeduplicationId))
}

func TestPublisher_DispatchErrors(t *testing.T) {
	t.Run("no client", func(t *testing.T) {
		p := New[myaggregate.Event](topicARN)
		assert.ErrorIs(t, p.Dispatch(context.Background(), "agg-1", envelopes()), ErrNoClient)
	})

	t.Run("no envelopes", func(t *testing.T) {
		p := New[myaggregate.Event](topicARN)
		assert.NoError(t, p.Dispatch(context.Background(), "agg-1", nil))
	})

	t.Run("publish failure", func(t *testing.T) {
		boom := errors.New("throttled")
		mock := &mockSNSClient{failOn: map[int]error{1: boom}}
		p := New[myaggregate.Event](topicARN, WithSNSClient(mock))

		err := p.Dispatch(context.Background(), "agg-1", envelopes())

		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "CommandAFiredEvent #1")
		assert.Len(t, mock.publishCalls, 2, "later envelopes are still attempted")
	})
}

func TestPublisher_WithFramework(t *testing.T) {
	ctx := context.Background()
	mock := &mockSNSClient{}
	p := New[myaggregate.Event](fifoTopicARN, WithSNSClient(mock))

	fw := myaggregate.NewFramework(cqrs.New(memory.NewAdapter()), myaggregate.Services{}, []cqrs.Query[myaggregate.Event]{p})
	_, err := fw.Execute(ctx, "agg-7", myaggregate.CommandA{Value: "y"})
	require.NoError(t, err)

	require.Len(t, mock.publishCalls, 1)
	assert.Equal(t, "agg-7", aws.ToString(mock.publishCalls[0].MessageGroupId))
	assert.NotEmpty(t, aws.ToString(mock.publishCalls[0].MessageDeduplicationId))
}
