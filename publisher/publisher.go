// Package publisher holds what the broker publishers share: the header names
// attached to every published event and the function that fills them.
package publisher

import (
	"strconv"
	"time"

	cqrs "github.com/AshkanYarmoradi/go-cqrs"
)

// Header names.
const (
	HeaderEventID       = "event-id"
	HeaderEventType     = "event-type"
	HeaderEventVersion  = "event-version"
	HeaderAggregateID   = "aggregate-id"
	HeaderAggregateType = "aggregate-type"
	HeaderSequence      = "sequence"
	HeaderTimestamp     = "timestamp"
	HeaderCorrelationID = "correlation-id"
	HeaderCausationID   = "causation-id"
	HeaderTenantID      = "tenant-id"
	HeaderUserID        = "user-id"
	HeaderContentType   = "content-type"
)

// ContentTypeJSON is the content type of events encoded by cqrs.JSONSerializer.
const ContentTypeJSON = "application/json"

// Headers describes env as string headers. Empty metadata fields are omitted.
func Headers[E cqrs.DomainEvent](env cqrs.EventEnvelope[E]) map[string]string {
	h := map[string]string{
		HeaderEventType:     env.Payload.EventType(),
		HeaderEventVersion:  env.Payload.EventVersion(),
		HeaderAggregateID:   env.AggregateID,
		HeaderAggregateType: env.AggregateType,
		HeaderSequence:      strconv.FormatInt(env.Sequence, 10),
	}

	set := func(key, value string) {
		if value != "" {
			h[key] = value
		}
	}
	set(HeaderEventID, env.EventID)
	set(HeaderCorrelationID, env.Metadata.CorrelationID)
	set(HeaderCausationID, env.Metadata.CausationID)
	set(HeaderTenantID, env.Metadata.TenantID)
	set(HeaderUserID, env.Metadata.UserID)
	if !env.Timestamp.IsZero() {
		h[HeaderTimestamp] = env.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	return h
}
