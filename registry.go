package cqrs

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// EventRegistry maps type tags to the Go types serializers decode into.
// It is safe for concurrent use.
type EventRegistry struct {
	mu    sync.RWMutex
	types map[string]registeredType
}

type registeredType struct {
	typ     reflect.Type
	pointer bool
}

func (rt registeredType) value(ptr reflect.Value) interface{} {
	if rt.pointer {
		return ptr.Interface()
	}
	return ptr.Elem().Interface()
}

func NewEventRegistry() *EventRegistry {
	return &EventRegistry{types: map[string]registeredType{}}
}

// Register records each example under its EventType. A pointer example
// makes decoding yield pointers for that tag. Nil examples are skipped.
func (r *EventRegistry) Register(examples ...DomainEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, example := range examples {
		if example == nil {
			continue
		}
		var rt registeredType
		if t := reflect.TypeOf(example); t.Kind() == reflect.Ptr {
			rt = registeredType{typ: t.Elem(), pointer: true}
		} else {
			rt = registeredType{typ: t}
		}
		r.types[example.EventType()] = rt
	}
}

func (r *EventRegistry) lookup(eventType string) (registeredType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.types[eventType]
	return rt, ok
}

// Lookup returns the struct type registered for eventType.
func (r *EventRegistry) Lookup(eventType string) (reflect.Type, bool) {
	rt, ok := r.lookup(eventType)
	return rt.typ, ok
}

// New returns a pointer to a fresh zero value of the type registered for
// eventType, to decode into, and a finish func that yields the decoded
// event in its registered shape.
func (r *EventRegistry) New(eventType string) (target interface{}, finish func() (DomainEvent, error), err error) {
	rt, ok := r.lookup(eventType)
	if !ok {
		return nil, nil, NewEventTypeNotRegisteredError(eventType)
	}

	ptr := reflect.New(rt.typ)
	return ptr.Interface(), func() (DomainEvent, error) {
		event, ok := rt.value(ptr).(DomainEvent)
		if !ok {
			return nil, fmt.Errorf("cqrs: registered type %s does not implement DomainEvent", rt.typ)
		}
		return event, nil
	}, nil
}

// RegisteredTypes returns the registered tags in sorted order.
func (r *EventRegistry) RegisteredTypes() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

func (r *EventRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}
