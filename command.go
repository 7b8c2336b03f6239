package cqrs

import (
	"fmt"
	"strings"
)

// Command is an intent addressed to one aggregate. Commands are never
// stored; CommandType labels them in logs, metrics and traces.
type Command interface {
	CommandType() string
}

// Validatable commands check their own fields before the aggregate is
// loaded. See ValidationMiddleware.
type Validatable interface {
	Validate() error
}

// CommandResult is what Framework.Execute reports back.
type CommandResult struct {
	Success       bool
	AggregateID   string
	AggregateType string

	// Version is the stream version once the command's events are committed.
	// A command that emitted nothing leaves it at the loaded version.
	Version int64

	// Events counts the committed events.
	Events int

	Data  interface{}
	Error error
}

func NewSuccessResult(aggregateID string, version int64) CommandResult {
	return CommandResult{Success: true, AggregateID: aggregateID, Version: version}
}

func NewErrorResult(err error) CommandResult {
	return CommandResult{Error: err}
}

func (r CommandResult) IsSuccess() bool { return r.Success && r.Error == nil }
func (r CommandResult) IsError() bool   { return !r.IsSuccess() }

// ValidationError rejects a malformed command before it reaches Handle.
// Like UserError it matches ErrValidationFailed.
type ValidationError struct {
	CommandType string
	Field       string
	Message     string
	Cause       error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cqrs: validation failed for command %q", e.CommandType)
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }
func (e *ValidationError) Unwrap() error        { return e.Cause }

func NewValidationError(cmdType, field, message string) *ValidationError {
	return NewValidationErrorWithCause(cmdType, field, message, nil)
}

func NewValidationErrorWithCause(cmdType, field, message string, cause error) *ValidationError {
	return &ValidationError{CommandType: cmdType, Field: field, Message: message, Cause: cause}
}
