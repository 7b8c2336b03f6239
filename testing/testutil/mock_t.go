// Package testutil provides test doubles shared by the go-cqrs test suites.
package testutil

import (
	"fmt"
	"runtime"
	"sync"
	"testing"
)

// MockT is a testing.TB that records failures instead of reporting them.
// Fatal and FailNow stop the calling goroutine, so run code under test with
// RunWithMockT.
type MockT struct {
	testing.TB

	mu       sync.Mutex
	failed   bool
	fatal    bool
	messages []string
}

// NewMockT creates a MockT.
func NewMockT() *MockT {
	return &MockT{}
}

func (m *MockT) record(fatal bool, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = true
	m.fatal = m.fatal || fatal
	m.messages = append(m.messages, msg)
}

// Helper implements testing.TB.
func (m *MockT) Helper() {}

// Log implements testing.TB.
func (m *MockT) Log(args ...any) {}

// Logf implements testing.TB.
func (m *MockT) Logf(format string, args ...any) {}

// Error implements testing.TB.
func (m *MockT) Error(args ...any) { m.record(false, fmt.Sprint(args...)) }

// Errorf implements testing.TB.
func (m *MockT) Errorf(format string, args ...any) { m.record(false, fmt.Sprintf(format, args...)) }

// Fail implements testing.TB.
func (m *MockT) Fail() { m.record(false, "") }

// FailNow implements testing.TB.
func (m *MockT) FailNow() {
	m.record(true, "")
	runtime.Goexit()
}

// Fatal implements testing.TB.
func (m *MockT) Fatal(args ...any) {
	m.record(true, fmt.Sprint(args...))
	runtime.Goexit()
}

// Fatalf implements testing.TB.
func (m *MockT) Fatalf(format string, args ...any) {
	m.record(true, fmt.Sprintf(format, args...))
	runtime.Goexit()
}

// Failed implements testing.TB.
func (m *MockT) Failed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed
}

// IsFatal reports whether Fatal, Fatalf or FailNow was called.
func (m *MockT) IsFatal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fatal
}

// Messages returns the recorded failure messages in order.
func (m *MockT) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

// Message returns the last failure message, or "".
func (m *MockT) Message() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return ""
	}
	return m.messages[len(m.messages)-1]
}

// RunWithMockT runs fn on its own goroutine and waits for it, so that Fatal
// ends fn instead of the test.
func RunWithMockT(fn func(m *MockT)) *MockT {
	mt := NewMockT()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(mt)
	}()
	<-done
	return mt
}
