package main

import (
	"sync"

	"github.com/pkg/errors"

	"murmur/pkg/output"
)

var errNotInitialized = errors.New("murmur_initialize has not been called")

// library is the process-wide handle behind the C functions. C callers have
// no way to pass a Go value around, so the facade lives here.
type library struct {
	mu      sync.Mutex
	out     *output.Output
	lastErr *string
	open    func() (*output.Output, error)
}

func (l *library) initialize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out != nil {
		return 0
	}
	out, err := l.open()
	if err != nil {
		return l.failLocked(err)
	}
	l.out = out
	return 0
}

func (l *library) shutdown() int {
	l.mu.Lock()
	out := l.out
	l.out = nil
	l.mu.Unlock()
	if out == nil {
		return 0
	}
	return l.result(out.Close())
}

// call runs fn against the facade and turns its error into a code, keeping
// the message for murmur_get_last_error. The lock is not held while fn runs
// so a long speak call does not block other threads.
func (l *library) call(fn func(*output.Output) error) int {
	l.mu.Lock()
	out := l.out
	l.mu.Unlock()
	if out == nil {
		return l.result(output.Unknown(errNotInitialized))
	}
	return l.result(fn(out))
}

// nullArgument reports a NULL out-parameter without touching the facade.
func (l *library) nullArgument(name string) int {
	return l.result(output.Unknown(errors.Errorf("%s must not be NULL", name)))
}

func (l *library) result(err error) int {
	if err == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failLocked(err)
}

func (l *library) failLocked(err error) int {
	msg := err.Error()
	l.lastErr = &msg
	return output.Code(err)
}

// takeLastError returns and clears the last message.
func (l *library) takeLastError() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastErr == nil {
		return "", false
	}
	msg := *l.lastErr
	l.lastErr = nil
	return msg, true
}
