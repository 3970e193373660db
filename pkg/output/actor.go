package output

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	errDispatcherClosed = errors.New("dispatcher is closed")
	errNoAudio          = errors.New("backend returned no audio")
)

// state is everything owned by the dispatch goroutine.
type state struct {
	registry *registry
	sink     AudioSink
	log      logrus.FieldLogger
}

// job is one unit of work. run always sends exactly one result on its own
// reply channel.
type job struct {
	op  string
	id  string
	run func(s *state)
}

type jobResult[T any] struct {
	value T
	err   error
}

// dispatcher runs every job on a single locked OS thread, in the order the
// queue delivers them.
type dispatcher struct {
	queue chan job
	done  chan struct{}
	log   logrus.FieldLogger

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func startDispatcher(factories []Factory, newSink func() (AudioSink, error), queueSize int, log logrus.FieldLogger) (*dispatcher, error) {
	d := &dispatcher{
		queue: make(chan job, queueSize),
		done:  make(chan struct{}),
		log:   log,
	}
	ready := make(chan error, 1)
	go d.worker(factories, newSink, ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return d, nil
}

func (d *dispatcher) worker(factories []Factory, newSink func() (AudioSink, error), ready chan<- error) {
	defer close(d.done)

	// Some adapters wrap COM objects that must stay on the thread that
	// created them.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	sink, err := newSink()
	if err != nil {
		ready <- InitializeFailed(err)
		return
	}
	s := &state{
		registry: buildRegistry(factories, d.log),
		sink:     sink,
		log:      d.log,
	}
	ready <- nil

	for j := range d.queue {
		d.log.WithFields(logrus.Fields{"op": j.op, "work_id": j.id}).Debug("Dispatching")
		j.run(s)
	}

	s.registry.close(d.log)
	if err := s.sink.Close(); err != nil {
		d.log.WithError(err).Warn("Failed to close audio sink")
	}
	d.log.Debug("Dispatcher stopped")
}

// submit runs fn on the dispatch goroutine and waits for its result. It
// fails with Unknown once the dispatcher has been closed.
func submit[T any](d *dispatcher, op string, fn func(s *state) (T, error)) (T, error) {
	respChan := make(chan jobResult[T], 1)
	j := job{
		op: op,
		id: uuid.NewString(),
		run: func(s *state) {
			defer func() {
				if r := recover(); r != nil {
					s.log.WithField("op", op).WithField("panic", r).Error("Recovered panic in dispatched work")
					respChan <- jobResult[T]{err: Unknown(fmt.Errorf("panic in %s: %v", op, r))}
				}
			}()
			v, err := fn(s)
			respChan <- jobResult[T]{value: v, err: err}
		},
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		var zero T
		return zero, Unknown(errDispatcherClosed)
	}
	d.queue <- j
	d.mu.RUnlock()

	res := <-respChan
	return res.value, res.err
}

// close stops accepting work, lets the queued jobs finish, and waits for the
// dispatch goroutine to release every backend and the sink.
func (d *dispatcher) close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	<-d.done
}
