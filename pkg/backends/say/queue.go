package say

import (
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"
)

type process interface {
	Wait() error
	Kill() error
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p execProcess) Wait() error { return p.cmd.Wait() }

func (p execProcess) Kill() error { return p.cmd.Process.Kill() }

// playQueue runs one say process at a time and starts the next queued
// utterance when the current one exits.
type playQueue struct {
	start func(args []string) (process, error)

	mu      sync.Mutex
	pending [][]string
	current process
	running bool
	idle    *sync.Cond
}

func newPlayQueue(path string) *playQueue {
	return newPlayQueueWith(func(args []string) (process, error) {
		cmd := exec.Command(path, args...)
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return execProcess{cmd: cmd}, nil
	})
}

func newPlayQueueWith(start func(args []string) (process, error)) *playQueue {
	q := &playQueue{start: start}
	q.idle = sync.NewCond(&q.mu)
	return q
}

func (q *playQueue) play(args []string, interrupt bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if interrupt {
		q.clearLocked()
	}
	q.pending = append(q.pending, args)
	if !q.running {
		q.running = true
		go q.loop()
	}
	return nil
}

func (q *playQueue) stop() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.clearLocked()
}

func (q *playQueue) clearLocked() error {
	q.pending = nil
	if q.current == nil {
		return nil
	}
	err := q.current.Kill()
	q.current = nil
	return err
}

func (q *playQueue) loop() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.idle.Broadcast()
			q.mu.Unlock()
			return
		}
		args := q.pending[0]
		q.pending = q.pending[1:]
		p, err := q.start(args)
		if err != nil {
			q.mu.Unlock()
			logrus.WithError(err).WithField("backend", Name).Warn("Failed to start say")
			continue
		}
		q.current = p
		q.mu.Unlock()

		// A killed process exits with an error; that is how stop works.
		_ = p.Wait()

		q.mu.Lock()
		if q.current == p {
			q.current = nil
		}
		q.mu.Unlock()
	}
}

// wait blocks until the queue has drained.
func (q *playQueue) wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.running {
		q.idle.Wait()
	}
}
