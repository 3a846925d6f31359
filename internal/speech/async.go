package speech

import "sync"

// Async runs a slow announcer on a single background worker. While an
// announcement is in progress, at most one label waits; a newer label
// replaces the waiting one.
type Async struct {
	inner Announcer

	mu      sync.Mutex
	pending string
	waiting bool
	closed  bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewAsync starts the worker for inner.
func NewAsync(inner Announcer) *Async {
	a := &Async{
		inner: inner,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Announce queues label without blocking.
func (a *Async) Announce(label string) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.pending = label
	a.waiting = true
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Close stops the worker after the announcement in progress, drops any
// waiting label and closes the inner announcer.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.waiting = false
	a.mu.Unlock()

	close(a.done)
	a.wg.Wait()
	return Close(a.inner)
}

func (a *Async) run() {
	defer a.wg.Done()
	for {
		select {
		case <-a.done:
			return
		case <-a.wake:
		}

		a.mu.Lock()
		label, ok := a.pending, a.waiting
		a.waiting = false
		a.mu.Unlock()

		if ok {
			a.inner.Announce(label)
		}
	}
}
