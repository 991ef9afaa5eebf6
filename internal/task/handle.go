// Package task provides explicit completion handles for work scheduled off
// the owning goroutine.
//
// A [Handle] exposes two signals: Started closes when the work begins and
// Done closes when it has finished. [Handle.DontCompleteUntil] adds a soft
// dependency: the dependent handle completes only after the dependency has
// started, not necessarily finished.
package task

import (
	"context"
	"sync"
)

type Handle struct {
	started chan struct{}
	done    chan struct{}

	deps         []*Handle
	completeOnce sync.Once
}

// New returns a handle with no body. It counts as started immediately and
// completes when Complete is called and all dependencies have started.
func New() *Handle {
	h := &Handle{
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
	close(h.started)
	return h
}

// Launch runs fn on its own goroutine.
func Launch(fn func()) *Handle {
	h := &Handle{
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go func() {
		close(h.started)
		fn()
		h.Complete()
	}()
	return h
}

// Completed returns a handle that has already finished.
func Completed() *Handle {
	h := New()
	h.Complete()
	return h
}

// DontCompleteUntil makes h wait for dep to start before completing. Must be
// called before Complete, from the goroutine that owns h.
func (h *Handle) DontCompleteUntil(dep *Handle) {
	if dep == nil {
		return
	}
	h.deps = append(h.deps, dep)
}

// Complete marks the body of h finished. It never blocks.
func (h *Handle) Complete() {
	h.completeOnce.Do(func() {
		pending := h.deps[:0:0]
		for _, d := range h.deps {
			select {
			case <-d.started:
			default:
				pending = append(pending, d)
			}
		}
		if len(pending) == 0 {
			close(h.done)
			return
		}
		go func() {
			for _, d := range pending {
				<-d.started
			}
			close(h.done)
		}()
	})
}

func (h *Handle) Started() <-chan struct{} { return h.started }

func (h *Handle) Done() <-chan struct{} { return h.done }

// Finished reports completion without blocking.
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) Wait() { <-h.done }

func (h *Handle) WaitContext(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
