/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import (
	"sync"
	"sync/atomic"
	"time"
)

// Timer is a cancellation handle for a scheduled callback.
type Timer interface {
	// Stop prevents any further runs of the callback. It reports whether
	// the timer was still live.
	Stop() bool
}

// Scheduler defers work. Implementations must run callbacks one at a time,
// never concurrently with each other or with the controller's other callers.
type Scheduler interface {
	After(d time.Duration, fn func()) Timer
	Every(d time.Duration, fn func()) Timer
}

// Loop is a Scheduler backed by real timers. Fired callbacks are not run
// directly; they are queued on Tasks for the owning goroutine to execute.
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once

	mu     sync.Mutex
	timers map[*loopTimer]struct{}
}

type loopTimer struct {
	loop    *Loop
	stopped atomic.Bool
	quit    chan struct{}
	timer   *time.Timer
}

func NewLoop(buffer int) *Loop {
	return &Loop{
		tasks:  make(chan func(), buffer),
		done:   make(chan struct{}),
		timers: make(map[*loopTimer]struct{}),
	}
}

// Tasks yields callbacks whose timers have fired. Drain it from a single goroutine.
func (l *Loop) Tasks() <-chan func() {
	return l.tasks
}

func (l *Loop) After(d time.Duration, fn func()) Timer {
	t := l.newTimer()

	t.timer = time.AfterFunc(d, func() {
		l.post(t, func() {
			if t.stopped.Swap(true) {
				return
			}
			l.untrack(t)
			fn()
		})
	})

	return t
}

func (l *Loop) Every(d time.Duration, fn func()) Timer {
	t := l.newTimer()

	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.post(t, func() {
					if t.stopped.Load() {
						return
					}
					fn()
				})
			case <-t.quit:
				return
			case <-l.done:
				return
			}
		}
	}()

	return t
}

// Close stops every outstanding timer. Queued tasks for those timers become no-ops.
func (l *Loop) Close() {
	l.once.Do(func() {
		close(l.done)

		l.mu.Lock()
		timers := make([]*loopTimer, 0, len(l.timers))
		for t := range l.timers {
			timers = append(timers, t)
		}
		l.mu.Unlock()

		for _, t := range timers {
			t.Stop()
		}
	})
}

func (l *Loop) newTimer() *loopTimer {
	t := &loopTimer{
		loop: l,
		quit: make(chan struct{}),
	}

	l.mu.Lock()
	l.timers[t] = struct{}{}
	l.mu.Unlock()

	return t
}

func (l *Loop) untrack(t *loopTimer) {
	l.mu.Lock()
	delete(l.timers, t)
	l.mu.Unlock()
}

func (l *Loop) post(t *loopTimer, task func()) {
	select {
	case l.tasks <- task:
	case <-t.quit:
	case <-l.done:
	}
}

func (t *loopTimer) Stop() bool {
	if t.stopped.Swap(true) {
		return false
	}

	close(t.quit)
	if t.timer != nil {
		t.timer.Stop()
	}
	t.loop.untrack(t)

	return true
}
