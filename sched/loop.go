// Package sched provides the single-threaded cooperative scheduler the
// pagination engine runs on. Tasks execute one at a time on the goroutine
// that drives the loop; other goroutines hand work over with Post or Do.
package sched

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Loop is a task queue ordered by due time. Tasks with equal due times run
// in submission order.
type Loop struct {
	mu      sync.Mutex
	queue   taskQueue
	seq     uint64
	virtual bool
	vnow    time.Time
	wake    chan struct{}
	done    chan struct{}
	closed  bool
}

// Timer is a handle to a delayed task.
type Timer struct {
	l *Loop
	t *task
}

// Stop prevents the task from running. It reports whether the task was
// still pending.
func (tm *Timer) Stop() bool {
	if tm == nil || tm.t == nil {
		return false
	}
	tm.l.mu.Lock()
	defer tm.l.mu.Unlock()
	pending := !tm.t.cancelled && !tm.t.ran
	tm.t.cancelled = true
	return pending
}

// New returns a loop driven by the wall clock; call Run to execute tasks.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1), done: make(chan struct{})}
}

// NewVirtual returns a loop with a virtual clock starting at start. Time
// only moves when Drain or Advance reaches a delayed task.
func NewVirtual(start time.Time) *Loop {
	l := New()
	l.virtual = true
	l.vnow = start
	return l
}

// Now returns the loop's notion of the current time.
func (l *Loop) Now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nowLocked()
}

func (l *Loop) nowLocked() time.Time {
	if l.virtual {
		return l.vnow
	}
	return time.Now()
}

// Post schedules fn to run as soon as possible.
func (l *Loop) Post(fn func()) {
	l.After(0, fn)
}

// After schedules fn to run once d has elapsed. Tasks submitted to a closed
// loop are dropped.
func (l *Loop) After(d time.Duration, fn func()) *Timer {
	if d < 0 {
		d = 0
	}
	l.mu.Lock()
	t := &task{due: l.nowLocked().Add(d), seq: l.seq, fn: fn}
	l.seq++
	if !l.closed {
		heap.Push(&l.queue, t)
	}
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return &Timer{l: l, t: t}
}

// Do runs fn on the loop and waits for it to finish. It returns ErrClosed
// if the loop is closed before fn runs, or ctx.Err() if ctx ends first.
// Once fn has started, Do waits for it even if the loop closes.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	started := false
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	l.Post(func() {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return
		}
		started = true
		l.mu.Unlock()
		fn()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		l.mu.Lock()
		running := started
		l.mu.Unlock()
		if !running {
			return ErrClosed
		}
		<-done
		return nil
	}
}

// Close drops every pending task and makes Run return. It is safe to call
// more than once.
func (l *Loop) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
	l.queue = nil
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of pending tasks, including stopped timers that
// have not been discarded yet.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Run executes tasks as they fall due until ctx is done or the loop is
// closed. The loop is closed when Run returns. It must not be used on a
// virtual loop.
func (l *Loop) Run(ctx context.Context) error {
	if l.virtual {
		return ErrVirtual
	}
	defer l.Close()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return nil
		}
		var wait time.Duration = -1
		var next *task
		if len(l.queue) > 0 {
			head := l.queue[0]
			if d := time.Until(head.due); d > 0 {
				wait = d
			} else {
				next = heap.Pop(&l.queue).(*task)
			}
		}
		l.mu.Unlock()

		if next != nil {
			l.run(next)
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}

		var timeout <-chan time.Time
		if wait >= 0 {
			timer.Reset(wait)
			timeout = timer.C
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		case <-timeout:
		}
		if wait >= 0 && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
}

// Drain runs every pending task on a virtual loop, jumping the clock
// forward to each delayed task, until the queue is empty. It returns the
// number of tasks run.
func (l *Loop) Drain() int {
	return l.runUntil(time.Time{}, false)
}

// Advance moves the virtual clock forward by d, running every task that
// falls due on the way.
func (l *Loop) Advance(d time.Duration) int {
	l.mu.Lock()
	deadline := l.vnow.Add(d)
	l.mu.Unlock()
	n := l.runUntil(deadline, true)
	l.mu.Lock()
	if l.vnow.Before(deadline) {
		l.vnow = deadline
	}
	l.mu.Unlock()
	return n
}

func (l *Loop) runUntil(deadline time.Time, bounded bool) int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 || (bounded && l.queue[0].due.After(deadline)) {
			l.mu.Unlock()
			return n
		}
		t := heap.Pop(&l.queue).(*task)
		if t.due.After(l.vnow) {
			l.vnow = t.due
		}
		l.mu.Unlock()
		if l.run(t) {
			n++
		}
	}
}

func (l *Loop) run(t *task) bool {
	l.mu.Lock()
	if t.cancelled {
		l.mu.Unlock()
		return false
	}
	t.ran = true
	l.mu.Unlock()
	t.fn()
	return true
}

type task struct {
	due       time.Time
	seq       uint64
	fn        func()
	cancelled bool
	ran       bool
}

type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x any) { *q = append(*q, x.(*task)) }

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}
