// Package schedule provides the cancellable timer tasks that drive WallCue's
// background behaviour: the expiration sweep, the auto-cycle loop, heartbeat
// emission, and the staggered snapshot exchanged on peer connect.
//
// Every task is an explicit goroutine + done channel + WaitGroup so teardown
// is deterministic: Stop() returns only once the callback can no longer fire.
// A stopped task never mutates a disposed store.
package schedule

import "time"

// Task is a running background job. Stop is idempotent and safe to call from
// any goroutine; it blocks until the task's goroutine has exited.
type Task interface {
	Stop()
}

// ─── periodic ────────────────────────────────────────────────────────────────

type periodic struct {
	done chan struct{}
	exit chan struct{}
}

// Periodic runs fn every interval until the returned Task is stopped.
// fn runs on the task's own goroutine; it must hand work that touches shared
// state off to the owner of that state (the store serializes internally).
func Periodic(interval time.Duration, fn func()) Task {
	p := &periodic{
		done: make(chan struct{}),
		exit: make(chan struct{}),
	}
	go func() {
		defer close(p.exit)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return p
}

func (p *periodic) Stop() {
	select {
	case <-p.done:
		// already stopped
	default:
		close(p.done)
	}
	<-p.exit
}

// ─── one-shot ────────────────────────────────────────────────────────────────

type oneShot struct {
	done chan struct{}
	exit chan struct{}
}

// After runs fn once after delay unless the returned Task is stopped first.
func After(delay time.Duration, fn func()) Task {
	o := &oneShot{
		done: make(chan struct{}),
		exit: make(chan struct{}),
	}
	go func() {
		defer close(o.exit)
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-o.done:
		case <-t.C:
			fn()
		}
	}()
	return o
}

func (o *oneShot) Stop() {
	select {
	case <-o.done:
	default:
		close(o.done)
	}
	<-o.exit
}

// ─── group ───────────────────────────────────────────────────────────────────

// Group tracks a set of tasks so a component can stop everything it started
// with one call during shutdown.
type Group struct {
	tasks []Task
}

// Add registers a task with the group and returns it unchanged.
func (g *Group) Add(t Task) Task {
	g.tasks = append(g.tasks, t)
	return t
}

// StopAll stops every registered task and clears the group.
func (g *Group) StopAll() {
	for _, t := range g.tasks {
		t.Stop()
	}
	g.tasks = nil
}
