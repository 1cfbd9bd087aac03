package eventloop

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cryguy/bridge/internal/core"
)

// minInterval keeps a zero-delay setInterval from spinning Drain.
const minInterval = 10 * time.Millisecond

// FireScript is the call Drain evaluates for a due timer. The JS side keeps
// the callbacks; Go only schedules.
const FireScript = "__bridge_timers.fire(%d)"

type timer struct {
	due   time.Time
	every time.Duration // zero for one-shot timers
}

// EventLoop schedules the timers foreign code creates with setTimeout and
// setInterval. Nothing runs on its own: timers fire only inside Drain, which
// the bridge calls while it waits for a promise.
type EventLoop struct {
	mu     sync.Mutex
	timers map[int]*timer
	nextID int
	log    *zap.Logger
}

// New creates an EventLoop that reports exceptions thrown by timer callbacks
// to log. A nil log discards them.
func New(log *zap.Logger) *EventLoop {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventLoop{timers: make(map[int]*timer), log: log}
}

// RegisterTimer schedules a timer delay from now and returns its id. Ids
// start at 1 so that 0 can mean "no timer" on the JS side.
func (el *EventLoop) RegisterTimer(delay time.Duration, repeat bool) int {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.nextID++
	t := &timer{due: time.Now().Add(delay)}
	if repeat {
		t.every = max(delay, minInterval)
	}
	el.timers[el.nextID] = t
	return el.nextID
}

// ClearTimer cancels a timer. Unknown ids are ignored.
func (el *EventLoop) ClearTimer(id int) {
	el.mu.Lock()
	defer el.mu.Unlock()
	delete(el.timers, id)
}

// earliest returns the id and due time of the next timer, or 0.
func (el *EventLoop) earliest() (int, time.Time) {
	el.mu.Lock()
	defer el.mu.Unlock()
	var (
		id  int
		due time.Time
	)
	for tid, t := range el.timers {
		if id == 0 || t.due.Before(due) || (t.due.Equal(due) && tid < id) {
			id, due = tid, t.due
		}
	}
	return id, due
}

// NextDue reports when the earliest timer is due. ok is false when no
// timer is scheduled.
func (el *EventLoop) NextDue() (due time.Time, ok bool) {
	id, due := el.earliest()
	return due, id != 0
}

// take consumes a due timer: one-shots are removed, intervals rescheduled.
// It reports false if the timer was cleared in the meantime.
func (el *EventLoop) take(id int) bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	t, ok := el.timers[id]
	if !ok {
		return false
	}
	if t.every > 0 {
		t.due = time.Now().Add(t.every)
	} else {
		delete(el.timers, id)
	}
	return true
}

// Drain fires timers in due order until none remain or the next one falls
// after deadline. Every callback is followed by a microtask checkpoint.
// Must run on the goroutine that owns rt.
func (el *EventLoop) Drain(rt core.JSRuntime, deadline time.Time) {
	for {
		id, due := el.earliest()
		if id == 0 || due.After(deadline) {
			return
		}
		if wait := time.Until(due); wait > 0 {
			time.Sleep(wait)
		}
		if !el.take(id) {
			continue
		}
		if err := rt.Eval(fmt.Sprintf(FireScript, id)); err != nil {
			el.log.Warn("timer callback threw", zap.Int("timer", id), zap.Error(err))
		}
		rt.RunMicrotasks()
	}
}

// HasPending reports whether any timer is scheduled.
func (el *EventLoop) HasPending() bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.timers) > 0
}

// Reset drops every timer.
func (el *EventLoop) Reset() {
	el.mu.Lock()
	defer el.mu.Unlock()
	clear(el.timers)
	el.nextID = 0
}
