// Package testutil provides deterministic fakes for the transport and timer
// collaborators so the record core can be tested without sockets or sleeps.
package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/driftstream/driftstream-go/connection"
)

// Scheduler is a manually advanced connection.Scheduler. Time only moves
// when a test calls Advance, which makes every timeout test deterministic.
type Scheduler struct {
	mu     sync.Mutex
	now    time.Duration
	nextID int
	timers []*fakeTimer
}

type fakeTimer struct {
	s       *Scheduler
	id      int
	at      time.Duration
	fn      func()
	stopped bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Schedule arms a callback d after the current fake time.
func (s *Scheduler) Schedule(d time.Duration, fn func()) connection.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t := &fakeTimer{s: s, id: s.nextID, at: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves fake time forward and fires every timer that becomes due, in
// deadline order. Callbacks run outside the scheduler lock so they may arm
// or stop other timers.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	now := s.now
	var due []*fakeTimer
	var kept []*fakeTimer
	for _, t := range s.timers {
		switch {
		case t.stopped:
		case t.at <= now:
			due = append(due, t)
		default:
			kept = append(kept, t)
		}
	}
	s.timers = kept
	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	s.mu.Unlock()

	for _, t := range due {
		// an earlier callback in this sweep may have stopped this timer
		s.mu.Lock()
		stopped := t.stopped
		s.mu.Unlock()
		if stopped {
			continue
		}
		t.fn()
	}
}

// Pending returns the number of armed, unexpired timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}
