// Package scheduler runs delayed and repeating callbacks on behalf of game
// entities. Callbacks run from RunDue, never concurrently with each other.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ktgames/mining/internal/clock"
)

// Token identifies a scheduled task.
type Token uint64

// Owner groups tasks belonging to one entity so they can be cancelled together.
type Owner string

type task struct {
	token    Token
	owner    Owner
	due      time.Time
	interval time.Duration
	once     func()
	repeat   func() bool
}

// Scheduler keeps pending tasks ordered by due time.
type Scheduler struct {
	mu     sync.Mutex
	clock  clock.Clock
	next   Token
	tasks  map[Token]*task
	owners map[Owner]map[Token]struct{}

	// serializes RunDue so callbacks keep the single update thread model
	runMu sync.Mutex
}

// New creates a scheduler reading time from c.
func New(c clock.Clock) *Scheduler {
	return &Scheduler{
		clock:  c,
		tasks:  make(map[Token]*task),
		owners: make(map[Owner]map[Token]struct{}),
	}
}

// Now returns the scheduler's current time.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// After runs fn once, delay from now.
func (s *Scheduler) After(owner Owner, delay time.Duration, fn func()) Token {
	return s.add(&task{owner: owner, due: s.clock.Now().Add(delay), once: fn})
}

// Every runs fn each interval until it returns false or the task is cancelled.
// A non-positive interval is treated as one nanosecond.
func (s *Scheduler) Every(owner Owner, interval time.Duration, fn func() bool) Token {
	if interval <= 0 {
		interval = time.Nanosecond
	}
	return s.add(&task{owner: owner, due: s.clock.Now().Add(interval), interval: interval, repeat: fn})
}

func (s *Scheduler) add(t *task) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	t.token = s.next
	s.tasks[t.token] = t

	set, ok := s.owners[t.owner]
	if !ok {
		set = make(map[Token]struct{})
		s.owners[t.owner] = set
	}
	set[t.token] = struct{}{}
	return t.token
}

// Cancel removes a pending task. It reports whether the task was still pending.
func (s *Scheduler) Cancel(token Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(token)
}

// CancelOwner removes every pending task of owner and returns how many there were.
func (s *Scheduler) CancelOwner(owner Owner) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for token := range s.owners[owner] {
		if s.removeLocked(token) {
			n++
		}
	}
	delete(s.owners, owner)
	return n
}

func (s *Scheduler) removeLocked(token Token) bool {
	t, ok := s.tasks[token]
	if !ok {
		return false
	}
	delete(s.tasks, token)
	if set, ok := s.owners[t.owner]; ok {
		delete(set, token)
		if len(set) == 0 {
			delete(s.owners, t.owner)
		}
	}
	return true
}

// Pending returns the number of scheduled tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// PendingFor returns the number of scheduled tasks of owner.
func (s *Scheduler) PendingFor(owner Owner) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.owners[owner])
}

// RunDue runs every task due at the current time, earliest first, and returns
// how many callbacks ran. Tasks scheduled by callbacks run in a later call.
// A repeating task fires at most once per call.
func (s *Scheduler) RunDue() int {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	now := s.clock.Now()

	s.mu.Lock()
	due := make([]*task, 0)
	for _, t := range s.tasks {
		if !t.due.After(now) {
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].token < due[j].token
		}
		return due[i].due.Before(due[j].due)
	})

	ran := 0
	for _, t := range due {
		// an earlier callback in this batch may have cancelled it
		s.mu.Lock()
		_, pending := s.tasks[t.token]
		if pending && t.once != nil {
			s.removeLocked(t.token)
		}
		s.mu.Unlock()
		if !pending {
			continue
		}

		ran++
		if t.once != nil {
			t.once()
			continue
		}

		keep := t.repeat()

		s.mu.Lock()
		if _, still := s.tasks[t.token]; still {
			if keep {
				t.due = t.due.Add(t.interval)
				if !t.due.After(now) {
					t.due = now.Add(t.interval)
				}
			} else {
				s.removeLocked(t.token)
			}
		}
		s.mu.Unlock()
	}
	return ran
}

// Run calls RunDue every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunDue()
		}
	}
}
