package core

import (
	"sync"
	"time"

	"github.com/spaghettifunk/morphix/engine/containers"
)

type StatusLevel uint8

const (
	StatusInfo StatusLevel = iota
	StatusError
)

func (l StatusLevel) String() string {
	if l == StatusError {
		return "error"
	}
	return "info"
}

// Status is one user-facing message, the equivalent of the on-screen text line.
type Status struct {
	Message string
	Level   StatusLevel
	Target  string
	At      time.Time
}

// StatusBoard is the status text sink. It keeps the most recent messages and
// broadcasts each one as EVENT_CODE_STATUS.
type StatusBoard struct {
	mu      sync.Mutex
	history *containers.RingQueue[Status]
	events  *EventSystem
	now     func() time.Time
	errors  int
}

func NewStatusBoard(capacity int, events *EventSystem) *StatusBoard {
	return &StatusBoard{
		history: containers.NewRingQueue[Status](capacity),
		events:  events,
		now:     time.Now,
	}
}

func (sb *StatusBoard) Info(target, msg string) {
	sb.Report(Status{Message: msg, Level: StatusInfo, Target: target})
}

func (sb *StatusBoard) Error(target, msg string) {
	sb.Report(Status{Message: msg, Level: StatusError, Target: target})
}

func (sb *StatusBoard) Report(s Status) {
	if s.At.IsZero() {
		s.At = sb.now()
	}
	sb.mu.Lock()
	sb.history.Push(s)
	if s.Level == StatusError {
		sb.errors++
	}
	sb.mu.Unlock()

	LogDebug("status [%s] %s", s.Level, s.Message)
	sb.events.Fire(EventContext{Type: EVENT_CODE_STATUS, Data: s})
}

// Current returns the latest message, if any was reported.
func (sb *StatusBoard) Current() (Status, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	items := sb.history.Items()
	if len(items) == 0 {
		return Status{}, false
	}
	return items[len(items)-1], true
}

func (sb *StatusBoard) History() []Status {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.history.Items()
}

// ErrorCount is the number of error-level messages reported so far.
func (sb *StatusBoard) ErrorCount() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.errors
}
