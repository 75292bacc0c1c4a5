// Package expiry schedules the automatic deletion of ephemeral messages.
//
// The scheduler keeps one entry per message id. An entry is pending from
// Schedule until its timer fires or it is cancelled; once the timer fires the
// entry turns to firing, the deletion runs, and the entry is forgotten. A
// cancellation that arrives while the entry is firing is ignored: the
// deletion is already under way and a message cannot be un-deleted.
package expiry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"Chatter/pkg/clock"
	"Chatter/pkg/metrics"
)

// Status is the scheduler-local state of a message.
type Status int

const (
	// StatusNone means the scheduler holds nothing for the id.
	StatusNone Status = iota
	// StatusPending means a timer is armed and can still be cancelled.
	StatusPending
	// StatusFiring means the timer fired and the deletion is in flight.
	StatusFiring
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFiring:
		return "firing"
	default:
		return "none"
	}
}

// Deleter removes a message from its conversation. Deleting an id that is
// already gone must be a no-op.
type Deleter interface {
	DeleteMessage(conversationID, messageID string)
}

// DeleterFunc adapts a function to Deleter.
type DeleterFunc func(conversationID, messageID string)

func (f DeleterFunc) DeleteMessage(conversationID, messageID string) { f(conversationID, messageID) }

type entry struct {
	conversationID string
	timer          clock.Timer
	status         Status
}

// Scheduler owns the expiry timers.
type Scheduler struct {
	mu      sync.Mutex
	clock   clock.Clock
	deleter Deleter
	entries map[string]*entry
	stopped bool

	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithMetrics records timer activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates a scheduler driven by c. Bind must be called before any timer fires.
func New(c clock.Clock, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:   c,
		entries: make(map[string]*entry),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind sets the component deletions are delegated to.
func (s *Scheduler) Bind(d Deleter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleter = d
}

// Schedule arms a deletion of messageID after delay. An existing pending
// timer for the id is replaced. Scheduling an id whose deletion is already
// firing does nothing.
func (s *Scheduler) Schedule(messageID, conversationID string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if old, ok := s.entries[messageID]; ok {
		if old.status == StatusFiring {
			s.log.Debug().Str("message_id", messageID).Msg("expiry_schedule_ignored_firing")
			return
		}
		old.timer.Stop()
		s.dec()
	}

	e := &entry{conversationID: conversationID, status: StatusPending}
	s.entries[messageID] = e
	e.timer = s.clock.AfterFunc(delay, func() { s.fire(messageID, e) })

	if s.metrics != nil {
		s.metrics.ExpiryScheduled.Inc()
		s.metrics.ExpiryPending.Inc()
	}
	s.log.Debug().
		Str("message_id", messageID).
		Str("conversation_id", conversationID).
		Dur("delay", delay).
		Msg("expiry_scheduled")
}

// Cancel clears a pending timer for messageID and reports whether one was
// cleared. It is a no-op when nothing is scheduled or the deletion is already firing.
func (s *Scheduler) Cancel(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[messageID]
	if !ok || e.status != StatusPending {
		return false
	}
	e.timer.Stop()
	delete(s.entries, messageID)
	s.dec()
	if s.metrics != nil {
		s.metrics.ExpiryCancelled.Inc()
	}
	s.log.Debug().Str("message_id", messageID).Msg("expiry_cancelled")
	return true
}

// Status returns the scheduler-local state of messageID.
func (s *Scheduler) Status(messageID string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[messageID]; ok {
		return e.status
	}
	return StatusNone
}

// Pending reports whether messageID has a timer that can still be cancelled.
func (s *Scheduler) Pending(messageID string) bool {
	return s.Status(messageID) == StatusPending
}

// Len is the number of ids the scheduler currently tracks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels every pending timer and refuses new ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, e := range s.entries {
		if e.status != StatusPending {
			continue
		}
		e.timer.Stop()
		delete(s.entries, id)
		s.dec()
	}
}

func (s *Scheduler) fire(messageID string, e *entry) {
	s.mu.Lock()
	// The entry may have been cancelled or replaced after the timer was
	// already on its way; only the entry currently registered may fire.
	if cur, ok := s.entries[messageID]; !ok || cur != e || e.status != StatusPending {
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.ExpirySkipped.Inc()
		}
		return
	}
	e.status = StatusFiring
	s.dec()
	deleter := s.deleter
	s.mu.Unlock()

	s.log.Debug().
		Str("message_id", messageID).
		Str("conversation_id", e.conversationID).
		Msg("expiry_fired")
	if deleter != nil {
		deleter.DeleteMessage(e.conversationID, messageID)
	} else {
		s.log.Warn().Str("message_id", messageID).Msg("expiry_fired_without_deleter")
	}

	s.mu.Lock()
	if cur, ok := s.entries[messageID]; ok && cur == e {
		delete(s.entries, messageID)
	}
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ExpiryFired.Inc()
	}
}

func (s *Scheduler) dec() {
	if s.metrics != nil {
		s.metrics.ExpiryPending.Dec()
	}
}
