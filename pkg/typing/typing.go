// Package typing tracks who is currently typing in each conversation.
package typing

import (
	"sync"
	"time"

	"Chatter/pkg/clock"
	"Chatter/pkg/core"
)

// DefaultTimeout is how long a typing indicator stays up without a refresh.
const DefaultTimeout = 3 * time.Second

type indicator struct {
	userID string
	timer  clock.Timer
}

// Notifier keeps at most one typer per conversation. No history is kept.
type Notifier struct {
	mu         sync.Mutex
	clock      clock.Clock
	timeout    time.Duration
	publisher  core.Publisher
	indicators map[string]*indicator
}

// NewNotifier creates a notifier. A non-positive timeout selects DefaultTimeout.
func NewNotifier(c clock.Clock, timeout time.Duration, p core.Publisher) *Notifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if p == nil {
		p = core.Discard{}
	}
	return &Notifier{
		clock:      c,
		timeout:    timeout,
		publisher:  p,
		indicators: make(map[string]*indicator),
	}
}

// SetTyping records userID as typing in conversationID and (re)starts the
// expiry timer for that conversation.
func (n *Notifier) SetTyping(conversationID, userID string) {
	n.mu.Lock()
	if old, ok := n.indicators[conversationID]; ok {
		old.timer.Stop()
	}
	ind := &indicator{userID: userID}
	n.indicators[conversationID] = ind
	ind.timer = n.clock.AfterFunc(n.timeout, func() { n.expire(conversationID, ind) })
	n.mu.Unlock()

	n.publisher.Publish(core.TypingEvent{ConversationID: conversationID, UserID: userID, IsTyping: true})
}

// Clear drops the indicator for conversationID if userID is the current
// typer. An empty userID clears whoever is typing.
func (n *Notifier) Clear(conversationID, userID string) {
	n.mu.Lock()
	ind, ok := n.indicators[conversationID]
	if !ok || (userID != "" && ind.userID != userID) {
		n.mu.Unlock()
		return
	}
	ind.timer.Stop()
	delete(n.indicators, conversationID)
	n.mu.Unlock()

	n.publisher.Publish(core.TypingEvent{ConversationID: conversationID, UserID: ind.userID, IsTyping: false})
}

// Typer returns who is typing in conversationID.
func (n *Notifier) Typer(conversationID string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ind, ok := n.indicators[conversationID]; ok {
		return ind.userID, true
	}
	return "", false
}

// Stop clears every indicator without publishing.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, ind := range n.indicators {
		ind.timer.Stop()
		delete(n.indicators, id)
	}
}

func (n *Notifier) expire(conversationID string, ind *indicator) {
	n.mu.Lock()
	if cur, ok := n.indicators[conversationID]; !ok || cur != ind {
		n.mu.Unlock()
		return
	}
	delete(n.indicators, conversationID)
	n.mu.Unlock()

	n.publisher.Publish(core.TypingEvent{ConversationID: conversationID, UserID: ind.userID, IsTyping: false})
}
