package chat

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"Chatter/pkg/clock"
	"Chatter/pkg/core"
	"Chatter/pkg/expiry"
	"Chatter/pkg/metrics"
	"Chatter/pkg/models"
	"Chatter/pkg/storage"
	"Chatter/pkg/typing"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

var errDiskFull = errors.New("disk full")

// flakyAdapter fails every Save while failing is set.
type flakyAdapter struct {
	*storage.Memory
	mu      sync.Mutex
	failing bool
}

func (f *flakyAdapter) Save(key string, value []byte) error {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return errDiskFull
	}
	return f.Memory.Save(key, value)
}

func (f *flakyAdapter) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

type eventLog struct {
	mu     sync.Mutex
	events []core.ChangeEvent
}

func (l *eventLog) record(e core.ChangeEvent) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) ofType(t core.EventType) []core.ChangeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []core.ChangeEvent
	for _, e := range l.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	clock     *clock.Manual
	adapter   storage.Adapter
	scheduler *expiry.Scheduler
	metrics   *metrics.Metrics
	typing    *typing.Notifier
	convs     *ConversationStore
	contacts  *ContactStore
	events    *eventLog
}

func newFixture(t *testing.T, a storage.Adapter) *fixture {
	t.Helper()
	return newFixtureAt(t, a, clock.NewManual(epoch))
}

func newFixtureAt(t *testing.T, a storage.Adapter, c *clock.Manual) *fixture {
	t.Helper()
	if a == nil {
		a = storage.NewMemory()
	}
	f := &fixture{
		clock:   c,
		adapter: a,
		metrics: metrics.New(),
		events:  &eventLog{},
	}
	hub := core.NewHub()
	hub.Subscribe(f.events.record)

	f.scheduler = expiry.New(c, expiry.WithMetrics(f.metrics))
	f.typing = typing.NewNotifier(c, 0, hub)
	f.convs = NewConversationStore(ConversationOptions{
		SelfID:    "me",
		Adapter:   a,
		Scheduler: f.scheduler,
		Clock:     c,
		Publisher: hub,
		Typing:    f.typing,
		Logger:    zerolog.Nop(),
		Metrics:   f.metrics,
	})
	f.contacts = NewContactStore(ContactOptions{
		Adapter:   a,
		Clock:     c,
		Cascade:   f.convs,
		Publisher: hub,
		Logger:    zerolog.Nop(),
		Metrics:   f.metrics,
	})
	return f
}

func (f *fixture) conversationWith(t *testing.T, contactID string, settings models.ConversationSettings) models.Conversation {
	t.Helper()
	conv, ok := f.convs.GetOrCreate(contactID)
	require.True(t, ok)
	if settings.AutoDeleteDelay > 0 {
		require.True(t, f.convs.UpdateSettings(conv.ID, settings))
	}
	return conv
}

func ephemeral(d time.Duration) models.ConversationSettings {
	return models.ConversationSettings{AutoDeleteEnabled: true, AutoDeleteDelay: d}
}

func persistent() models.ConversationSettings {
	return models.ConversationSettings{AutoDeleteEnabled: false, AutoDeleteDelay: time.Second}
}
