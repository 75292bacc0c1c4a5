package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Chatter/pkg/clock"
	"Chatter/pkg/config"
	"Chatter/pkg/engine"
	"Chatter/pkg/storage"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	mem   *storage.Memory
	clock *clock.Manual
}

func newHarness() *harness {
	return &harness{mem: storage.NewMemory(), clock: clock.NewManual(epoch)}
}

// run executes one CLI invocation against the shared store and returns stdout.
func (h *harness) run(t *testing.T, args ...string) string {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newCLI(&out, &errOut,
		engine.WithAdapter(h.mem),
		engine.WithClock(h.clock),
		engine.WithLogger(zerolog.Nop()),
	)
	err := app.Run(append([]string{"chatter", "--backend", "memory"}, args...))
	require.NoError(t, err, errOut.String())
	return out.String()
}

func TestCLIContactAndChatFlow(t *testing.T) {
	h := newHarness()

	bob := strings.TrimSpace(h.run(t, "contacts", "add", "--name", "Bob", "--avatar", "B"))
	require.NotEmpty(t, bob)
	assert.Contains(t, h.run(t, "contacts", "list"), "Bob")

	msgID := strings.TrimSpace(h.run(t, "chat", "send", bob, "hello", "there"))
	require.NotEmpty(t, msgID)

	convID := strings.TrimSpace(h.run(t, "chat", "open", bob))
	show := h.run(t, "chat", "show", convID)
	assert.Contains(t, show, "hello there")
	assert.Contains(t, show, "expires")

	assert.Contains(t, h.run(t, "chat", "react", convID, msgID, "👍"), "👍×1")
	h.run(t, "chat", "edit", convID, msgID, "edited", "text")
	show = h.run(t, "chat", "show", convID)
	assert.Contains(t, show, "edited text")
	assert.NotContains(t, show, "expires")

	assert.Contains(t, h.run(t, "chat", "settings", "--auto-delete=false", convID), "auto_delete=false")
	assert.Contains(t, h.run(t, "chat", "list"), "off")

	h.run(t, "contacts", "remove", bob)
	assert.NotContains(t, h.run(t, "chat", "list"), convID)
}

func TestCLIExpiredMessageIsGoneOnNextRun(t *testing.T) {
	h := newHarness()
	bob := strings.TrimSpace(h.run(t, "contacts", "add", "--name", "Bob"))
	h.run(t, "chat", "send", bob, "vanishing")
	convID := strings.TrimSpace(h.run(t, "chat", "open", bob))

	h.clock.Advance(6 * time.Second)
	assert.NotContains(t, h.run(t, "chat", "show", convID), "vanishing")
}

func TestCLIRejectsUnknownContact(t *testing.T) {
	h := newHarness()
	var out, errOut bytes.Buffer
	app := newCLI(&out, &errOut, engine.WithAdapter(h.mem), engine.WithClock(h.clock), engine.WithLogger(zerolog.Nop()))
	err := app.Run([]string{"chatter", "chat", "open", "ghost"})
	assert.ErrorContains(t, err, "contact not found")
}

func TestCLIMetricsAndBackends(t *testing.T) {
	h := newHarness()
	assert.Contains(t, h.run(t, "metrics"), "chatter_expiry_scheduled_total")
	backends := h.run(t, "backends")
	for _, id := range []string{"memory", "sqlite", "pebble"} {
		assert.Contains(t, backends, id)
	}
}

func TestEventListenerEmitsJSONLines(t *testing.T) {
	out := &syncBuffer{}
	a := NewApp(out)
	c := clock.NewManual(epoch)
	cfg := config.Default()
	cfg.Storage.Backend = "memory"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.startup(ctx, cfg, zerolog.Nop(), engine.WithClock(c), engine.WithLogger(zerolog.Nop())))
	defer a.shutdown()
	a.startEventListener(ctx)

	bob := a.AddContact("Bob", "", "")
	m, err := a.SendMessage(bob.ID, "hi")
	require.NoError(t, err)
	c.Advance(5 * time.Second)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"event":"message-deleted"`)
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), `"event":"contacts"`)
	assert.Contains(t, out.String(), m.ID)
}
