// Package engine assembles the chat core: storage backend, stores, expiry
// scheduler, typing notifier, metrics and the change hub.
package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"Chatter/pkg/chat"
	"Chatter/pkg/cipher"
	"Chatter/pkg/clock"
	"Chatter/pkg/config"
	"Chatter/pkg/core"
	"Chatter/pkg/db"
	"Chatter/pkg/expiry"
	"Chatter/pkg/logging"
	"Chatter/pkg/metrics"
	"Chatter/pkg/models"
	"Chatter/pkg/storage"
	"Chatter/pkg/typing"
)

// Engine owns every core component. The Presentation Layer reads through it
// and subscribes to its hub; it never mutates returned values.
type Engine struct {
	Config        *config.Config
	Clock         clock.Clock
	Hub           *core.Hub
	Metrics       *metrics.Metrics
	Backends      *core.BackendManager
	Scheduler     *expiry.Scheduler
	Typing        *typing.Notifier
	Contacts      *chat.ContactStore
	Conversations *chat.ConversationStore

	backend core.Backend
	log     zerolog.Logger
}

type options struct {
	clock   clock.Clock
	logger  *zerolog.Logger
	adapter storage.Adapter
	codec   cipher.Codec
}

// Option customises New.
type Option func(*options)

// WithClock replaces the wall clock, typically with a clock.Manual in tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger uses l for every component instead of the per-component log files.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// WithAdapter bypasses the configured backend.
func WithAdapter(a storage.Adapter) Option {
	return func(o *options) { o.adapter = a }
}

// WithCodec replaces the body codec.
func WithCodec(c cipher.Codec) Option {
	return func(o *options) { o.codec = c }
}

// RegisterDefaultBackends registers the memory, sqlite and pebble backends.
func RegisterDefaultBackends(bm *core.BackendManager) {
	bm.RegisterBackend(core.BackendInfo{
		ID:          "memory",
		Name:        "Memory",
		Description: "Keeps everything in process memory",
	}, func(string) (core.Backend, error) {
		return core.NopCloser(storage.NewMemory()), nil
	})

	bm.RegisterBackend(core.BackendInfo{
		ID:          "sqlite",
		Name:        "SQLite",
		Description: "Single-file SQLite database",
		Durable:     true,
	}, func(path string) (core.Backend, error) {
		if path == "" {
			p, err := db.DefaultSQLitePath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		s, err := db.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	})

	bm.RegisterBackend(core.BackendInfo{
		ID:          "pebble",
		Name:        "Pebble",
		Description: "Pebble key/value directory",
		Durable:     true,
	}, func(path string) (core.Backend, error) {
		if path == "" {
			p, err := db.DefaultPebbleDir()
			if err != nil {
				return nil, err
			}
			path = p
		}
		p, err := db.OpenPebble(path)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// New validates cfg, opens the storage backend, loads persisted state and
// re-arms the expiry of ephemeral messages found there.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{clock: clock.Real(), codec: cipher.Base64{}}
	for _, opt := range opts {
		opt(&o)
	}

	logFor := func(component string) zerolog.Logger {
		if o.logger != nil {
			return o.logger.With().Str("component", component).Logger()
		}
		return logging.MustGet(component, logging.Options{
			Level:  cfg.Log.Level,
			Dir:    cfg.Log.Dir,
			Pretty: cfg.Log.Pretty,
		})
	}

	e := &Engine{
		Config:   cfg,
		Clock:    o.clock,
		Hub:      core.NewHub(),
		Metrics:  metrics.New(),
		Backends: core.NewBackendManager(),
		log:      logFor("engine"),
	}
	RegisterDefaultBackends(e.Backends)

	if o.adapter != nil {
		e.backend = core.NopCloser(o.adapter)
	} else {
		b, err := e.Backends.Open(cfg.Storage.Backend, cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		e.backend = b
	}

	e.Scheduler = expiry.New(o.clock,
		expiry.WithLogger(logFor("expiry")),
		expiry.WithMetrics(e.Metrics),
	)
	e.Typing = typing.NewNotifier(o.clock, cfg.Chat.TypingTimeout, e.Hub)

	chatLog := logFor("chat")
	e.Conversations = chat.NewConversationStore(chat.ConversationOptions{
		SelfID:    cfg.User.ID,
		Adapter:   e.backend,
		Scheduler: e.Scheduler,
		Clock:     o.clock,
		Codec:     o.codec,
		Publisher: e.Hub,
		Typing:    e.Typing,
		DefaultSettings: models.ConversationSettings{
			AutoDeleteEnabled: cfg.Chat.AutoDeleteEnabled,
			AutoDeleteDelay:   cfg.Chat.AutoDeleteDelay,
		},
		Logger:  chatLog,
		Metrics: e.Metrics,
	})
	e.Contacts = chat.NewContactStore(chat.ContactOptions{
		Adapter:   e.backend,
		Clock:     o.clock,
		Cascade:   e.Conversations,
		Publisher: e.Hub,
		Logger:    chatLog,
		Metrics:   e.Metrics,
	})

	scheduled, expired := e.Conversations.ResumeExpiry()
	e.log.Info().
		Str("backend", cfg.Storage.Backend).
		Int("contacts", e.Contacts.Len()).
		Int("conversations", e.Conversations.Len()).
		Int("expiry_resumed", scheduled).
		Int("expiry_overdue", expired).
		Msg("engine_started")
	return e, nil
}

// Subscribe registers a listener for committed changes.
func (e *Engine) Subscribe(l core.Listener) (unsubscribe func()) {
	return e.Hub.Subscribe(l)
}

// Snapshot returns copies of the current contacts and conversations.
func (e *Engine) Snapshot() core.Snapshot {
	return core.Snapshot{
		Contacts:      e.Contacts.Contacts(),
		Conversations: e.Conversations.Conversations(),
	}
}

// Send posts a text message from the local user to contactID, opening the
// conversation if needed. Blocked and unknown contacts are refused.
func (e *Engine) Send(contactID, body string) (models.Message, error) {
	if _, ok := e.Contacts.Contact(contactID); !ok {
		return models.Message{}, fmt.Errorf("contact not found: %s", contactID)
	}
	if e.Contacts.IsBlocked(contactID) {
		return models.Message{}, fmt.Errorf("contact is blocked: %s", contactID)
	}
	conv, ok := e.Conversations.GetOrCreate(contactID)
	if !ok {
		return models.Message{}, fmt.Errorf("cannot open conversation with %s", contactID)
	}
	msg, ok := e.Conversations.AppendMessage(conv.ID, e.Config.User.ID, body, models.MessageTypeText, models.Metadata{})
	if !ok {
		return models.Message{}, fmt.Errorf("conversation disappeared: %s", conv.ID)
	}
	return msg, nil
}

// Close stops pending timers and closes the storage backend. Ephemeral
// messages still pending are picked up again by the next New.
func (e *Engine) Close() error {
	e.Scheduler.Stop()
	e.Typing.Stop()
	if err := e.backend.Close(); err != nil {
		return fmt.Errorf("failed to close backend: %w", err)
	}
	e.log.Info().Msg("engine_stopped")
	return nil
}
