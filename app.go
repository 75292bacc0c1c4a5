package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"Chatter/pkg/chat"
	"Chatter/pkg/config"
	"Chatter/pkg/core"
	"Chatter/pkg/engine"
	"Chatter/pkg/models"
)

// App is the presentation layer: every command goes through its methods.
type App struct {
	ctx         context.Context
	engine      *engine.Engine
	out         io.Writer
	eventCancel context.CancelFunc
	emitMu      sync.Mutex
	log         zerolog.Logger
}

// MessageView is a message with its body decoded for display.
type MessageView struct {
	models.Message
	Text string `json:"text"`
}

// NewApp creates a new App writing to out.
func NewApp(out io.Writer) *App {
	return &App{out: out, log: zerolog.Nop()}
}

// startup builds the engine. The context is kept for the event listener.
func (a *App) startup(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...engine.Option) error {
	a.ctx = ctx
	a.log = log
	e, err := engine.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to start chat engine: %w", err)
	}
	a.engine = e
	return nil
}

// startEventListener forwards committed changes to out as JSON lines until ctx ends.
func (a *App) startEventListener(ctx context.Context) {
	if a.eventCancel != nil {
		a.eventCancel()
	}
	eventCtx, cancel := context.WithCancel(ctx)
	a.eventCancel = cancel

	events := make(chan core.ChangeEvent, 64)
	unsubscribe := a.engine.Subscribe(func(e core.ChangeEvent) {
		select {
		case events <- e:
		case <-eventCtx.Done():
		}
	})

	go func() {
		defer unsubscribe()
		for {
			select {
			case event := <-events:
				switch e := event.(type) {
				case core.ContactsEvent:
					a.emit("contacts", e)
				case core.ConversationEvent:
					a.emit("conversation", e)
				case core.ConversationRemovedEvent:
					a.emit("conversation-removed", e)
				case core.MessageDeletedEvent:
					a.emit("message-deleted", e)
				case core.TypingEvent:
					a.emit("typing", e)
				case core.PersistWarningEvent:
					a.emit("persist-warning", map[string]string{"key": e.Key, "error": e.Err.Error()})
				}
			case <-eventCtx.Done():
				return
			}
		}
	}()
}

func (a *App) emit(name string, payload any) {
	line, err := json.Marshal(map[string]any{"event": name, "payload": payload})
	if err != nil {
		a.log.Warn().Err(err).Str("event", name).Msg("event_marshal_failed")
		return
	}
	a.emitMu.Lock()
	defer a.emitMu.Unlock()
	fmt.Fprintln(a.out, string(line))
}

// shutdown stops the listener and closes the engine.
func (a *App) shutdown() error {
	if a.eventCancel != nil {
		a.eventCancel()
	}
	if a.engine == nil {
		return nil
	}
	return a.engine.Close()
}

// --- Contacts ---

// GetContacts returns every contact, favorites first.
func (a *App) GetContacts() []models.Contact {
	return a.engine.Contacts.Contacts()
}

// AddContact creates a contact.
func (a *App) AddContact(name, avatar string, presence models.Presence) models.Contact {
	return a.engine.Contacts.Add(chat.ContactInput{DisplayName: name, AvatarGlyph: avatar, Presence: presence})
}

// UpdateContact applies a partial update.
func (a *App) UpdateContact(id string, patch chat.ContactPatch) (models.Contact, error) {
	a.engine.Contacts.Update(id, patch)
	return a.contact(id)
}

// RemoveContact deletes a contact and its direct conversation.
func (a *App) RemoveContact(id string) error {
	if _, err := a.contact(id); err != nil {
		return err
	}
	a.engine.Contacts.Remove(id)
	return nil
}

// ToggleFavorite flips a contact's favorite flag.
func (a *App) ToggleFavorite(id string) (models.Contact, error) {
	a.engine.Contacts.ToggleFavorite(id)
	return a.contact(id)
}

// ToggleBlocked flips a contact's blocked flag.
func (a *App) ToggleBlocked(id string) (models.Contact, error) {
	a.engine.Contacts.ToggleBlocked(id)
	return a.contact(id)
}

// SetPresence changes a contact's presence.
func (a *App) SetPresence(id string, p models.Presence) (models.Contact, error) {
	if !p.Valid() {
		return models.Contact{}, fmt.Errorf("unknown presence: %s", p)
	}
	a.engine.Contacts.SetPresence(id, p)
	return a.contact(id)
}

func (a *App) contact(id string) (models.Contact, error) {
	c, ok := a.engine.Contacts.Contact(id)
	if !ok {
		return models.Contact{}, fmt.Errorf("contact not found: %s", id)
	}
	return c, nil
}

// --- Conversations ---

// GetConversations returns conversations, most recently active first.
func (a *App) GetConversations() []models.Conversation {
	return a.engine.Conversations.Conversations()
}

// OpenChat returns the direct conversation with a contact, creating it on first use.
func (a *App) OpenChat(contactID string) (models.Conversation, error) {
	if _, err := a.contact(contactID); err != nil {
		return models.Conversation{}, err
	}
	conv, ok := a.engine.Conversations.GetOrCreate(contactID)
	if !ok {
		return models.Conversation{}, fmt.Errorf("cannot open conversation with %s", contactID)
	}
	return conv, nil
}

// CreateGroup starts a group conversation.
func (a *App) CreateGroup(name string, participantIDs []string) (models.Conversation, error) {
	for _, id := range participantIDs {
		if _, err := a.contact(id); err != nil {
			return models.Conversation{}, err
		}
	}
	conv, ok := a.engine.Conversations.CreateGroup(name, participantIDs)
	if !ok {
		return models.Conversation{}, fmt.Errorf("a group needs at least two other participants")
	}
	return conv, nil
}

// GetMessagesForConversation returns decoded messages in chronological order.
func (a *App) GetMessagesForConversation(conversationID string) ([]MessageView, error) {
	if _, ok := a.engine.Conversations.Conversation(conversationID); !ok {
		return nil, fmt.Errorf("conversation not found: %s", conversationID)
	}
	msgs := a.engine.Conversations.Messages(conversationID)
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, a.view(m))
	}
	return views, nil
}

// SendMessage posts text to a conversation id, or to the direct conversation
// of a contact id when no conversation matches.
func (a *App) SendMessage(target, text string) (MessageView, error) {
	return a.send(target, text, models.MessageTypeText, models.Metadata{})
}

// ReplyToMessage posts a reply quoting replyToID.
func (a *App) ReplyToMessage(conversationID, replyToID, text string) (MessageView, error) {
	return a.send(conversationID, text, models.MessageTypeReply, models.Metadata{ReplyToID: replyToID})
}

func (a *App) send(target, text string, typ models.MessageType, meta models.Metadata) (MessageView, error) {
	if _, ok := a.engine.Conversations.Conversation(target); !ok {
		if typ != models.MessageTypeText {
			return MessageView{}, fmt.Errorf("conversation not found: %s", target)
		}
		m, err := a.engine.Send(target, text)
		if err != nil {
			return MessageView{}, err
		}
		return a.view(m), nil
	}
	m, ok := a.engine.Conversations.AppendMessage(target, a.engine.Config.User.ID, text, typ, meta)
	if !ok {
		return MessageView{}, fmt.Errorf("conversation not found: %s", target)
	}
	return a.view(m), nil
}

// EditMessage replaces a message body.
func (a *App) EditMessage(conversationID, messageID, text string) (MessageView, error) {
	a.engine.Conversations.EditMessage(conversationID, messageID, text)
	return a.message(conversationID, messageID)
}

// DeleteMessage removes a message. Deleting a missing message is not an error.
func (a *App) DeleteMessage(conversationID, messageID string) {
	a.engine.Conversations.DeleteMessage(conversationID, messageID)
}

// ToggleReaction adds or withdraws the local user's emoji.
func (a *App) ToggleReaction(conversationID, messageID, emoji string) (MessageView, error) {
	a.engine.Conversations.ToggleReaction(conversationID, messageID, a.engine.Config.User.ID, emoji)
	return a.message(conversationID, messageID)
}

// MarkConversationRead marks every message read and returns how many changed.
func (a *App) MarkConversationRead(conversationID string) int {
	return a.engine.Conversations.MarkConversationRead(conversationID)
}

// UpdateSettings changes auto-delete for messages sent from now on.
func (a *App) UpdateSettings(conversationID string, enabled bool, delay time.Duration) (models.Conversation, error) {
	if !a.engine.Conversations.UpdateSettings(conversationID, models.ConversationSettings{
		AutoDeleteEnabled: enabled,
		AutoDeleteDelay:   delay,
	}) {
		return models.Conversation{}, fmt.Errorf("cannot update settings of %s (delay must be positive)", conversationID)
	}
	conv, _ := a.engine.Conversations.Conversation(conversationID)
	return conv, nil
}

// SetTyping marks userID as typing in a conversation.
func (a *App) SetTyping(conversationID, userID string) {
	a.engine.Typing.SetTyping(conversationID, userID)
}

func (a *App) message(conversationID, messageID string) (MessageView, error) {
	m, ok := a.engine.Conversations.Message(conversationID, messageID)
	if !ok {
		return MessageView{}, fmt.Errorf("message not found: %s", messageID)
	}
	return a.view(m), nil
}

func (a *App) view(m models.Message) MessageView {
	return MessageView{Message: m, Text: a.engine.Conversations.Plaintext(m)}
}

// --- Backends and metrics ---

// GetAvailableBackends lists the storage backends.
func (a *App) GetAvailableBackends() []core.BackendInfo {
	return a.engine.Backends.AvailableBackends()
}

// WriteMetrics dumps the engine's counters in Prometheus text format.
func (a *App) WriteMetrics(w io.Writer) error {
	return a.engine.Metrics.WriteText(w)
}
