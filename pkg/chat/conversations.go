package chat

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"Chatter/pkg/cipher"
	"Chatter/pkg/clock"
	"Chatter/pkg/core"
	"Chatter/pkg/expiry"
	"Chatter/pkg/metrics"
	"Chatter/pkg/models"
	"Chatter/pkg/reactions"
	"Chatter/pkg/storage"
)

// DefaultSettings apply to conversations created without explicit settings.
var DefaultSettings = models.ConversationSettings{
	AutoDeleteEnabled: true,
	AutoDeleteDelay:   5 * time.Second,
}

// Scheduler is the part of the expiry scheduler the store drives.
type Scheduler interface {
	Bind(expiry.Deleter)
	Schedule(messageID, conversationID string, delay time.Duration)
	Cancel(messageID string) bool
}

// TypingClearer drops a sender's typing indicator once their message lands.
type TypingClearer interface {
	Clear(conversationID, userID string)
}

// ConversationOptions configures a ConversationStore. Adapter, Scheduler and
// Clock are required; everything else has a default.
type ConversationOptions struct {
	SelfID          string
	Adapter         storage.Adapter
	Scheduler       Scheduler
	Clock           clock.Clock
	Codec           cipher.Codec
	Publisher       core.Publisher
	Typing          TypingClearer
	DefaultSettings models.ConversationSettings
	Logger          zerolog.Logger
	Metrics         *metrics.Metrics
	NewID           func() string // Message ids; must be unique and sort by creation
}

// ConversationStore is the only mutator of conversations and messages.
//
// Every mutation replaces the slices it touches instead of editing them in
// place, so a value handed out earlier never changes under its holder.
// Mutators on unknown ids are no-ops.
type ConversationStore struct {
	mu            sync.Mutex
	conversations map[string]models.Conversation

	selfID    string
	clock     clock.Clock
	codec     cipher.Codec
	scheduler Scheduler
	publisher core.Publisher
	typing    TypingClearer
	defaults  models.ConversationSettings
	newID     func() string
	persist   persister
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

// NewConversationStore loads persisted conversations and binds the store as
// the scheduler's deleter. Call ResumeExpiry afterwards to re-arm timers of
// loaded ephemeral messages.
func NewConversationStore(opts ConversationOptions) *ConversationStore {
	cs := &ConversationStore{
		conversations: make(map[string]models.Conversation),
		selfID:        opts.SelfID,
		clock:         opts.Clock,
		codec:         opts.Codec,
		scheduler:     opts.Scheduler,
		publisher:     opts.Publisher,
		typing:        opts.Typing,
		defaults:      opts.DefaultSettings,
		newID:         opts.NewID,
		log:           opts.Logger,
		metrics:       opts.Metrics,
	}
	if cs.selfID == "" {
		cs.selfID = "me"
	}
	if cs.codec == nil {
		cs.codec = cipher.Base64{}
	}
	if cs.publisher == nil {
		cs.publisher = core.Discard{}
	}
	if cs.defaults.AutoDeleteDelay <= 0 {
		cs.defaults = DefaultSettings
	}
	if cs.newID == nil {
		cs.newID = newMessageID
	}
	cs.persist = persister{adapter: opts.Adapter, log: opts.Logger, metrics: opts.Metrics}

	cs.load()
	cs.scheduler.Bind(expiry.DeleterFunc(cs.expire))
	return cs
}

func newMessageID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (cs *ConversationStore) load() {
	var metas []models.Conversation
	if _, err := storage.LoadJSON(cs.persist.adapter, storage.ConversationsKey, &metas); err != nil {
		cs.log.Warn().Err(err).Msg("conversations_load_failed")
	}
	for _, conv := range metas {
		if conv.ID == "" {
			continue
		}
		var msgs []models.Message
		if _, err := storage.LoadJSON(cs.persist.adapter, storage.MessagesKey(conv.ID), &msgs); err != nil {
			cs.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("messages_load_failed")
		}
		conv.Messages = msgs
		cs.conversations[conv.ID] = conv
	}
	cs.log.Debug().Int("conversations", len(cs.conversations)).Msg("conversations_loaded")
}

// SelfID is the local user's id.
func (cs *ConversationStore) SelfID() string {
	return cs.selfID
}

// GetOrCreate returns the direct conversation with contactID, creating it
// with the default settings on first use. It returns false only for an
// empty contactID or the local user's own id.
func (cs *ConversationStore) GetOrCreate(contactID string) (models.Conversation, bool) {
	if contactID == "" || contactID == cs.selfID {
		return models.Conversation{}, false
	}

	cs.mu.Lock()
	if conv, ok := cs.directLocked(contactID); ok {
		cs.mu.Unlock()
		return conv.Clone(), true
	}

	now := cs.clock.Now()
	conv := models.Conversation{
		ID:             uuid.NewString(),
		ParticipantIDs: []string{cs.selfID, contactID},
		CreatedAt:      now,
		LastActivityAt: now,
		Settings:       cs.defaults,
	}
	cs.conversations[conv.ID] = conv
	events := cs.saveMetaLocked()
	cs.mu.Unlock()

	cs.log.Info().Str("conversation_id", conv.ID).Str("contact_id", contactID).Msg("conversation_created")
	publishAll(cs.publisher, append(events, core.ConversationEvent{ConversationID: conv.ID}))
	return conv.Clone(), true
}

// CreateGroup starts a group conversation with the local user and at least
// two other distinct participants.
func (cs *ConversationStore) CreateGroup(name string, participantIDs []string) (models.Conversation, bool) {
	members := []string{cs.selfID}
	for _, id := range participantIDs {
		if id != "" && !slices.Contains(members, id) {
			members = append(members, id)
		}
	}
	if len(members) < 3 {
		return models.Conversation{}, false
	}

	now := cs.clock.Now()
	conv := models.Conversation{
		ID:             uuid.NewString(),
		IsGroup:        true,
		GroupName:      name,
		ParticipantIDs: members,
		CreatedAt:      now,
		LastActivityAt: now,
		Settings:       cs.defaults,
	}

	cs.mu.Lock()
	cs.conversations[conv.ID] = conv
	events := cs.saveMetaLocked()
	cs.mu.Unlock()

	cs.log.Info().Str("conversation_id", conv.ID).Int("participants", len(members)).Msg("group_created")
	publishAll(cs.publisher, append(events, core.ConversationEvent{ConversationID: conv.ID}))
	return conv.Clone(), true
}

// UpdateSettings replaces the settings of a conversation. It only affects
// messages appended afterwards. A non-positive delay is rejected.
func (cs *ConversationStore) UpdateSettings(conversationID string, settings models.ConversationSettings) bool {
	if settings.AutoDeleteDelay <= 0 {
		return false
	}
	cs.mu.Lock()
	conv, ok := cs.conversations[conversationID]
	if !ok {
		cs.mu.Unlock()
		return false
	}
	conv.Settings = settings
	cs.conversations[conversationID] = conv
	events := cs.saveMetaLocked()
	cs.mu.Unlock()

	publishAll(cs.publisher, append(events, core.ConversationEvent{ConversationID: conversationID}))
	return true
}

// AppendMessage adds a message to a conversation. The body is encoded with
// the store codec before it is kept. When the conversation has auto-delete
// enabled the message is ephemeral and its deletion is scheduled with the
// same id. It returns false if the conversation does not exist or typ is unknown.
func (cs *ConversationStore) AppendMessage(conversationID, senderID, body string, typ models.MessageType, meta models.Metadata) (models.Message, bool) {
	if typ == "" {
		typ = models.MessageTypeText
	}
	if !typ.Valid() {
		return models.Message{}, false
	}

	cs.mu.Lock()
	conv, ok := cs.conversations[conversationID]
	if !ok {
		cs.mu.Unlock()
		return models.Message{}, false
	}

	now := cs.clock.Now()
	msg := models.Message{
		ID:             cs.newID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           typ,
		Body:           cs.codec.Encode(body),
		Metadata:       meta.Clone(),
		CreatedAt:      now,
		Ephemeral:      conv.Settings.AutoDeleteEnabled,
	}
	if msg.Ephemeral {
		msg.DeleteDelay = conv.Settings.AutoDeleteDelay
	}

	conv.Messages = append(slices.Clip(conv.Messages), msg)
	if now.After(conv.LastActivityAt) {
		conv.LastActivityAt = now
	}
	cs.conversations[conversationID] = conv

	events := cs.saveMessagesLocked(conversationID)
	events = append(events, cs.saveMetaLocked()...)
	if msg.Ephemeral {
		cs.scheduler.Schedule(msg.ID, conversationID, msg.DeleteDelay)
	}
	cs.mu.Unlock()

	if cs.metrics != nil {
		cs.metrics.MessagesAppended.Inc()
	}
	if cs.typing != nil {
		cs.typing.Clear(conversationID, senderID)
	}
	cs.log.Debug().
		Str("conversation_id", conversationID).
		Str("message_id", msg.ID).
		Bool("ephemeral", msg.Ephemeral).
		Msg("message_appended")
	publishAll(cs.publisher, append(events, core.ConversationEvent{ConversationID: conversationID, MessageID: msg.ID}))
	return msg.Clone(), true
}

// EditMessage replaces a message body, recording the previous one. Any
// pending expiry of the message is cancelled before the edit is applied, and
// the message stops being ephemeral.
func (cs *ConversationStore) EditMessage(conversationID, messageID, newBody string) {
	cs.mu.Lock()
	conv, idx, ok := cs.findLocked(conversationID, messageID)
	if !ok {
		cs.mu.Unlock()
		return
	}

	cs.scheduler.Cancel(messageID)

	now := cs.clock.Now()
	msg := conv.Messages[idx].Clone()
	msg.EditHistory = append(msg.EditHistory, models.EditRecord{PreviousBody: msg.Body, EditedAt: now})
	msg.Body = cs.codec.Encode(newBody)
	msg.IsEdited = true
	msg.Ephemeral = false
	cs.replaceLocked(conv, idx, msg)

	events := cs.saveMessagesLocked(conversationID)
	cs.mu.Unlock()

	cs.log.Debug().Str("conversation_id", conversationID).Str("message_id", messageID).Msg("message_edited")
	publishAll(cs.publisher, append(events, core.ConversationEvent{ConversationID: conversationID, MessageID: messageID}))
}

// DeleteMessage removes a message and cancels its pending expiry. Deleting a
// message that is already gone is a no-op.
func (cs *ConversationStore) DeleteMessage(conversationID, messageID string) {
	cs.remove(conversationID, messageID, core.DeleteReasonManual)
}

// expire is the scheduler's deletion path.
func (cs *ConversationStore) expire(conversationID, messageID string) {
	cs.remove(conversationID, messageID, core.DeleteReasonExpired)
}

func (cs *ConversationStore) remove(conversationID, messageID string, reason core.DeleteReason) {
	cs.mu.Lock()
	// While the scheduler is firing this id, Cancel is a no-op.
	cs.scheduler.Cancel(messageID)

	conv, idx, ok := cs.findLocked(conversationID, messageID)
	if !ok {
		cs.mu.Unlock()
		return
	}
	conv.Messages = slices.Delete(slices.Clone(conv.Messages), idx, idx+1)
	cs.conversations[conversationID] = conv
	events := cs.saveMessagesLocked(conversationID)
	cs.mu.Unlock()

	if cs.metrics != nil {
		cs.metrics.MessagesDeleted.WithLabelValues(string(reason)).Inc()
	}
	cs.log.Debug().
		Str("conversation_id", conversationID).
		Str("message_id", messageID).
		Str("reason", string(reason)).
		Msg("message_deleted")
	events = append(events,
		core.MessageDeletedEvent{ConversationID: conversationID, MessageID: messageID, Reason: reason},
		core.ConversationEvent{ConversationID: conversationID, MessageID: messageID},
	)
	publishAll(cs.publisher, events)
}

// MarkRead sets the read flag of a message. Already-read messages are left
// alone so no redundant write happens.
func (cs *ConversationStore) MarkRead(conversationID, messageID string) {
	cs.mu.Lock()
	conv, idx, ok := cs.findLocked(conversationID, messageID)
	if !ok || conv.Messages[idx].ReadFlag {
		cs.mu.Unlock()
		return
	}
	msg := conv.Messages[idx].Clone()
	msg.ReadFlag = true
	cs.replaceLocked(conv, idx, msg)
	events := cs.saveMessagesLocked(conversationID)
	cs.mu.Unlock()

	publishAll(cs.publisher, append(events, core.ConversationEvent{ConversationID: conversationID, MessageID: messageID}))
}

// MarkConversationRead marks every unread message of the conversation as
// read and returns how many changed.
func (cs *ConversationStore) MarkConversationRead(conversationID string) int {
	cs.mu.Lock()
	conv, ok := cs.conversations[conversationID]
	if !ok {
		cs.mu.Unlock()
		return 0
	}
	changed := 0
	msgs := slices.Clone(conv.Messages)
	for i := range msgs {
		if !msgs[i].ReadFlag {
			msgs[i] = msgs[i].Clone()
			msgs[i].ReadFlag = true
			changed++
		}
	}
	if changed == 0 {
		cs.mu.Unlock()
		return 0
	}
	conv.Messages = msgs
	cs.conversations[conversationID] = conv
	events := cs.saveMessagesLocked(conversationID)
	cs.mu.Unlock()

	publishAll(cs.publisher, append(events, core.ConversationEvent{ConversationID: conversationID}))
	return changed
}

// ToggleReaction adds or withdraws userID's emoji on a message.
func (cs *ConversationStore) ToggleReaction(conversationID, messageID, userID, emoji string) {
	cs.mu.Lock()
	conv, idx, ok := cs.findLocked(conversationID, messageID)
	if !ok {
		cs.mu.Unlock()
		return
	}
	msg := conv.Messages[idx].Clone()
	msg.Reactions = reactions.Toggle(msg.Reactions, userID, emoji)
	cs.replaceLocked(conv, idx, msg)
	events := cs.saveMessagesLocked(conversationID)
	cs.mu.Unlock()

	publishAll(cs.publisher, append(events, core.ConversationEvent{ConversationID: conversationID, MessageID: messageID}))
}

// RemoveConversationsWith drops every direct conversation between the local
// user and contactID, cancelling the expiry of their messages. Group
// conversations are kept. It returns the removed conversation ids.
func (cs *ConversationStore) RemoveConversationsWith(contactID string) []string {
	cs.mu.Lock()
	var removed []string
	var events []core.ChangeEvent
	dropped := 0
	for id, conv := range cs.conversations {
		if !cs.isDirectWith(conv, contactID) {
			continue
		}
		for _, m := range conv.Messages {
			cs.scheduler.Cancel(m.ID)
		}
		dropped += len(conv.Messages)
		delete(cs.conversations, id)
		removed = append(removed, id)
		events = append(events, cs.persist.remove(storage.MessagesKey(id))...)
	}
	if len(removed) > 0 {
		events = append(events, cs.saveMetaLocked()...)
	}
	cs.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}
	sort.Strings(removed)
	if cs.metrics != nil && dropped > 0 {
		cs.metrics.MessagesDeleted.WithLabelValues(string(core.DeleteReasonCascade)).Add(float64(dropped))
	}
	for _, id := range removed {
		cs.log.Info().Str("conversation_id", id).Str("contact_id", contactID).Msg("conversation_removed")
		events = append(events, core.ConversationRemovedEvent{ConversationID: id, ContactID: contactID})
	}
	publishAll(cs.publisher, events)
	return removed
}

// ResumeExpiry re-arms the timers of ephemeral messages loaded from storage.
// Messages whose expiry already passed are deleted right away. It returns how
// many timers were armed and how many messages were deleted.
func (cs *ConversationStore) ResumeExpiry() (scheduled, expired int) {
	type ref struct{ conversationID, messageID string }
	var overdue []ref

	cs.mu.Lock()
	now := cs.clock.Now()
	for _, conv := range cs.conversations {
		for _, m := range conv.Messages {
			if !m.Ephemeral {
				continue
			}
			remaining := m.ExpiresAt().Sub(now)
			if remaining <= 0 {
				overdue = append(overdue, ref{conv.ID, m.ID})
				continue
			}
			cs.scheduler.Schedule(m.ID, conv.ID, remaining)
			scheduled++
		}
	}
	cs.mu.Unlock()

	for _, r := range overdue {
		cs.expire(r.conversationID, r.messageID)
	}
	if scheduled > 0 || len(overdue) > 0 {
		cs.log.Info().Int("scheduled", scheduled).Int("expired", len(overdue)).Msg("expiry_resumed")
	}
	return scheduled, len(overdue)
}

// Conversations returns copies of every conversation, most recently active first.
func (cs *ConversationStore) Conversations() []models.Conversation {
	cs.mu.Lock()
	out := make([]models.Conversation, 0, len(cs.conversations))
	for _, conv := range cs.conversations {
		out = append(out, conv.Clone())
	}
	cs.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.After(out[j].LastActivityAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Conversation returns a copy of one conversation.
func (cs *ConversationStore) Conversation(conversationID string) (models.Conversation, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	conv, ok := cs.conversations[conversationID]
	if !ok {
		return models.Conversation{}, false
	}
	return conv.Clone(), true
}

// ConversationWith returns the direct conversation with contactID, if any.
func (cs *ConversationStore) ConversationWith(contactID string) (models.Conversation, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	conv, ok := cs.directLocked(contactID)
	if !ok {
		return models.Conversation{}, false
	}
	return conv.Clone(), true
}

// Messages returns copies of a conversation's messages in chronological order.
func (cs *ConversationStore) Messages(conversationID string) []models.Message {
	conv, ok := cs.Conversation(conversationID)
	if !ok {
		return nil
	}
	return conv.Messages
}

// Message returns a copy of one message.
func (cs *ConversationStore) Message(conversationID, messageID string) (models.Message, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	conv, idx, ok := cs.findLocked(conversationID, messageID)
	if !ok {
		return models.Message{}, false
	}
	return conv.Messages[idx].Clone(), true
}

// UnreadCount counts unread messages not sent by the local user.
func (cs *ConversationStore) UnreadCount(conversationID string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	n := 0
	for _, m := range cs.conversations[conversationID].Messages {
		if !m.ReadFlag && m.SenderID != cs.selfID {
			n++
		}
	}
	return n
}

// Plaintext decodes a message body.
func (cs *ConversationStore) Plaintext(m models.Message) string {
	return cs.codec.Decode(m.Body)
}

// Len is the number of conversations.
func (cs *ConversationStore) Len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.conversations)
}

func (cs *ConversationStore) isDirectWith(conv models.Conversation, contactID string) bool {
	if conv.IsGroup || len(conv.ParticipantIDs) != 2 {
		return false
	}
	return conv.HasParticipant(cs.selfID) && conv.HasParticipant(contactID)
}

func (cs *ConversationStore) directLocked(contactID string) (models.Conversation, bool) {
	for _, conv := range cs.conversations {
		if cs.isDirectWith(conv, contactID) {
			return conv, true
		}
	}
	return models.Conversation{}, false
}

func (cs *ConversationStore) findLocked(conversationID, messageID string) (models.Conversation, int, bool) {
	conv, ok := cs.conversations[conversationID]
	if !ok {
		return models.Conversation{}, -1, false
	}
	idx := slices.IndexFunc(conv.Messages, func(m models.Message) bool { return m.ID == messageID })
	if idx < 0 {
		return models.Conversation{}, -1, false
	}
	return conv, idx, true
}

func (cs *ConversationStore) replaceLocked(conv models.Conversation, idx int, msg models.Message) {
	msgs := slices.Clone(conv.Messages)
	msgs[idx] = msg
	conv.Messages = msgs
	cs.conversations[conv.ID] = conv
}

func (cs *ConversationStore) saveMessagesLocked(conversationID string) []core.ChangeEvent {
	msgs := cs.conversations[conversationID].Messages
	if msgs == nil {
		msgs = []models.Message{}
	}
	return cs.persist.save(storage.MessagesKey(conversationID), msgs)
}

func (cs *ConversationStore) saveMetaLocked() []core.ChangeEvent {
	metas := make([]models.Conversation, 0, len(cs.conversations))
	for _, conv := range cs.conversations {
		conv.Messages = nil
		metas = append(metas, conv)
	}
	sort.Slice(metas, func(i, j int) bool {
		if !metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].CreatedAt.Before(metas[j].CreatedAt)
		}
		return metas[i].ID < metas[j].ID
	})
	return cs.persist.save(storage.ConversationsKey, metas)
}
