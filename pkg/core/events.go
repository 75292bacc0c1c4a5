// Package core carries change notifications and the storage backend registry.
package core

import "Chatter/pkg/models"

// EventType represents the type of change the core reports after a committed mutation.
type EventType string

const (
	// EventTypeContacts reports that the contact collection changed.
	EventTypeContacts EventType = "contacts"
	// EventTypeConversation reports that a conversation or its messages changed.
	EventTypeConversation EventType = "conversation"
	// EventTypeConversationRemoved reports that a conversation was removed by a contact cascade.
	EventTypeConversationRemoved EventType = "conversation_removed"
	// EventTypeMessageDeleted reports that a message left its conversation.
	EventTypeMessageDeleted EventType = "message_deleted"
	// EventTypeTyping represents a typing indicator change.
	EventTypeTyping EventType = "typing"
	// EventTypePersistWarning reports a failed write-through save.
	EventTypePersistWarning EventType = "persist_warning"
)

// ChangeEvent is the base interface for all change events.
type ChangeEvent interface {
	Type() EventType
}

// ContactsEvent carries the contact affected by a contact mutation.
type ContactsEvent struct {
	ContactID string
	Removed   bool
}

// Type returns the event type for ContactsEvent.
func (e ContactsEvent) Type() EventType {
	return EventTypeContacts
}

// ConversationEvent reports a change inside one conversation.
type ConversationEvent struct {
	ConversationID string
	MessageID      string // Empty when the change is not about a single message
}

// Type returns the event type for ConversationEvent.
func (e ConversationEvent) Type() EventType {
	return EventTypeConversation
}

// ConversationRemovedEvent reports a conversation dropped with its contact.
type ConversationRemovedEvent struct {
	ConversationID string
	ContactID      string
}

// Type returns the event type for ConversationRemovedEvent.
func (e ConversationRemovedEvent) Type() EventType {
	return EventTypeConversationRemoved
}

// DeleteReason tells why a message disappeared.
type DeleteReason string

const (
	DeleteReasonManual  DeleteReason = "manual"
	DeleteReasonExpired DeleteReason = "expired"
	DeleteReasonCascade DeleteReason = "cascade"
)

// MessageDeletedEvent represents a message removal.
type MessageDeletedEvent struct {
	ConversationID string
	MessageID      string
	Reason         DeleteReason
}

// Type returns the event type for MessageDeletedEvent.
func (e MessageDeletedEvent) Type() EventType {
	return EventTypeMessageDeleted
}

// TypingEvent represents a typing indicator event.
type TypingEvent struct {
	ConversationID string
	UserID         string
	IsTyping       bool // false once the indicator expired or was cleared
}

// Type returns the event type for TypingEvent.
func (e TypingEvent) Type() EventType {
	return EventTypeTyping
}

// PersistWarningEvent reports a save that failed after the in-memory change was committed.
type PersistWarningEvent struct {
	Key string
	Err error
}

// Type returns the event type for PersistWarningEvent.
func (e PersistWarningEvent) Type() EventType {
	return EventTypePersistWarning
}

// Snapshot is the read view handed to subscribers that re-render everything.
type Snapshot struct {
	Contacts      []models.Contact
	Conversations []models.Conversation
}
