// Package models defines the data models for the chat core.
package models

import (
	"slices"
	"time"
)

// Presence is the availability a contact advertises.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceAway    Presence = "away"
	PresenceBusy    Presence = "busy"
	PresenceOffline Presence = "offline"
)

// Valid reports whether p is one of the known presence values.
func (p Presence) Valid() bool {
	switch p {
	case PresenceOnline, PresenceAway, PresenceBusy, PresenceOffline:
		return true
	}
	return false
}

// Contact is a person the local user can chat with.
type Contact struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	AvatarGlyph string     `json:"avatarGlyph"` // Emoji or initials shown instead of a picture
	Presence    Presence   `json:"presence"`
	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty"` // nil until the contact has been seen offline
	IsFavorite  bool       `json:"isFavorite"`
	IsBlocked   bool       `json:"isBlocked"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy of the contact.
func (c Contact) Clone() Contact {
	if c.LastSeenAt != nil {
		t := *c.LastSeenAt
		c.LastSeenAt = &t
	}
	return c
}

// ConversationSettings holds per-conversation behaviour toggles.
type ConversationSettings struct {
	AutoDeleteEnabled bool          `json:"autoDeleteEnabled"`
	AutoDeleteDelay   time.Duration `json:"autoDeleteDelay"`
}

// Conversation is the ordered thread of messages exchanged among a fixed set of participants.
type Conversation struct {
	ID             string               `json:"id"`
	IsGroup        bool                 `json:"isGroup"`
	GroupName      string               `json:"groupName,omitempty"`
	ParticipantIDs []string             `json:"participantIds"` // Always contains the local user
	Messages       []Message            `json:"messages,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	LastActivityAt time.Time            `json:"lastActivityAt"`
	Settings       ConversationSettings `json:"settings"`
}

// Clone returns a deep copy of the conversation, messages included.
func (c Conversation) Clone() Conversation {
	c.ParticipantIDs = slices.Clone(c.ParticipantIDs)
	if c.Messages != nil {
		msgs := make([]Message, len(c.Messages))
		for i, m := range c.Messages {
			msgs[i] = m.Clone()
		}
		c.Messages = msgs
	}
	return c
}

// HasParticipant reports whether id takes part in the conversation.
func (c Conversation) HasParticipant(id string) bool {
	return slices.Contains(c.ParticipantIDs, id)
}

// MessageType tags the kind of content a message carries.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeFile     MessageType = "file"
	MessageTypeVoice    MessageType = "voice"
	MessageTypeLocation MessageType = "location"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeReply    MessageType = "reply"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeFile, MessageTypeVoice, MessageTypeLocation,
		MessageTypeImage, MessageTypeVideo, MessageTypeReply:
		return true
	}
	return false
}

// Location is a shared geographic point.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Label     string  `json:"label,omitempty"`
}

// Metadata is the type-specific payload of a message.
type Metadata struct {
	FileName     string    `json:"fileName,omitempty"`
	FileSize     int64     `json:"fileSize,omitempty"`
	MimeType     string    `json:"mimeType,omitempty"`
	DurationSecs int       `json:"durationSecs,omitempty"` // Voice and video
	Location     *Location `json:"location,omitempty"`
	ReplyToID    string    `json:"replyToId,omitempty"` // Quoted message, may no longer exist
}

// Clone returns a deep copy of the metadata.
func (m Metadata) Clone() Metadata {
	if m.Location != nil {
		l := *m.Location
		m.Location = &l
	}
	return m
}

// EditRecord keeps the body a message had before an edit.
type EditRecord struct {
	PreviousBody string    `json:"previousBody"`
	EditedAt     time.Time `json:"editedAt"`
}

// Reaction aggregates every user who reacted to a message with the same emoji.
type Reaction struct {
	Emoji           string   `json:"emoji"` // Opaque token, never reinterpreted
	ReactingUserIDs []string `json:"reactingUserIds"`
}

// Count is the number of users behind the reaction.
func (r Reaction) Count() int {
	return len(r.ReactingUserIDs)
}

// Message contains the content of a message.
type Message struct {
	ID             string        `json:"id"` // Time-ordered, never reused
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	Type           MessageType   `json:"type"`
	Body           string        `json:"body"` // Encoded token, see pkg/cipher
	Metadata       Metadata      `json:"metadata"`
	CreatedAt      time.Time     `json:"createdAt"`
	ReadFlag       bool          `json:"readFlag"`
	IsEdited       bool          `json:"isEdited"`
	EditHistory    []EditRecord  `json:"editHistory,omitempty"`
	Reactions      []Reaction    `json:"reactions,omitempty"`
	Ephemeral      bool          `json:"ephemeral"`
	DeleteDelay    time.Duration `json:"deleteDelay"` // Meaningful only when Ephemeral
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	m.Metadata = m.Metadata.Clone()
	m.EditHistory = slices.Clone(m.EditHistory)
	if m.Reactions != nil {
		rs := make([]Reaction, len(m.Reactions))
		for i, r := range m.Reactions {
			rs[i] = Reaction{Emoji: r.Emoji, ReactingUserIDs: slices.Clone(r.ReactingUserIDs)}
		}
		m.Reactions = rs
	}
	return m
}

// ExpiresAt is the moment an ephemeral message is due for deletion.
func (m Message) ExpiresAt() time.Time {
	return m.CreatedAt.Add(m.DeleteDelay)
}
