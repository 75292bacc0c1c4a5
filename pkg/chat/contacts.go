package chat

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"Chatter/pkg/clock"
	"Chatter/pkg/core"
	"Chatter/pkg/metrics"
	"Chatter/pkg/models"
	"Chatter/pkg/storage"
)

// ContactInput is what a caller supplies when adding a contact.
type ContactInput struct {
	DisplayName string
	AvatarGlyph string
	Presence    models.Presence // Defaults to offline
}

// ContactPatch is a partial update; nil fields are left unchanged.
type ContactPatch struct {
	DisplayName *string
	AvatarGlyph *string
	Presence    *models.Presence
	IsFavorite  *bool
	IsBlocked   *bool
}

// Cascader removes the conversations a deleted contact took part in.
type Cascader interface {
	RemoveConversationsWith(contactID string) []string
}

// ContactOptions configures a ContactStore.
type ContactOptions struct {
	Adapter   storage.Adapter
	Clock     clock.Clock
	Cascade   Cascader
	Publisher core.Publisher
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

// ContactStore owns the contact collection. The whole collection is written
// through after each successful mutation.
type ContactStore struct {
	mu       sync.Mutex
	contacts map[string]models.Contact

	clock     clock.Clock
	cascade   Cascader
	publisher core.Publisher
	persist   persister
	log       zerolog.Logger
}

// NewContactStore loads the persisted contacts. A missing or malformed blob
// starts an empty collection.
func NewContactStore(opts ContactOptions) *ContactStore {
	s := &ContactStore{
		contacts:  make(map[string]models.Contact),
		clock:     opts.Clock,
		cascade:   opts.Cascade,
		publisher: opts.Publisher,
		persist:   persister{adapter: opts.Adapter, log: opts.Logger, metrics: opts.Metrics},
		log:       opts.Logger,
	}
	if s.publisher == nil {
		s.publisher = core.Discard{}
	}

	var stored []models.Contact
	if _, err := storage.LoadJSON(opts.Adapter, storage.ContactsKey, &stored); err != nil {
		s.log.Warn().Err(err).Msg("contacts_load_failed")
	}
	for _, c := range stored {
		if c.ID == "" {
			continue
		}
		if !c.Presence.Valid() {
			c.Presence = models.PresenceOffline
		}
		s.contacts[c.ID] = c
	}
	s.log.Debug().Int("contacts", len(s.contacts)).Msg("contacts_loaded")
	return s
}

// Add creates a contact with a fresh id. Favorite and blocked start false.
func (s *ContactStore) Add(in ContactInput) models.Contact {
	now := s.clock.Now()
	c := models.Contact{
		ID:          uuid.NewString(),
		DisplayName: in.DisplayName,
		AvatarGlyph: in.AvatarGlyph,
		Presence:    in.Presence,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !c.Presence.Valid() {
		c.Presence = models.PresenceOffline
	}

	s.mu.Lock()
	s.contacts[c.ID] = c
	events := s.saveLocked()
	s.mu.Unlock()

	s.log.Info().Str("contact_id", c.ID).Str("name", c.DisplayName).Msg("contact_added")
	publishAll(s.publisher, append(events, core.ContactsEvent{ContactID: c.ID}))
	return c.Clone()
}

// Update applies a partial update. Unknown ids are ignored, as are invalid
// presence values.
func (s *ContactStore) Update(id string, patch ContactPatch) {
	s.mutate(id, func(c *models.Contact) bool {
		changed := false
		if patch.DisplayName != nil && *patch.DisplayName != c.DisplayName {
			c.DisplayName = *patch.DisplayName
			changed = true
		}
		if patch.AvatarGlyph != nil && *patch.AvatarGlyph != c.AvatarGlyph {
			c.AvatarGlyph = *patch.AvatarGlyph
			changed = true
		}
		if patch.Presence != nil && patch.Presence.Valid() && *patch.Presence != c.Presence {
			s.applyPresence(c, *patch.Presence)
			changed = true
		}
		if patch.IsFavorite != nil && *patch.IsFavorite != c.IsFavorite {
			c.IsFavorite = *patch.IsFavorite
			changed = true
		}
		if patch.IsBlocked != nil && *patch.IsBlocked != c.IsBlocked {
			c.IsBlocked = *patch.IsBlocked
			changed = true
		}
		return changed
	})
}

// ToggleFavorite flips the favorite flag.
func (s *ContactStore) ToggleFavorite(id string) {
	s.mutate(id, func(c *models.Contact) bool {
		c.IsFavorite = !c.IsFavorite
		return true
	})
}

// ToggleBlocked flips the blocked flag.
func (s *ContactStore) ToggleBlocked(id string) {
	s.mutate(id, func(c *models.Contact) bool {
		c.IsBlocked = !c.IsBlocked
		return true
	})
}

// SetPresence changes a contact's presence. Going offline stamps LastSeenAt.
func (s *ContactStore) SetPresence(id string, p models.Presence) {
	if !p.Valid() {
		return
	}
	s.mutate(id, func(c *models.Contact) bool {
		if c.Presence == p {
			return false
		}
		s.applyPresence(c, p)
		return true
	})
}

func (s *ContactStore) applyPresence(c *models.Contact, p models.Presence) {
	if p == models.PresenceOffline && c.Presence != models.PresenceOffline {
		t := s.clock.Now()
		c.LastSeenAt = &t
	}
	c.Presence = p
}

// Remove deletes a contact and then every direct conversation with it.
func (s *ContactStore) Remove(id string) {
	s.mu.Lock()
	if _, ok := s.contacts[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.contacts, id)
	events := s.saveLocked()
	s.mu.Unlock()

	s.log.Info().Str("contact_id", id).Msg("contact_removed")
	publishAll(s.publisher, append(events, core.ContactsEvent{ContactID: id, Removed: true}))

	if s.cascade != nil {
		s.cascade.RemoveConversationsWith(id)
	}
}

// Contacts returns copies of all contacts, favorites first, then by name.
func (s *ContactStore) Contacts() []models.Contact {
	s.mu.Lock()
	out := make([]models.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, c.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].IsFavorite != out[j].IsFavorite {
			return out[i].IsFavorite
		}
		a, b := strings.ToLower(out[i].DisplayName), strings.ToLower(out[j].DisplayName)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Contact returns a copy of one contact.
func (s *ContactStore) Contact(id string) (models.Contact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return models.Contact{}, false
	}
	return c.Clone(), true
}

// IsBlocked reports whether a known contact is blocked.
func (s *ContactStore) IsBlocked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contacts[id].IsBlocked
}

// Len is the number of contacts.
func (s *ContactStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contacts)
}

// mutate edits a copy of the contact and commits it when fn reports a change.
func (s *ContactStore) mutate(id string, fn func(*models.Contact) bool) {
	s.mu.Lock()
	c, ok := s.contacts[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	c = c.Clone()
	if !fn(&c) {
		s.mu.Unlock()
		return
	}
	c.UpdatedAt = s.clock.Now()
	s.contacts[id] = c
	events := s.saveLocked()
	s.mu.Unlock()

	publishAll(s.publisher, append(events, core.ContactsEvent{ContactID: id}))
}

func (s *ContactStore) saveLocked() []core.ChangeEvent {
	all := make([]models.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return s.persist.save(storage.ContactsKey, all)
}
