// Package storage defines the key/value blob store the chat core writes through to.
package storage

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
)

// ErrNotFound is returned by Load when the key has never been saved.
var ErrNotFound = errors.New("storage: key not found")

// Adapter loads and saves JSON blobs by key. No schema is enforced.
type Adapter interface {
	Load(key string) ([]byte, error)
	Save(key string, value []byte) error
}

// Remover is implemented by adapters that can drop a key entirely.
type Remover interface {
	Remove(key string) error
}

// Keys used by the chat core.
const (
	ContactsKey      = "contacts"
	ConversationsKey = "conversations"
	messagesPrefix   = "messages/"
)

// MessagesKey is the key holding one conversation's message list.
func MessagesKey(conversationID string) string {
	return messagesPrefix + conversationID
}

// IsMessagesKey reports whether key holds a message list.
func IsMessagesKey(key string) bool {
	return strings.HasPrefix(key, messagesPrefix)
}

// LoadJSON decodes the blob under key into v. Missing keys, load errors,
// JSON null and malformed JSON all count as "no prior data": LoadJSON then
// returns false and leaves v untouched. The error is only informative.
func LoadJSON(a Adapter, key string, v any) (bool, error) {
	raw, err := a.Load(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return false, nil
	}

	// Decode into a fresh value so a half-decoded blob never leaks into v.
	dst := reflect.ValueOf(v)
	if dst.Kind() != reflect.Pointer || dst.IsNil() {
		return false, fmt.Errorf("decode %s: target must be a non-nil pointer", key)
	}
	tmp := reflect.New(dst.Elem().Type())
	if err := json.Unmarshal(raw, tmp.Interface()); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	dst.Elem().Set(tmp.Elem())
	return true, nil
}

// SaveJSON encodes v and saves it under key.
func SaveJSON(a Adapter, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := a.Save(key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Delete removes key when the adapter supports it, otherwise overwrites it
// with JSON null, which LoadJSON reads back as absence.
func Delete(a Adapter, key string) error {
	if r, ok := a.(Remover); ok {
		if err := r.Remove(key); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
		return nil
	}
	if err := a.Save(key, []byte("null")); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Memory is an in-process adapter. It copies blobs on the way in and out.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory creates an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Load(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Save(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// Keys lists the stored keys, unordered.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	return keys
}
