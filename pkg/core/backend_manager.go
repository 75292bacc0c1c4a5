package core

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"Chatter/pkg/storage"
)

// ErrUnknownBackend is returned when no factory is registered under an id.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Backend is an opened storage adapter.
type Backend interface {
	storage.Adapter
	io.Closer
}

// BackendInfo describes a registered backend.
type BackendInfo struct {
	ID          string `json:"id"`          // Unique identifier (e.g., "sqlite", "memory")
	Name        string `json:"name"`        // Display name
	Description string `json:"description"` // What the backend keeps its data in
	Durable     bool   `json:"durable"`     // Whether data outlives the process
}

// BackendFactory opens a backend at path. Path semantics are backend specific.
type BackendFactory func(path string) (Backend, error)

// BackendManager maps backend ids to their factories.
type BackendManager struct {
	mu        sync.RWMutex
	factories map[string]BackendFactory
	infos     map[string]BackendInfo
}

// NewBackendManager creates an empty backend manager.
func NewBackendManager() *BackendManager {
	return &BackendManager{
		factories: make(map[string]BackendFactory),
		infos:     make(map[string]BackendInfo),
	}
}

// RegisterBackend registers a backend factory, replacing any previous one with the same id.
func (bm *BackendManager) RegisterBackend(info BackendInfo, factory BackendFactory) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.factories[info.ID] = factory
	bm.infos[info.ID] = info
}

// AvailableBackends returns the registered backends sorted by id.
func (bm *BackendManager) AvailableBackends() []BackendInfo {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	infos := make([]BackendInfo, 0, len(bm.infos))
	for _, info := range bm.infos {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Open creates the backend registered under id.
func (bm *BackendManager) Open(id, path string) (Backend, error) {
	bm.mu.RLock()
	factory, ok := bm.factories[id]
	bm.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, id)
	}

	b, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", id, err)
	}
	return b, nil
}

// NopCloser turns an adapter without resources into a Backend.
func NopCloser(a storage.Adapter) Backend {
	return nopCloser{a}
}

type nopCloser struct {
	storage.Adapter
}

func (nopCloser) Close() error { return nil }

// Remove forwards to the wrapped adapter when it can remove keys.
func (n nopCloser) Remove(key string) error {
	if r, ok := n.Adapter.(storage.Remover); ok {
		return r.Remove(key)
	}
	return storage.Delete(n.Adapter, key)
}
