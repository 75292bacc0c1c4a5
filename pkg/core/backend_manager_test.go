package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Chatter/pkg/storage"
)

func TestBackendManagerOpen(t *testing.T) {
	bm := NewBackendManager()
	var gotPath string
	bm.RegisterBackend(BackendInfo{ID: "memory", Name: "Memory"}, func(path string) (Backend, error) {
		gotPath = path
		return NopCloser(storage.NewMemory()), nil
	})
	bm.RegisterBackend(BackendInfo{ID: "broken"}, func(string) (Backend, error) {
		return nil, errors.New("boom")
	})

	b, err := bm.Open("memory", "/tmp/x")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", gotPath)
	require.NoError(t, b.Save("k", []byte("1")))
	require.NoError(t, b.Close())

	_, err = bm.Open("nope", "")
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = bm.Open("broken", "")
	assert.ErrorContains(t, err, "boom")

	infos := bm.AvailableBackends()
	require.Len(t, infos, 2)
	assert.Equal(t, "broken", infos[0].ID)
	assert.Equal(t, "memory", infos[1].ID)
}

func TestNopCloserRemoves(t *testing.T) {
	mem := storage.NewMemory()
	b := NopCloser(mem)
	require.NoError(t, b.Save("k", []byte(`[1]`)))

	require.NoError(t, storage.Delete(b, "k"))
	_, err := mem.Load("k")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHubOrderAndUnsubscribe(t *testing.T) {
	h := NewHub()
	var got []string
	unA := h.Subscribe(func(ChangeEvent) { got = append(got, "a") })
	h.Subscribe(func(ChangeEvent) { got = append(got, "b") })

	h.Publish(ContactsEvent{ContactID: "x"})
	unA()
	unA()
	h.Publish(ContactsEvent{ContactID: "y"})

	assert.Equal(t, []string{"a", "b", "b"}, got)
}
