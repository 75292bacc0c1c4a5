package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failing struct{ err error }

func (f failing) Load(string) ([]byte, error) { return nil, f.err }
func (f failing) Save(string, []byte) error   { return f.err }

// saveOnly has no Remove method.
type saveOnly struct{ m *Memory }

func (s saveOnly) Load(k string) ([]byte, error) { return s.m.Load(k) }
func (s saveOnly) Save(k string, v []byte) error { return s.m.Save(k, v) }

func TestLoadJSONRoundTrip(t *testing.T) {
	m := NewMemory()
	require.NoError(t, SaveJSON(m, ContactsKey, []string{"a", "b"}))

	var got []string
	ok, err := LoadJSON(m, ContactsKey, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestLoadJSONTreatsBadDataAsAbsent(t *testing.T) {
	cases := map[string][]byte{
		"malformed": []byte(`[{"id": `),
		"null":      []byte("null"),
		"empty":     []byte("  "),
		"wrongType": []byte(`{"not":"a list"}`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			m := NewMemory()
			require.NoError(t, m.Save("k", raw))

			got := []string{"untouched"}
			ok, _ := LoadJSON(m, "k", &got)
			assert.False(t, ok)
			assert.Equal(t, []string{"untouched"}, got)
		})
	}
}

func TestLoadJSONMissingKey(t *testing.T) {
	var got []string
	ok, err := LoadJSON(NewMemory(), "nope", &got)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadJSONAdapterError(t *testing.T) {
	var got []string
	ok, err := LoadJSON(failing{errors.New("disk gone")}, "k", &got)
	assert.False(t, ok)
	assert.ErrorContains(t, err, "disk gone")
}

func TestDelete(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Save(MessagesKey("c1"), []byte("[]")))
	require.NoError(t, Delete(m, MessagesKey("c1")))
	_, err := m.Load(MessagesKey("c1"))
	assert.ErrorIs(t, err, ErrNotFound)

	inner := NewMemory()
	s := saveOnly{inner}
	require.NoError(t, s.Save("k", []byte(`["x"]`)))
	require.NoError(t, Delete(s, "k"))
	var got []string
	ok, err := LoadJSON(s, "k", &got)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCopiesBlobs(t *testing.T) {
	m := NewMemory()
	in := []byte("abc")
	require.NoError(t, m.Save("k", in))
	in[0] = 'z'

	out, err := m.Load("k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out))
	out[0] = 'y'

	again, _ := m.Load("k")
	assert.Equal(t, "abc", string(again))
}

func TestMessagesKey(t *testing.T) {
	assert.Equal(t, "messages/c1", MessagesKey("c1"))
	assert.True(t, IsMessagesKey("messages/c1"))
	assert.False(t, IsMessagesKey(ContactsKey))
}
