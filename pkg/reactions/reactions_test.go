package reactions

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Chatter/pkg/models"
)

// Reaction lists are compared as sets: entry order and user order carry no meaning.
var asSets = cmp.Options{
	cmpopts.EquateEmpty(),
	cmpopts.SortSlices(func(a, b string) bool { return a < b }),
	cmpopts.SortSlices(func(a, b models.Reaction) bool { return a.Emoji < b.Emoji }),
}

func TestToggleAddsNewEntry(t *testing.T) {
	got := Toggle(nil, "alice", "👍")
	require.Len(t, got, 1)
	assert.Equal(t, "👍", got[0].Emoji)
	assert.Equal(t, []string{"alice"}, got[0].ReactingUserIDs)
	assert.Equal(t, 1, got[0].Count())
}

func TestToggleJoinsExistingEntry(t *testing.T) {
	start := []models.Reaction{{Emoji: "❤️", ReactingUserIDs: []string{"alice"}}}
	got := Toggle(start, "bob", "❤️")
	require.Len(t, got, 1)
	assert.Equal(t, []string{"alice", "bob"}, got[0].ReactingUserIDs)
}

func TestToggleRemovesUserAndDropsEmptyEntry(t *testing.T) {
	start := []models.Reaction{
		{Emoji: "👍", ReactingUserIDs: []string{"alice"}},
		{Emoji: "😂", ReactingUserIDs: []string{"alice", "bob"}},
	}

	got := Toggle(start, "alice", "👍")
	require.Len(t, got, 1)
	assert.Equal(t, "😂", got[0].Emoji)

	got = Toggle(got, "alice", "😂")
	require.Len(t, got, 1)
	assert.Equal(t, []string{"bob"}, got[0].ReactingUserIDs)

	assert.Nil(t, Toggle(got, "bob", "😂"))
}

func TestToggleDoesNotMutateInput(t *testing.T) {
	start := []models.Reaction{{Emoji: "👍", ReactingUserIDs: []string{"alice", "bob"}}}
	snapshot := []models.Reaction{{Emoji: "👍", ReactingUserIDs: []string{"alice", "bob"}}}

	_ = Toggle(start, "alice", "👍")
	_ = Toggle(start, "carol", "👍")
	_ = Toggle(start, "carol", "🎉")

	assert.Equal(t, snapshot, start)
}

func TestToggleKeepsNumericLookingEmojiOpaque(t *testing.T) {
	for _, emoji := range []string{"1", "0", "42", "1f44d", "-1", " "} {
		got := Toggle(nil, "alice", emoji)
		require.Len(t, got, 1)
		assert.Equal(t, emoji, got[0].Emoji)
	}

	// "1" and "01" are different tokens.
	got := Toggle(Toggle(nil, "alice", "1"), "alice", "01")
	assert.Len(t, got, 2)
}

func TestToggleIsItsOwnInverse(t *testing.T) {
	users := []string{"alice", "bob", "carol"}
	emojis := []string{"👍", "❤️", "1", "🎉"}
	rng := rand.New(rand.NewSource(7))

	var state []models.Reaction
	for i := 0; i < 200; i++ {
		u := users[rng.Intn(len(users))]
		e := emojis[rng.Intn(len(emojis))]

		twice := Toggle(Toggle(state, u, e), u, e)
		if diff := cmp.Diff(state, twice, asSets); diff != "" {
			t.Fatalf("toggle(%s,%s) twice changed state (-want +got):\n%s", u, e, diff)
		}

		state = Toggle(state, u, e)
		assertIntegrity(t, state)
	}
}

func TestHasAndTotal(t *testing.T) {
	state := Toggle(Toggle(Toggle(nil, "alice", "👍"), "bob", "👍"), "alice", "🎉")
	assert.True(t, Has(state, "alice", "🎉"))
	assert.False(t, Has(state, "bob", "🎉"))
	assert.False(t, Has(state, "bob", "❤️"))
	assert.Equal(t, 3, Total(state))
}

func assertIntegrity(t *testing.T, state []models.Reaction) {
	t.Helper()
	seen := map[string]bool{}
	for _, r := range state {
		require.False(t, seen[r.Emoji], "duplicate entry for %q", r.Emoji)
		seen[r.Emoji] = true
		require.NotZero(t, r.Count(), "empty entry for %q", r.Emoji)

		users := map[string]bool{}
		for _, u := range r.ReactingUserIDs {
			require.False(t, users[u], "user %q twice under %q", u, r.Emoji)
			users[u] = true
		}
		require.Equal(t, len(users), r.Count())
	}
}
