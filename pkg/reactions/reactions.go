// Package reactions folds reaction toggles into a message's reaction list.
package reactions

import (
	"slices"

	"Chatter/pkg/models"
)

// Toggle applies one user's emoji toggle and returns the new reaction list.
//
// If the user already reacted with emoji the reaction is withdrawn, and an
// entry left without users is dropped. Otherwise the user is added, creating
// the entry at the end of the list when needed. The input is never modified,
// and the emoji is kept byte for byte.
func Toggle(current []models.Reaction, userID, emoji string) []models.Reaction {
	out := make([]models.Reaction, 0, len(current)+1)
	found := false

	for _, r := range current {
		if r.Emoji != emoji {
			out = append(out, models.Reaction{Emoji: r.Emoji, ReactingUserIDs: slices.Clone(r.ReactingUserIDs)})
			continue
		}
		found = true
		var users []string
		if i := slices.Index(r.ReactingUserIDs, userID); i >= 0 {
			users = slices.Delete(slices.Clone(r.ReactingUserIDs), i, i+1)
		} else {
			users = append(slices.Clone(r.ReactingUserIDs), userID)
		}
		if len(users) > 0 {
			out = append(out, models.Reaction{Emoji: r.Emoji, ReactingUserIDs: users})
		}
	}

	if !found {
		out = append(out, models.Reaction{Emoji: emoji, ReactingUserIDs: []string{userID}})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Has reports whether userID currently reacts with emoji.
func Has(current []models.Reaction, userID, emoji string) bool {
	for _, r := range current {
		if r.Emoji == emoji {
			return slices.Contains(r.ReactingUserIDs, userID)
		}
	}
	return false
}

// Total counts every (user, emoji) pair in the list.
func Total(current []models.Reaction) int {
	n := 0
	for _, r := range current {
		n += r.Count()
	}
	return n
}
