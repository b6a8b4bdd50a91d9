// Package queue sources movie candidates from the catalog: tiered genre
// matching, single on-demand picks and the prebuilt per-group queue.
package queue

import (
	"sort"

	"github.com/mikepea/flickpick/pkg/flickpick/catalog"
)

// Tier is how well a title matches the finalized genres
type Tier string

const (
	TierNone      Tier = ""
	TierBoth      Tier = "both"
	TierPrimary   Tier = "primary"
	TierSecondary Tier = "secondary"
)

// salientTags is how many leading genre tags count as prominent
const salientTags = 2

// Matches reports whether t belongs to tier for genres (primary first).
// A title can match several tiers.
func (tier Tier) Matches(t catalog.Title, genres []string) bool {
	top := t.TopGenres(salientTags)
	switch tier {
	case TierBoth:
		if len(genres) < 2 || !t.HasGenre(genres[0]) || !t.HasGenre(genres[1]) {
			return false
		}
		return contains(top, genres[0]) || contains(top, genres[1])
	case TierPrimary:
		return len(genres) >= 1 && contains(top, genres[0])
	case TierSecondary:
		return len(genres) >= 2 && contains(top, genres[1])
	}
	return false
}

// Tiers lists the tiers that apply to genres, best first
func Tiers(genres []string) []Tier {
	switch len(genres) {
	case 0:
		return nil
	case 1:
		return []Tier{TierPrimary}
	}
	return []Tier{TierBoth, TierPrimary, TierSecondary}
}

// Classify returns the best tier t falls into, or TierNone
func Classify(t catalog.Title, genres []string) Tier {
	for _, tier := range Tiers(genres) {
		if tier.Matches(t, genres) {
			return tier
		}
	}
	return TierNone
}

// ranksBefore orders by vote average, then vote count, then popularity, all descending
func ranksBefore(a, b catalog.Title) bool {
	if a.VoteAverage != b.VoteAverage {
		return a.VoteAverage > b.VoteAverage
	}
	if a.VoteCount != b.VoteCount {
		return a.VoteCount > b.VoteCount
	}
	return a.Popularity > b.Popularity
}

// Rank sorts titles best first. Ties keep catalog order.
func Rank(titles []catalog.Title) {
	sort.SliceStable(titles, func(i, j int) bool {
		return ranksBefore(titles[i], titles[j])
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
