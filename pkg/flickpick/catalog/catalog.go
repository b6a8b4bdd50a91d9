// Package catalog talks to the external movie catalog. Everything above it
// depends on the Catalog interface only.
package catalog

import (
	"context"
	"sort"
	"strings"
)

// SourceTMDb is the provenance tag stored on candidates sourced from TMDb
const SourceTMDb = "tmdb"

// Title is one catalog entry. Genres are ordered by prominence.
type Title struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Genres      []string `json:"genres"`
	VoteAverage float64  `json:"vote_average"`
	VoteCount   int      `json:"vote_count"`
	Popularity  float64  `json:"popularity"`
	Year        int      `json:"year,omitempty"`
	Overview    string   `json:"overview,omitempty"`
	PosterURL   string   `json:"poster_url,omitempty"`
}

// TopGenres returns the n most prominent genre tags
func (t Title) TopGenres(n int) []string {
	if len(t.Genres) < n {
		return t.Genres
	}
	return t.Genres[:n]
}

// HasGenre reports whether genre is anywhere in the tag list
func (t Title) HasGenre(genre string) bool {
	for _, g := range t.Genres {
		if g == genre {
			return true
		}
	}
	return false
}

// PageQuery filters a ranked page. The zero value asks for the
// unfiltered popularity ranking.
type PageQuery struct {
	Genres    []string
	Providers []string
}

// Filtered reports whether any filter is set
func (q PageQuery) Filtered() bool {
	return len(q.Genres) > 0 || len(q.Providers) > 0
}

// Key is a stable cache key for the query, independent of filter order
func (q PageQuery) Key() string {
	if !q.Filtered() {
		return "popular"
	}
	genres := append([]string(nil), q.Genres...)
	providers := append([]string(nil), q.Providers...)
	sort.Strings(genres)
	sort.Strings(providers)
	return "g=" + strings.Join(genres, ",") + ";p=" + strings.Join(providers, ",")
}

// Catalog is a ranked search/discovery service
type Catalog interface {
	// Configured reports whether the catalog has credentials to work with
	Configured() bool
	// FetchRankedPage returns one page (1-based) of titles matching q
	FetchRankedPage(ctx context.Context, q PageQuery, page int) ([]Title, error)
	// FetchProviders returns normalized provider ids for a title in the configured region
	FetchProviders(ctx context.Context, titleID int) ([]string, error)
	// SearchByName returns titles matching a free-text query
	SearchByName(ctx context.Context, query string) ([]Title, error)
}
