package queue

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mikepea/flickpick/pkg/flickpick/catalog"
	"github.com/mikepea/flickpick/pkg/flickpick/models"
)

const (
	// DefaultQueueSize is how many titles a prebuilt queue aims for
	DefaultQueueSize = 100
	// maxBothTier caps the both-genres tier whatever the target
	maxBothTier     = 50
	defaultMaxPages = 5

	ReasonUnrestricted = "tmdb:unrestricted"
)

// Item is a sourced title ready to be stored as a candidate
type Item struct {
	Title  string
	Source string
	Meta   models.CandidateMeta
}

// TitleKey normalizes a title for used-title and duplicate checks
func TitleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

func queueReason(tier Tier) string {
	return models.ReasonQueuePrefix + ":tier=" + string(tier)
}

// FallbackReason marks a single pick made once genres are final so it
// counts as part of the group's queue
func FallbackReason(reason string) string {
	return models.ReasonQueuePrefix + ":fallback:" + strings.TrimPrefix(reason, catalog.SourceTMDb+":")
}

func seedReason(rule SeedRule) string {
	return models.ReasonQueuePrefix + ":seed=" + rule.Name()
}

func pickReason(tier Tier) string {
	return "tmdb:tier=" + string(tier)
}

func newItem(t catalog.Title, reason string, providers []string) Item {
	meta := models.CandidateMeta{
		Description: t.Overview,
		Providers:   providers,
		Reason:      reason,
	}
	if meta.Providers == nil {
		meta.Providers = []string{}
	}
	if t.Year > 0 {
		year := t.Year
		meta.Year = &year
	}
	if t.PosterURL != "" {
		poster := t.PosterURL
		meta.PosterURL = &poster
	}
	return Item{Title: t.Title, Source: catalog.SourceTMDb, Meta: meta}
}

// Builder produces candidates from a Catalog
type Builder struct {
	catalog  catalog.Catalog
	seeds    SeedRules
	maxPages int
	logger   *slog.Logger
}

// NewBuilder creates a Builder. maxPages bounds how many catalog pages a
// single tier request may scan.
func NewBuilder(cat catalog.Catalog, seeds SeedRules, maxPages int, logger *slog.Logger) *Builder {
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{catalog: cat, seeds: seeds, maxPages: maxPages, logger: logger}
}

func (b *Builder) Configured() bool {
	return b.catalog.Configured()
}

// BuildQueue returns up to target titles for genres (primary first). Seeded
// titles lead, then the both tier (at most 50), then the rest split evenly
// between primary and secondary. Tiers that come up short are topped up
// from primary, then secondary.
func (b *Builder) BuildQueue(ctx context.Context, genres, shared []string, target int) []Item {
	if target <= 0 || !b.catalog.Configured() {
		return nil
	}
	seen := make(map[string]bool)
	items := b.seed(ctx, genres, target, seen)
	remaining := target - len(items)

	fill := func(tier Tier, limit int) {
		if limit <= 0 {
			return
		}
		got := b.fillTier(ctx, tier, genres, shared, limit, seen)
		items = append(items, got...)
		remaining -= len(got)
	}

	switch {
	case len(genres) >= 2:
		fill(TierBoth, min(maxBothTier, remaining))
		primary := (remaining + 1) / 2
		secondary := remaining - primary
		fill(TierPrimary, primary)
		fill(TierSecondary, secondary)
		fill(TierPrimary, remaining)
		fill(TierSecondary, remaining)
	case len(genres) == 1:
		fill(TierPrimary, remaining)
	}

	b.logger.Info("built candidate queue",
		"genres", genres,
		"shared_providers", shared,
		"size", len(items),
		"target", target,
	)
	return items
}

func (b *Builder) seed(ctx context.Context, genres []string, target int, seen map[string]bool) []Item {
	rule, ok := b.seeds.Match(genres)
	if !ok {
		return nil
	}
	results, err := b.catalog.SearchByName(ctx, rule.Search)
	if err != nil {
		b.logger.Warn("seed search failed", "search", rule.Search, "error", err)
		return nil
	}

	needle := TitleKey(rule.Search)
	limit := min(rule.Limit, target)
	var items []Item
	for _, t := range results {
		if len(items) >= limit {
			break
		}
		key := TitleKey(t.Title)
		if key == "" || seen[key] || !strings.Contains(key, needle) {
			continue
		}
		seen[key] = true
		items = append(items, newItem(t, seedReason(rule), nil))
	}
	return items
}

// fillTier takes up to limit unseen titles for one tier. If a
// provider-constrained search under-fills, the constraint is dropped and
// the search widened.
func (b *Builder) fillTier(ctx context.Context, tier Tier, genres, shared []string, limit int, seen map[string]bool) []Item {
	q := catalog.PageQuery{Genres: tierQueryGenres(tier, genres), Providers: shared}
	items := b.take(b.scan(ctx, q, tier, genres, limit, seen), tier, q.Providers, limit, seen)

	if len(items) < limit && len(shared) > 0 {
		b.logger.Debug("widening tier without provider filter", "tier", tier, "found", len(items), "limit", limit)
		q.Providers = nil
		wider := b.scan(ctx, q, tier, genres, limit-len(items), seen)
		items = append(items, b.take(wider, tier, nil, limit-len(items), seen)...)
	}
	return items
}

// take ranks titles and keeps up to limit of them. providers is the
// filter the titles were fetched under, nil for an unfiltered query.
func (b *Builder) take(titles []catalog.Title, tier Tier, providers []string, limit int, seen map[string]bool) []Item {
	Rank(titles)
	var items []Item
	for _, t := range titles {
		if len(items) >= limit {
			break
		}
		seen[TitleKey(t.Title)] = true
		items = append(items, newItem(t, queueReason(tier), providers))
	}
	return items
}

// scan walks ranked pages until want matching titles are found or the page budget runs out
func (b *Builder) scan(ctx context.Context, q catalog.PageQuery, tier Tier, genres []string, want int, seen map[string]bool) []catalog.Title {
	var out []catalog.Title
	local := make(map[string]bool)
	for page := 1; page <= b.maxPages && len(out) < want; page++ {
		titles, err := b.catalog.FetchRankedPage(ctx, q, page)
		if err != nil {
			b.logger.Warn("catalog page fetch failed", "query", q.Key(), "page", page, "error", err)
			break
		}
		if len(titles) == 0 {
			break
		}
		for _, t := range titles {
			key := TitleKey(t.Title)
			if key == "" || seen[key] || local[key] || !tier.Matches(t, genres) {
				continue
			}
			local[key] = true
			out = append(out, t)
		}
	}
	return out
}

func tierQueryGenres(tier Tier, genres []string) []string {
	switch tier {
	case TierBoth:
		return genres[:2]
	case TierSecondary:
		return genres[1:2]
	}
	return genres[:1]
}

// NextCandidate picks one unused title from the popularity ranking. With
// genres it returns the best title of the first non-empty tier; without
// them the best title overall. When shared is non-empty the title must be
// offered by at least one shared provider. Catalog failures yield nil.
func (b *Builder) NextCandidate(ctx context.Context, used map[string]bool, shared, genres []string) *Item {
	if !b.catalog.Configured() {
		return nil
	}

	tiers := Tiers(genres)
	pools := make(map[Tier][]catalog.Title)
	var unrestricted []catalog.Title
	local := make(map[string]bool)

	for page := 1; page <= b.maxPages; page++ {
		titles, err := b.catalog.FetchRankedPage(ctx, catalog.PageQuery{}, page)
		if err != nil {
			b.logger.Warn("catalog page fetch failed", "page", page, "error", err)
			break
		}
		if len(titles) == 0 {
			break
		}
		for _, t := range titles {
			key := TitleKey(t.Title)
			if key == "" || used[key] || local[key] {
				continue
			}
			local[key] = true
			if len(tiers) == 0 {
				unrestricted = append(unrestricted, t)
				continue
			}
			if tier := Classify(t, genres); tier != TierNone {
				pools[tier] = append(pools[tier], t)
			}
		}
	}

	if len(tiers) == 0 {
		return b.firstAvailable(ctx, unrestricted, shared, ReasonUnrestricted)
	}
	for _, tier := range tiers {
		if item := b.firstAvailable(ctx, pools[tier], shared, pickReason(tier)); item != nil {
			return item
		}
	}
	return nil
}

// firstAvailable returns the best-ranked title streamable on a shared provider
func (b *Builder) firstAvailable(ctx context.Context, titles []catalog.Title, shared []string, reason string) *Item {
	Rank(titles)
	for _, t := range titles {
		if len(shared) == 0 {
			item := newItem(t, reason, nil)
			return &item
		}
		providers, err := b.catalog.FetchProviders(ctx, t.ID)
		if err != nil {
			b.logger.Warn("provider lookup failed", "title_id", t.ID, "error", err)
			continue
		}
		if len(catalog.Intersect(providers, shared)) == 0 {
			continue
		}
		item := newItem(t, reason, providers)
		return &item
	}
	return nil
}
