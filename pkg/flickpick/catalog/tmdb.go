package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL  = "https://api.themoviedb.org/3"
	defaultImageURL = "https://image.tmdb.org/t/p/w342"
	defaultTimeout  = 7 * time.Second
)

var ErrNotConfigured = errors.New("tmdb: no credentials configured")

// tmdbGenreIDs maps our genre names to TMDb genre ids
var tmdbGenreIDs = map[string]int{
	"Action":      28,
	"Adventure":   12,
	"Animation":   16,
	"Comedy":      35,
	"Crime":       80,
	"Documentary": 99,
	"Drama":       18,
	"Family":      10751,
	"Fantasy":     14,
	"Horror":      27,
	"Mystery":     9648,
	"Romance":     10749,
	"Sci-Fi":      878,
	"Thriller":    53,
}

var tmdbGenreNames = func() map[int]string {
	m := make(map[int]string, len(tmdbGenreIDs))
	for name, id := range tmdbGenreIDs {
		m[id] = name
	}
	return m
}()

// GenreName returns our name for a TMDb genre id. Ids outside the
// allow-list keep a placeholder so tag positions are preserved.
func GenreName(id int) string {
	if name, ok := tmdbGenreNames[id]; ok {
		return name
	}
	return "tmdb:" + strconv.Itoa(id)
}

// TMDbOptions configures a TMDb client
type TMDbOptions struct {
	ReadToken string
	APIKey    string
	Region    string
	Timeout   time.Duration
	BaseURL   string
	ImageURL  string
}

// TMDb is a Catalog backed by the TMDb v3 API
type TMDb struct {
	readToken  string
	apiKey     string
	region     string
	baseURL    string
	imageURL   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTMDb creates a TMDb client. Empty options fall back to the public API defaults.
func NewTMDb(opts TMDbOptions, logger *slog.Logger) *TMDb {
	if opts.Region == "" {
		opts.Region = "US"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.ImageURL == "" {
		opts.ImageURL = defaultImageURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TMDb{
		readToken:  opts.ReadToken,
		apiKey:     opts.APIKey,
		region:     opts.Region,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		imageURL:   strings.TrimRight(opts.ImageURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger,
	}
}

func (c *TMDb) Configured() bool {
	return c.readToken != "" || c.apiKey != ""
}

// Region is the watch-provider region
func (c *TMDb) Region() string {
	return c.region
}

type tmdbMovie struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Name        string  `json:"name"`
	GenreIDs    []int   `json:"genre_ids"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
	Popularity  float64 `json:"popularity"`
	ReleaseDate string  `json:"release_date"`
	PosterPath  string  `json:"poster_path"`
	Overview    string  `json:"overview"`
}

type tmdbPage struct {
	Results []tmdbMovie `json:"results"`
}

type tmdbProvider struct {
	ProviderName string `json:"provider_name"`
}

type tmdbWatchProviders struct {
	Results map[string]map[string][]tmdbProvider `json:"results"`
}

func (c *TMDb) toTitle(m tmdbMovie) Title {
	t := Title{
		ID:          m.ID,
		Title:       strings.TrimSpace(m.Title),
		VoteAverage: m.VoteAverage,
		VoteCount:   m.VoteCount,
		Popularity:  m.Popularity,
		Overview:    m.Overview,
	}
	if t.Title == "" {
		t.Title = strings.TrimSpace(m.Name)
	}
	for _, id := range m.GenreIDs {
		t.Genres = append(t.Genres, GenreName(id))
	}
	if len(m.ReleaseDate) >= 4 {
		if year, err := strconv.Atoi(m.ReleaseDate[:4]); err == nil {
			t.Year = year
		}
	}
	if m.PosterPath != "" {
		t.PosterURL = c.imageURL + m.PosterPath
	}
	return t
}

// FetchRankedPage uses /movie/popular for unfiltered queries and
// /discover/movie otherwise.
func (c *TMDb) FetchRankedPage(ctx context.Context, q PageQuery, page int) ([]Title, error) {
	params := url.Values{}
	params.Set("language", "en-US")
	params.Set("page", strconv.Itoa(page))

	path := "/movie/popular"
	if q.Filtered() {
		path = "/discover/movie"
		params.Set("include_adult", "false")
		params.Set("vote_count.gte", "100")
		params.Set("sort_by", "vote_average.desc")
		params.Set("with_watch_monetization_types", "flatrate|ads|free")
		if ids := genreIDs(q.Genres); ids != "" {
			params.Set("with_genres", ids)
		}
		if ids := providerIDs(q.Providers); ids != "" {
			params.Set("with_watch_providers", ids)
			params.Set("watch_region", c.region)
		}
	}

	var result tmdbPage
	if err := c.get(ctx, path, params, &result); err != nil {
		return nil, err
	}
	titles := make([]Title, 0, len(result.Results))
	for _, m := range result.Results {
		titles = append(titles, c.toTitle(m))
	}
	return titles, nil
}

// FetchProviders collects provider names from every monetization list
func (c *TMDb) FetchProviders(ctx context.Context, titleID int) ([]string, error) {
	var result tmdbWatchProviders
	if err := c.get(ctx, fmt.Sprintf("/movie/%d/watch/providers", titleID), url.Values{}, &result); err != nil {
		return nil, err
	}
	country := result.Results[c.region]
	var names []string
	for _, kind := range []string{"flatrate", "rent", "buy", "ads", "free"} {
		for _, p := range country[kind] {
			if p.ProviderName != "" {
				names = append(names, p.ProviderName)
			}
		}
	}
	return NormalizeProviders(names), nil
}

func (c *TMDb) SearchByName(ctx context.Context, query string) ([]Title, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("language", "en-US")
	params.Set("include_adult", "false")

	var result tmdbPage
	if err := c.get(ctx, "/search/movie", params, &result); err != nil {
		return nil, err
	}
	titles := make([]Title, 0, len(result.Results))
	for _, m := range result.Results {
		titles = append(titles, c.toTitle(m))
	}
	return titles, nil
}

func (c *TMDb) get(ctx context.Context, path string, params url.Values, dst any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if c.readToken == "" {
		params.Set("api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.readToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.readToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tmdb %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func genreIDs(genres []string) string {
	ids := make([]string, 0, len(genres))
	for _, g := range genres {
		if id, ok := tmdbGenreIDs[g]; ok {
			ids = append(ids, strconv.Itoa(id))
		}
	}
	// comma means all of the genres
	return strings.Join(ids, ",")
}

func providerIDs(providers []string) string {
	ids := make([]string, 0, len(providers))
	for _, p := range providers {
		if id, ok := tmdbProviderIDs[p]; ok {
			ids = append(ids, id)
		}
	}
	// pipe means any of the providers
	return strings.Join(ids, "|")
}
