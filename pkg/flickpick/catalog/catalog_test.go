package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNormalizeProviders(t *testing.T) {
	got := NormalizeProviders([]string{"Netflix", "Prime Video", "Amazon Video", "Disney Plus", " HBO Max ", "netflix"})
	want := []string{"netflix", "amazon", "hbo"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, got[i])
		}
	}

	if _, ok := NormalizeProvider("peacock"); ok {
		t.Error("Expected unknown provider to be rejected")
	}
}

func TestIntersect(t *testing.T) {
	got := Intersect([]string{"netflix", "hulu", "hbo"}, []string{"hbo", "netflix"})
	if len(got) != 2 || got[0] != "netflix" || got[1] != "hbo" {
		t.Errorf("Expected [netflix hbo], got %v", got)
	}
	if got := Intersect([]string{"netflix"}, nil); len(got) != 0 {
		t.Errorf("Expected empty intersection, got %v", got)
	}
}

func TestPageQueryKey(t *testing.T) {
	if key := (PageQuery{}).Key(); key != "popular" {
		t.Errorf("Expected popular, got %s", key)
	}
	a := PageQuery{Genres: []string{"Comedy", "Action"}, Providers: []string{"hulu", "netflix"}}
	b := PageQuery{Genres: []string{"Action", "Comedy"}, Providers: []string{"netflix", "hulu"}}
	if a.Key() != b.Key() {
		t.Errorf("Expected order-independent keys, got %s and %s", a.Key(), b.Key())
	}
}

func TestTitleGenres(t *testing.T) {
	title := Title{Genres: []string{"Fantasy", "Adventure", "Drama"}}
	if top := title.TopGenres(2); len(top) != 2 || top[1] != "Adventure" {
		t.Errorf("Expected [Fantasy Adventure], got %v", top)
	}
	if !title.HasGenre("Drama") || title.HasGenre("Horror") {
		t.Error("HasGenre returned the wrong answer")
	}
	short := Title{Genres: []string{"Comedy"}}
	if top := short.TopGenres(2); len(top) != 1 {
		t.Errorf("Expected 1 genre, got %v", top)
	}
}

func TestMemoryCacheEvictsOldest(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Minute)
	c.Set(ctx, "a", []byte("1"))
	c.Set(ctx, "b", []byte("2"))
	c.Get(ctx, "a")
	c.Set(ctx, "c", []byte("3"))

	if _, ok := c.Get(ctx, "b"); ok {
		t.Error("Expected least recently used key to be evicted")
	}
	if v, ok := c.Get(ctx, "a"); !ok || string(v) != "1" {
		t.Errorf("Expected a=1, got %q %v", v, ok)
	}
	if c.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", c.Len())
	}
}

func TestMemoryCacheExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache(10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set(ctx, "k", []byte("v"))
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatal("Expected fresh entry to be returned")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("Expected expired entry to be a miss")
	}
	if c.Len() != 0 {
		t.Errorf("Expected expired entry to be removed, got %d entries", c.Len())
	}
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	if _, err := NewRedisCache("not a url", time.Minute, nil); err == nil {
		t.Error("Expected error for invalid redis url")
	}
}

func newTestTMDb(t *testing.T, handler http.HandlerFunc) *TMDb {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTMDb(TMDbOptions{ReadToken: "test-token", BaseURL: srv.URL}, nil)
}

func TestTMDbPopularPage(t *testing.T) {
	client := newTestTMDb(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movie/popular" {
			t.Errorf("Expected /movie/popular, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		if r.URL.Query().Get("page") != "2" {
			t.Errorf("Expected page 2, got %s", r.URL.Query().Get("page"))
		}
		w.Write([]byte(`{"results":[{"id":1,"title":"Paddington 2","genre_ids":[12,35,10751,4242],
			"vote_average":7.5,"vote_count":3000,"popularity":40.2,"release_date":"2017-11-09",
			"poster_path":"/p.jpg","overview":"A bear."}]}`))
	})

	titles, err := client.FetchRankedPage(context.Background(), PageQuery{}, 2)
	if err != nil {
		t.Fatalf("FetchRankedPage failed: %v", err)
	}
	if len(titles) != 1 {
		t.Fatalf("Expected 1 title, got %d", len(titles))
	}
	got := titles[0]
	if got.Title != "Paddington 2" || got.Year != 2017 {
		t.Errorf("Unexpected title %+v", got)
	}
	if len(got.Genres) != 4 || got.Genres[0] != "Adventure" || got.Genres[2] != "Family" {
		t.Errorf("Expected mapped genres in order, got %v", got.Genres)
	}
	if got.Genres[3] != "tmdb:4242" {
		t.Errorf("Expected placeholder for unknown genre, got %s", got.Genres[3])
	}
	if got.PosterURL != "https://image.tmdb.org/t/p/w342/p.jpg" {
		t.Errorf("Unexpected poster url %s", got.PosterURL)
	}
}

func TestTMDbDiscoverFilters(t *testing.T) {
	client := newTestTMDb(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/discover/movie" {
			t.Errorf("Expected /discover/movie, got %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("with_genres") != "35,53" {
			t.Errorf("Expected with_genres 35,53, got %s", q.Get("with_genres"))
		}
		if q.Get("with_watch_providers") != "8|15" {
			t.Errorf("Expected with_watch_providers 8|15, got %s", q.Get("with_watch_providers"))
		}
		if q.Get("watch_region") != "US" {
			t.Errorf("Expected watch_region US, got %s", q.Get("watch_region"))
		}
		if q.Get("vote_count.gte") != "100" {
			t.Errorf("Expected vote_count.gte 100, got %s", q.Get("vote_count.gte"))
		}
		w.Write([]byte(`{"results":[]}`))
	})

	q := PageQuery{Genres: []string{"Comedy", "Thriller"}, Providers: []string{"netflix", "hulu"}}
	if _, err := client.FetchRankedPage(context.Background(), q, 1); err != nil {
		t.Fatalf("FetchRankedPage failed: %v", err)
	}
}

func TestTMDbProviders(t *testing.T) {
	client := newTestTMDb(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movie/42/watch/providers" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"results":{
			"US":{"flatrate":[{"provider_name":"Netflix"}],"rent":[{"provider_name":"Amazon Video"}],
			      "buy":[{"provider_name":"Apple TV"}]},
			"GB":{"flatrate":[{"provider_name":"Hulu"}]}}}`))
	})

	providers, err := client.FetchProviders(context.Background(), 42)
	if err != nil {
		t.Fatalf("FetchProviders failed: %v", err)
	}
	if len(providers) != 2 || providers[0] != "netflix" || providers[1] != "amazon" {
		t.Errorf("Expected [netflix amazon], got %v", providers)
	}
}

func TestTMDbAPIKeyAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "key" {
			t.Errorf("Expected api_key param, got %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("Expected no bearer header with api key auth")
		}
		if !strings.HasPrefix(r.URL.Path, "/search/movie") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewTMDb(TMDbOptions{APIKey: "key", BaseURL: srv.URL}, nil)
	if _, err := client.SearchByName(context.Background(), "Scary Movie"); err == nil {
		t.Error("Expected error on non-200 response")
	}

	unconfigured := NewTMDb(TMDbOptions{}, nil)
	if unconfigured.Configured() {
		t.Error("Expected client without credentials to be unconfigured")
	}
	if _, err := unconfigured.SearchByName(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

type countingCatalog struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingCatalog) Configured() bool { return true }

func (c *countingCatalog) FetchRankedPage(_ context.Context, q PageQuery, page int) ([]Title, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, errors.New("upstream down")
	}
	return []Title{{ID: page, Title: "Page " + q.Key()}}, nil
}

func (c *countingCatalog) FetchProviders(_ context.Context, _ int) ([]string, error) {
	c.calls.Add(1)
	return []string{"netflix"}, nil
}

func (c *countingCatalog) SearchByName(_ context.Context, query string) ([]Title, error) {
	c.calls.Add(1)
	return []Title{{ID: 1, Title: query}}, nil
}

func TestCachedCatalogHitsUpstreamOnce(t *testing.T) {
	ctx := context.Background()
	upstream := &countingCatalog{}
	cached := NewCached(upstream, NewMemoryCache(16, time.Minute), "tmdb:US", nil)

	for i := 0; i < 3; i++ {
		titles, err := cached.FetchRankedPage(ctx, PageQuery{Genres: []string{"Comedy"}}, 1)
		if err != nil {
			t.Fatalf("FetchRankedPage failed: %v", err)
		}
		if len(titles) != 1 || titles[0].ID != 1 {
			t.Errorf("Unexpected titles %v", titles)
		}
	}
	cached.FetchProviders(ctx, 7)
	cached.FetchProviders(ctx, 7)
	cached.SearchByName(ctx, "Scary Movie")
	cached.SearchByName(ctx, "Scary Movie")

	if got := upstream.calls.Load(); got != 3 {
		t.Errorf("Expected 3 upstream calls, got %d", got)
	}
}

func TestCachedCatalogDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	upstream := &countingCatalog{fail: true}
	cached := NewCached(upstream, NewMemoryCache(16, time.Minute), "tmdb:US", nil)

	if _, err := cached.FetchRankedPage(ctx, PageQuery{}, 1); err == nil {
		t.Fatal("Expected upstream error")
	}
	upstream.fail = false
	if _, err := cached.FetchRankedPage(ctx, PageQuery{}, 1); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if got := upstream.calls.Load(); got != 2 {
		t.Errorf("Expected 2 upstream calls, got %d", got)
	}
}
