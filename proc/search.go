package proc

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/leeineian/vibestream/sys"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
)

const (
	MaxSearchResults = 25
	searchTimeout    = 2600 * time.Millisecond
	searchCacheTTL   = 5 * time.Minute
	musicWatchURL    = "https://music.youtube.com/watch?v="
)

type SearchResult struct {
	Title  string
	Author string
	URL    string
	Source string
}

// Searcher resolves free text to candidate tracks.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

type cacheItem struct {
	results   []SearchResult
	expiresAt time.Time
}

// QueryCache keeps search results for a short while so autocomplete
// keystrokes do not hammer the search backends.
type QueryCache struct {
	sync.RWMutex
	items map[string]cacheItem
	ttl   time.Duration
}

func NewQueryCache(ttl time.Duration) *QueryCache {
	return &QueryCache{items: make(map[string]cacheItem), ttl: ttl}
}

func (c *QueryCache) Get(q string) ([]SearchResult, bool) {
	c.RLock()
	defer c.RUnlock()
	item, ok := c.items[q]
	if !ok || time.Now().After(item.expiresAt) {
		return nil, false
	}
	return item.results, true
}

func (c *QueryCache) Put(q string, results []SearchResult) {
	c.Lock()
	defer c.Unlock()
	now := time.Now()
	for k, v := range c.items {
		if now.After(v.expiresAt) {
			delete(c.items, k)
		}
	}
	c.items[q] = cacheItem{results: results, expiresAt: now.Add(c.ttl)}
}

type searchHit struct {
	id     string
	result SearchResult
}

// searchBackend is one search provider queried by YouTubeSearcher.
type searchBackend struct {
	name   string
	search func(ctx context.Context, query string) ([]searchHit, error)
}

// YouTubeSearcher queries YouTube Music and YouTube at the same time and
// merges the hits, music results first.
type YouTubeSearcher struct {
	cache    *QueryCache
	timeout  time.Duration
	backends []searchBackend
}

func NewYouTubeSearcher() *YouTubeSearcher {
	return &YouTubeSearcher{
		cache:    NewQueryCache(searchCacheTTL),
		timeout:  searchTimeout,
		backends: []searchBackend{{"ytmusic", searchYTMusic}, {"youtube", searchYouTube}},
	}
}

func searchYTMusic(_ context.Context, query string) ([]searchHit, error) {
	res, err := ytmusic.TrackSearch(query).Next()
	if err != nil {
		return nil, err
	}
	hits := make([]searchHit, 0, len(res.Tracks))
	for _, v := range res.Tracks {
		author := ""
		if len(v.Artists) > 0 {
			author = v.Artists[0].Name
		}
		hits = append(hits, searchHit{v.VideoID, SearchResult{Title: v.Title, Author: author, URL: musicWatchURL + v.VideoID, Source: "ytmusic"}})
	}
	return hits, nil
}

func searchYouTube(ctx context.Context, query string) ([]searchHit, error) {
	res, err := ytsearch.NewClient(nil).Search(ctx, query)
	if err != nil {
		return nil, err
	}
	hits := make([]searchHit, 0, len(res.Results))
	for _, v := range res.Results {
		hits = append(hits, searchHit{v.VideoID, SearchResult{Title: v.Title, Author: v.Channel, URL: youtubeWatchURL + v.VideoID, Source: "youtube"}})
	}
	return hits, nil
}

// Search merges whatever the backends return before the timeout. Results
// are cached only when every backend answered.
func (s *YouTubeSearcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	key := strings.ToLower(query)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		answers = make([][]searchHit, len(s.backends))
	)
	for i, b := range s.backends {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := b.search(ctx, query)
			if err != nil {
				sys.LogDebug(MsgSearchFailed, b.name, query, err)
				return
			}
			mu.Lock()
			answers[i] = hits
			mu.Unlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	complete := false
	select {
	case <-done:
		complete = true
	case <-ctx.Done():
	}

	var results []SearchResult
	seen := make(map[string]bool)
	mu.Lock()
	for _, hits := range answers {
		for _, h := range hits {
			if h.id == "" || seen[h.id] {
				continue
			}
			seen[h.id] = true
			results = append(results, h.result)
		}
	}
	mu.Unlock()

	if len(results) > MaxSearchResults {
		results = results[:MaxSearchResults]
	}
	if complete && len(results) > 0 {
		s.cache.Put(key, results)
	}
	return results, nil
}

// TruncateWithPreserve shortens s so that prefix+s+suffix fits in limit runes.
func TruncateWithPreserve(s string, limit int, prefix, suffix string) string {
	room := limit - len([]rune(prefix)) - len([]rune(suffix))
	r := []rune(s)
	if room <= 0 {
		all := []rune(prefix + s + suffix)
		if len(all) > limit {
			all = all[:max(limit, 0)]
		}
		return string(all)
	}
	if len(r) > room {
		if room > 3 {
			s = string(r[:room-3]) + "..."
		} else {
			s = string(r[:room])
		}
	}
	return prefix + s + suffix
}
