package proc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCache_Expiry(t *testing.T) {
	c := NewQueryCache(50 * time.Millisecond)
	results := []SearchResult{{Title: "A", URL: youtubeWatchURL + "a"}}

	_, ok := c.Get("song")
	assert.False(t, ok)

	c.Put("song", results)
	got, ok := c.Get("song")
	require.True(t, ok)
	assert.Equal(t, results, got)

	require.Eventually(t, func() bool {
		_, ok := c.Get("song")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestQueryCache_PutEvictsExpired(t *testing.T) {
	c := NewQueryCache(time.Millisecond)
	c.Put("old", []SearchResult{{Title: "old"}})
	time.Sleep(5 * time.Millisecond)

	c.Put("new", []SearchResult{{Title: "new"}})
	c.RLock()
	defer c.RUnlock()
	assert.Len(t, c.items, 1)
	assert.Contains(t, c.items, "new")
}

func TestYouTubeSearcher_EmptyQuery(t *testing.T) {
	s := NewYouTubeSearcher()
	results, err := s.Search(context.Background(), "   ")
	assert.NoError(t, err)
	assert.Empty(t, results)
}

func TestYouTubeSearcher_ServesFromCache(t *testing.T) {
	s := NewYouTubeSearcher()
	cached := []SearchResult{{Title: "Cached", URL: musicWatchURL + "c", Source: "ytmusic"}}
	s.cache.Put("some song", cached)

	results, err := s.Search(context.Background(), "  Some Song ")
	require.NoError(t, err)
	assert.Equal(t, cached, results)
}

func staticBackend(name string, ids ...string) searchBackend {
	return searchBackend{name, func(context.Context, string) ([]searchHit, error) {
		hits := make([]searchHit, 0, len(ids))
		for _, id := range ids {
			hits = append(hits, searchHit{id, SearchResult{Title: id, URL: youtubeWatchURL + id, Source: name}})
		}
		return hits, nil
	}}
}

func TestYouTubeSearcher_MergesBackends(t *testing.T) {
	s := &YouTubeSearcher{
		cache:    NewQueryCache(time.Minute),
		timeout:  testWait,
		backends: []searchBackend{staticBackend("ytmusic", "a", "b"), staticBackend("youtube", "b", "c")},
	}

	got, err := s.Search(context.Background(), "Some Song")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "ytmusic", got[1].Source)
	assert.Equal(t, "c", got[2].Title)

	cached, ok := s.cache.Get("some song")
	require.True(t, ok)
	assert.Equal(t, got, cached)
}

func TestYouTubeSearcher_TimeoutSkipsCache(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stalled := searchBackend{"youtube", func(context.Context, string) ([]searchHit, error) {
		<-release
		return nil, nil
	}}
	s := &YouTubeSearcher{
		cache:    NewQueryCache(time.Minute),
		timeout:  50 * time.Millisecond,
		backends: []searchBackend{staticBackend("ytmusic", "a"), stalled},
	}

	got, err := s.Search(context.Background(), "some song")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Title)

	_, ok := s.cache.Get("some song")
	assert.False(t, ok)
}

func TestYouTubeSearcher_BackendErrorIsSkipped(t *testing.T) {
	broken := searchBackend{"ytmusic", func(context.Context, string) ([]searchHit, error) {
		return nil, errors.New("quota exceeded")
	}}
	s := &YouTubeSearcher{
		cache:    NewQueryCache(time.Minute),
		timeout:  testWait,
		backends: []searchBackend{broken, staticBackend("youtube", "z")},
	}

	got, err := s.Search(context.Background(), "some song")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "youtube", got[0].Source)
}

func TestTruncateWithPreserve(t *testing.T) {
	tests := []struct {
		name   string
		s      string
		limit  int
		prefix string
		suffix string
		want   string
	}{
		{"fits", "short", 20, "[", "]", "[short]"},
		{"truncated", "a very long title indeed", 15, "> ", " (3:00)", "> a v... (3:00)"},
		{"tiny room", "abcdef", 5, "[", "]", "[abc]"},
		{"no room", "abcdef", 2, "[[", "]]", "[["},
		{"runes", "héllo wörld", 8, "", "", "héllo..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateWithPreserve(tt.s, tt.limit, tt.prefix, tt.suffix)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len([]rune(got)), tt.limit)
		})
	}
}
