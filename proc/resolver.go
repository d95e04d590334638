package proc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/leeineian/vibestream/sys"
	"github.com/lrstanley/go-ytdlp"
	"golang.org/x/time/rate"
)

const (
	DefaultResolveTimeout  = 15 * time.Second
	DefaultPlaylistTimeout = 30 * time.Second
	DefaultPlaylistLimit   = 100

	youtubeWatchURL = "https://www.youtube.com/watch?v="
	ytdlpNA         = "NA"

	metadataTemplate = "%(.{id,title,duration,url,thumbnail,uploader,view_count})j"
	playlistTemplate = "%(id)s\t%(url)s\t%(title)s"
)

// Hydrator fills in missing track metadata before playback.
type Hydrator interface {
	Hydrate(ctx context.Context, t *Track) error
}

type ResolverConfig struct {
	YtdlpPath       string
	Proxy           string
	Timeout         time.Duration
	PlaylistTimeout time.Duration
	PlaylistLimit   int
	// Rate is extractor invocations per second; zero means unlimited.
	Rate  float64
	Burst int
}

// Resolver turns urls and queries into tracks using yt-dlp in metadata mode.
type Resolver struct {
	cfg      ResolverConfig
	limiter  *rate.Limiter
	searcher Searcher
}

func NewResolver(cfg ResolverConfig, searcher Searcher) *Resolver {
	if cfg.YtdlpPath == "" {
		cfg.YtdlpPath = ytdlpName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultResolveTimeout
	}
	if cfg.PlaylistTimeout <= 0 {
		cfg.PlaylistTimeout = DefaultPlaylistTimeout
	}
	if cfg.PlaylistLimit <= 0 {
		cfg.PlaylistLimit = DefaultPlaylistLimit
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Resolver{
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		searcher: searcher,
	}
}

func (r *Resolver) newYtdlp() *ytdlp.Command {
	cmd := ytdlp.New().
		SetExecutable(r.cfg.YtdlpPath).
		NoWarnings().
		IgnoreConfig().
		NoCheckCertificates()

	if r.cfg.Proxy != "" {
		cmd.Proxy(r.cfg.Proxy)
	}
	return cmd
}

// run waits for the extractor rate limiter, then runs cmd and returns its
// stdout. Cancelling ctx kills the process.
func (r *Resolver) run(ctx context.Context, cmd *ytdlp.Command, args ...string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}

	res, err := cmd.Run(ctx, args...)
	if err != nil {
		if res != nil {
			if msg := strings.TrimSpace(res.Stderr); msg != "" && !strings.Contains(err.Error(), msg) {
				return "", fmt.Errorf("%w: %s", err, msg)
			}
		}
		return "", err
	}
	return res.Stdout, nil
}

func (r *Resolver) classify(ctx context.Context, u string, timeout time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		sys.LogWarn(MsgResolveTimeout, timeout, u)
		return &ResolveError{Kind: ResolveTimeout, URL: u, Err: context.DeadlineExceeded}
	}
	if ctx.Err() != nil {
		return &ResolveError{Kind: ResolveNotFound, URL: u, Err: ctx.Err()}
	}
	sys.LogDebug(MsgResolveFailed, u, err)
	return &ResolveError{Kind: ResolveNotFound, URL: u, Err: err}
}

// Resolve fetches metadata for a single url without downloading it.
func (r *Resolver) Resolve(ctx context.Context, u string) (*TrackMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := r.newYtdlp().
		SkipDownload().
		NoPlaylist().
		PreferFreeFormats().
		Format("bestaudio/best").
		Print(metadataTemplate)

	out, err := r.run(ctx, cmd, u)
	if err != nil {
		return nil, r.classify(ctx, u, r.cfg.Timeout, err)
	}

	meta, err := parseMetadataOutput(out)
	if err != nil {
		return nil, &ResolveError{Kind: ResolveNotFound, URL: u, Err: err}
	}
	return meta, nil
}

type ytdlpInfo struct {
	ID        string   `json:"id"`
	Title     *string  `json:"title"`
	Duration  *float64 `json:"duration"`
	URL       *string  `json:"url"`
	Thumbnail *string  `json:"thumbnail"`
	Uploader  *string  `json:"uploader"`
	ViewCount *float64 `json:"view_count"`
}

func knownString(s *string) Optional[string] {
	if s == nil || *s == "" || *s == ytdlpNA {
		return Unknown[string]()
	}
	return Known(*s)
}

// parseMetadataOutput reads the first JSON object printed by yt-dlp.
func parseMetadataOutput(out string) (*TrackMetadata, error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var info ytdlpInfo
		if err := json.Unmarshal([]byte(line), &info); err != nil {
			continue
		}

		meta := &TrackMetadata{
			Title:     knownString(info.Title),
			Source:    knownString(info.URL),
			Thumbnail: knownString(info.Thumbnail),
			Uploader:  knownString(info.Uploader),
		}
		if info.Duration != nil && *info.Duration > 0 {
			meta.Duration = Known(time.Duration(math.Round(*info.Duration * float64(time.Second))))
		}
		if info.ViewCount != nil && *info.ViewCount >= 0 {
			meta.Views = Known(int64(*info.ViewCount))
		}
		if !meta.Title.IsKnown() && !meta.Source.IsKnown() {
			return nil, errors.New("extractor returned no usable metadata")
		}
		return meta, nil
	}
	return nil, errors.New("extractor returned no metadata")
}

// Hydrate resolves the track only when fields are still missing.
func (r *Resolver) Hydrate(ctx context.Context, t *Track) error {
	if !t.NeedsHydration() {
		return nil
	}
	meta, err := r.Resolve(ctx, t.URL())
	if err != nil {
		return err
	}
	t.Hydrate(meta)
	return nil
}

// PlaylistEntry is one flat entry of a playlist.
type PlaylistEntry struct {
	ID    string
	URL   string
	Title string
}

type Playlist struct {
	URL     string
	Entries []PlaylistEntry
	// Skipped counts entries that had neither an id nor a url.
	Skipped int
}

func (p *Playlist) Tracks() []*Track {
	tracks := make([]*Track, 0, len(p.Entries))
	for _, e := range p.Entries {
		tracks = append(tracks, NewTrack(e.Title, e.URL))
	}
	return tracks
}

// ResolvePlaylist expands a playlist url into flat entries without touching
// each video.
func (r *Resolver) ResolvePlaylist(ctx context.Context, u string) (*Playlist, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.PlaylistTimeout)
	defer cancel()

	cmd := r.newYtdlp().
		FlatPlaylist().
		Print(playlistTemplate).
		PlaylistItems(fmt.Sprintf("1-%d", r.cfg.PlaylistLimit))

	out, err := r.run(ctx, cmd, "--yes-playlist", "--geo-bypass", u)
	if err != nil {
		return nil, r.classify(ctx, u, r.cfg.PlaylistTimeout, err)
	}

	entries, skipped := parsePlaylistOutput(out, r.cfg.PlaylistLimit)
	if len(entries) == 0 {
		return nil, &ResolveError{Kind: ResolveNotFound, URL: u, Err: errors.New("playlist has no playable entries")}
	}
	sys.LogInfo(MsgPlaylistResolved, u, len(entries), skipped)
	return &Playlist{URL: u, Entries: entries, Skipped: skipped}, nil
}

func parsePlaylistOutput(out string, limit int) ([]PlaylistEntry, int) {
	var entries []PlaylistEntry
	skipped := 0
	pos := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		pos++
		if limit > 0 && len(entries) >= limit {
			break
		}

		parts := strings.SplitN(strings.TrimRight(line, "\r"), "\t", 3)
		for len(parts) < 3 {
			parts = append(parts, "")
		}
		id, link, title := clean(parts[0]), clean(parts[1]), clean(parts[2])

		if id == "" && link == "" {
			sys.LogDebug(MsgPlaylistSkipEntry, pos)
			skipped++
			continue
		}
		if link == "" {
			link = youtubeWatchURL + id
		}
		if title == "" {
			title = fmt.Sprintf("Video %d", pos)
		}
		entries = append(entries, PlaylistEntry{ID: id, URL: link, Title: title})
	}
	return entries, skipped
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	if s == ytdlpNA {
		return ""
	}
	return s
}

// FromQuery turns a play command argument into a track. Urls are resolved
// right away; free text takes the first search hit and is hydrated when it
// starts.
func (r *Resolver) FromQuery(ctx context.Context, query string) (*Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ResolveError{Kind: ResolveNotFound, URL: query, Err: errors.New("empty query")}
	}

	if IsURL(query) {
		u := CleanURL(query)
		meta, err := r.Resolve(ctx, u)
		if err != nil {
			return nil, err
		}
		t := NewTrack("", u)
		t.Hydrate(meta)
		return t, nil
	}

	if r.searcher == nil {
		return nil, &ResolveError{Kind: ResolveNotFound, URL: query}
	}
	results, err := r.searcher.Search(ctx, query)
	if err != nil || len(results) == 0 {
		return nil, &ResolveError{Kind: ResolveNotFound, URL: query, Err: err}
	}
	return NewTrack(results[0].Title, results[0].URL), nil
}

// Search forwards to the configured searcher.
func (r *Resolver) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if r.searcher == nil {
		return nil, nil
	}
	return r.searcher.Search(ctx, query)
}

func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func IsPlaylistURL(s string) bool {
	return IsURL(s) && strings.Contains(s, "list=")
}

// CleanURL drops tracking parameters, keeping only the video id.
func CleanURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw
	}
	q := u.Query()
	kept := url.Values{}
	if v := q.Get("v"); v != "" {
		kept.Set("v", v)
	}
	u.RawQuery = kept.Encode()
	u.Fragment = ""
	return u.String()
}
