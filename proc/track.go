package proc

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Optional is a value that is either Unknown or Known(value).
type Optional[T any] struct {
	value T
	known bool
}

func Known[T any](v T) Optional[T] {
	return Optional[T]{value: v, known: true}
}

func Unknown[T any]() Optional[T] {
	return Optional[T]{}
}

func (o Optional[T]) Get() (T, bool) {
	return o.value, o.known
}

func (o Optional[T]) IsKnown() bool {
	return o.known
}

func (o Optional[T]) OrElse(def T) T {
	if o.known {
		return o.value
	}
	return def
}

// TrackMetadata is what the resolver learns about a url.
type TrackMetadata struct {
	Title     Optional[string]
	Duration  Optional[time.Duration]
	Source    Optional[string]
	Thumbnail Optional[string]
	Uploader  Optional[string]
	Views     Optional[int64]
}

// Track represents a music track in the queue
type Track struct {
	ID string

	mu        sync.RWMutex
	title     string
	url       string
	duration  Optional[time.Duration]
	source    Optional[string]
	thumbnail Optional[string]
	uploader  Optional[string]
	views     Optional[int64]
}

func NewTrack(title, url string) *Track {
	return &Track{
		ID:    uuid.NewString(),
		title: title,
		url:   url,
	}
}

// ShortID is the prefix of ID used in log lines.
func (t *Track) ShortID() string {
	if len(t.ID) < 8 {
		return t.ID
	}
	return t.ID[:8]
}

func (t *Track) Title() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.title == "" {
		return t.url
	}
	return t.title
}

func (t *Track) URL() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.url
}

func (t *Track) Duration() Optional[time.Duration] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.duration
}

func (t *Track) Source() Optional[string] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.source
}

func (t *Track) Thumbnail() Optional[string] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.thumbnail
}

func (t *Track) Uploader() Optional[string] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.uploader
}

func (t *Track) Views() Optional[int64] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.views
}

// NeedsHydration reports whether the resolver still has something to add.
func (t *Track) NeedsHydration() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.duration.IsKnown()
}

// Hydrate fills fields that are still Unknown. The title is replaced by the
// canonical one when the resolver knows it.
func (t *Track) Hydrate(m *TrackMetadata) {
	if m == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if title, ok := m.Title.Get(); ok && title != "" {
		t.title = title
	}
	if !t.duration.IsKnown() {
		t.duration = m.Duration
	}
	if !t.source.IsKnown() {
		t.source = m.Source
	}
	if !t.thumbnail.IsKnown() {
		t.thumbnail = m.Thumbnail
	}
	if !t.uploader.IsKnown() {
		t.uploader = m.Uploader
	}
	if !t.views.IsKnown() {
		t.views = m.Views
	}
}

func (t *Track) String() string {
	return fmt.Sprintf("%s (%s)", t.Title(), t.URL())
}

// FormatDuration renders m:ss or h:mm:ss, "Unknown" when not known.
func FormatDuration(d Optional[time.Duration]) string {
	v, ok := d.Get()
	if !ok {
		return "Unknown"
	}
	total := int64(v.Round(time.Second) / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatViews renders a view count as 1.2K / 3.4M / 5.6B.
func FormatViews(v Optional[int64]) string {
	n, ok := v.Get()
	if !ok || n <= 0 {
		return "Unknown"
	}
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}
