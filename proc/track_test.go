package proc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptional(t *testing.T) {
	known := Known(42)
	v, ok := known.Get()
	assert.True(t, ok)
	assert.Equal(t, 42, v)
	assert.Equal(t, 42, known.OrElse(7))

	unknown := Unknown[int]()
	_, ok = unknown.Get()
	assert.False(t, ok)
	assert.False(t, unknown.IsKnown())
	assert.Equal(t, 7, unknown.OrElse(7))

	var zero Optional[string]
	assert.False(t, zero.IsKnown())
}

func TestTrack_TitleFallsBackToURL(t *testing.T) {
	assert.Equal(t, "Song", NewTrack("Song", "https://example.com/s").Title())
	assert.Equal(t, "https://example.com/s", NewTrack("", "https://example.com/s").Title())
}

func TestTrack_ShortIDIsUnique(t *testing.T) {
	a, b := NewTrack("A", ""), NewTrack("A", "")
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ShortID(), 8)
}

func TestTrack_Hydrate(t *testing.T) {
	track := NewTrack("search title", "https://example.com/a")
	assert.True(t, track.NeedsHydration())

	track.Hydrate(&TrackMetadata{
		Title:    Known("Canonical Title"),
		Duration: Known(90 * time.Second),
		Uploader: Known("Someone"),
	})
	assert.False(t, track.NeedsHydration())
	assert.Equal(t, "Canonical Title", track.Title())
	assert.Equal(t, Known("Someone"), track.Uploader())
	assert.False(t, track.Views().IsKnown())

	// Known fields are kept; only gaps are filled.
	track.Hydrate(&TrackMetadata{
		Duration: Known(time.Hour),
		Uploader: Known("Someone Else"),
		Views:    Known(int64(10)),
	})
	assert.Equal(t, "Canonical Title", track.Title())
	assert.Equal(t, Known(90*time.Second), track.Duration())
	assert.Equal(t, Known("Someone"), track.Uploader())
	assert.Equal(t, Known(int64(10)), track.Views())

	track.Hydrate(nil)
	assert.Equal(t, "Canonical Title", track.Title())
}

func TestTrack_HydrateIgnoresEmptyTitle(t *testing.T) {
	track := NewTrack("Keep", "https://example.com/a")
	track.Hydrate(&TrackMetadata{Title: Known("")})
	assert.Equal(t, "Keep", track.Title())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   Optional[time.Duration]
		want string
	}{
		{Unknown[time.Duration](), "Unknown"},
		{Known(time.Duration(0)), "0:00"},
		{Known(59 * time.Second), "0:59"},
		{Known(212*time.Second + 400*time.Millisecond), "3:32"},
		{Known(time.Hour + 2*time.Minute + 3*time.Second), "1:02:03"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in))
	}
}

func TestFormatViews(t *testing.T) {
	tests := []struct {
		in   Optional[int64]
		want string
	}{
		{Unknown[int64](), "Unknown"},
		{Known(int64(999)), "999"},
		{Known(int64(1500)), "1.5K"},
		{Known(int64(2_300_000)), "2.3M"},
		{Known(int64(4_100_000_000)), "4.1B"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatViews(tt.in))
	}
}
