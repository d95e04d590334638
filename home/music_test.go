package home

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/vibestream/proc"
	"github.com/leeineian/vibestream/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMusicCommandRegistered(t *testing.T) {
	var found *discord.SlashCommandCreate
	for _, c := range sys.Commands() {
		if s, ok := c.(discord.SlashCommandCreate); ok && s.Name == "music" {
			found = &s
		}
	}
	require.NotNil(t, found)

	var names []string
	for _, o := range found.Options {
		names = append(names, o.OptionName())
	}
	assert.Equal(t, []string{"play", "playlist", "skip", "shuffle", "stop", "queue", "help"}, names)
}

func TestFailureText(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&proc.ResolveError{Kind: proc.ResolveTimeout, URL: "u"}, MsgResolveTimedOut},
		{&proc.ResolveError{Kind: proc.ResolveNotFound, URL: "q"}, "❌ No results found"},
		{fmt.Errorf("%w: left", proc.ErrNotListenable), "❌ not in a listenable context"},
		{proc.ErrNothingPlaying, "❌ nothing playing"},
		{proc.ErrNotEnoughTracks, "❌ not enough songs"},
		{errors.New("boom"), "❌ Failed: boom"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, failureText(tt.err))
	}
}

func TestFormatEnqueued(t *testing.T) {
	track := proc.NewTrack("Song", "https://example.com/song")
	track.Hydrate(&proc.TrackMetadata{
		Duration: proc.Known(212 * time.Second),
		Views:    proc.Known(int64(1_500_000)),
		Uploader: proc.Known("Artist"),
	})

	started := formatEnqueued(track, proc.EnqueueResult{Started: true, Total: 1})
	assert.True(t, strings.HasPrefix(started, "🎶 **Now Playing**"))
	assert.Contains(t, started, "[Song](https://example.com/song)")
	assert.Contains(t, started, "🕒 3:32 · 👀 1.5M · 👤 Artist")

	queued := formatEnqueued(proc.NewTrack("Other", "https://example.com/o"), proc.EnqueueResult{Position: 2, Total: 3})
	assert.Contains(t, queued, "(position 3)")
	assert.Contains(t, queued, "🕒 Unknown · 👀 Unknown · 👤 Unknown")
}

func TestFormatPlaylist(t *testing.T) {
	pl := &proc.Playlist{
		Entries: make([]proc.PlaylistEntry, 12),
		Skipped: 2,
	}

	started := formatPlaylist(pl, proc.EnqueueResult{Started: true, Total: 12}, "First")
	assert.Equal(t, "🎵 **Playlist Started!**\n✅ Added 12 songs to queue\n⏭️ Skipped 2 unavailable videos\n▶️ Now playing: **First**", started)

	pl.Skipped = 0
	added := formatPlaylist(pl, proc.EnqueueResult{Position: 3, Total: 15}, "First")
	assert.Equal(t, "🎶 **Playlist Added to Queue!**\n✅ Added 12 songs\n📋 Total songs in queue: 15", added)
}

func TestFormatSkip(t *testing.T) {
	assert.Equal(t, "⏹️ queue ended", formatSkip(proc.SkipResult{Ended: true}))
	assert.Equal(t, "⏭️ skipped, now playing **B**", formatSkip(proc.SkipResult{NowPlaying: "B"}))
}

func TestFormatQueue(t *testing.T) {
	assert.Equal(t, "❌ nothing playing", formatQueue(nil))
	assert.Equal(t, "▶️ **Now Playing:** A\n\n**Queue:**\n_Empty_", formatQueue([]string{"A"}))
	assert.Equal(t, "▶️ **Now Playing:** A\n\n**Queue:**\n`1.` B\n`2.` C", formatQueue([]string{"A", "B", "C"}))

	long := make([]string, 14)
	for i := range long {
		long[i] = fmt.Sprintf("T%d", i)
	}
	out := formatQueue(long)
	assert.Contains(t, out, "`10.` T10")
	assert.NotContains(t, out, "`11.`")
	assert.True(t, strings.HasSuffix(out, "*...and 3 more*"))
}

func TestHelpText(t *testing.T) {
	text := helpText()
	for _, sub := range []string{"play", "playlist", "stop", "skip", "queue", "shuffle", "help"} {
		assert.Contains(t, text, "/music "+sub)
	}
}

func TestSearchChoices(t *testing.T) {
	results := []proc.SearchResult{
		{Title: "Song", Author: "Band", URL: "https://music.youtube.com/watch?v=a"},
		{Title: "No link"},
		{Title: strings.Repeat("x", 150), URL: "https://www.youtube.com/watch?v=b"},
		{Title: "Long link", URL: "https://example.com/" + strings.Repeat("y", 100)},
	}

	choices := searchChoices(results)
	require.Len(t, choices, 2)

	first := choices[0].(discord.AutocompleteChoiceString)
	assert.Equal(t, "Song · Band", first.Name)
	assert.Equal(t, "https://music.youtube.com/watch?v=a", first.Value)

	second := choices[1].(discord.AutocompleteChoiceString)
	assert.Len(t, []rune(second.Name), choiceLimit)
	assert.True(t, strings.HasSuffix(second.Name, "..."))
}

func TestHistoryChoices(t *testing.T) {
	records := []sys.PlayRecord{
		{URL: "https://example.com/a", Title: "A"},
		{URL: "", Title: "broken"},
	}

	choices := historyChoices(records)
	require.Len(t, choices, 1)
	c := choices[0].(discord.AutocompleteChoiceString)
	assert.Equal(t, "🕘 A", c.Name)
	assert.Equal(t, "https://example.com/a", c.Value)
}

func TestChannelNotifier_Bind(t *testing.T) {
	n := NewChannelNotifier(nil)
	_, ok := n.channel(1)
	assert.False(t, ok)

	n.Bind(1, 100)
	n.Bind(1, 200)
	ch, ok := n.channel(1)
	require.True(t, ok)
	assert.Equal(t, uint64(200), uint64(ch))

	// Without a client there is nowhere to send; must not panic.
	n.Notify(1, proc.MsgFailedNextTrack)
}

func TestVoiceJoins_StaleDisconnectDuringJoin(t *testing.T) {
	j := newVoiceJoins()
	guild := snowflake.ID(7)
	other := snowflake.ID(8)

	assert.True(t, j.observe(guild, false), "disconnect with no join pending ends the session")

	j.begin(guild)
	assert.False(t, j.observe(guild, false), "disconnect from the previous connection is ignored")
	assert.True(t, j.observe(other, false))

	assert.False(t, j.observe(guild, true))
	assert.True(t, j.observe(guild, false), "disconnect after the new connection ends the session")
}

func TestVoiceJoins_AbortClearsPending(t *testing.T) {
	j := newVoiceJoins()
	guild := snowflake.ID(7)

	j.begin(guild)
	j.abort(guild)
	assert.True(t, j.observe(guild, false))
}
