package home

import (
	"errors"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/leeineian/vibestream/proc"
	"github.com/leeineian/vibestream/sys"
)

const (
	MsgMusicNotReady      = "⚠️ The music player is still starting up."
	MsgJoinVoiceFirst     = "❌ You must be in a voice channel to use this command"
	MsgInvalidPlaylist    = "❌ Please provide a valid YouTube playlist URL (must contain 'list=')"
	MsgPlaylistFailed     = "❌ Something went wrong while processing the playlist. The playlist might be private or unavailable."
	MsgResolveTimedOut    = "❌ Looking up that track took too long, try again."
	MsgReplyFailed        = "Failed to send interaction response: %v"
	MsgUserRequestedPlay  = "User %s (%s) requested playback in guild %s: %s"
	MsgUserStopped        = "User %s (%s) stopped playback in guild %s"
	MsgBotDisconnected    = "Bot disconnected by external event in guild %s"
	MsgStaleDisconnect    = "Ignoring disconnect from previous voice connection in guild %s"
	MsgNotifyFailed       = "Failed to notify channel %s: %v"
	MsgHistoryLookupError = "Failed to load play history for guild %s: %v"

	queuePreviewLimit = 10
	choiceLimit       = 100
)

// failureText maps a playback error to what the user sees.
func failureText(err error) string {
	var resErr *proc.ResolveError
	switch {
	case errors.As(err, &resErr) && resErr.Kind == proc.ResolveTimeout:
		return MsgResolveTimedOut
	case errors.As(err, &resErr):
		return "❌ " + proc.MsgNoResults
	case errors.Is(err, proc.ErrNotListenable):
		return "❌ " + proc.MsgNotListenable
	case errors.Is(err, proc.ErrNothingPlaying):
		return "❌ " + proc.MsgNothingPlaying
	case errors.Is(err, proc.ErrNotEnoughTracks):
		return "❌ " + proc.MsgNotEnoughSongs
	}
	return "❌ Failed: " + err.Error()
}

// formatEnqueued renders the reply to a play command.
func formatEnqueued(t *proc.Track, res proc.EnqueueResult) string {
	var sb strings.Builder
	if res.Started {
		sb.WriteString("🎶 **Now Playing**\n")
	} else {
		fmt.Fprintf(&sb, "🎵 **Added to Queue** (position %d)\n", res.Position+1)
	}
	fmt.Fprintf(&sb, "**[%s](%s)**\n", t.Title(), t.URL())
	fmt.Fprintf(&sb, "🕒 %s · 👀 %s · 👤 %s",
		proc.FormatDuration(t.Duration()),
		proc.FormatViews(t.Views()),
		t.Uploader().OrElse("Unknown"))
	return sb.String()
}

// formatPlaylist renders the reply to a playlist command.
func formatPlaylist(pl *proc.Playlist, res proc.EnqueueResult, nowPlaying string) string {
	var sb strings.Builder
	if res.Started {
		sb.WriteString("🎵 **Playlist Started!**\n")
		fmt.Fprintf(&sb, "✅ Added %d songs to queue\n", len(pl.Entries))
	} else {
		sb.WriteString("🎶 **Playlist Added to Queue!**\n")
		fmt.Fprintf(&sb, "✅ Added %d songs\n", len(pl.Entries))
	}
	if pl.Skipped > 0 {
		fmt.Fprintf(&sb, "⏭️ Skipped %d unavailable videos\n", pl.Skipped)
	}
	if res.Started {
		fmt.Fprintf(&sb, "▶️ Now playing: **%s**", nowPlaying)
	} else {
		fmt.Fprintf(&sb, "📋 Total songs in queue: %d", res.Total)
	}
	return sb.String()
}

func formatSkip(res proc.SkipResult) string {
	if res.Ended {
		return "⏹️ " + proc.MsgQueueEnded
	}
	return "⏭️ " + fmt.Sprintf(proc.MsgSkippedNowPlaying, "**"+res.NowPlaying+"**")
}

// formatQueue lists the playing title and a preview of what follows.
func formatQueue(titles []string) string {
	if len(titles) == 0 {
		return "❌ " + proc.MsgNothingPlaying
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "▶️ **Now Playing:** %s\n\n", titles[0])
	sb.WriteString("**Queue:**\n")

	rest := titles[1:]
	if len(rest) == 0 {
		sb.WriteString("_Empty_")
		return sb.String()
	}
	for i, title := range rest {
		if i >= queuePreviewLimit {
			fmt.Fprintf(&sb, "*...and %d more*", len(rest)-queuePreviewLimit)
			break
		}
		fmt.Fprintf(&sb, "`%d.` %s\n", i+1, title)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func helpText() string {
	lines := []struct{ cmd, desc string }{
		{"/music play [query]", "Play music (link or title)."},
		{"/music playlist [url]", "Queue a whole YouTube playlist."},
		{"/music stop", "Stop the music."},
		{"/music skip", "Skip the music."},
		{"/music queue", "Show the queue."},
		{"/music shuffle", "Shuffle the queue."},
		{"/music help", "Show this message."},
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# 🎵 %s commands\n", sys.GetProjectName())
	for _, l := range lines {
		fmt.Fprintf(&sb, "**`%s`** %s\n", l.cmd, l.desc)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// searchChoices turns search hits into autocomplete choices whose values are
// playable urls.
func searchChoices(results []proc.SearchResult) []discord.AutocompleteChoice {
	choices := make([]discord.AutocompleteChoice, 0, len(results))
	for _, r := range results {
		if len(choices) >= proc.MaxSearchResults {
			break
		}
		if r.URL == "" || len(r.URL) > choiceLimit {
			continue
		}
		suffix := ""
		if r.Author != "" {
			suffix = " · " + r.Author
		}
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  proc.TruncateWithPreserve(r.Title, choiceLimit, "", suffix),
			Value: r.URL,
		})
	}
	return choices
}

// historyChoices suggests recently played tracks when the query is empty.
func historyChoices(records []sys.PlayRecord) []discord.AutocompleteChoice {
	choices := make([]discord.AutocompleteChoice, 0, len(records))
	for _, r := range records {
		if len(choices) >= proc.MaxSearchResults {
			break
		}
		if r.URL == "" || len(r.URL) > choiceLimit {
			continue
		}
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  proc.TruncateWithPreserve(r.Title, choiceLimit, "🕘 ", ""),
			Value: r.URL,
		})
	}
	return choices
}
