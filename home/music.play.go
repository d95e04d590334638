package home

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/vibestream/proc"
	"github.com/leeineian/vibestream/sys"
)

const (
	playTimeout         = 45 * time.Second
	autocompleteTimeout = 2500 * time.Millisecond
)

// userVoiceChannel returns the voice channel the invoking member is in.
func userVoiceChannel(event *events.ApplicationCommandInteractionCreate) (snowflake.ID, bool) {
	if event.Member() == nil {
		return 0, false
	}
	vs, ok := event.Client().Caches.VoiceState(*event.GuildID(), event.User().ID)
	if !ok || vs.ChannelID == nil {
		return 0, false
	}
	return *vs.ChannelID, true
}

func sinkFactory(event *events.ApplicationCommandInteractionCreate, channelID snowflake.ID) proc.SinkFactory {
	guildID := *event.GuildID()
	join := proc.VoiceSinkFactory(event.Client(), guildID, channelID, music.Bitrate)
	return func(ctx context.Context) (proc.Sink, error) {
		joins.begin(guildID)
		sink, err := join(ctx)
		if err != nil {
			joins.abort(guildID)
		}
		return sink, err
	}
}

func handleMusicPlay(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	query, _ := data.OptString("query")
	guildID := *event.GuildID()

	channelID, ok := userVoiceChannel(event)
	if !ok {
		replyEphemeral(event, MsgJoinVoiceFirst)
		return
	}
	sys.LogVoice(MsgUserRequestedPlay, event.User().Username, event.User().ID, guildID, query)

	_ = event.DeferCreateMessage(false)

	ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
	defer cancel()

	track, err := music.Resolver.FromQuery(ctx, query)
	if err != nil {
		updateResponse(event, failureText(err))
		return
	}

	bindNotifier(guildID, event.Channel().ID())
	res, err := music.Player.Enqueue(ctx, guildID, sinkFactory(event, channelID), track)
	if err != nil {
		updateResponse(event, failureText(err))
		return
	}
	updateResponse(event, formatEnqueued(track, res))
}

func handleMusicPlaylist(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	url, _ := data.OptString("url")
	guildID := *event.GuildID()

	if !proc.IsPlaylistURL(url) {
		replyEphemeral(event, MsgInvalidPlaylist)
		return
	}
	channelID, ok := userVoiceChannel(event)
	if !ok {
		replyEphemeral(event, MsgJoinVoiceFirst)
		return
	}
	sys.LogVoice(MsgUserRequestedPlay, event.User().Username, event.User().ID, guildID, url)

	_ = event.DeferCreateMessage(false)

	ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
	defer cancel()

	pl, err := music.Resolver.ResolvePlaylist(ctx, url)
	if err != nil {
		sys.LogVoiceWarn(proc.MsgResolveFailed, url, err)
		updateResponse(event, MsgPlaylistFailed)
		return
	}

	tracks := pl.Tracks()
	bindNotifier(guildID, event.Channel().ID())
	res, err := music.Player.Enqueue(ctx, guildID, sinkFactory(event, channelID), tracks...)
	if err != nil {
		updateResponse(event, failureText(err))
		return
	}
	updateResponse(event, formatPlaylist(pl, res, tracks[0].Title()))
}

func handleMusicAutocomplete(event *events.AutocompleteInteractionCreate) {
	focused := event.Data.Focused()
	if focused.Name != "query" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), autocompleteTimeout)
	defer cancel()

	query := focused.String()
	switch {
	case query == "":
		if music.History == nil || event.GuildID() == nil {
			_ = event.AutocompleteResult(nil)
			return
		}
		records, err := music.History.RecentPlays(ctx, *event.GuildID(), proc.MaxSearchResults)
		if err != nil {
			sys.LogDebug(MsgHistoryLookupError, *event.GuildID(), err)
		}
		_ = event.AutocompleteResult(historyChoices(records))
	case proc.IsURL(query) || music.Resolver == nil:
		_ = event.AutocompleteResult(nil)
	default:
		results, err := music.Resolver.Search(ctx, query)
		if err != nil {
			_ = event.AutocompleteResult(nil)
			return
		}
		_ = event.AutocompleteResult(searchChoices(results))
	}
}

func bindNotifier(guildID, channelID snowflake.ID) {
	if music.Notifier != nil {
		music.Notifier.Bind(guildID, channelID)
	}
}
